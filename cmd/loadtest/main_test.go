package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	flashsalev1 "github.com/vladislavdragonenkov/flashsale/proto/flashsale/v1"
)

// fakeIssuer выдаёт capacity купонов: первые заявки получают PROCESSING, остальные ResourceExhausted.
type fakeIssuer struct {
	mu       sync.Mutex
	capacity int
	queued   map[int64]int
	polls    map[int64]int
	failFor  map[int64]bool
}

func newFakeIssuer(capacity int) *fakeIssuer {
	return &fakeIssuer{
		capacity: capacity,
		queued:   make(map[int64]int),
		polls:    make(map[int64]int),
		failFor:  make(map[int64]bool),
	}
}

func (f *fakeIssuer) IssueCoupon(_ context.Context, req flashsalev1.IssueCouponRequest, _ ...grpc.CallOption) (flashsalev1.IssueCouponResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failFor[req.UserID] {
		return flashsalev1.IssueCouponResponse{}, status.Error(codes.Unavailable, "redis down")
	}
	if _, ok := f.queued[req.UserID]; ok {
		return flashsalev1.IssueCouponResponse{}, status.Error(codes.AlreadyExists, "already queued")
	}
	if len(f.queued) >= f.capacity {
		return flashsalev1.IssueCouponResponse{}, status.Error(codes.ResourceExhausted, "coupon exhausted")
	}
	f.queued[req.UserID] = len(f.queued) + 1
	return flashsalev1.IssueCouponResponse{State: "PROCESSING", Position: int64(len(f.queued))}, nil
}

func (f *fakeIssuer) GetIssueStatus(_ context.Context, req flashsalev1.IssueStatusRequest, _ ...grpc.CallOption) (flashsalev1.IssueStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.polls[req.UserID]++
	if f.polls[req.UserID] < 2 {
		return flashsalev1.IssueStatusResponse{State: "PROCESSING", Position: 1}, nil
	}
	return flashsalev1.IssueStatusResponse{State: "ISSUED"}, nil
}

func testConfig(users int) config {
	return config{
		addr:         "bufnet",
		couponID:     7,
		users:        users,
		firstUserID:  1001,
		concurrency:  8,
		connections:  1,
		timeout:      time.Second,
		pollInterval: time.Millisecond,
		pollTimeout:  time.Second,
	}
}

func TestRunBurst_AdmitsAtMostCapacity(t *testing.T) {
	issuer := newFakeIssuer(5)

	result := runBurst(context.Background(), []issueClient{issuer, issuer}, testConfig(20))

	require.Equal(t, int64(5), result.Outcomes[outcomeAdmitted])
	require.Equal(t, int64(15), result.Outcomes[outcomeRejected])
	require.Zero(t, result.Outcomes[outcomeError])
	require.Equal(t, int64(20), result.Methods[methodIssue].Calls)
	require.Zero(t, result.Methods[methodIssue].Failed)
	require.Equal(t, int64(15), result.Methods[methodIssue].Codes[codes.ResourceExhausted.String()])
	require.GreaterOrEqual(t, result.Methods[methodStatus].Calls, int64(10))
	require.Equal(t, int64(7), result.CouponID)
}

func TestRunBurst_CountsTransportErrors(t *testing.T) {
	issuer := newFakeIssuer(10)
	issuer.failFor[1002] = true

	result := runBurst(context.Background(), []issueClient{issuer}, testConfig(3))

	require.Equal(t, int64(2), result.Outcomes[outcomeAdmitted])
	require.Equal(t, int64(1), result.Outcomes[outcomeError])
	require.Equal(t, int64(1), result.Methods[methodIssue].Failed)
}

type stuckIssuer struct{ *fakeIssuer }

func (s *stuckIssuer) GetIssueStatus(context.Context, flashsalev1.IssueStatusRequest, ...grpc.CallOption) (flashsalev1.IssueStatusResponse, error) {
	return flashsalev1.IssueStatusResponse{State: "PROCESSING"}, nil
}

func TestRunBurst_PendingAfterPollTimeout(t *testing.T) {
	issuer := &stuckIssuer{fakeIssuer: newFakeIssuer(1)}
	cfg := testConfig(1)
	cfg.pollTimeout = 20 * time.Millisecond

	result := runBurst(context.Background(), []issueClient{issuer}, cfg)

	require.Equal(t, int64(1), result.Outcomes[outcomePending])
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig(nil)
	require.NoError(t, err)
	require.Equal(t, "localhost:50051", cfg.addr)
	require.Equal(t, int64(1001), cfg.firstUserID)
	require.Equal(t, 200, cfg.users)

	cfg, err = parseConfig([]string{"-coupon=3", "-users=10", "-poll-interval=50ms"})
	require.NoError(t, err)
	require.Equal(t, int64(3), cfg.couponID)
	require.Equal(t, 10, cfg.users)
	require.Equal(t, 50*time.Millisecond, cfg.pollInterval)

	invalid := [][]string{
		{"-coupon=0"},
		{"-users=-1"},
		{"-concurrency=0"},
		{"-connections=0"},
		{"-timeout=0s"},
		{"-poll-timeout=-1s"},
		{"-addr= "},
		{"-unknown"},
	}
	for _, args := range invalid {
		_, err := parseConfig(args)
		require.Error(t, err, args)
	}
}

func TestFinalOutcome(t *testing.T) {
	o, ok := finalOutcome("ISSUED")
	require.True(t, ok)
	require.Equal(t, outcomeAdmitted, o)

	o, ok = finalOutcome("REJECTED")
	require.True(t, ok)
	require.Equal(t, outcomeRejected, o)

	_, ok = finalOutcome("PROCESSING")
	require.False(t, ok)
}

func TestBuildLatencySummary(t *testing.T) {
	require.Equal(t, latencySummary{}, buildLatencySummary(nil))

	summary := buildLatencySummary([]float64{4, 1, 3, 2})
	require.Equal(t, 1.0, summary.Min)
	require.Equal(t, 4.0, summary.Max)
	require.Equal(t, 2.5, summary.Avg)
	require.InDelta(t, 2.5, summary.P50, 1e-9)
	require.InDelta(t, 3.85, summary.P95, 1e-9)
}

func TestPrintReport(t *testing.T) {
	var out bytes.Buffer
	printReport(&out, report{
		CouponID: 1,
		Users:    3,
		Outcomes: map[outcome]int64{outcomeAdmitted: 2, outcomeRejected: 1},
		Methods:  map[string]methodReport{methodIssue: {Calls: 3}},
	})

	require.Contains(t, out.String(), "admitted=2 rejected=1")
	require.Contains(t, out.String(), "IssueCoupon: calls=3")
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, writeJSONReport("report.json", report{CouponID: 9, Outcomes: map[outcome]int64{outcomeAdmitted: 1}}))

	raw, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.EqualValues(t, 9, decoded["coupon_id"])

	require.Error(t, writeJSONReport("../escape.json", report{}))
	require.Error(t, writeJSONReport(".", report{}))
}
