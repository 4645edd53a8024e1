package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	flashsalev1 "github.com/vladislavdragonenkov/flashsale/proto/flashsale/v1"
)

const (
	methodIssue  = "IssueCoupon"
	methodStatus = "GetIssueStatus"
)

// outcome: итог одной заявки пользователя.
type outcome string

const (
	outcomeAdmitted  outcome = "admitted"
	outcomeRejected  outcome = "rejected"
	outcomeDuplicate outcome = "duplicate"
	outcomePending   outcome = "pending"
	outcomeError     outcome = "error"
)

type config struct {
	addr         string
	couponID     int64
	users        int
	firstUserID  int64
	concurrency  int
	connections  int
	timeout      time.Duration
	pollInterval time.Duration
	pollTimeout  time.Duration
	outputPath   string
}

// issueClient: часть FlashSaleServiceClient, нужная генератору.
type issueClient interface {
	IssueCoupon(ctx context.Context, req flashsalev1.IssueCouponRequest, opts ...grpc.CallOption) (flashsalev1.IssueCouponResponse, error)
	GetIssueStatus(ctx context.Context, req flashsalev1.IssueStatusRequest, opts ...grpc.CallOption) (flashsalev1.IssueStatusResponse, error)
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Failed    int64            `json:"failed"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt       time.Time               `json:"started_at"`
	DurationSeconds float64                 `json:"duration_seconds"`
	CouponID        int64                   `json:"coupon_id"`
	Users           int                     `json:"users"`
	Outcomes        map[outcome]int64       `json:"outcomes"`
	RPS             float64                 `json:"rps"`
	AdmitLatencyMs  latencySummary          `json:"admit_latency_ms"`
	Methods         map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu       sync.Mutex
	methods  map[string]*methodStats
	outcomes map[outcome]int64
	admitted []float64
}

func newCollector() *collector {
	return &collector{
		methods:  make(map[string]*methodStats),
		outcomes: make(map[outcome]int64),
	}
}

func (c *collector) recordCall(method string, latency time.Duration, code codes.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{codes: make(map[string]int64)}
		c.methods[method] = stats
	}
	stats.calls++
	if code != codes.OK && code != codes.ResourceExhausted && code != codes.AlreadyExists {
		stats.failed++
	}
	stats.codes[code.String()]++
	stats.latencies = append(stats.latencies, toMillis(latency))
}

func (c *collector) recordOutcome(o outcome, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outcomes[o]++
	if o == outcomeAdmitted {
		c.admitted = append(c.admitted, toMillis(elapsed))
	}
}

func (c *collector) buildReport(cfg config, startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		CouponID:        cfg.couponID,
		Users:           cfg.users,
		Outcomes:        make(map[outcome]int64, len(c.outcomes)),
		AdmitLatencyMs:  buildLatencySummary(c.admitted),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}
	for o, n := range c.outcomes {
		result.Outcomes[o] = n
	}
	for name, stats := range c.methods {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, n := range stats.codes {
			codesCopy[code] = n
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Failed:    stats.failed,
			Codes:     codesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}
	if issue, ok := c.methods[methodIssue]; ok && duration > 0 {
		result.RPS = float64(issue.calls) / duration.Seconds()
	}
	return result
}

func parseConfig(args []string) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.Int64Var(&cfg.couponID, "coupon", 1, "coupon id to request")
	fs.IntVar(&cfg.users, "users", 200, "number of distinct users in the burst")
	fs.Int64Var(&cfg.firstUserID, "first-user", 1001, "id of the first user")
	fs.IntVar(&cfg.concurrency, "concurrency", 50, "number of in-flight requests")
	fs.IntVar(&cfg.connections, "connections", 4, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.DurationVar(&cfg.pollInterval, "poll-interval", 200*time.Millisecond, "delay between status polls")
	fs.DurationVar(&cfg.pollTimeout, "poll-timeout", 30*time.Second, "how long to wait for a final issue state")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	switch {
	case cfg.couponID <= 0:
		return cfg, errors.New("coupon must be > 0")
	case cfg.users <= 0:
		return cfg, errors.New("users must be > 0")
	case cfg.firstUserID <= 0:
		return cfg, errors.New("first-user must be > 0")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return cfg, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.pollInterval <= 0:
		return cfg, errors.New("poll-interval must be > 0")
	case cfg.pollTimeout <= 0:
		return cfg, errors.New("poll-timeout must be > 0")
	}
	cfg.addr = strings.TrimSpace(cfg.addr)
	if cfg.addr == "" {
		return cfg, errors.New("addr is required")
	}
	return cfg, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]issueClient, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			log.WithError(dialErr).Fatal("failed to create grpc client connection")
		}
		conns = append(conns, conn)
		clients = append(clients, flashsalev1.NewFlashSaleServiceClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	log.WithFields(log.Fields{
		"addr":        cfg.addr,
		"coupon_id":   cfg.couponID,
		"users":       cfg.users,
		"concurrency": cfg.concurrency,
	}).Info("starting flash-sale burst")

	result := runBurst(ctx, clients, cfg)
	printReport(os.Stdout, result)

	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			log.WithError(err).Error("failed to write report")
			os.Exit(1)
		}
	}
	if result.Outcomes[outcomeError] > 0 {
		os.Exit(1)
	}
}

// runBurst одновременно отправляет заявки всех пользователей и дожидается их итогов.
func runBurst(ctx context.Context, clients []issueClient, cfg config) report {
	col := newCollector()
	startedAt := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.concurrency)
	for i := 0; i < cfg.users; i++ {
		client := clients[i%len(clients)]
		userID := cfg.firstUserID + int64(i)
		g.Go(func() error {
			start := time.Now()
			o := runUser(gctx, client, cfg, userID, col)
			col.recordOutcome(o, time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	return col.buildReport(cfg, startedAt, time.Since(startedAt))
}

func runUser(ctx context.Context, client issueClient, cfg config, userID int64, col *collector) outcome {
	callCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	start := time.Now()
	resp, err := client.IssueCoupon(callCtx, flashsalev1.IssueCouponRequest{UserID: userID, CouponID: cfg.couponID})
	cancel()
	code := status.Code(err)
	col.recordCall(methodIssue, time.Since(start), code)

	switch code {
	case codes.OK:
	case codes.ResourceExhausted, codes.FailedPrecondition:
		return outcomeRejected
	case codes.AlreadyExists:
		return outcomeDuplicate
	default:
		log.WithError(err).WithField("user_id", userID).Debug("issue request failed")
		return outcomeError
	}

	if final, ok := finalOutcome(resp.State); ok {
		return final
	}
	return pollUntilFinal(ctx, client, cfg, userID, col)
}

func pollUntilFinal(ctx context.Context, client issueClient, cfg config, userID int64, col *collector) outcome {
	deadline := time.NewTimer(cfg.pollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(cfg.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return outcomePending
		case <-deadline.C:
			return outcomePending
		case <-ticker.C:
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
		start := time.Now()
		resp, err := client.GetIssueStatus(callCtx, flashsalev1.IssueStatusRequest{UserID: userID, CouponID: cfg.couponID})
		cancel()
		col.recordCall(methodStatus, time.Since(start), status.Code(err))
		if err != nil {
			continue
		}
		if final, ok := finalOutcome(resp.State); ok {
			return final
		}
	}
}

func finalOutcome(state string) (outcome, bool) {
	switch state {
	case "ISSUED":
		return outcomeAdmitted, true
	case "REJECTED":
		return outcomeRejected, true
	default:
		return "", false
	}
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report) {
	_, _ = fmt.Fprintln(w, "Flash-sale burst summary")
	_, _ = fmt.Fprintf(w, "coupon=%d users=%d admitted=%d rejected=%d duplicate=%d pending=%d errors=%d\n",
		result.CouponID,
		result.Users,
		result.Outcomes[outcomeAdmitted],
		result.Outcomes[outcomeRejected],
		result.Outcomes[outcomeDuplicate],
		result.Outcomes[outcomePending],
		result.Outcomes[outcomeError],
	)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(w, "admit latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.AdmitLatencyMs.Min,
		result.AdmitLatencyMs.Avg,
		result.AdmitLatencyMs.P50,
		result.AdmitLatencyMs.P95,
		result.AdmitLatencyMs.P99,
		result.AdmitLatencyMs.Max,
	)

	names := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Methods[name]
		_, _ = fmt.Fprintf(w, "%s: calls=%d failed=%d p95=%.2fms\n", name, stats.Calls, stats.Failed, stats.LatencyMs.P95)
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func toMillis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
