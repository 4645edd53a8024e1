package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/storage/memory"
)

func TestRouter_DispatchesByEventType(t *testing.T) {
	router := NewRouter(nil)
	var got []string
	router.Handle("product-ranking", func(_ context.Context, payload []byte) error {
		got = append(got, string(payload))
		return nil
	})

	ctx := context.Background()
	require.NoError(t, router.Publish(ctx, domain.OutboxMessage{EventType: "product-ranking", Payload: []byte("a")}))
	require.NoError(t, router.Publish(ctx, domain.OutboxMessage{EventType: "unrouted", Payload: []byte("b")}))
	require.Equal(t, []string{"a"}, got)
}

func TestRouter_HandlerErrorFailsMessageAfterRetries(t *testing.T) {
	repo := memory.NewOutboxRepository()
	msg := enqueue(t, repo, "data-platform-transfer", `{}`)

	router := NewRouter(nil)
	router.Handle("data-platform-transfer", func(context.Context, []byte) error {
		return errors.New("platform unavailable")
	})

	err := router.Publish(context.Background(), msg)
	require.Error(t, err)

	sent := NewWorker(repo, router, WithRetryBaseDelay(0), WithMaxAttempts(2)).ProcessOnce(context.Background())
	require.Zero(t, sent)
	require.Equal(t, "failed", repo.Status(msg.ID))
}
