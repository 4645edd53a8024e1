// Package dataplatform передаёт завершённые заказы во внешнюю аналитическую платформу.
package dataplatform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/events"
)

const defaultTimeout = 5 * time.Second

var transfers = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flashsale_dataplatform_transfers_total",
	Help: "Order transfers to the data platform grouped by result.",
}, []string{"result"})

// Client отправляет заказ во внешнюю систему.
type Client interface {
	Send(ctx context.Context, payload events.DataPlatformPayload) error
}

// HTTPClient отправляет заказы POST-запросом с JSON-телом.
type HTTPClient struct {
	url    string
	client *http.Client
}

// NewHTTPClient создаёт клиента для endpoint'а url.
func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{url: url, client: &http.Client{Timeout: timeout}}
}

func (c *HTTPClient) Send(ctx context.Context, payload events.DataPlatformPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", payload.OrderID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send order %s: %w", payload.OrderID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("send order %s: unexpected status %d", payload.OrderID, resp.StatusCode)
	}
	return nil
}

// LogClient только пишет заказ в лог; используется, когда платформа не настроена.
type LogClient struct {
	logger *log.Entry
}

// NewLogClient создаёт клиента-заглушку.
func NewLogClient(logger *log.Entry) *LogClient {
	if logger == nil {
		logger = log.WithField("component", "dataplatform")
	}
	return &LogClient{logger: logger}
}

func (c *LogClient) Send(_ context.Context, payload events.DataPlatformPayload) error {
	c.logger.WithFields(log.Fields{
		"order_id": payload.OrderID,
		"user_id":  payload.UserID,
		"items":    len(payload.Items),
	}).Info("order transferred to data platform")
	return nil
}

// Sender разбирает сообщения data-platform-transfer и отправляет их клиенту.
type Sender struct {
	client Client
	logger *log.Entry
}

// NewSender создаёт отправителя.
func NewSender(client Client, logger *log.Entry) *Sender {
	if logger == nil {
		logger = log.WithField("component", "dataplatform")
	}
	return &Sender{client: client, logger: logger}
}

// HandleMessage отправляет заказ. Ошибка доставки возвращается для повтора,
// некорректное сообщение пропускается.
func (s *Sender) HandleMessage(ctx context.Context, payload []byte) error {
	var msg events.DataPlatformPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.WithError(err).Warn("skipping malformed data platform message")
		transfers.WithLabelValues("skipped").Inc()
		return nil
	}

	if err := s.client.Send(ctx, msg); err != nil {
		s.logger.WithError(err).WithField("order_id", msg.OrderID).Warn("data platform transfer failed")
		transfers.WithLabelValues("failed").Inc()
		return err
	}
	transfers.WithLabelValues("ok").Inc()
	return nil
}
