// Package notify delivers fire-and-forget player notifications and broadcast events.
package notify

import (
	"context"
	"sync"
	"time"

	"mining-economy/internal/api"
	"mining-economy/internal/constants"
	"mining-economy/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Sink interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Event is a broadcast message such as a market pulse.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type Broadcaster interface {
	Broadcast(ctx context.Context, e Event) error
}

type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, n domain.Notification) error {
	s.logger.Info().
		Str("user_id", n.UserID).
		Str("severity", string(n.Severity)).
		Msg(n.Message)
	return nil
}

type WebhookSink struct {
	client *api.WebhookClient
}

func NewWebhookSink(client *api.WebhookClient) *WebhookSink {
	return &WebhookSink{client: client}
}

func (s *WebhookSink) Notify(ctx context.Context, n domain.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, constants.WebhookTimeout)
	defer cancel()
	return s.client.Post(ctx, n)
}

// Multi fans a notification out to every sink in the background. Notify never blocks on delivery
// and never fails; delivery errors are logged.
type Multi struct {
	sinks  []Sink
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func NewMulti(logger zerolog.Logger, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, logger: logger}
}

func (m *Multi) Notify(ctx context.Context, n domain.Notification) error {
	ctx = context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		var g errgroup.Group
		for _, sink := range m.sinks {
			g.Go(func() error {
				return sink.Notify(ctx, n)
			})
		}
		if err := g.Wait(); err != nil {
			m.logger.Warn().Err(err).Str("user_id", n.UserID).Msg("failed to deliver notification")
		}
	}()
	return nil
}

// Wait blocks until in-flight deliveries finish or timeout elapses.
func (m *Multi) Wait(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		m.logger.Warn().Msg("timed out waiting for notification delivery")
	}
}
