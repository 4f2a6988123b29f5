package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/loykin/dutywatch/internal/metrics"
)

// Gateway applies quiet hours and the per-channel reliability policy on top
// of a Transport.
type Gateway struct {
	transport Transport
	queue     *Queue
	quiet     Window
	logger    *slog.Logger
	now       func() time.Time
}

type GatewayOption func(*Gateway)

// WithClock overrides the time source used for quiet-hour decisions.
func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

func NewGateway(t Transport, q *Queue, quiet Window, opts ...GatewayOption) *Gateway {
	g := &Gateway{transport: t, queue: q, quiet: quiet, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Quiet reports whether the current time is inside quiet hours.
func (g *Gateway) Quiet() bool { return g.quiet.Contains(g.now()) }

// SendPrivate delivers text to the private recipient. Inside quiet hours, or
// when delivery fails, the message is queued instead. Only a failure to write
// the queue is returned.
func (g *Gateway) SendPrivate(ctx context.Context, text string) error {
	text = Truncate(text)
	if g.Quiet() {
		metrics.IncAlert("private", "queued")
		return g.enqueue(text)
	}
	err := g.transport.Private(ctx, text)
	switch {
	case err == nil:
		metrics.IncAlert("private", "sent")
		return nil
	case errors.Is(err, ErrNotConfigured):
		metrics.IncAlert("private", "dropped")
		g.logger.Debug("private channel not configured, message dropped")
		return nil
	default:
		metrics.IncAlert("private", "queued")
		g.logger.Warn("private delivery failed, queued for retry", "error", err)
		return g.enqueue(text)
	}
}

// SendBroadcast delivers text to the broadcast destination. Failures are
// logged and the message is dropped.
func (g *Gateway) SendBroadcast(ctx context.Context, text string) {
	err := g.transport.Broadcast(ctx, Truncate(text))
	switch {
	case err == nil:
		metrics.IncAlert("broadcast", "sent")
	case errors.Is(err, ErrNotConfigured):
		metrics.IncAlert("broadcast", "dropped")
		g.logger.Debug("broadcast channel not configured, message dropped")
	default:
		metrics.IncAlert("broadcast", "dropped")
		g.logger.Warn("broadcast delivery failed, message dropped", "error", err)
	}
}

// FlushQueue delivers every queued message in insertion order and clears the
// queue regardless of individual outcomes. It does nothing inside quiet hours.
// It returns the number of messages delivered successfully.
func (g *Gateway) FlushQueue(ctx context.Context) int {
	if g.Quiet() {
		return 0
	}
	msgs, err := g.queue.Load()
	if err != nil {
		g.logger.Warn("message queue unreadable, discarding", "path", g.queue.Path(), "error", err)
		if cerr := g.queue.Clear(); cerr != nil {
			g.logger.Warn("failed to remove message queue", "error", cerr)
		}
		metrics.SetQueueDepth(0)
		return 0
	}
	if len(msgs) == 0 {
		return 0
	}
	sent := 0
	for _, m := range msgs {
		if err := g.transport.Private(ctx, m); err != nil {
			metrics.IncAlert("private", "lost")
			g.logger.Warn("queued message delivery failed", "error", err)
			continue
		}
		metrics.IncAlert("private", "sent")
		sent++
	}
	if err := g.queue.Clear(); err != nil {
		g.logger.Warn("failed to clear message queue", "error", err)
	}
	metrics.SetQueueDepth(0)
	g.logger.Info("message queue flushed", "queued", len(msgs), "sent", sent)
	return sent
}

func (g *Gateway) enqueue(text string) error {
	if err := g.queue.Append(text); err != nil {
		g.logger.Error("failed to queue private message", "error", err)
		return err
	}
	metrics.SetQueueDepth(g.queue.Len())
	return nil
}
