package bank

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/auction-house/internal/queue"
)

// Outbox queues messages for the bank and delivers them in order.
type Outbox struct {
	cfg       Config
	transport Transport
	logger    *slog.Logger

	queue *queue.Queue[Message]

	delivered atomic.Int64
	failures  atomic.Int64
}

// NewOutbox creates an outbox over t. t may already be connected.
func NewOutbox(t Transport, cfg Config, logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}

	return &Outbox{
		cfg:       cfg,
		transport: t,
		logger:    logger,
		queue:     queue.New[Message](64),
	}
}

// Send queues msg. Never blocks.
func (o *Outbox) Send(msg Message) {
	if !o.queue.Push(msg) {
		o.logger.Error("bank outbox closed, message not queued",
			"kind", msg.Kind,
			"line", msg.Line,
		)
	}
}

// Pending returns the number of queued messages.
func (o *Outbox) Pending() int {
	return o.queue.Len()
}

// Delivered returns the number of messages written to the bank.
func (o *Outbox) Delivered() int64 {
	return o.delivered.Load()
}

// Failures returns the number of failed delivery attempts.
func (o *Outbox) Failures() int64 {
	return o.failures.Load()
}

// Close stops accepting messages. Run returns once the queue is empty.
func (o *Outbox) Close() {
	o.queue.Close()
}

// Run delivers messages until Close has been called and the queue is
// empty, or ctx is done. Messages still queued when ctx ends are logged.
func (o *Outbox) Run(ctx context.Context) error {
	defer o.transport.Close()

	for {
		msg, err := o.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				return nil
			}
			o.abandon()
			return nil
		}

		if !o.deliver(ctx, msg) {
			o.logger.Error("bank message not delivered", "kind", msg.Kind, "line", msg.Line)
			o.abandon()
			return nil
		}
	}
}

// deliver writes msg, reconnecting with exponential backoff until it
// succeeds. Returns false only if ctx ends first.
func (o *Outbox) deliver(ctx context.Context, msg Message) bool {
	wait := o.cfg.ReconnectBaseDelay
	maxWait := o.cfg.ReconnectMaxDelay

	for {
		err := o.attempt(ctx, msg)
		if err == nil {
			o.delivered.Add(1)
			return true
		}
		o.failures.Add(1)

		o.logger.Warn("bank delivery failed",
			"kind", msg.Kind,
			"error", err,
			"retry_in", wait,
		)
		o.transport.Close()

		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}

		// Exponential backoff
		wait *= 2
		if wait > maxWait {
			wait = maxWait
		}
	}
}

func (o *Outbox) attempt(ctx context.Context, msg Message) error {
	if !o.transport.IsConnected() {
		if err := o.transport.Connect(ctx); err != nil {
			return err
		}
		o.logger.Info("connected to bank", "address", o.cfg.Address)
	}
	return o.transport.WriteLine(msg.Line)
}

func (o *Outbox) abandon() {
	for _, msg := range o.queue.DrainTo(0) {
		o.logger.Error("bank message not delivered", "kind", msg.Kind, "line", msg.Line)
	}
}
