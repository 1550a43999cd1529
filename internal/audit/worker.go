package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrBufferFull is returned by Worker.Emit when the inbox cannot take more events.
var ErrBufferFull = errors.New("audit buffer full")

const drainTimeout = 5 * time.Second

// Worker buffers events and forwards them to a sink from a single goroutine,
// so request handlers never wait on the sink.
type Worker struct {
	sink   Publisher
	inbox  chan Event
	logger *slog.Logger
}

func NewWorker(sink Publisher, size int, logger *slog.Logger) *Worker {
	if size <= 0 {
		size = 1
	}
	return &Worker{sink: sink, inbox: make(chan Event, size), logger: logger}
}

// Emit enqueues event without blocking.
func (w *Worker) Emit(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case w.inbox <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

// Run forwards events until ctx is cancelled, then flushes what is left.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain(ctx)
			return ctx.Err()
		case event := <-w.inbox:
			w.forward(ctx, event)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	for {
		select {
		case event := <-w.inbox:
			w.forward(flushCtx, event)
		default:
			return
		}
	}
}

func (w *Worker) forward(ctx context.Context, event Event) {
	if err := w.sink.Emit(ctx, event); err != nil {
		w.logger.WarnContext(ctx, "failed to publish audit event",
			"action", string(event.Action),
			"mount_id", event.MountID,
			"error", err,
		)
	}
}
