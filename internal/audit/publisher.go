package audit

import (
	"context"
	"log/slog"
	"time"
)

//go:generate mockgen -source=publisher.go -destination=mocks/mocks.go -package=mocks Publisher

// Publisher records audit events. Emit must not block on slow sinks for long;
// the wizard calls it on the request path.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// LogPublisher writes events as structured log records.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	attrs := []any{
		"action", string(event.Action),
		"mount_id", event.MountID,
		"timestamp", event.Timestamp,
	}
	if event.Step != "" {
		attrs = append(attrs, "step", event.Step)
	}
	if event.Reason != "" {
		attrs = append(attrs, "reason", event.Reason)
	}
	if event.RequestID != "" {
		attrs = append(attrs, "request_id", event.RequestID)
	}
	if event.ClientIP != "" {
		attrs = append(attrs, "client_ip", event.ClientIP)
	}
	if event.Browser != "" {
		attrs = append(attrs, "browser", event.Browser, "os", event.OS)
	}
	p.logger.InfoContext(ctx, "audit", attrs...)
	return nil
}
