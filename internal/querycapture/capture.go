// Package querycapture copies deep-link query parameters into session-durable
// storage so steps can read values that arrived before the wizard existed.
package querycapture

import (
	"context"
	"log/slog"

	"idverify/internal/platform/metrics"
	"idverify/internal/storage"
	id "idverify/pkg/domain"
	"idverify/pkg/requestcontext"
)

// Capturer writes parsed parameters through a storage.Store.
type Capturer struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Capturer)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Capturer) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Capturer) { c.metrics = m }
}

// New constructs a Capturer.
func New(store storage.Store, opts ...Option) *Capturer {
	c := &Capturer{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capture writes every parameter of raw under its normalised key and returns
// how many were written. A failed write is logged and skipped; it never stops
// the remaining parameters.
func (c *Capturer) Capture(ctx context.Context, sessionID id.BrowserSessionID, raw string) int {
	written := 0
	for _, p := range Parse(raw) {
		key := Normalize(p.Key)
		if key == "" {
			continue
		}
		if err := c.store.SetItem(ctx, sessionID, key, Stringify(p.Value)); err != nil {
			c.logger.WarnContext(ctx, "query parameter not captured",
				"request_id", requestcontext.RequestID(ctx),
				"key", key,
				"error", err,
			)
			c.metrics.IncrementQueryCaptureFailures()
			continue
		}
		written++
	}
	c.metrics.AddQueryParamsCaptured(written)
	return written
}

// Effect reruns Capture only when the observed query string changes, and
// never for an empty one. Each wizard mount owns one.
type Effect struct {
	capturer *Capturer
	last     string
	ran      bool
}

// NewEffect binds an effect to c.
func (c *Capturer) NewEffect() *Effect {
	return &Effect{capturer: c}
}

// Observe reports whether a capture ran for raw.
func (e *Effect) Observe(ctx context.Context, sessionID id.BrowserSessionID, raw string) bool {
	if e.ran && raw == e.last {
		return false
	}
	e.ran, e.last = true, raw
	if raw == "" || raw == "?" {
		return false
	}
	e.capturer.Capture(ctx, sessionID, raw)
	return true
}
