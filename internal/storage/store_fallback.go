package storage

import (
	"context"
	"errors"
	"log/slog"
	"maps"

	id "idverify/pkg/domain"
	"idverify/pkg/platform/circuit"
)

// FallbackStore serves from a shared primary backend and switches to a local
// secondary once the primary keeps failing. The primary is still tried on
// every call so the circuit can close again when it recovers.
type FallbackStore struct {
	primary   Store
	secondary Store
	breaker   *circuit.Breaker
	logger    *slog.Logger
}

func NewFallback(primary, secondary Store, logger *slog.Logger, opts ...circuit.Option) *FallbackStore {
	return &FallbackStore{
		primary:   primary,
		secondary: secondary,
		breaker:   circuit.New("storage", opts...),
		logger:    logger,
	}
}

// Degraded reports whether calls are currently served by the secondary.
func (s *FallbackStore) Degraded() bool {
	return s.breaker.IsOpen()
}

func (s *FallbackStore) SetItem(ctx context.Context, sessionID id.BrowserSessionID, key, value string) error {
	err := s.primary.SetItem(ctx, sessionID, key, value)
	if err == nil {
		s.succeeded(ctx)
		return nil
	}
	if !s.failed(ctx, err) {
		return err
	}
	return s.secondary.SetItem(ctx, sessionID, key, value)
}

func (s *FallbackStore) GetItem(ctx context.Context, sessionID id.BrowserSessionID, key string) (string, error) {
	value, err := s.primary.GetItem(ctx, sessionID, key)
	switch {
	case err == nil:
		s.succeeded(ctx)
		return value, nil
	case errors.Is(err, ErrNotFound):
		s.succeeded(ctx)
		// values written while degraded only exist in the secondary
		return s.secondary.GetItem(ctx, sessionID, key)
	case !s.failed(ctx, err):
		return "", err
	}
	return s.secondary.GetItem(ctx, sessionID, key)
}

func (s *FallbackStore) Items(ctx context.Context, sessionID id.BrowserSessionID) (map[string]string, error) {
	items, err := s.primary.Items(ctx, sessionID)
	if err != nil {
		if !s.failed(ctx, err) {
			return nil, err
		}
		return s.secondary.Items(ctx, sessionID)
	}
	s.succeeded(ctx)
	local, err := s.secondary.Items(ctx, sessionID)
	if err != nil || len(local) == 0 {
		return items, nil
	}
	merged := maps.Clone(local)
	maps.Copy(merged, items)
	return merged, nil
}

func (s *FallbackStore) failed(ctx context.Context, err error) bool {
	useFallback, change := s.breaker.RecordFailure()
	if change.Opened {
		s.logger.WarnContext(ctx, "storage circuit opened, serving from local fallback",
			"breaker", s.breaker.Name(),
			"error", err,
		)
	}
	return useFallback
}

func (s *FallbackStore) succeeded(ctx context.Context) {
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "storage circuit closed, primary recovered",
			"breaker", s.breaker.Name(),
		)
	}
}
