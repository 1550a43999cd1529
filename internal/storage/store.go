// Package storage holds session-durable values: they survive in-wizard
// navigation and remounts for the lifetime of a browser session, unlike the
// wizard's in-memory containers.
package storage

import (
	"context"

	id "idverify/pkg/domain"
	"idverify/pkg/platform/sentinel"
)

// ErrNotFound is returned by GetItem for a key that was never set or expired.
var ErrNotFound = sentinel.ErrNotFound

// Store is the single interface query capture and panels use to reach
// session-durable storage. Keys are scoped to the browser session.
type Store interface {
	SetItem(ctx context.Context, sessionID id.BrowserSessionID, key, value string) error
	GetItem(ctx context.Context, sessionID id.BrowserSessionID, key string) (string, error)
	Items(ctx context.Context, sessionID id.BrowserSessionID) (map[string]string, error)
}
