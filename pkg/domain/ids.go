package domain

import (
	"github.com/google/uuid"

	dErrors "idverify/pkg/domain-errors"
)

// MountID identifies one live instance of the wizard root.
type MountID uuid.UUID

// BrowserSessionID identifies the browser session that owns session-durable
// storage. It outlives any number of mounts.
type BrowserSessionID uuid.UUID

// NewMountID returns a random mount id.
func NewMountID() MountID { return MountID(uuid.New()) }

// NewBrowserSessionID returns a random browser session id.
func NewBrowserSessionID() BrowserSessionID { return BrowserSessionID(uuid.New()) }

func (id MountID) String() string          { return uuid.UUID(id).String() }
func (id MountID) IsNil() bool             { return uuid.UUID(id) == uuid.Nil }
func (id BrowserSessionID) String() string { return uuid.UUID(id).String() }
func (id BrowserSessionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// ParseMountID parses s, rejecting empty, malformed and nil UUIDs.
func ParseMountID(s string) (MountID, error) {
	u, err := parseUUID(s, "mount id")
	return MountID(u), err
}

// ParseBrowserSessionID parses s, rejecting empty, malformed and nil UUIDs.
func ParseBrowserSessionID(s string) (BrowserSessionID, error) {
	u, err := parseUUID(s, "browser session id")
	return BrowserSessionID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}
