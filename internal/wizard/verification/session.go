// Package verification holds the artifacts steps collect during one wizard
// mount and the context provider that hands them to steps.
package verification

import (
	"context"

	"idverify/internal/wizard/media"
	"idverify/internal/wizard/scope"
)

// Kind names one artifact of the verification session.
type Kind string

const (
	CameraAccess   Kind = "cameraAccess"
	PortraitPhoto  Kind = "portraitPhoto"
	IDPhoto        Kind = "idPhoto"
	IDPhotoName    Kind = "idPhotoName"
	NameMatch      Kind = "nameMatch"
	ReachedSummary Kind = "reachedSummary"
)

// Session is the per-mount artifact container. It starts empty, accumulates
// as steps complete and is discarded with the mount.
type Session struct {
	artifacts scope.Map[Kind, any]
}

func NewSession() *Session {
	return &Session{}
}

// Get returns the artifact for kind. An artifact that was never written is
// reported as absent, not as an error.
func (s *Session) Get(kind Kind) (any, bool) {
	return s.artifacts.Get(kind)
}

func (s *Session) Set(kind Kind, value any) {
	s.artifacts.Set(kind, value)
}

// Merge writes every artifact in update; existing kinds are replaced.
func (s *Session) Merge(update map[Kind]any) {
	s.artifacts.Merge(update)
}

func (s *Session) Snapshot() map[Kind]any {
	return s.artifacts.Snapshot()
}

// Reset empties the session. Called when the owning mount goes away.
func (s *Session) Reset() {
	s.artifacts.Reset()
}

func (s *Session) CameraAccess() media.CameraAccess {
	v, ok := getAs[media.CameraAccess](s, CameraAccess)
	if !ok {
		return media.CameraUnknown
	}
	return v
}

func (s *Session) PortraitPhoto() (media.Photo, bool) {
	return getAs[media.Photo](s, PortraitPhoto)
}

func (s *Session) IDPhoto() (media.Photo, bool) {
	return getAs[media.Photo](s, IDPhoto)
}

func (s *Session) IDPhotoName() (string, bool) {
	return getAs[string](s, IDPhotoName)
}

func (s *Session) NameMatch() (bool, bool) {
	return getAs[bool](s, NameMatch)
}

func (s *Session) ReachedSummary() bool {
	v, _ := getAs[bool](s, ReachedSummary)
	return v
}

func getAs[T any](s *Session, kind Kind) (T, bool) {
	var zero T
	raw, ok := s.artifacts.Get(kind)
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

type sessionKey struct{}

// WithSession provides s to everything running under the returned context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session provided by WithSession. Calling it outside
// a provider is a wiring defect and panics.
func FromContext(ctx context.Context) *Session {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	if !ok || s == nil {
		panic("verification: session used outside of its provider")
	}
	return s
}
