// Package verifiedname holds the name a learner claims to be verified under.
// It is provided outside the verification session so name-only consumers need
// nothing from the photo flow.
package verifiedname

import (
	"context"

	"idverify/internal/wizard/scope"
)

type Field string

const (
	ProfileName  Field = "profileName"
	VerifiedName Field = "verifiedName"
	StatusField  Field = "status"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
)

// State is the per-mount verified-name container.
type State struct {
	fields scope.Map[Field, any]
}

func NewState() *State {
	return &State{}
}

// Get returns the value for f, absent when never written.
func (s *State) Get(f Field) (any, bool) {
	return s.fields.Get(f)
}

func (s *State) Set(f Field, value any) {
	s.fields.Set(f, value)
}

func (s *State) Merge(update map[Field]any) {
	s.fields.Merge(update)
}

func (s *State) Snapshot() map[Field]any {
	return s.fields.Snapshot()
}

func (s *State) Reset() {
	s.fields.Reset()
}

func (s *State) ProfileName() (string, bool) {
	return s.text(ProfileName)
}

func (s *State) VerifiedName() (string, bool) {
	return s.text(VerifiedName)
}

// Status reports StatusNone until a step records otherwise.
func (s *State) Status() Status {
	v, ok := s.fields.Get(StatusField)
	if !ok {
		return StatusNone
	}
	st, ok := v.(Status)
	if !ok {
		return StatusNone
	}
	return st
}

func (s *State) text(f Field) (string, bool) {
	v, ok := s.fields.Get(f)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

type stateKey struct{}

// WithState provides s to everything running under the returned context.
func WithState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, stateKey{}, s)
}

// FromContext returns the state provided by WithState and panics outside a
// provider.
func FromContext(ctx context.Context) *State {
	s, ok := ctx.Value(stateKey{}).(*State)
	if !ok || s == nil {
		panic("verifiedname: state used outside of its provider")
	}
	return s
}
