// Package steps declares the wizard's step identifiers in canonical order.
package steps

import (
	dErrors "idverify/pkg/domain-errors"
)

// Step identifies one screen of the wizard. The string value is also the
// step's path segment below the wizard base path.
type Step string

const (
	ReviewRequirements   Step = "review-requirements"
	RequestCameraAccess  Step = "request-camera-access"
	PortraitPhotoContext Step = "portrait-photo-context"
	TakePortraitPhoto    Step = "take-portrait-photo"
	IDContext            Step = "id-context"
	GetNameID            Step = "get-name-id"
	TakeIDPhoto          Step = "take-id-photo"
	Summary              Step = "summary"
	Submitted            Step = "submitted"
)

var ordered = []Step{
	ReviewRequirements,
	RequestCameraAccess,
	PortraitPhotoContext,
	TakePortraitPhoto,
	IDContext,
	GetNameID,
	TakeIDPhoto,
	Summary,
	Submitted,
}

// All returns every step in canonical order. The slice is a copy.
func All() []Step {
	out := make([]Step, len(ordered))
	copy(out, ordered)
	return out
}

// First is the step every mount is redirected to.
func First() Step { return ordered[0] }

// Ordinal returns the position of s in canonical order, or -1 for an unknown step.
func (s Step) Ordinal() int {
	for i, o := range ordered {
		if o == s {
			return i
		}
	}
	return -1
}

func (s Step) IsValid() bool { return s.Ordinal() >= 0 }

// IsTerminal reports whether the wizard ends at s.
func (s Step) IsTerminal() bool { return s == Submitted }

func (s Step) Slug() string { return string(s) }

func (s Step) String() string { return string(s) }

// Parse resolves a path segment to a Step.
func Parse(segment string) (Step, error) {
	s := Step(segment)
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown step: "+segment)
	}
	return s, nil
}
