// Package panels implements one component per wizard step. Each panel reads
// the session contexts it needs from its context, guards its own
// prerequisites, and names the step that follows it on completion.
package panels

import (
	"context"
	"log/slog"

	"github.com/microcosm-cc/bluemonday"

	"idverify/internal/platform/metrics"
	"idverify/internal/storage"
	"idverify/internal/wizard/media"
	"idverify/internal/wizard/router"
	"idverify/internal/wizard/steps"
)

// Submission is what the summary step hands to the backend.
type Submission struct {
	MountID          string
	BrowserSessionID string
	PortraitPhoto    media.Photo
	IDPhoto          media.Photo
	IDPhotoName      string
	NameMatch        bool
}

// Submitter delivers a completed verification to the backend.
type Submitter interface {
	Submit(ctx context.Context, s Submission) error
}

// Deps are the collaborators shared by the panels.
type Deps struct {
	// Store is the session-durable storage query capture writes to.
	Store     storage.Store
	Submitter Submitter
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Table returns the step→panel table for router.New.
func Table(deps Deps) map[steps.Step]router.Panel {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	var shim media.Shim
	return map[steps.Step]router.Panel{
		steps.ReviewRequirements:   info(steps.ReviewRequirements, steps.RequestCameraAccess),
		steps.RequestCameraAccess:  &cameraAccessPanel{shim: shim},
		steps.PortraitPhotoContext: info(steps.PortraitPhotoContext, steps.TakePortraitPhoto),
		steps.TakePortraitPhoto:    &capturePanel{step: steps.TakePortraitPhoto, kind: portraitKind, next: steps.IDContext},
		steps.IDContext:            info(steps.IDContext, steps.TakeIDPhoto),
		steps.TakeIDPhoto:          &capturePanel{step: steps.TakeIDPhoto, kind: idKind, next: steps.GetNameID},
		steps.GetNameID:            &nameOnIDPanel{policy: bluemonday.StrictPolicy()},
		steps.Summary:              &summaryPanel{submitter: deps.Submitter, metrics: deps.Metrics, logger: deps.Logger},
		steps.Submitted:            &submittedPanel{store: deps.Store, logger: deps.Logger},
	}
}

func view(s steps.Step, data map[string]any) router.View {
	if data == nil {
		data = map[string]any{}
	}
	return router.View{Step: s, Template: s.Slug(), Data: data}
}

func redirect(s, to steps.Step) router.View {
	return router.View{Step: s, Template: s.Slug(), Redirect: to}
}
