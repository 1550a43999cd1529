package panels

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"idverify/internal/platform/metrics"
	"idverify/internal/storage"
	"idverify/internal/wizard/router"
	"idverify/internal/wizard/steps"
	"idverify/internal/wizard/verification"
	"idverify/internal/wizard/verifiedname"
	dErrors "idverify/pkg/domain-errors"
	"idverify/pkg/requestcontext"
)

type summaryPanel struct {
	submitter Submitter
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// missing returns the first step that produces an artifact the summary
// needs, or "" when everything is present.
func missing(session *verification.Session) steps.Step {
	if _, ok := session.PortraitPhoto(); !ok {
		return steps.TakePortraitPhoto
	}
	if _, ok := session.IDPhoto(); !ok {
		return steps.TakeIDPhoto
	}
	if _, ok := session.IDPhotoName(); !ok {
		return steps.GetNameID
	}
	return ""
}

func (p *summaryPanel) Render(ctx context.Context) (router.View, error) {
	session := verification.FromContext(ctx)
	if back := missing(session); back != "" {
		return redirect(steps.Summary, back), nil
	}
	session.Set(verification.ReachedSummary, true)

	portrait, _ := session.PortraitPhoto()
	idPhoto, _ := session.IDPhoto()
	name, _ := session.IDPhotoName()
	match, _ := session.NameMatch()
	data := map[string]any{
		"portraitPhoto": portrait.DataURL(),
		"idPhoto":       idPhoto.DataURL(),
		"idName":        name,
		"nameMatch":     match,
	}
	if profile, ok := verifiedname.FromContext(ctx).ProfileName(); ok {
		data["profileName"] = profile
	}
	return view(steps.Summary, data), nil
}

func (p *summaryPanel) Complete(ctx context.Context, _ url.Values) (steps.Step, error) {
	session := verification.FromContext(ctx)
	if back := missing(session); back != "" {
		return back, nil
	}
	portrait, _ := session.PortraitPhoto()
	idPhoto, _ := session.IDPhoto()
	name, _ := session.IDPhotoName()
	match, _ := session.NameMatch()

	err := p.submitter.Submit(ctx, Submission{
		MountID:          requestcontext.MountID(ctx).String(),
		BrowserSessionID: requestcontext.BrowserSessionID(ctx).String(),
		PortraitPhoto:    portrait,
		IDPhoto:          idPhoto,
		IDPhotoName:      name,
		NameMatch:        match,
	})
	if err != nil {
		return steps.Summary, dErrors.Wrap(err, dErrors.CodeInternal, "failed to submit verification")
	}
	verifiedname.FromContext(ctx).Set(verifiedname.StatusField, verifiedname.StatusSubmitted)
	p.metrics.IncrementSubmissions()
	return steps.Submitted, nil
}

// NextParam is the captured query parameter holding where to send the
// learner once verification is submitted.
const NextParam = "next"

type submittedPanel struct {
	store  storage.Store
	logger *slog.Logger
}

func (p *submittedPanel) Render(ctx context.Context) (router.View, error) {
	data := map[string]any{}
	next, err := p.store.GetItem(ctx, requestcontext.BrowserSessionID(ctx), NextParam)
	switch {
	case err == nil && isLocalPath(next):
		data["returnURL"] = next
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		p.logger.WarnContext(ctx, "failed to read return location",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	return view(steps.Submitted, data), nil
}

// Complete keeps the wizard on its terminal step.
func (p *submittedPanel) Complete(context.Context, url.Values) (steps.Step, error) {
	return steps.Submitted, nil
}

// isLocalPath accepts only same-origin absolute paths.
func isLocalPath(s string) bool {
	if !strings.HasPrefix(s, "/") || strings.HasPrefix(s, "//") || strings.HasPrefix(s, "/\\") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Scheme == "" && u.Host == ""
}
