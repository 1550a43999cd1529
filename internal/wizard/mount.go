package wizard

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"idverify/internal/audit"
	"idverify/internal/querycapture"
	"idverify/internal/wizard/privacy"
	"idverify/internal/wizard/router"
	"idverify/internal/wizard/steps"
	"idverify/internal/wizard/verification"
	"idverify/internal/wizard/verifiedname"
	dErrors "idverify/pkg/domain-errors"
	id "idverify/pkg/domain"
	"idverify/pkg/requestcontext"
)

// Mount is one live wizard. Its operations are serialised, so at most one
// step reads or writes the containers at a time.
type Mount struct {
	mu              sync.Mutex
	id              id.MountID
	browserSession  id.BrowserSessionID
	wizard          *Wizard
	path            string
	pendingRedirect bool
	effect          *querycapture.Effect
	session         *verification.Session
	names           *verifiedname.State
	overlay         privacy.Overlay
	createdAt       time.Time
	unmountReason   string
}

func (m *Mount) ID() id.MountID                      { return m.id }
func (m *Mount) BrowserSession() id.BrowserSessionID { return m.browserSession }
func (m *Mount) Session() *verification.Session      { return m.session }
func (m *Mount) VerifiedName() *verifiedname.State   { return m.names }
func (m *Mount) Overlay() *privacy.Overlay           { return &m.overlay }
func (m *Mount) CreatedAt() time.Time                { return m.createdAt }

// Path is the active navigational path.
func (m *Mount) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

// Redirected reports whether the mount still owes the browser a redirect to
// the first step.
func (m *Mount) Redirected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingRedirect
}

// AcceptRedirect consumes a pending redirect when the browser arrives at the
// first step's path, so following the redirect does not remount.
func (m *Mount) AcceptRedirect(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.pendingRedirect || trimSlash(path) != m.wizard.router.FirstPath() {
		return false
	}
	m.pendingRedirect = false
	return true
}

// Navigate moves the active path for in-wizard navigation. A changed query
// string reruns capture.
func (m *Mount) Navigate(ctx context.Context, path, rawQuery string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingRedirect = false
	m.path = trimSlash(path)
	m.effect.Observe(ctx, m.browserSession, rawQuery)
}

// Outlet renders the panel matching the active path. ok is false when the
// path matches no step; that renders nothing and is not an error.
func (m *Mount) Outlet(ctx context.Context) (view router.View, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.render(ctx)
}

// Complete runs the completion logic of the step at path and moves the
// active path to the step it names. A validation failure re-renders the step
// with the message and is returned alongside the view.
func (m *Mount) Complete(ctx context.Context, path string, form url.Values) (router.View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, span := tracer.Start(ctx, "wizard.complete", trace.WithAttributes(
		attribute.String("wizard.mount_id", m.id.String()),
		attribute.String("wizard.path", path),
	))
	defer span.End()

	route, ok := m.wizard.router.Match(path)
	if !ok {
		return router.View{}, dErrors.New(dErrors.CodeNotFound, "no step at "+path)
	}
	m.pendingRedirect = false
	m.path = route.Path

	next, err := route.Panel.Complete(m.provide(ctx), form)
	if err != nil && !dErrors.HasCode(err, dErrors.CodeValidation) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "step completion failed")
		return router.View{}, err
	}
	if err == nil {
		m.wizard.emit(ctx, m.event(audit.ActionStepCompleted, route.Step))
		if next == steps.Submitted && route.Step == steps.Summary {
			m.wizard.emit(ctx, m.event(audit.ActionSubmitted, route.Step))
		}
	}
	if next.IsValid() {
		m.path = m.wizard.router.PathFor(next)
	}

	view, _, rerr := m.render(ctx)
	if rerr != nil {
		return router.View{}, rerr
	}
	if err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			view.Error = de.Message
		}
	}
	return view, err
}

// render follows panel redirects until a panel renders itself. Called with
// m.mu held.
func (m *Mount) render(ctx context.Context) (router.View, bool, error) {
	ctx, span := tracer.Start(ctx, "wizard.outlet", trace.WithAttributes(
		attribute.String("wizard.mount_id", m.id.String()),
	))
	defer span.End()

	pctx := m.provide(ctx)
	for range len(steps.All()) {
		route, ok := m.wizard.router.Match(m.path)
		if !ok {
			m.wizard.metrics.IncrementUnmatchedPaths()
			return router.View{}, false, nil
		}
		view, err := route.Panel.Render(pctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "render failed")
			return router.View{}, false, err
		}
		if view.Redirect == "" || view.Redirect == route.Step {
			view.Step = route.Step
			view.Redirect = ""
			span.SetAttributes(attribute.String("wizard.step", route.Step.String()))
			m.wizard.metrics.IncrementStepRenders(route.Step.String())
			m.wizard.emit(ctx, m.event(audit.ActionStepEntered, route.Step))
			return view, true, nil
		}
		m.path = m.wizard.router.PathFor(view.Redirect)
	}
	return router.View{}, false, dErrors.New(dErrors.CodeInvariantViolation, "step redirects do not settle at "+m.path)
}

// provide wraps ctx in the mount's providers, verified name outermost.
func (m *Mount) provide(ctx context.Context) context.Context {
	ctx = requestcontext.WithMountID(ctx, m.id)
	ctx = requestcontext.WithBrowserSessionID(ctx, m.browserSession)
	ctx = verifiedname.WithState(ctx, m.names)
	return verification.WithSession(ctx, m.session)
}

func (m *Mount) event(action audit.Action, s steps.Step) audit.Event {
	return audit.Event{
		Action:           action,
		MountID:          m.id.String(),
		BrowserSessionID: m.browserSession.String(),
		Step:             s.String(),
	}
}

func (m *Mount) markUnmounting(reason string) {
	m.mu.Lock()
	m.unmountReason = reason
	m.mu.Unlock()
}

// teardown discards both containers and returns why the mount went away.
func (m *Mount) teardown() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Reset()
	m.names.Reset()
	m.overlay.Close()
	reason := m.unmountReason
	if reason == "" {
		reason = ReasonExpired
	}
	return reason
}

func trimSlash(path string) string {
	if len(path) > 1 {
		return strings.TrimRight(path, "/")
	}
	return path
}
