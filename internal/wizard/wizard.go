// Package wizard is the root of the identity-verification flow. A Mount is one
// live instance of the wizard for a browser tab: it owns both session
// containers and the active path, and is rebuilt from scratch on every full
// page load.
package wizard

import (
	"context"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"idverify/internal/audit"
	"idverify/internal/platform/metrics"
	"idverify/internal/querycapture"
	"idverify/internal/storage"
	"idverify/internal/wizard/router"
	"idverify/internal/wizard/verification"
	"idverify/internal/wizard/verifiedname"
	id "idverify/pkg/domain"
	"idverify/pkg/requestcontext"
)

var tracer = otel.Tracer("idverify/internal/wizard")

// Unmount reasons.
const (
	ReasonReload      = "reload"
	ReasonNavigateOut = "navigate_away"
	ReasonExpired     = "expired"
	ReasonShutdown    = "shutdown"
)

// DefaultIdleTTL is how long an untouched mount survives.
const DefaultIdleTTL = 30 * time.Minute

type Wizard struct {
	router   *router.Router
	capturer *querycapture.Capturer
	mounts   *cache.Cache
	logger   *slog.Logger
	metrics  *metrics.Metrics
	audit    audit.Publisher
	idleTTL  time.Duration
}

type Option func(*Wizard)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Wizard) { w.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Wizard) { w.metrics = m }
}

func WithAudit(p audit.Publisher) Option {
	return func(w *Wizard) { w.audit = p }
}

func WithIdleTTL(d time.Duration) Option {
	return func(w *Wizard) {
		if d > 0 {
			w.idleTTL = d
		}
	}
}

// New builds a wizard over a validated router. Query parameters are captured
// into store.
func New(r *router.Router, store storage.Store, opts ...Option) *Wizard {
	w := &Wizard{
		router:  r,
		logger:  slog.Default(),
		idleTTL: DefaultIdleTTL,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.audit == nil {
		w.audit = audit.NewLogPublisher(w.logger)
	}
	w.capturer = querycapture.New(store,
		querycapture.WithLogger(w.logger),
		querycapture.WithMetrics(w.metrics),
	)
	w.mounts = cache.New(w.idleTTL, cleanupInterval(w.idleTTL))
	w.mounts.OnEvicted(w.evicted)
	return w
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl < 2*time.Minute {
		return ttl
	}
	return ttl / 2
}

func (w *Wizard) Router() *router.Router { return w.router }

// Mount starts a fresh wizard for a full page load of requestedPath. Both
// containers start empty, the query capture effect runs for rawQuery, and the
// active path is forced to the first step whatever was requested.
func (w *Wizard) Mount(ctx context.Context, sessionID id.BrowserSessionID, requestedPath, rawQuery string) *Mount {
	ctx, span := tracer.Start(ctx, "wizard.mount", trace.WithAttributes(
		attribute.String("wizard.requested_path", requestedPath),
	))
	defer span.End()

	m := &Mount{
		id:             id.NewMountID(),
		browserSession: sessionID,
		wizard:         w,
		session:        verification.NewSession(),
		names:          verifiedname.NewState(),
		effect:         w.capturer.NewEffect(),
		createdAt:      requestcontext.Now(ctx),
	}
	m.effect.Observe(ctx, sessionID, rawQuery)

	first := w.router.FirstPath()
	m.path = first
	m.pendingRedirect = trimSlash(requestedPath) != first

	w.mounts.Set(m.id.String(), m, cache.DefaultExpiration)
	w.metrics.IncrementMounts()
	span.SetAttributes(attribute.String("wizard.mount_id", m.id.String()))

	w.emit(ctx, audit.Event{Action: audit.ActionMounted, MountID: m.id.String(), Step: first})
	if m.pendingRedirect {
		w.emit(ctx, audit.Event{
			Action:  audit.ActionRedirected,
			MountID: m.id.String(),
			Step:    first,
			Reason:  "mounted at " + requestedPath,
		})
	}
	w.logger.InfoContext(ctx, "wizard mounted",
		"request_id", requestcontext.RequestID(ctx),
		"mount_id", m.id.String(),
		"requested_path", requestedPath,
		"redirect", m.pendingRedirect,
	)
	return m
}

// Lookup returns the live mount with mountID and slides its idle expiry.
// A mount unmounted concurrently is not brought back.
func (w *Wizard) Lookup(mountID id.MountID) (*Mount, bool) {
	key := mountID.String()
	v, ok := w.mounts.Get(key)
	if !ok {
		return nil, false
	}
	m := v.(*Mount)
	if err := w.mounts.Replace(key, m, cache.DefaultExpiration); err != nil {
		return nil, false
	}
	return m, true
}

// Unmount discards the mount and everything it holds. Unknown ids are ignored.
func (w *Wizard) Unmount(ctx context.Context, mountID id.MountID, reason string) bool {
	v, ok := w.mounts.Get(mountID.String())
	if !ok {
		return false
	}
	m := v.(*Mount)
	m.markUnmounting(reason)
	w.mounts.Delete(mountID.String())
	w.logger.InfoContext(ctx, "wizard unmounted",
		"request_id", requestcontext.RequestID(ctx),
		"mount_id", mountID.String(),
		"reason", reason,
	)
	return true
}

// Close unmounts every live mount.
func (w *Wizard) Close(ctx context.Context) {
	for key, item := range w.mounts.Items() {
		item.Object.(*Mount).markUnmounting(ReasonShutdown)
		w.mounts.Delete(key)
	}
	w.logger.InfoContext(ctx, "wizard mounts released")
}

// ActiveMounts reports how many mounts are live.
func (w *Wizard) ActiveMounts() int {
	return w.mounts.ItemCount()
}

// evicted runs for explicit unmounts and idle expiry alike.
func (w *Wizard) evicted(key string, v any) {
	m, ok := v.(*Mount)
	if !ok {
		return
	}
	reason := m.teardown()
	w.metrics.IncrementUnmounts(reason)
	w.emit(context.Background(), audit.Event{Action: audit.ActionUnmounted, MountID: key, Reason: reason})
}

func (w *Wizard) emit(ctx context.Context, e audit.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx)
	}
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	if e.ClientIP == "" {
		agent := requestcontext.ClientAgent(ctx)
		e.ClientIP = requestcontext.ClientIP(ctx)
		e.UserAgent = requestcontext.UserAgent(ctx)
		e.Browser = agent.Browser
		e.OS = agent.OS
	}
	if err := w.audit.Emit(ctx, e); err != nil {
		w.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(e.Action),
			"mount_id", e.MountID,
			"error", err,
		)
	}
}
