// Package httptransport serves the wizard over HTTP. A full page load under
// the base path mounts a fresh wizard; requests the page issues itself
// (htmx partials) navigate within the existing mount.
package httptransport

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"idverify/internal/i18n"
	"idverify/internal/wizard"
	"idverify/internal/wizard/router"
	dErrors "idverify/pkg/domain-errors"
	id "idverify/pkg/domain"
	"idverify/pkg/platform/httputil"
	"idverify/pkg/requestcontext"
)

// MountCookieName names the browser's most recent mount.
const MountCookieName = "idv_mount"

// MountHeader carries the mount id the page was rendered for. Forms posted
// without htmx send the same value as MountField.
const (
	MountHeader = "X-Idv-Mount"
	MountField  = "mount"
)

// htmx response headers.
const (
	headerRedirect = "HX-Redirect"
	headerPushURL  = "HX-Push-Url"
)

type Handler struct {
	wizard        *wizard.Wizard
	catalog       *i18n.Catalog
	views         *template.Template
	logger        *slog.Logger
	siteName      string
	secureCookies bool
}

type HandlerConfig struct {
	SiteName      string
	SecureCookies bool
}

// New parses the embedded templates and checks every step has one.
func New(w *wizard.Wizard, catalog *i18n.Catalog, logger *slog.Logger, cfg HandlerConfig) (*Handler, error) {
	views, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	for _, rt := range w.Router().Routes() {
		if views.Lookup("step-"+rt.Step.Slug()) == nil {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "no template for step "+rt.Step.String())
		}
	}
	return &Handler{
		wizard:        w,
		catalog:       catalog,
		views:         views,
		logger:        logger,
		siteName:      cfg.SiteName,
		secureCookies: cfg.SecureCookies,
	}, nil
}

// Register mounts the wizard routes below the base path.
func (h *Handler) Register(r chi.Router) {
	r.Route(h.wizard.Router().Base(), func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Get("/*", h.handleGet)
		r.Post("/privacy/open", h.handlePrivacy(true))
		r.Post("/privacy/close", h.handlePrivacy(false))
		r.Delete("/mount", h.handleUnmount)
		r.Post("/*", h.handleComplete)
	})
}

// handleGet mounts on full page loads and navigates on partial requests.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if requestcontext.IsPartial(ctx) {
		m := h.tabMount(r)
		if m == nil {
			h.reload(w, r)
			return
		}
		m.Navigate(ctx, r.URL.Path, r.URL.RawQuery)
		h.writeOutlet(w, r, m, true)
		return
	}

	m := h.cookieMount(r)
	if m != nil && m.AcceptRedirect(r.URL.Path) {
		h.writeOutlet(w, r, m, false)
		return
	}
	if m != nil {
		h.wizard.Unmount(ctx, m.ID(), wizard.ReasonReload)
	}
	m = h.wizard.Mount(ctx, requestcontext.BrowserSessionID(ctx), r.URL.Path, r.URL.RawQuery)
	h.setMountCookie(w, m.ID())
	if m.Redirected() {
		http.Redirect(w, r, h.wizard.Router().FirstPath(), http.StatusSeeOther)
		return
	}
	h.writeOutlet(w, r, m, false)
}

// handleComplete runs the posted step's completion logic.
func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	m := h.tabMount(r)
	if m == nil {
		h.reload(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.logger.WarnContext(ctx, "invalid step form",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid form"))
		return
	}

	view, err := m.Complete(ctx, r.URL.Path, r.PostForm)
	status := http.StatusOK
	switch {
	case err == nil:
	case dErrors.HasCode(err, dErrors.CodeValidation):
		status = http.StatusUnprocessableEntity
	default:
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.WarnContext(ctx, "completion posted to unknown step",
				"request_id", requestID,
				"path", r.URL.Path,
			)
		} else {
			h.logger.ErrorContext(ctx, "failed to complete step",
				"request_id", requestID,
				"mount_id", m.ID().String(),
				"path", r.URL.Path,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	h.write(w, r, m, view, true, requestcontext.IsPartial(ctx), status)
}

func (h *Handler) handlePrivacy(open bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := h.tabMount(r)
		if m == nil {
			h.reload(w, r)
			return
		}
		if open {
			m.Overlay().Open()
		} else {
			m.Overlay().Close()
		}
		if !requestcontext.IsPartial(r.Context()) {
			h.writeOutlet(w, r, m, false)
			return
		}
		data, err := h.newPageData(r, m, router.View{}, false)
		if err != nil {
			h.renderFailed(w, r, err)
			return
		}
		h.execute(w, r, "overlay", data, http.StatusOK)
	}
}

// handleUnmount discards the tab's mount when the page goes away. A page
// whose mount was already replaced by another tab leaves the cookie alone.
func (h *Handler) handleUnmount(w http.ResponseWriter, r *http.Request) {
	if m := h.tabMount(r); m != nil {
		h.wizard.Unmount(r.Context(), m.ID(), wizard.ReasonNavigateOut)
		http.SetCookie(w, h.mountCookie("", -1))
	}
	w.WriteHeader(http.StatusNoContent)
}

// tabMount returns the cookie's mount only when the requesting page was
// rendered for it. A page left open in another tab names an older mount
// and gets nil.
func (h *Handler) tabMount(r *http.Request) *wizard.Mount {
	m := h.cookieMount(r)
	if m == nil {
		return nil
	}
	tab := r.Header.Get(MountHeader)
	if tab == "" && r.Method == http.MethodPost {
		tab = r.PostFormValue(MountField)
	}
	if tab != m.ID().String() {
		return nil
	}
	return m
}

// cookieMount returns the live mount named by the cookie when it belongs to
// the requesting browser session.
func (h *Handler) cookieMount(r *http.Request) *wizard.Mount {
	c, err := r.Cookie(MountCookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	mountID, err := id.ParseMountID(c.Value)
	if err != nil {
		return nil
	}
	m, ok := h.wizard.Lookup(mountID)
	if !ok || m.BrowserSession() != requestcontext.BrowserSessionID(r.Context()) {
		return nil
	}
	return m
}

// reload answers a request that needs a mount when there is none: the
// browser is sent back to the wizard root for a full page load.
func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	base := h.wizard.Router().Base()
	if requestcontext.IsPartial(r.Context()) {
		w.Header().Set(headerRedirect, base)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, base, http.StatusSeeOther)
}

func (h *Handler) writeOutlet(w http.ResponseWriter, r *http.Request, m *wizard.Mount, partial bool) {
	view, ok, err := m.Outlet(r.Context())
	if err != nil {
		h.renderFailed(w, r, err)
		return
	}
	h.write(w, r, m, view, ok, partial, http.StatusOK)
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, m *wizard.Mount, view router.View, matched, partial bool, status int) {
	data, err := h.newPageData(r, m, view, matched)
	if err != nil {
		h.renderFailed(w, r, err)
		return
	}
	if !partial {
		h.execute(w, r, "page", data, status)
		return
	}
	if path := m.Path(); path != r.URL.Path || r.Method != http.MethodGet {
		w.Header().Set(headerPushURL, path)
	}
	h.execute(w, r, "region", data, status)
}

func (h *Handler) renderFailed(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "failed to render step",
		"request_id", requestcontext.RequestID(r.Context()),
		"error", err,
	)
	var de *dErrors.Error
	if !errors.As(err, &de) {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "render failed")
	}
	httputil.WriteError(w, err)
}

func (h *Handler) setMountCookie(w http.ResponseWriter, mountID id.MountID) {
	http.SetCookie(w, h.mountCookie(mountID.String(), 0))
}

func (h *Handler) mountCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     MountCookieName,
		Value:    value,
		Path:     h.wizard.Router().Base(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
