package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idverify/internal/i18n"
	"idverify/internal/platform/middleware"
	"idverify/pkg/platform/httputil"
	"idverify/pkg/platform/middleware/metadata"
	"idverify/pkg/platform/middleware/partial"
	"idverify/pkg/platform/middleware/request"
	"idverify/pkg/platform/middleware/requesttime"
)

// HealthCheck is one dependency probed by /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type RouterConfig struct {
	Logger     *slog.Logger
	Gatherer   prometheus.Gatherer
	Tokens     middleware.SessionTokens
	SessionTTL time.Duration
	Secure     bool
	Catalog    *i18n.Catalog
	Health     []HealthCheck
}

// NewRouter wires the middleware chain, operational endpoints and the wizard.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(request.RequestID)
	r.Use(chimw.RealIP)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(partial.Detect)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/healthz", healthz(cfg.Health))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.BrowserSession(cfg.Tokens, cfg.SessionTTL, cfg.Secure, cfg.Logger))
		r.Use(i18n.Negotiate(cfg.Catalog))
		h.Register(r)
	})
	return r
}

func healthz(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failing := map[string]string{}
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				failing[c.Name] = err.Error()
			}
		}
		if len(failing) > 0 {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"checks": failing,
			})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Routes lists every registered route as "METHOD pattern".
func Routes(handler http.Handler) ([]string, error) {
	routes, ok := handler.(chi.Routes)
	if !ok {
		return nil, nil
	}
	var out []string
	err := chi.Walk(routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		out = append(out, method+" "+route)
		return nil
	})
	return out, err
}
