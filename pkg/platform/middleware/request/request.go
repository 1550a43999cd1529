// Package request copies chi's request id into the transport-independent
// request context.
package request

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"idverify/pkg/requestcontext"
)

// RequestID must run after chi's middleware.RequestID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if rid := chimw.GetReqID(ctx); rid != "" {
			ctx = requestcontext.WithRequestID(ctx, rid)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
