package i18n

import (
	"net/http"

	"idverify/pkg/requestcontext"
)

// Negotiate stores the best supported locale for the request's
// Accept-Language header in the request context.
func Negotiate(c *Catalog) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tag := c.Match(r.Header.Get("Accept-Language"))
			w.Header().Add("Vary", "Accept-Language")
			ctx := requestcontext.WithLocale(r.Context(), tag.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
