// Package partial tells full page loads apart from requests the wizard page
// issues itself. Only full page loads mount the wizard.
package partial

import (
	"net/http"

	"idverify/pkg/requestcontext"
)

// Header is set by htmx on every request it issues.
const Header = "HX-Request"

// Detect marks requests carrying HX-Request: true as partial.
func Detect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is := r.Header.Get(Header) == "true"
		next.ServeHTTP(w, r.WithContext(requestcontext.WithPartial(r.Context(), is)))
	})
}
