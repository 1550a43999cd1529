// Package metadata records who is driving a wizard request for logs and
// audit events.
package metadata

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/mssola/useragent"

	"idverify/pkg/requestcontext"
)

// maxUserAgent bounds what ends up in log lines and audit records.
const maxUserAgent = 256

// ClientMetadata stores the client address, the User-Agent and its parsed
// browser and OS in the context. It expects chi's RealIP to have already
// resolved proxy headers into RemoteAddr.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.UserAgent()
		if len(ua) > maxUserAgent {
			ua = ua[:maxUserAgent]
		}
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIP(r), ua)
		ctx = requestcontext.WithClientAgent(ctx, ParseAgent(ua))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ParseAgent reduces a User-Agent header to browser name with major
// version and operating system.
func ParseAgent(ua string) requestcontext.Agent {
	if strings.TrimSpace(ua) == "" {
		return requestcontext.Agent{}
	}
	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	if major, _, ok := strings.Cut(version, "."); ok {
		version = major
	}
	return requestcontext.Agent{
		Browser: strings.TrimSpace(name + " " + version),
		OS:      parsed.OS(),
		Mobile:  parsed.Mobile(),
		Bot:     parsed.Bot(),
	}
}

// ClientIP returns the address part of RemoteAddr, or "unknown" when it is
// not an IP address.
func ClientIP(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return "unknown"
	}
	return addr.Unmap().String()
}
