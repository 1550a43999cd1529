// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; the wizard, panels and audit publishers read them without
// importing net/http.
//
// Usage in services (read values):
//
//	sessionID := requestcontext.BrowserSessionID(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithBrowserSessionID(ctx, id)
package requestcontext

import (
	"context"
	"time"

	id "idverify/pkg/domain"
)

type (
	browserSessionIDKey struct{}
	mountIDKey          struct{}
	clientIPKey         struct{}
	userAgentKey        struct{}
	clientAgentKey      struct{}
	requestIDKey        struct{}
	requestTimeKey      struct{}
	partialKey          struct{}
	localeKey           struct{}
)

// -----------------------------------------------------------------------------
// Wizard identity (browser session, mount)
// -----------------------------------------------------------------------------

// BrowserSessionID retrieves the browser session id from the context.
// Returns the zero value (nil UUID) if not set.
func BrowserSessionID(ctx context.Context) id.BrowserSessionID {
	if v, ok := ctx.Value(browserSessionIDKey{}).(id.BrowserSessionID); ok {
		return v
	}
	return id.BrowserSessionID{}
}

// WithBrowserSessionID injects a browser session id into the context.
func WithBrowserSessionID(ctx context.Context, v id.BrowserSessionID) context.Context {
	return context.WithValue(ctx, browserSessionIDKey{}, v)
}

// MountID retrieves the wizard mount id from the context.
func MountID(ctx context.Context) id.MountID {
	if v, ok := ctx.Value(mountIDKey{}).(id.MountID); ok {
		return v
	}
	return id.MountID{}
}

// WithMountID injects a wizard mount id into the context.
func WithMountID(ctx context.Context, v id.MountID) context.Context {
	return context.WithValue(ctx, mountIDKey{}, v)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent, locale)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	return ctx
}

// Agent is what the User-Agent header says about the client.
type Agent struct {
	Browser string
	OS      string
	Mobile  bool
	Bot     bool
}

// ClientAgent retrieves the parsed User-Agent. Returns the zero Agent if not set.
func ClientAgent(ctx context.Context) Agent {
	if a, ok := ctx.Value(clientAgentKey{}).(Agent); ok {
		return a
	}
	return Agent{}
}

// WithClientAgent injects a parsed User-Agent into a context.
func WithClientAgent(ctx context.Context, a Agent) context.Context {
	return context.WithValue(ctx, clientAgentKey{}, a)
}

// Locale retrieves the negotiated locale tag, empty when not negotiated.
func Locale(ctx context.Context) string {
	if v, ok := ctx.Value(localeKey{}).(string); ok {
		return v
	}
	return ""
}

// WithLocale injects the negotiated locale tag.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey{}, locale)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// IsPartial reports whether the request was issued by the page itself
// (in-wizard navigation) rather than being a full page load.
func IsPartial(ctx context.Context) bool {
	v, _ := ctx.Value(partialKey{}).(bool)
	return v
}

// WithPartial marks the request as a partial (in-page) request.
func WithPartial(ctx context.Context, partial bool) context.Context {
	return context.WithValue(ctx, partialKey{}, partial)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like the janitor or tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
