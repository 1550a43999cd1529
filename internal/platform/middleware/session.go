package middleware

import (
	"log/slog"
	"net/http"
	"time"

	id "idverify/pkg/domain"
	"idverify/pkg/requestcontext"
)

// SessionCookieName carries the signed browser session token. It is a
// session cookie so closing the browser ends the session.
const SessionCookieName = "idv_session"

// SessionTokens issues and validates browser session tokens.
type SessionTokens interface {
	Issue(sessionID id.BrowserSessionID, now time.Time, ttl time.Duration) (string, error)
	SessionID(token string) (id.BrowserSessionID, error)
}

// BrowserSession resolves the browser session that scopes session-durable
// storage, issuing a new one when the cookie is absent, tampered or expired.
func BrowserSession(tokens SessionTokens, ttl time.Duration, secure bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
				sessionID, err := tokens.SessionID(c.Value)
				if err == nil {
					ctx = requestcontext.WithBrowserSessionID(ctx, sessionID)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				logger.WarnContext(ctx, "discarding invalid browser session cookie",
					"error", err,
					"request_id", requestID,
				)
			}

			sessionID := id.NewBrowserSessionID()
			token, err := tokens.Issue(sessionID, requestcontext.Now(ctx), ttl)
			if err != nil {
				logger.ErrorContext(ctx, "failed to issue browser session token",
					"error", err,
					"request_id", requestID,
				)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookieName,
				Value:    token,
				Path:     "/",
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})
			ctx = requestcontext.WithBrowserSessionID(ctx, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
