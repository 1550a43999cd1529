// Package httpserver builds the wizard's http.Server.
package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

// handlerTimeout matches the router's request timeout; the write deadline
// leaves room for the timeout response itself.
const handlerTimeout = 30 * time.Second

// New returns a server whose internal errors (TLS handshakes, panics in
// the net/http machinery) go to logger at warn level.
func New(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		// captured photos arrive as form posts of up to ~14MB of base64
		ReadTimeout:    handlerTimeout,
		WriteTimeout:   handlerTimeout + 5*time.Second,
		IdleTimeout:    90 * time.Second,
		MaxHeaderBytes: 64 << 10,
		ErrorLog:       slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}
