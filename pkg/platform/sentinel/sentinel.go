// Package sentinel holds the infrastructure facts stores report. Callers
// match them with errors.Is; stores may wrap them with backend detail.
package sentinel

import "errors"

var (
	// ErrNotFound means the key or session was never stored or has expired.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable means the backend could not be reached.
	ErrUnavailable = errors.New("unavailable")
)
