package audit

import "time"

type Action string

const (
	ActionMounted       Action = "wizard_mounted"
	ActionUnmounted     Action = "wizard_unmounted"
	ActionRedirected    Action = "wizard_redirected"
	ActionStepEntered   Action = "step_entered"
	ActionStepCompleted Action = "step_completed"
	ActionSubmitted     Action = "verification_submitted"
)

// Event is emitted by the wizard to record lifecycle transitions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp        time.Time `json:"timestamp"`
	Action           Action    `json:"action"`
	MountID          string    `json:"mount_id"`
	BrowserSessionID string    `json:"browser_session_id,omitempty"`
	Step             string    `json:"step,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	// RequestID correlates the event with the HTTP request that caused it.
	RequestID string `json:"request_id,omitempty"`
	// Client fields are empty for events not caused by a request (idle
	// expiry, shutdown).
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Browser   string `json:"browser,omitempty"`
	OS        string `json:"os,omitempty"`
}
