package audit

import "time"

// EventType classifies security-relevant events.
const (
	EventTypeLogin          = "auth.login"
	EventTypeLoginFailed    = "auth.login_failed"
	EventTypeLogout         = "auth.logout"
	EventTypeSessionExpired = "auth.session_expired"
	EventTypeTenantDenied   = "tenant.access_denied"
)

// Event is a single append-only security audit record.
//
// TenantID may be empty for events that occur before a tenant exists
// (failed logins, onboarding signups).
type Event struct {
	ID          string
	TenantID    string
	Type        string
	ActorUserID string
	ActorEmail  string
	IPAddress   string
	Message     string
	Metadata    string
	CreatedAt   time.Time
}
