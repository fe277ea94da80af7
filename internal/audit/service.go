package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs security audit information.
//
// Callers should treat audit logging as best-effort: an audit write failure
// never fails the authentication operation that produced it.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogLogin records a successful session mint.
func (s *Service) LogLogin(ctx context.Context, tenantID, userID, email, ip string) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeLogin,
		ActorUserID: userID,
		ActorEmail:  email,
		IPAddress:   ip,
		Message:     "session created",
	})
}

// LogLoginFailed records a failed SSO exchange attempt.
func (s *Service) LogLoginFailed(ctx context.Context, ip, reason string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeLoginFailed,
		IPAddress: ip,
		Message:   reason,
	})
}

// LogLogout records a session destruction.
func (s *Service) LogLogout(ctx context.Context, tenantID, userID, ip string) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeLogout,
		ActorUserID: userID,
		IPAddress:   ip,
		Message:     "session destroyed",
	})
}

// LogTenantDenied records a rejected tenant access attempt.
func (s *Service) LogTenantDenied(ctx context.Context, tenantID, userID, ip, code string) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeTenantDenied,
		ActorUserID: userID,
		IPAddress:   ip,
		Message:     "tenant access denied",
		Metadata:    code,
	})
}

// LogSessionExpired records a session that could not be renewed upstream.
func (s *Service) LogSessionExpired(ctx context.Context, tenantID, userID string) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeSessionExpired,
		ActorUserID: userID,
		Message:     "session could not be renewed",
	})
}
