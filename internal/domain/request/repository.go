// internal/domain/request/repository.go
package request

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRequestNotFound  = errors.New("report request not found")
	ErrScheduleNotFound = errors.New("report schedule not found")
)

// Repository defines persistence for report requests and their schedules.
type Repository interface {
	// Request methods
	CreateRequest(ctx context.Context, r *Request) error
	UpdateRequest(ctx context.Context, r *Request) error
	// Escalate writes the escalation fields of r only while the stored request is still in one
	// of open and below r.EscalationLevel. It reports false when the guard matched nothing.
	Escalate(ctx context.Context, r *Request, open []Status) (bool, error)
	GetRequestByID(ctx context.Context, id uuid.UUID) (*Request, error)
	// ListEscalationCandidates returns requests in one of statuses with DeadlineAt <= now, oldest deadline first.
	ListEscalationCandidates(ctx context.Context, statuses []Status, now time.Time) ([]*Request, error)
	// FindLatestByPartnerAndStatus returns the most recently created request, or ErrRequestNotFound.
	FindLatestByPartnerAndStatus(ctx context.Context, partnerID uuid.UUID, status Status) (*Request, error)

	// Schedule methods
	ListDueSchedules(ctx context.Context, now time.Time) ([]*Schedule, error)
	// CreateScheduledRequest stores r and advances s (LastSentAt, NextSendAt) in one transaction.
	CreateScheduledRequest(ctx context.Context, r *Request, s *Schedule) error
}
