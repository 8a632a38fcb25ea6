// internal/domain/request/request.go
package request

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Status is the state of a partner report request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOverdue   Status = "overdue"
	StatusSubmitted Status = "submitted" // terminal
)

// OpenStatuses lists every non-terminal state, in the order submissions resolve them.
// A new open state must be added here or it will never be closed by a submission.
var OpenStatuses = []Status{StatusPending, StatusOverdue}

// IsOpen reports whether s is non-terminal.
func (s Status) IsOpen() bool {
	for _, o := range OpenStatuses {
		if s == o {
			return true
		}
	}
	return false
}

// DefaultDeadlineDays applies to manually created requests without an explicit deadline.
const DefaultDeadlineDays = 3

// Request asks a partner to submit a report before DeadlineAt.
// Corresponds to the 'report_requests' table.
type Request struct {
	ID              uuid.UUID
	PartnerID       uuid.UUID
	ProjectID       uuid.NullUUID
	OrganizationID  uuid.NullUUID
	ScheduleID      uuid.NullUUID // set when created by a schedule sweep
	Status          Status
	DeadlineAt      time.Time
	EscalationLevel int
	ReminderCount   int
	LastReminderAt  sql.NullTime
	ReportID        uuid.NullUUID // set only on submission
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
