// internal/domain/request/schedule.go
package request

import (
	"database/sql"
	"time"

	"partner_report_engine/internal/domain/schedule"

	"github.com/google/uuid"
)

// Schedule periodically generates report requests for one partner.
// Corresponds to the 'report_schedules' table.
type Schedule struct {
	ID             uuid.UUID
	PartnerID      uuid.UUID
	ProjectID      uuid.NullUUID
	OrganizationID uuid.NullUUID
	Frequency      schedule.Period
	DayOfWeek      int
	DayOfMonth     int
	TimeOfDay      string // HH:MM
	DeadlineDays   int
	IsActive       bool
	LastSentAt     sql.NullTime
	NextSendAt     sql.NullTime
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Rule builds the recurrence rule from the schedule's persisted fields.
func (s *Schedule) Rule() (schedule.Rule, error) {
	return schedule.NewRule(s.Frequency, s.DayOfWeek, s.DayOfMonth, s.TimeOfDay)
}
