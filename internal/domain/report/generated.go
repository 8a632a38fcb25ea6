// internal/domain/report/generated.go
package report

import (
	"database/sql"
	"encoding/json"
	"time"

	"partner_report_engine/internal/domain/schedule"

	"github.com/google/uuid"
)

// GeneratedStatus tracks a generated report through delivery.
type GeneratedStatus string

const (
	GeneratedPending GeneratedStatus = "pending"
	GeneratedOK      GeneratedStatus = "generated"
	GeneratedSent    GeneratedStatus = "sent"
	GeneratedFailed  GeneratedStatus = "failed"
)

// Generated is one produced report artifact.
// Corresponds to the 'generated_reports' table. After creation only the
// delivery outcome (status, sent_to, sent_at, error_message) is ever updated.
type Generated struct {
	ID           uuid.UUID
	ConfigID     uuid.NullUUID
	Title        string
	Period       schedule.Period
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Status       GeneratedStatus
	Data         json.RawMessage // opaque aggregation snapshot
	SentTo       []string
	SentAt       sql.NullTime
	ErrorMessage sql.NullString
	IsManual     bool
	OperatorID   uuid.NullUUID
	CreatedAt    time.Time

	// Config is hydrated by GetGeneratedByID when ConfigID is set.
	Config *Config
}
