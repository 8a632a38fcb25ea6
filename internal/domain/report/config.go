// internal/domain/report/config.go
package report

import (
	"database/sql"
	"time"

	"partner_report_engine/internal/domain/schedule"

	"github.com/google/uuid"
)

// ConfigStatus is the lifecycle state of a periodic report configuration.
type ConfigStatus string

const (
	ConfigActive  ConfigStatus = "active"
	ConfigPaused  ConfigStatus = "paused"
	ConfigDeleted ConfigStatus = "deleted"
)

// Valid reports whether s is a known status.
func (s ConfigStatus) Valid() bool {
	switch s {
	case ConfigActive, ConfigPaused, ConfigDeleted:
		return true
	}
	return false
}

// Config is a periodic digest report configuration.
// Corresponds to the 'report_configs' table.
type Config struct {
	ID             uuid.UUID
	OrganizationID uuid.NullUUID // optional aggregation scope
	Name           string
	Period         schedule.Period
	DayOfWeek      int    // 0-6, weekly only
	DayOfMonth     int    // 1-28, monthly only
	SendTime       string // HH:MM, organization-local
	Recipients     []string
	Status         ConfigStatus
	CronExpression string // display only, never consulted for due-ness
	LastGenerated  sql.NullTime
	NextRunAt      sql.NullTime
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Rule builds the recurrence rule from the config's persisted fields.
func (c *Config) Rule() (schedule.Rule, error) {
	return schedule.NewRule(c.Period, c.DayOfWeek, c.DayOfMonth, c.SendTime)
}

// RuleChanged reports whether any recurrence field differs between c and other.
func (c *Config) RuleChanged(other *Config) bool {
	return c.Period != other.Period ||
		c.DayOfWeek != other.DayOfWeek ||
		c.DayOfMonth != other.DayOfMonth ||
		c.SendTime != other.SendTime
}
