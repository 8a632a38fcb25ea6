// internal/domain/schedule/rule.go
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidRule is returned for malformed recurrence fields. Callers match it with errors.Is.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// Period is the recurrence period of a report config or a partner report schedule.
type Period string

const (
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// OrgOffset is the fixed organization-local offset (+09:00). No timezone database lookup is done.
const OrgOffset = 9 * time.Hour

// OrgZone is OrgOffset as a *time.Location, for formatting and cron triggers.
var OrgZone = time.FixedZone("ORG", int(OrgOffset/time.Second))

// Rule is a weekly or monthly recurrence at a wall-clock time in the organization frame.
type Rule struct {
	Period     Period
	DayOfWeek  int // 0 (Sunday) - 6, weekly only
	DayOfMonth int // 1 - 31, monthly only; clamped to 28 when computing
	Hour       int
	Minute     int
}

// ParsePeriod normalizes a period string. An empty string yields weekly.
func ParsePeriod(raw string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PeriodWeekly:
		return PeriodWeekly, nil
	case PeriodMonthly:
		return PeriodMonthly, nil
	default:
		return "", fmt.Errorf("%w: unknown period %q", ErrInvalidRule, raw)
	}
}

var reClock = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// ParseClock parses an "HH:MM" wall-clock time.
func ParseClock(raw string) (hour, minute int, err error) {
	m := reClock.FindStringSubmatch(raw)
	if len(m) != 3 {
		return 0, 0, fmt.Errorf("%w: time of day %q is not HH:MM", ErrInvalidRule, raw)
	}
	for i := 0; i < len(m[1]); i++ {
		hour = hour*10 + int(m[1][i]-'0')
	}
	minute = int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if hour > 23 {
		return 0, 0, fmt.Errorf("%w: hour %d out of range", ErrInvalidRule, hour)
	}
	if minute > 59 {
		return 0, 0, fmt.Errorf("%w: minute %d out of range", ErrInvalidRule, minute)
	}
	return hour, minute, nil
}

// FormatClock renders hour and minute as "HH:MM".
func FormatClock(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

// NewRule builds and validates a rule from its persisted fields.
// dayOfWeek is ignored for monthly rules and dayOfMonth for weekly ones.
func NewRule(period Period, dayOfWeek, dayOfMonth int, timeOfDay string) (Rule, error) {
	h, m, err := ParseClock(timeOfDay)
	if err != nil {
		return Rule{}, err
	}
	r := Rule{Period: period, Hour: h, Minute: m}
	switch period {
	case PeriodWeekly:
		r.DayOfWeek = dayOfWeek
	case PeriodMonthly:
		r.DayOfMonth = dayOfMonth
	}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Validate rejects out-of-range fields.
func (r Rule) Validate() error {
	switch r.Period {
	case PeriodWeekly:
		if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
			return fmt.Errorf("%w: day of week %d out of range 0-6", ErrInvalidRule, r.DayOfWeek)
		}
	case PeriodMonthly:
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return fmt.Errorf("%w: day of month %d out of range 1-31", ErrInvalidRule, r.DayOfMonth)
		}
	default:
		return fmt.Errorf("%w: unknown period %q", ErrInvalidRule, r.Period)
	}
	if r.Hour < 0 || r.Hour > 23 || r.Minute < 0 || r.Minute > 59 {
		return fmt.Errorf("%w: time of day %02d:%02d out of range", ErrInvalidRule, r.Hour, r.Minute)
	}
	return nil
}

// TimeOfDay returns the rule's wall-clock time as "HH:MM".
func (r Rule) TimeOfDay() string { return FormatClock(r.Hour, r.Minute) }

// CronDisplay is a display-only projection of the rule:
// "minute hour * * dayOfWeek" for weekly and "minute hour dayOfMonth * *" for monthly.
// It is never parsed back to decide when something is due.
func (r Rule) CronDisplay() string {
	if r.Period == PeriodMonthly {
		return fmt.Sprintf("%d %d %d * *", r.Minute, r.Hour, clampDay(r.DayOfMonth))
	}
	return fmt.Sprintf("%d %d * * %d", r.Minute, r.Hour, r.DayOfWeek)
}
