// internal/domain/request/escalation.go
package request

import "time"

// MaxEscalationLevel is the highest level a request can reach.
const MaxEscalationLevel = 4

// UrgentLevel is the first level whose reminders use urgent wording.
const UrgentLevel = 3

// levelThresholds[i] is the minimum number of whole days overdue for level i+1.
var levelThresholds = [MaxEscalationLevel]int{1, 3, 7, 14}

// DaysOverdue returns the whole days elapsed since deadline, or 0 when not past it.
func DaysOverdue(deadline, now time.Time) int {
	if !now.After(deadline) {
		return 0
	}
	return int(now.Sub(deadline) / (24 * time.Hour))
}

// LevelForDaysOverdue maps whole days overdue to the highest satisfied escalation level.
func LevelForDaysOverdue(days int) int {
	level := 0
	for i, min := range levelThresholds {
		if days >= min {
			level = i + 1
		}
	}
	return level
}

// Urgency selects reminder wording for a level.
type Urgency string

const (
	UrgencyStandard Urgency = "standard"
	UrgencyUrgent   Urgency = "urgent"
)

// UrgencyFor returns urgent from UrgentLevel upward.
func UrgencyFor(level int) Urgency {
	if level >= UrgentLevel {
		return UrgencyUrgent
	}
	return UrgencyStandard
}
