// internal/domain/schedule/calculator.go
package schedule

import "time"

const maxComputedDay = 28

func clampDay(d int) int {
	if d < 1 {
		return 1
	}
	if d > maxComputedDay {
		return maxComputedDay
	}
	return d
}

// NextRun returns the first occurrence of the rule strictly after now.
// It is pure: the same (rule, now) always yields the same instant, in UTC.
func NextRun(r Rule, now time.Time) time.Time {
	// Wall clock in the organization frame, carried as a UTC value so that
	// time.Date normalization never applies a second offset.
	local := now.UTC().Add(OrgOffset)
	y, mo, d := local.Date()

	var candidate time.Time
	switch r.Period {
	case PeriodMonthly:
		day := clampDay(r.DayOfMonth)
		candidate = time.Date(y, mo, day, r.Hour, r.Minute, 0, 0, time.UTC)
		if !candidate.After(local) {
			candidate = time.Date(y, mo+1, day, r.Hour, r.Minute, 0, 0, time.UTC)
		}
	default:
		candidate = time.Date(y, mo, d, r.Hour, r.Minute, 0, 0, time.UTC)
		target := time.Weekday(((r.DayOfWeek % 7) + 7) % 7)
		if local.Weekday() != target {
			ahead := (int(target) - int(local.Weekday()) + 7) % 7
			candidate = candidate.AddDate(0, 0, ahead)
		} else if !candidate.After(local) {
			candidate = candidate.AddDate(0, 0, 7)
		}
	}
	return candidate.Add(-OrgOffset)
}

// Window is an inclusive reporting range.
type Window struct {
	Start time.Time
	End   time.Time
}

// ReportingWindow returns the full-day window ending at the end of now's organization-local day:
// End is 23:59:59.999 of that day, Start is End minus one period floored to 00:00:00.000.
func ReportingWindow(period Period, now time.Time) Window {
	local := now.In(OrgZone)
	y, mo, d := local.Date()
	end := time.Date(y, mo, d, 23, 59, 59, int(999*time.Millisecond), OrgZone)

	var start time.Time
	if period == PeriodMonthly {
		start = end.AddDate(0, -1, 0)
	} else {
		start = end.AddDate(0, 0, -7)
	}
	sy, sm, sd := start.Date()
	start = time.Date(sy, sm, sd, 0, 0, 0, 0, OrgZone)
	return Window{Start: start, End: end}
}
