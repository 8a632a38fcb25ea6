package request

import (
	"testing"
	"time"
)

func TestLevelForDaysOverdue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		days int
		want int
	}{
		{0, 0}, {1, 1}, {2, 1}, {3, 2}, {6, 2}, {7, 3}, {13, 3}, {14, 4}, {40, 4},
	}
	for _, tt := range tests {
		if got := LevelForDaysOverdue(tt.days); got != tt.want {
			t.Errorf("LevelForDaysOverdue(%d) = %d, want %d", tt.days, got, tt.want)
		}
	}
}

func TestDaysOverdueFloors(t *testing.T) {
	t.Parallel()
	deadline := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"before deadline", deadline.Add(-time.Hour), 0},
		{"at deadline", deadline, 0},
		{"23h later", deadline.Add(23 * time.Hour), 0},
		{"exactly one day", deadline.Add(24 * time.Hour), 1},
		{"two and a half days", deadline.Add(60 * time.Hour), 2},
	}
	for _, tt := range tests {
		if got := DaysOverdue(deadline, tt.now); got != tt.want {
			t.Errorf("%s: DaysOverdue = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestUrgencyAndOpenStatuses(t *testing.T) {
	t.Parallel()
	if UrgencyFor(2) != UrgencyStandard || UrgencyFor(3) != UrgencyUrgent || UrgencyFor(4) != UrgencyUrgent {
		t.Fatal("unexpected urgency mapping")
	}
	if !StatusPending.IsOpen() || !StatusOverdue.IsOpen() || StatusSubmitted.IsOpen() {
		t.Fatal("unexpected open status mapping")
	}
}
