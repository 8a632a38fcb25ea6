// internal/infra/database/postgres_aggregator.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"partner_report_engine/internal/domain/schedule"

	"github.com/google/uuid"
)

const defaultAggregateTimeout = 30 * time.Second

// RequestSummary is the snapshot stored on a generated report.
type RequestSummary struct {
	PeriodStart     time.Time     `json:"periodStart"`
	PeriodEnd       time.Time     `json:"periodEnd"`
	OrganizationID  *uuid.UUID    `json:"organizationId,omitempty"`
	RequestsCreated int           `json:"requestsCreated"`
	Submitted       int           `json:"submitted"`
	StillPending    int           `json:"stillPending"`
	Overdue         int           `json:"overdue"`
	RemindersSent   int           `json:"remindersSent"`
	ByLevel         map[int]int   `json:"overdueByEscalationLevel"`
	ActivePartners  int           `json:"activePartners"`
	TopOverdue      []OverdueItem `json:"topOverdue"`
}

type OverdueItem struct {
	PartnerID       uuid.UUID `json:"partnerId"`
	PartnerName     string    `json:"partnerName"`
	DeadlineAt      time.Time `json:"deadlineAt"`
	EscalationLevel int       `json:"escalationLevel"`
}

// PostgresAggregator summarizes report-request activity for a reporting window.
type PostgresAggregator struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresAggregator(db *sql.DB, timeout time.Duration) *PostgresAggregator {
	if timeout <= 0 {
		timeout = defaultAggregateTimeout
	}
	return &PostgresAggregator{db: db, timeout: timeout}
}

func (a *PostgresAggregator) Aggregate(ctx context.Context, w schedule.Window, orgID uuid.NullUUID) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	s := RequestSummary{PeriodStart: w.Start, PeriodEnd: w.End, ByLevel: map[int]int{}}
	if orgID.Valid {
		id := orgID.UUID
		s.OrganizationID = &id
	}

	countQuery := `SELECT
                       COUNT(*),
                       COUNT(*) FILTER (WHERE status = 'submitted'),
                       COUNT(*) FILTER (WHERE status = 'pending'),
                       COUNT(*) FILTER (WHERE status = 'overdue'),
                       COALESCE(SUM(reminder_count), 0),
                       COUNT(DISTINCT partner_id)
                   FROM report_requests
                   WHERE created_at BETWEEN $1 AND $2
                     AND ($3::uuid IS NULL OR organization_id = $3)`
	err := a.db.QueryRowContext(ctx, countQuery, w.Start, w.End, orgID).Scan(
		&s.RequestsCreated, &s.Submitted, &s.StillPending, &s.Overdue, &s.RemindersSent, &s.ActivePartners)
	if err != nil {
		return nil, fmt.Errorf("error counting report requests: %w", err)
	}

	levelQuery := `SELECT escalation_level, COUNT(*) FROM report_requests
                   WHERE status = 'overdue' AND deadline_at <= $1
                     AND ($2::uuid IS NULL OR organization_id = $2)
                   GROUP BY escalation_level`
	rows, err := a.db.QueryContext(ctx, levelQuery, w.End, orgID)
	if err != nil {
		return nil, fmt.Errorf("error grouping overdue requests: %w", err)
	}
	for rows.Next() {
		var level, n int
		if err := rows.Scan(&level, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning escalation level row: %w", err)
		}
		s.ByLevel[level] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating escalation level rows: %w", err)
	}

	topQuery := `SELECT r.partner_id, p.name, r.deadline_at, r.escalation_level
                 FROM report_requests r JOIN partners p ON p.id = r.partner_id
                 WHERE r.status = 'overdue' AND ($1::uuid IS NULL OR r.organization_id = $1)
                 ORDER BY r.deadline_at ASC LIMIT 10`
	rows, err = a.db.QueryContext(ctx, topQuery, orgID)
	if err != nil {
		return nil, fmt.Errorf("error listing most overdue requests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it OverdueItem
		if err := rows.Scan(&it.PartnerID, &it.PartnerName, &it.DeadlineAt, &it.EscalationLevel); err != nil {
			return nil, fmt.Errorf("error scanning overdue request row: %w", err)
		}
		s.TopOverdue = append(s.TopOverdue, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating overdue request rows: %w", err)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("error encoding report summary: %w", err)
	}
	return data, nil
}
