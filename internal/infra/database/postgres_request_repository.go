// internal/infra/database/postgres_request_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"partner_report_engine/internal/domain/request"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type PostgresRequestRepository struct {
	db *sql.DB
}

func NewPostgresRequestRepository(db *sql.DB) *PostgresRequestRepository {
	return &PostgresRequestRepository{db: db}
}

// --- Report request methods ---

const requestColumns = `id, partner_id, project_id, organization_id, schedule_id, status, deadline_at,
       escalation_level, reminder_count, last_reminder_at, report_id, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (*request.Request, error) {
	rq := &request.Request{}
	err := row.Scan(&rq.ID, &rq.PartnerID, &rq.ProjectID, &rq.OrganizationID, &rq.ScheduleID, &rq.Status, &rq.DeadlineAt,
		&rq.EscalationLevel, &rq.ReminderCount, &rq.LastReminderAt, &rq.ReportID, &rq.CreatedAt, &rq.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return rq, nil
}

const insertRequestQuery = `INSERT INTO report_requests (id, partner_id, project_id, organization_id, schedule_id, status, deadline_at,
                  escalation_level, reminder_count, last_reminder_at, report_id, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func insertRequestArgs(rq *request.Request) []any {
	if rq.ID == uuid.Nil {
		rq.ID = uuid.New()
	}
	return []any{rq.ID, rq.PartnerID, rq.ProjectID, rq.OrganizationID, rq.ScheduleID, rq.Status, rq.DeadlineAt,
		rq.EscalationLevel, rq.ReminderCount, rq.LastReminderAt, rq.ReportID, rq.CreatedAt, rq.UpdatedAt}
}

func (r *PostgresRequestRepository) CreateRequest(ctx context.Context, rq *request.Request) error {
	if _, err := r.db.ExecContext(ctx, insertRequestQuery, insertRequestArgs(rq)...); err != nil {
		return fmt.Errorf("error creating report request: %w", err)
	}
	return nil
}

func (r *PostgresRequestRepository) UpdateRequest(ctx context.Context, rq *request.Request) error {
	query := `UPDATE report_requests
              SET status = $1, escalation_level = $2, reminder_count = $3, last_reminder_at = $4, report_id = $5, updated_at = $6
              WHERE id = $7`
	res, err := r.db.ExecContext(ctx, query, rq.Status, rq.EscalationLevel, rq.ReminderCount, rq.LastReminderAt, rq.ReportID, rq.UpdatedAt, rq.ID)
	if err != nil {
		return fmt.Errorf("error updating report request: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for report request update: %w", err)
	}
	if rowsAffected == 0 {
		return request.ErrRequestNotFound
	}
	return nil
}

func (r *PostgresRequestRepository) Escalate(ctx context.Context, rq *request.Request, open []request.Status) (bool, error) {
	query := `UPDATE report_requests
              SET status = $1, escalation_level = $2, reminder_count = reminder_count + 1, last_reminder_at = $3, updated_at = $4
              WHERE id = $5 AND status = ANY($6) AND escalation_level < $2
              RETURNING reminder_count`
	err := r.db.QueryRowContext(ctx, query, rq.Status, rq.EscalationLevel, rq.LastReminderAt, rq.UpdatedAt, rq.ID,
		pq.Array(statusNames(open))).Scan(&rq.ReminderCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("error escalating report request: %w", err)
	}
	return true, nil
}

func statusNames(statuses []request.Status) []string {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return names
}

func (r *PostgresRequestRepository) GetRequestByID(ctx context.Context, id uuid.UUID) (*request.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM report_requests WHERE id = $1`
	rq, err := scanRequest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, request.ErrRequestNotFound
		}
		return nil, fmt.Errorf("error getting report request by ID: %w", err)
	}
	return rq, nil
}

func (r *PostgresRequestRepository) ListEscalationCandidates(ctx context.Context, statuses []request.Status, now time.Time) ([]*request.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM report_requests
              WHERE status = ANY($1) AND deadline_at <= $2
              ORDER BY deadline_at ASC`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(statusNames(statuses)), now)
	if err != nil {
		return nil, fmt.Errorf("error listing escalation candidates: %w", err)
	}
	defer rows.Close()

	var requests []*request.Request
	for rows.Next() {
		rq, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning report request row: %w", err)
		}
		requests = append(requests, rq)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating report request rows: %w", err)
	}
	return requests, nil
}

func (r *PostgresRequestRepository) FindLatestByPartnerAndStatus(ctx context.Context, partnerID uuid.UUID, status request.Status) (*request.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM report_requests
              WHERE partner_id = $1 AND status = $2
              ORDER BY created_at DESC LIMIT 1`
	rq, err := scanRequest(r.db.QueryRowContext(ctx, query, partnerID, status))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, request.ErrRequestNotFound
		}
		return nil, fmt.Errorf("error finding latest %s request of partner: %w", status, err)
	}
	return rq, nil
}

// --- Report schedule methods ---

func (r *PostgresRequestRepository) ListDueSchedules(ctx context.Context, now time.Time) ([]*request.Schedule, error) {
	query := `SELECT id, partner_id, project_id, organization_id, frequency, day_of_week, day_of_month, time_of_day,
                     deadline_days, is_active, last_sent_at, next_send_at, created_at, updated_at
              FROM report_schedules
              WHERE is_active = TRUE AND next_send_at IS NOT NULL AND next_send_at <= $1
              ORDER BY next_send_at ASC`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("error listing due report schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*request.Schedule
	for rows.Next() {
		s := &request.Schedule{}
		if err := rows.Scan(&s.ID, &s.PartnerID, &s.ProjectID, &s.OrganizationID, &s.Frequency, &s.DayOfWeek, &s.DayOfMonth,
			&s.TimeOfDay, &s.DeadlineDays, &s.IsActive, &s.LastSentAt, &s.NextSendAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning report schedule row: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating report schedule rows: %w", err)
	}
	return schedules, nil
}

func (r *PostgresRequestRepository) CreateScheduledRequest(ctx context.Context, rq *request.Request, s *request.Schedule) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for scheduled request: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	if _, err := txn.ExecContext(ctx, insertRequestQuery, insertRequestArgs(rq)...); err != nil {
		return fmt.Errorf("error creating scheduled report request: %w", err)
	}
	res, err := txn.ExecContext(ctx, `UPDATE report_schedules SET last_sent_at = $1, next_send_at = $2, updated_at = $3 WHERE id = $4`,
		s.LastSentAt, s.NextSendAt, s.UpdatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("error advancing report schedule: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for report schedule update: %w", err)
	}
	if rowsAffected == 0 {
		return request.ErrScheduleNotFound
	}
	return txn.Commit()
}
