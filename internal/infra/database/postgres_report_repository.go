// internal/infra/database/postgres_report_repository.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"partner_report_engine/internal/domain/report"

	"github.com/google/uuid"
	"github.com/lib/pq" // For pq.Array
)

type PostgresReportRepository struct {
	db *sql.DB
}

func NewPostgresReportRepository(db *sql.DB) *PostgresReportRepository {
	return &PostgresReportRepository{db: db}
}

// --- Report config methods ---

const configColumns = `id, organization_id, name, period, day_of_week, day_of_month, send_time, recipients,
       status, cron_expression, last_generated, next_run_at, created_at, updated_at`

func scanConfig(row interface{ Scan(...any) error }) (*report.Config, error) {
	c := &report.Config{}
	err := row.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Period, &c.DayOfWeek, &c.DayOfMonth, &c.SendTime,
		pq.Array(&c.Recipients), &c.Status, &c.CronExpression, &c.LastGenerated, &c.NextRunAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresReportRepository) GetConfigByID(ctx context.Context, id uuid.UUID) (*report.Config, error) {
	query := `SELECT ` + configColumns + ` FROM report_configs WHERE id = $1`
	c, err := scanConfig(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, report.ErrConfigNotFound
		}
		return nil, fmt.Errorf("error getting report config by ID: %w", err)
	}
	return c, nil
}

func (r *PostgresReportRepository) SaveConfig(ctx context.Context, c *report.Config) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
		query := `INSERT INTO report_configs (id, organization_id, name, period, day_of_week, day_of_month, send_time,
                       recipients, status, cron_expression, last_generated, next_run_at, created_at, updated_at)
                  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
		_, err := r.db.ExecContext(ctx, query, c.ID, c.OrganizationID, c.Name, c.Period, c.DayOfWeek, c.DayOfMonth, c.SendTime,
			pq.Array(c.Recipients), c.Status, c.CronExpression, c.LastGenerated, c.NextRunAt, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			c.ID = uuid.Nil
			return fmt.Errorf("error creating report config: %w", err)
		}
		return nil
	}

	query := `UPDATE report_configs
              SET organization_id = $1, name = $2, period = $3, day_of_week = $4, day_of_month = $5, send_time = $6,
                  recipients = $7, status = $8, cron_expression = $9, last_generated = $10, next_run_at = $11, updated_at = $12
              WHERE id = $13`
	res, err := r.db.ExecContext(ctx, query, c.OrganizationID, c.Name, c.Period, c.DayOfWeek, c.DayOfMonth, c.SendTime,
		pq.Array(c.Recipients), c.Status, c.CronExpression, c.LastGenerated, c.NextRunAt, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("error updating report config: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for report config update: %w", err)
	}
	if rowsAffected == 0 {
		return report.ErrConfigNotFound
	}
	return nil
}

func (r *PostgresReportRepository) ListDueConfigs(ctx context.Context, now time.Time) ([]*report.Config, error) {
	query := `SELECT ` + configColumns + ` FROM report_configs
              WHERE status = $1 AND next_run_at IS NOT NULL AND next_run_at <= $2
              ORDER BY next_run_at ASC`
	return r.queryConfigs(ctx, query, report.ConfigActive, now)
}

func (r *PostgresReportRepository) ListConfigsByStatus(ctx context.Context, status report.ConfigStatus) ([]*report.Config, error) {
	query := `SELECT ` + configColumns + ` FROM report_configs WHERE status = $1 ORDER BY created_at ASC`
	return r.queryConfigs(ctx, query, status)
}

func (r *PostgresReportRepository) queryConfigs(ctx context.Context, query string, args ...any) ([]*report.Config, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing report configs: %w", err)
	}
	defer rows.Close()

	var configs []*report.Config
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning report config row: %w", err)
		}
		configs = append(configs, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating report config rows: %w", err)
	}
	return configs, nil
}

// --- Generated report methods ---

func nullableJSON(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

func (r *PostgresReportRepository) CreateGenerated(ctx context.Context, g *report.Generated) error {
	g.ID = uuid.New()
	query := `INSERT INTO generated_reports (id, config_id, title, period, period_start, period_end, status, data,
                  sent_to, sent_at, error_message, is_manual, operator_id, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.ExecContext(ctx, query, g.ID, g.ConfigID, g.Title, g.Period, g.PeriodStart, g.PeriodEnd, g.Status,
		nullableJSON(g.Data), pq.Array(g.SentTo), g.SentAt, g.ErrorMessage, g.IsManual, g.OperatorID, g.CreatedAt)
	if err != nil {
		g.ID = uuid.Nil
		return fmt.Errorf("error creating generated report: %w", err)
	}
	return nil
}

// UpdateGeneratedDelivery writes only the delivery outcome; the snapshot is immutable.
func (r *PostgresReportRepository) UpdateGeneratedDelivery(ctx context.Context, g *report.Generated) error {
	query := `UPDATE generated_reports SET status = $1, sent_to = $2, sent_at = $3, error_message = $4 WHERE id = $5`
	res, err := r.db.ExecContext(ctx, query, g.Status, pq.Array(g.SentTo), g.SentAt, g.ErrorMessage, g.ID)
	if err != nil {
		return fmt.Errorf("error updating generated report delivery: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for generated report update: %w", err)
	}
	if rowsAffected == 0 {
		return report.ErrGeneratedNotFound
	}
	return nil
}

// GetGeneratedByID loads a report with its config, when it still has one.
func (r *PostgresReportRepository) GetGeneratedByID(ctx context.Context, id uuid.UUID) (*report.Generated, error) {
	query := `SELECT id, config_id, title, period, period_start, period_end, status, data, sent_to, sent_at,
                     error_message, is_manual, operator_id, created_at
              FROM generated_reports WHERE id = $1`
	g := &report.Generated{}
	var data []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.ConfigID, &g.Title, &g.Period, &g.PeriodStart, &g.PeriodEnd,
		&g.Status, &data, pq.Array(&g.SentTo), &g.SentAt, &g.ErrorMessage, &g.IsManual, &g.OperatorID, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, report.ErrGeneratedNotFound
		}
		return nil, fmt.Errorf("error getting generated report by ID: %w", err)
	}
	g.Data = data

	if g.ConfigID.Valid {
		cfg, err := r.GetConfigByID(ctx, g.ConfigID.UUID)
		switch {
		case err == nil:
			g.Config = cfg
		case !errors.Is(err, report.ErrConfigNotFound):
			return nil, err
		}
	}
	return g, nil
}
