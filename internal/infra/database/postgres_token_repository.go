// internal/infra/database/postgres_token_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"partner_report_engine/internal/domain/token"

	"github.com/google/uuid"
)

// PostgresTokenRepository relies on the partner_report_tokens_active_scope partial unique index
// to keep at most one active token per scope under concurrent writers.
type PostgresTokenRepository struct {
	db *sql.DB
}

func NewPostgresTokenRepository(db *sql.DB) *PostgresTokenRepository {
	return &PostgresTokenRepository{db: db}
}

const tokenColumns = `id, partner_id, project_id, token, expires_at, is_active, last_used_at, created_at`

func scanToken(row interface{ Scan(...any) error }) (*token.PartnerToken, error) {
	t := &token.PartnerToken{}
	err := row.Scan(&t.ID, &t.Scope.PartnerID, &t.Scope.ProjectID, &t.Secret, &t.ExpiresAt, &t.IsActive, &t.LastUsedAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *PostgresTokenRepository) FindActive(ctx context.Context, scope token.Scope) (*token.PartnerToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM partner_report_tokens
              WHERE partner_id = $1 AND project_id IS NOT DISTINCT FROM $2 AND is_active = TRUE
              LIMIT 1`
	t, err := scanToken(r.db.QueryRowContext(ctx, query, scope.PartnerID, scope.ProjectID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, token.ErrTokenNotFound
		}
		return nil, fmt.Errorf("error finding active token: %w", err)
	}
	return t, nil
}

func (r *PostgresTokenRepository) CreateIfNoActive(ctx context.Context, t *token.PartnerToken) (*token.PartnerToken, bool, error) {
	query := `INSERT INTO partner_report_tokens (id, partner_id, project_id, token, expires_at, is_active, created_at)
              VALUES ($1, $2, $3, $4, $5, TRUE, $6)
              ON CONFLICT DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, t.ID, t.Scope.PartnerID, t.Scope.ProjectID, t.Secret, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("error creating partner token: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("error getting rows affected for token insert: %w", err)
	}
	if rowsAffected == 1 {
		return t, true, nil
	}
	// Lost the race to a concurrent issuer; hand back its token.
	existing, err := r.FindActive(ctx, t.Scope)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PostgresTokenRepository) ReplaceActive(ctx context.Context, t *token.PartnerToken) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for token rotation: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	_, err = txn.ExecContext(ctx, `UPDATE partner_report_tokens SET is_active = FALSE
                                   WHERE partner_id = $1 AND project_id IS NOT DISTINCT FROM $2 AND is_active = TRUE`,
		t.Scope.PartnerID, t.Scope.ProjectID)
	if err != nil {
		return fmt.Errorf("error deactivating tokens for rotation: %w", err)
	}
	_, err = txn.ExecContext(ctx, `INSERT INTO partner_report_tokens (id, partner_id, project_id, token, expires_at, is_active, created_at)
                                   VALUES ($1, $2, $3, $4, $5, TRUE, $6)`,
		t.ID, t.Scope.PartnerID, t.Scope.ProjectID, t.Secret, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("error inserting rotated token: %w", err)
	}
	return txn.Commit()
}

func (r *PostgresTokenRepository) Deactivate(ctx context.Context, partnerID uuid.UUID, tokenID uuid.NullUUID) (int64, error) {
	query := `UPDATE partner_report_tokens SET is_active = FALSE
              WHERE partner_id = $1 AND is_active = TRUE AND ($2::uuid IS NULL OR id = $2)`
	res, err := r.db.ExecContext(ctx, query, partnerID, tokenID)
	if err != nil {
		return 0, fmt.Errorf("error deactivating partner tokens: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error getting rows affected for token deactivation: %w", err)
	}
	return rowsAffected, nil
}

func (r *PostgresTokenRepository) GetBySecret(ctx context.Context, secret string) (*token.PartnerToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM partner_report_tokens WHERE token = $1`
	t, err := scanToken(r.db.QueryRowContext(ctx, query, secret))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, token.ErrTokenNotFound
		}
		return nil, fmt.Errorf("error getting partner token by secret: %w", err)
	}
	return t, nil
}

func (r *PostgresTokenRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE partner_report_tokens SET last_used_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("error recording token use: %w", err)
	}
	return nil
}
