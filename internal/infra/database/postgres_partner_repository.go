// internal/infra/database/postgres_partner_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"partner_report_engine/internal/domain/partner"

	"github.com/google/uuid"
)

type PostgresPartnerRepository struct {
	db *sql.DB
}

func NewPostgresPartnerRepository(db *sql.DB) *PostgresPartnerRepository {
	return &PostgresPartnerRepository{db: db}
}

func (r *PostgresPartnerRepository) GetByID(ctx context.Context, id uuid.UUID) (*partner.Partner, error) {
	query := `SELECT id, name, contact_email, is_active FROM partners WHERE id = $1`
	p := &partner.Partner{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.ContactEmail, &p.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, partner.ErrPartnerNotFound
		}
		return nil, fmt.Errorf("error getting partner by ID: %w", err)
	}
	return p, nil
}
