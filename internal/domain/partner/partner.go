// internal/domain/partner/partner.go
package partner

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

var ErrPartnerNotFound = errors.New("partner not found")

// Partner is the read model of an external partner used for request notifications.
type Partner struct {
	ID           uuid.UUID
	Name         string
	ContactEmail sql.NullString
	IsActive     bool
}

// HasContact reports whether reminders can be addressed to the partner.
func (p *Partner) HasContact() bool {
	return p.ContactEmail.Valid && p.ContactEmail.String != ""
}

// Repository reads partners. Partner CRUD lives outside this service.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Partner, error)
}
