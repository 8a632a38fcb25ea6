// internal/domain/token/repository.go
package token

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTokenNotFound = errors.New("partner token not found")
	ErrTokenInvalid  = errors.New("partner token is inactive or expired")
)

// Repository defines persistence for partner tokens.
type Repository interface {
	// FindActive returns the active token for exactly this scope, or ErrTokenNotFound.
	FindActive(ctx context.Context, scope Scope) (*PartnerToken, error)
	// CreateIfNoActive stores t unless an active token already exists for t.Scope,
	// in which case the existing token is returned with created=false.
	CreateIfNoActive(ctx context.Context, t *PartnerToken) (stored *PartnerToken, created bool, err error)
	// ReplaceActive deactivates every token in t.Scope and stores t, as one atomic unit.
	ReplaceActive(ctx context.Context, t *PartnerToken) error
	// Deactivate deactivates one token of the partner, or all of them when tokenID is null.
	// It returns the number of tokens matched.
	Deactivate(ctx context.Context, partnerID uuid.UUID, tokenID uuid.NullUUID) (int64, error)
	GetBySecret(ctx context.Context, secret string) (*PartnerToken, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}
