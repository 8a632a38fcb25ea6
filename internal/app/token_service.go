// internal/app/token_service.go
package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"partner_report_engine/internal/domain/token"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTokenExpiryDays = 90
	tokenSecretBytes       = 32 // hex-encoded to 64 characters
)

// TokenService manages the lifecycle of partner access tokens.
type TokenService struct {
	repo              token.Repository
	clock             Clock
	defaultExpiryDays int
	logger            *logrus.Entry
}

func NewTokenService(repo token.Repository, clock Clock, defaultExpiryDays int, logger *logrus.Entry) *TokenService {
	if defaultExpiryDays <= 0 {
		defaultExpiryDays = DefaultTokenExpiryDays
	}
	return &TokenService{
		repo:              repo,
		clock:             clock,
		defaultExpiryDays: defaultExpiryDays,
		logger:            logger.WithField("component", "token_service"),
	}
}

// Issue returns the active token of the scope unchanged, or mints one when none exists.
// expiresInDays <= 0 selects the configured default.
func (s *TokenService) Issue(ctx context.Context, scope token.Scope, expiresInDays int) (*token.PartnerToken, error) {
	return s.issueAt(ctx, scope, expiresInDays, s.clock())
}

func (s *TokenService) issueAt(ctx context.Context, scope token.Scope, expiresInDays int, now time.Time) (*token.PartnerToken, error) {
	existing, err := s.repo.FindActive(ctx, scope)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, token.ErrTokenNotFound) {
		return nil, fmt.Errorf("failed to look up active token for %s: %w", scope, err)
	}

	t, err := s.mint(scope, expiresInDays, now)
	if err != nil {
		return nil, err
	}
	stored, created, err := s.repo.CreateIfNoActive(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed to store token for %s: %w", scope, err)
	}
	if created {
		s.logger.WithFields(logrus.Fields{"scope": scope.String(), "token_id": stored.ID}).Info("Partner token issued")
	}
	return stored, nil
}

// Rotate deactivates every token of the scope and mints a replacement in one atomic write.
func (s *TokenService) Rotate(ctx context.Context, scope token.Scope, expiresInDays int) (*token.PartnerToken, error) {
	return s.rotateAt(ctx, scope, expiresInDays, s.clock())
}

func (s *TokenService) rotateAt(ctx context.Context, scope token.Scope, expiresInDays int, now time.Time) (*token.PartnerToken, error) {
	t, err := s.mint(scope, expiresInDays, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceActive(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to rotate token for %s: %w", scope, err)
	}
	s.logger.WithFields(logrus.Fields{"scope": scope.String(), "token_id": t.ID}).Info("Partner token rotated")
	return t, nil
}

// Deactivate deactivates one token of the partner, or all of them when tokenID is null.
func (s *TokenService) Deactivate(ctx context.Context, partnerID uuid.UUID, tokenID uuid.NullUUID) (int64, error) {
	n, err := s.repo.Deactivate(ctx, partnerID, tokenID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate tokens of partner %s: %w", partnerID, err)
	}
	if n == 0 {
		return 0, token.ErrTokenNotFound
	}
	s.logger.WithFields(logrus.Fields{"partner_id": partnerID, "count": n}).Info("Partner tokens deactivated")
	return n, nil
}

// IsValid is true iff t is active and not expired at now.
func (s *TokenService) IsValid(t *token.PartnerToken, now time.Time) bool {
	return t.IsValid(now)
}

// Validate resolves a secret presented by a partner and records its use.
func (s *TokenService) Validate(ctx context.Context, secret string) (*token.PartnerToken, error) {
	t, err := s.repo.GetBySecret(ctx, secret)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	if !t.IsValid(now) {
		return nil, token.ErrTokenInvalid
	}
	if err := s.repo.TouchLastUsed(ctx, t.ID, now); err != nil {
		s.logger.WithError(err).WithField("token_id", t.ID).Warn("Failed to record token use")
	} else {
		t.LastUsedAt = sql.NullTime{Time: now, Valid: true}
	}
	return t, nil
}

// usableToken returns a token that is valid at now for the scope, issuing one when none
// exists and rotating the active one when it has expired. New tokens expire relative to now.
func (s *TokenService) usableToken(ctx context.Context, scope token.Scope, now time.Time) (*token.PartnerToken, error) {
	t, err := s.issueAt(ctx, scope, 0, now)
	if err != nil {
		return nil, err
	}
	if t.IsValid(now) {
		return t, nil
	}
	return s.rotateAt(ctx, scope, 0, now)
}

func (s *TokenService) mint(scope token.Scope, expiresInDays int, now time.Time) (*token.PartnerToken, error) {
	if expiresInDays <= 0 {
		expiresInDays = s.defaultExpiryDays
	}
	secret, err := newSecret()
	if err != nil {
		return nil, err
	}
	return &token.PartnerToken{
		ID:        uuid.New(),
		Scope:     scope,
		Secret:    secret,
		ExpiresAt: sql.NullTime{Time: now.AddDate(0, 0, expiresInDays), Valid: true},
		IsActive:  true,
		CreatedAt: now,
	}, nil
}

func newSecret() (string, error) {
	b := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
