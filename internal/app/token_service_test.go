package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"partner_report_engine/internal/domain/token"

	"github.com/google/uuid"
)

func TestTokenIssueIsIdempotent(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 12, 9, 0, 0, 0, kst)
	repo := &memTokenRepo{}
	svc := NewTokenService(repo, fixedClock(now), 0, discardLogger())
	scope := token.PartnerScope(uuid.New())

	first, err := svc.Issue(context.Background(), scope, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second, err := svc.Issue(context.Background(), scope, 30)
	if err != nil {
		t.Fatalf("Issue again: %v", err)
	}
	if first.ID != second.ID || first.Secret != second.Secret {
		t.Fatalf("second issue minted a new token: %s vs %s", first.ID, second.ID)
	}
	if len(first.Secret) != 2*tokenSecretBytes {
		t.Fatalf("secret length = %d", len(first.Secret))
	}
	wantExpiry := now.AddDate(0, 0, DefaultTokenExpiryDays)
	if !first.ExpiresAt.Valid || !first.ExpiresAt.Time.Equal(wantExpiry) {
		t.Fatalf("ExpiresAt = %v, want %v", first.ExpiresAt.Time, wantExpiry)
	}
}

func TestTokenIssueConcurrentYieldsOneActive(t *testing.T) {
	t.Parallel()
	repo := &memTokenRepo{}
	svc := NewTokenService(repo, fixedClock(time.Date(2026, 10, 12, 9, 0, 0, 0, kst)), 0, discardLogger())
	scope := token.ProjectScope(uuid.New(), uuid.New())

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := svc.Issue(context.Background(), scope, 0)
			if err != nil {
				t.Errorf("Issue: %v", err)
				return
			}
			ids[i] = tok.ID
		}(i)
	}
	wg.Wait()
	if n := repo.activeCount(scope); n != 1 {
		t.Fatalf("active tokens = %d, want 1", n)
	}
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatal("concurrent issues returned different tokens")
		}
	}
}

func TestTokenScopesAreDistinct(t *testing.T) {
	t.Parallel()
	repo := &memTokenRepo{}
	svc := NewTokenService(repo, fixedClock(time.Date(2026, 10, 12, 9, 0, 0, 0, kst)), 0, discardLogger())
	partnerID := uuid.New()

	wide, err := svc.Issue(context.Background(), token.PartnerScope(partnerID), 0)
	if err != nil {
		t.Fatalf("Issue partner scope: %v", err)
	}
	project, err := svc.Issue(context.Background(), token.ProjectScope(partnerID, uuid.New()), 0)
	if err != nil {
		t.Fatalf("Issue project scope: %v", err)
	}
	if wide.ID == project.ID {
		t.Fatal("partner-wide and project scopes share a token")
	}
}

func TestTokenRotate(t *testing.T) {
	t.Parallel()
	repo := &memTokenRepo{}
	svc := NewTokenService(repo, fixedClock(time.Date(2026, 10, 12, 9, 0, 0, 0, kst)), 0, discardLogger())
	scope := token.PartnerScope(uuid.New())

	old, err := svc.Issue(context.Background(), scope, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	rotated, err := svc.Rotate(context.Background(), scope, 7)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if rotated.Secret == old.Secret {
		t.Fatal("rotation kept the old secret")
	}
	if n := repo.activeCount(scope); n != 1 {
		t.Fatalf("active tokens = %d, want 1", n)
	}
	active, _ := repo.FindActive(context.Background(), scope)
	if active.ID != rotated.ID {
		t.Fatal("rotated token is not the active one")
	}
	if _, err := svc.Validate(context.Background(), old.Secret); !errors.Is(err, token.ErrTokenInvalid) {
		t.Fatalf("old secret err = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenDeactivate(t *testing.T) {
	t.Parallel()
	repo := &memTokenRepo{}
	svc := NewTokenService(repo, fixedClock(time.Date(2026, 10, 12, 9, 0, 0, 0, kst)), 0, discardLogger())
	partnerID := uuid.New()
	a, _ := svc.Issue(context.Background(), token.PartnerScope(partnerID), 0)
	_, _ = svc.Issue(context.Background(), token.ProjectScope(partnerID, uuid.New()), 0)

	n, err := svc.Deactivate(context.Background(), partnerID, uuid.NullUUID{UUID: a.ID, Valid: true})
	if err != nil || n != 1 {
		t.Fatalf("Deactivate one = %d, %v", n, err)
	}
	n, err = svc.Deactivate(context.Background(), partnerID, uuid.NullUUID{})
	if err != nil || n != 1 {
		t.Fatalf("Deactivate rest = %d, %v", n, err)
	}
	if _, err := svc.Deactivate(context.Background(), partnerID, uuid.NullUUID{}); !errors.Is(err, token.ErrTokenNotFound) {
		t.Fatalf("Deactivate none err = %v, want ErrTokenNotFound", err)
	}
}

func TestTokenValidate(t *testing.T) {
	t.Parallel()
	issuedAt := time.Date(2026, 10, 1, 9, 0, 0, 0, kst)
	current := issuedAt
	repo := &memTokenRepo{}
	svc := NewTokenService(repo, func() time.Time { return current }, 10, discardLogger())
	tok, err := svc.Issue(context.Background(), token.PartnerScope(uuid.New()), 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	current = issuedAt.Add(24 * time.Hour)
	got, err := svc.Validate(context.Background(), tok.Secret)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !got.LastUsedAt.Valid || !got.LastUsedAt.Time.Equal(current) {
		t.Fatalf("LastUsedAt = %v", got.LastUsedAt)
	}

	current = issuedAt.AddDate(0, 0, 11)
	if _, err := svc.Validate(context.Background(), tok.Secret); !errors.Is(err, token.ErrTokenInvalid) {
		t.Fatalf("expired err = %v, want ErrTokenInvalid", err)
	}
	if _, err := svc.Validate(context.Background(), "nope"); !errors.Is(err, token.ErrTokenNotFound) {
		t.Fatalf("unknown err = %v, want ErrTokenNotFound", err)
	}
}

func TestUsableTokenRotatesExpired(t *testing.T) {
	t.Parallel()
	issuedAt := time.Date(2026, 9, 1, 9, 0, 0, 0, kst)
	current := issuedAt
	repo := &memTokenRepo{}
	svc := NewTokenService(repo, func() time.Time { return current }, 5, discardLogger())
	scope := token.PartnerScope(uuid.New())

	old, _ := svc.Issue(context.Background(), scope, 0)
	current = issuedAt.AddDate(0, 0, 30)
	fresh, err := svc.usableToken(context.Background(), scope, current)
	if err != nil {
		t.Fatalf("usableToken: %v", err)
	}
	if fresh.ID == old.ID || !fresh.IsValid(current) {
		t.Fatalf("expired token was not replaced: %+v", fresh)
	}
	if n := repo.activeCount(scope); n != 1 {
		t.Fatalf("active tokens = %d, want 1", n)
	}
}

func TestUsableTokenExpiresFromSweepInstant(t *testing.T) {
	t.Parallel()
	sweepNow := time.Date(2026, 10, 16, 10, 0, 0, 0, kst)
	lagging := fixedClock(sweepNow.AddDate(0, 0, -200))
	repo := &memTokenRepo{}
	svc := NewTokenService(repo, lagging, 5, discardLogger())

	t.Run("issued", func(t *testing.T) {
		tok, err := svc.usableToken(context.Background(), token.PartnerScope(uuid.New()), sweepNow)
		if err != nil {
			t.Fatalf("usableToken: %v", err)
		}
		if !tok.IsValid(sweepNow) || !tok.CreatedAt.Equal(sweepNow) {
			t.Fatalf("token not valid at sweep time: %+v", tok)
		}
	})

	t.Run("rotated", func(t *testing.T) {
		scope := token.PartnerScope(uuid.New())
		old, err := svc.Issue(context.Background(), scope, 0)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		tok, err := svc.usableToken(context.Background(), scope, sweepNow)
		if err != nil {
			t.Fatalf("usableToken: %v", err)
		}
		if tok.ID == old.ID || !tok.IsValid(sweepNow) {
			t.Fatalf("rotated token not valid at sweep time: %+v", tok)
		}
		if n := repo.activeCount(scope); n != 1 {
			t.Fatalf("active tokens = %d, want 1", n)
		}
	})
}
