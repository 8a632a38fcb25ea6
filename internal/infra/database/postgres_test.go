package database

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"partner_report_engine/internal/domain/request"
	"partner_report_engine/internal/domain/token"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// openTestDB connects to TEST_DATABASE_URL and applies the schema. Tests that need it
// are skipped when the variable is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	ctx := context.Background()
	db, err := NewPostgresConnection(ctx, dsn, PoolConfig{MaxOpenConns: 10})
	if err != nil {
		t.Fatalf("NewPostgresConnection: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

// insertPartner creates a partner and removes it with everything that references it on cleanup.
func insertPartner(t *testing.T, db *sql.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if _, err := db.Exec(`INSERT INTO partners (id, name) VALUES ($1, $2)`, id, "Acme Logistics"); err != nil {
		t.Fatalf("insert partner: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM partner_report_tokens WHERE partner_id = $1`, id)
		db.Exec(`DELETE FROM report_requests WHERE partner_id = $1`, id)
		db.Exec(`DELETE FROM report_schedules WHERE partner_id = $1`, id)
		db.Exec(`DELETE FROM partners WHERE id = $1`, id)
	})
	return id
}

func newTestToken(scope token.Scope, now time.Time) *token.PartnerToken {
	return &token.PartnerToken{
		ID:        uuid.New(),
		Scope:     scope,
		Secret:    uuid.NewString(),
		ExpiresAt: sql.NullTime{Time: now.AddDate(0, 0, 90), Valid: true},
		IsActive:  true,
		CreatedAt: now,
	}
}

func countActive(t *testing.T, db *sql.DB, scope token.Scope) int {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM partner_report_tokens
                        WHERE partner_id = $1 AND project_id IS NOT DISTINCT FROM $2 AND is_active`,
		scope.PartnerID, scope.ProjectID).Scan(&n)
	if err != nil {
		t.Fatalf("count active tokens: %v", err)
	}
	return n
}

func TestTokenRepositoryOneActivePerScope(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresTokenRepository(db)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)
	partnerID := insertPartner(t, db)
	partnerScope := token.PartnerScope(partnerID)
	projectScope := token.ProjectScope(partnerID, uuid.New())

	first, created, err := repo.CreateIfNoActive(ctx, newTestToken(partnerScope, now))
	if err != nil || !created {
		t.Fatalf("first CreateIfNoActive = %v, %v", created, err)
	}
	again, created, err := repo.CreateIfNoActive(ctx, newTestToken(partnerScope, now))
	if err != nil || created {
		t.Fatalf("second CreateIfNoActive = %v, %v", created, err)
	}
	if again.ID != first.ID {
		t.Fatalf("second issue returned %s, want existing %s", again.ID, first.ID)
	}

	// A project scope does not collide with the partner-wide scope.
	if _, created, err := repo.CreateIfNoActive(ctx, newTestToken(projectScope, now)); err != nil || !created {
		t.Fatalf("project CreateIfNoActive = %v, %v", created, err)
	}

	replacement := newTestToken(partnerScope, now)
	if err := repo.ReplaceActive(ctx, replacement); err != nil {
		t.Fatalf("ReplaceActive: %v", err)
	}
	active, err := repo.FindActive(ctx, partnerScope)
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if active.ID != replacement.ID {
		t.Fatalf("active token = %s, want %s", active.ID, replacement.ID)
	}
	if n := countActive(t, db, partnerScope); n != 1 {
		t.Fatalf("active partner tokens = %d, want 1", n)
	}
	if n := countActive(t, db, projectScope); n != 1 {
		t.Fatalf("rotation touched the project scope: active = %d", n)
	}
}

func TestTokenRepositoryConcurrentIssue(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresTokenRepository(db)
	now := time.Now().Truncate(time.Second)
	scope := token.PartnerScope(insertPartner(t, db))

	const writers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[uuid.UUID]bool{}
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, ok, err := repo.CreateIfNoActive(context.Background(), newTestToken(scope, now))
			if err != nil {
				t.Errorf("CreateIfNoActive: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				created++
			}
			ids[got.ID] = true
		}()
	}
	wg.Wait()

	if created != 1 || len(ids) != 1 {
		t.Fatalf("created = %d, distinct tokens returned = %d, want 1 and 1", created, len(ids))
	}
	if n := countActive(t, db, scope); n != 1 {
		t.Fatalf("active tokens = %d, want 1", n)
	}
}

func TestRequestRepositoryEscalateGuard(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresRequestRepository(db)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)
	partnerID := insertPartner(t, db)

	rq := &request.Request{
		PartnerID:  partnerID,
		Status:     request.StatusPending,
		DeadlineAt: now.AddDate(0, 0, -8),
		CreatedAt:  now.AddDate(0, 0, -11),
		UpdatedAt:  now.AddDate(0, 0, -11),
	}
	if err := repo.CreateRequest(ctx, rq); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	stale := *rq

	submitted := *rq
	submitted.Status = request.StatusSubmitted
	submitted.ReportID = uuid.NullUUID{UUID: uuid.New(), Valid: true}
	submitted.UpdatedAt = now
	if err := repo.UpdateRequest(ctx, &submitted); err != nil {
		t.Fatalf("UpdateRequest: %v", err)
	}

	stale.Status = request.StatusOverdue
	stale.EscalationLevel = 3
	stale.LastReminderAt = sql.NullTime{Time: now, Valid: true}
	stale.UpdatedAt = now
	applied, err := repo.Escalate(ctx, &stale, request.OpenStatuses)
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if applied {
		t.Fatal("escalated a submitted request")
	}
	got, err := repo.GetRequestByID(ctx, rq.ID)
	if err != nil {
		t.Fatalf("GetRequestByID: %v", err)
	}
	if got.Status != request.StatusSubmitted || got.ReportID != submitted.ReportID || got.EscalationLevel != 0 {
		t.Fatalf("submitted request was overwritten: %+v", got)
	}
}

func TestRequestRepositoryEscalateIncrementsOnce(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresRequestRepository(db)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	rq := &request.Request{
		PartnerID:  insertPartner(t, db),
		Status:     request.StatusPending,
		DeadlineAt: now.AddDate(0, 0, -2),
		CreatedAt:  now.AddDate(0, 0, -5),
		UpdatedAt:  now.AddDate(0, 0, -5),
	}
	if err := repo.CreateRequest(ctx, rq); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	rq.Status = request.StatusOverdue
	rq.EscalationLevel = 1
	rq.LastReminderAt = sql.NullTime{Time: now, Valid: true}
	rq.UpdatedAt = now
	for i, want := range []bool{true, false} {
		applied, err := repo.Escalate(ctx, rq, request.OpenStatuses)
		if err != nil {
			t.Fatalf("Escalate %d: %v", i, err)
		}
		if applied != want {
			t.Fatalf("Escalate %d applied = %v, want %v", i, applied, want)
		}
	}
	got, err := repo.GetRequestByID(ctx, rq.ID)
	if err != nil {
		t.Fatalf("GetRequestByID: %v", err)
	}
	if got.EscalationLevel != 1 || got.ReminderCount != 1 || got.Status != request.StatusOverdue {
		t.Fatalf("request = %+v", got)
	}
}

func TestCreateScheduledRequest(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresRequestRepository(db)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)
	partnerID := insertPartner(t, db)

	t.Run("commits request and advance together", func(t *testing.T) {
		schedID := uuid.New()
		_, err := db.Exec(`INSERT INTO report_schedules (id, partner_id, frequency, day_of_week, time_of_day, next_send_at)
                           VALUES ($1, $2, 'weekly', 1, '09:00', $3)`, schedID, partnerID, now.Add(-time.Minute))
		if err != nil {
			t.Fatalf("insert schedule: %v", err)
		}
		due, err := repo.ListDueSchedules(ctx, now)
		if err != nil {
			t.Fatalf("ListDueSchedules: %v", err)
		}
		var sched *request.Schedule
		for _, s := range due {
			if s.ID == schedID {
				sched = s
			}
		}
		if sched == nil {
			t.Fatal("schedule is not due")
		}

		rq := &request.Request{
			PartnerID:  partnerID,
			ScheduleID: uuid.NullUUID{UUID: schedID, Valid: true},
			Status:     request.StatusPending,
			DeadlineAt: now.AddDate(0, 0, 3),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		sched.LastSentAt = sql.NullTime{Time: now, Valid: true}
		sched.NextSendAt = sql.NullTime{Time: now.AddDate(0, 0, 7), Valid: true}
		sched.UpdatedAt = now
		if err := repo.CreateScheduledRequest(ctx, rq, sched); err != nil {
			t.Fatalf("CreateScheduledRequest: %v", err)
		}
		if _, err := repo.GetRequestByID(ctx, rq.ID); err != nil {
			t.Fatalf("GetRequestByID: %v", err)
		}
		due, err = repo.ListDueSchedules(ctx, now)
		if err != nil {
			t.Fatalf("ListDueSchedules: %v", err)
		}
		for _, s := range due {
			if s.ID == schedID {
				t.Fatal("schedule is still due after its request was created")
			}
		}
	})

	t.Run("rolls back the request when the schedule is gone", func(t *testing.T) {
		rq := &request.Request{
			PartnerID:  partnerID,
			Status:     request.StatusPending,
			DeadlineAt: now.AddDate(0, 0, 3),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		missing := &request.Schedule{ID: uuid.New(), UpdatedAt: now}
		err := repo.CreateScheduledRequest(ctx, rq, missing)
		if !errors.Is(err, request.ErrScheduleNotFound) {
			t.Fatalf("CreateScheduledRequest error = %v, want ErrScheduleNotFound", err)
		}
		if _, err := repo.GetRequestByID(ctx, rq.ID); !errors.Is(err, request.ErrRequestNotFound) {
			t.Fatalf("request survived the rollback: %v", err)
		}
	})
}

func TestAdvisoryRunLockExcludesSecondHolder(t *testing.T) {
	db := openTestDB(t)
	log := logrus.New()
	log.SetOutput(io.Discard)
	lock := NewAdvisoryRunLock(db, logrus.NewEntry(log))
	ctx := context.Background()
	name := "test-sweep-" + uuid.NewString()

	release, ok, err := lock.TryAcquire(ctx, name)
	if err != nil || !ok {
		t.Fatalf("first TryAcquire = %v, %v", ok, err)
	}
	if _, ok, err := lock.TryAcquire(ctx, name); err != nil || ok {
		t.Fatalf("second TryAcquire = %v, %v, want held", ok, err)
	}
	release()

	release, ok, err = lock.TryAcquire(ctx, name)
	if err != nil || !ok {
		t.Fatalf("TryAcquire after release = %v, %v", ok, err)
	}
	release()
}
