// internal/infra/database/advisory_lock.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// AdvisoryRunLock is a cluster-wide app.RunLock backed by pg_try_advisory_lock.
// The lock lives on a dedicated connection that is held until release.
type AdvisoryRunLock struct {
	db     *sql.DB
	logger *logrus.Entry
}

func NewAdvisoryRunLock(db *sql.DB, logger *logrus.Entry) *AdvisoryRunLock {
	return &AdvisoryRunLock{db: db, logger: logger.WithField("component", "advisory_run_lock")}
}

func (l *AdvisoryRunLock) TryAcquire(ctx context.Context, name string) (func(), bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get connection for advisory lock: %w", err)
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, name).Scan(&ok); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("failed to try advisory lock %q: %w", name, err)
	}
	if !ok {
		conn.Close()
		return nil, false, nil
	}
	return func() {
		// The sweep context may already be cancelled; unlock on a fresh one.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(unlockCtx, `SELECT pg_advisory_unlock(hashtext($1))`, name); err != nil {
			l.logger.WithError(err).WithField("lock", name).Error("Failed to release advisory lock")
		}
		conn.Close()
	}, true, nil
}
