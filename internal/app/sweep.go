// internal/app/sweep.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Custom application-level errors
var ErrSweepInProgress = errors.New("sweep already running")
var ErrInvalidInput = errors.New("invalid input")

// Clock returns the current instant. Services read time only through it.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

// Sweep names, also used as run-lock keys.
const (
	SweepReportConfigs   = "report-configs"
	SweepReportSchedules = "report-schedules"
	SweepEscalations     = "escalations"
)

var sweepAliases = map[string]string{
	"reports":     SweepReportConfigs,
	"schedules":   SweepReportSchedules,
	"escalations": SweepEscalations,
}

// SweepNameFor resolves the short alias used by the CLI, the HTTP API and the admin bot.
// Full sweep names resolve to themselves.
func SweepNameFor(alias string) (string, bool) {
	if name, ok := sweepAliases[alias]; ok {
		return name, true
	}
	for _, name := range sweepAliases {
		if name == alias {
			return name, true
		}
	}
	return "", false
}

// SweepResult summarizes one batch execution.
type SweepResult struct {
	Name      string    `json:"name"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Processed int       `json:"processed"`
	Succeeded int       `json:"succeeded"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
}

// RunLock guards a named sweep against overlapping executions.
type RunLock interface {
	// TryAcquire returns ok=false without blocking when name is already held.
	TryAcquire(ctx context.Context, name string) (release func(), ok bool, err error)
}

// LocalRunLock is an in-process RunLock.
type LocalRunLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{held: make(map[string]bool)}
}

func (l *LocalRunLock) TryAcquire(_ context.Context, name string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, true, nil
}

// SweepObserver is notified after every completed sweep.
type SweepObserver interface {
	ObserveSweep(ctx context.Context, res SweepResult)
}

// SweepRunner is the single entry point for all sweeps, whether triggered by cron,
// the HTTP API, the admin bot or the CLI. Each sweep runs under its own run-lock.
type SweepRunner struct {
	pipeline   *ReportPipeline
	escalation *EscalationService
	lock       RunLock
	observers  []SweepObserver
	logger     *logrus.Entry
}

func NewSweepRunner(p *ReportPipeline, e *EscalationService, lock RunLock, logger *logrus.Entry, observers ...SweepObserver) *SweepRunner {
	return &SweepRunner{
		pipeline:   p,
		escalation: e,
		lock:       lock,
		observers:  observers,
		logger:     logger.WithField("component", "sweep_runner"),
	}
}

func (r *SweepRunner) RunReportConfigs(ctx context.Context, now time.Time) (SweepResult, error) {
	return r.run(ctx, SweepReportConfigs, now, r.pipeline.RunDueConfigs)
}

func (r *SweepRunner) RunReportSchedules(ctx context.Context, now time.Time) (SweepResult, error) {
	return r.run(ctx, SweepReportSchedules, now, r.escalation.RunScheduleSweep)
}

func (r *SweepRunner) RunEscalations(ctx context.Context, now time.Time) (SweepResult, error) {
	return r.run(ctx, SweepEscalations, now, r.escalation.RunEscalationSweep)
}

// Run dispatches by sweep name.
func (r *SweepRunner) Run(ctx context.Context, name string, now time.Time) (SweepResult, error) {
	switch name {
	case SweepReportConfigs:
		return r.RunReportConfigs(ctx, now)
	case SweepReportSchedules:
		return r.RunReportSchedules(ctx, now)
	case SweepEscalations:
		return r.RunEscalations(ctx, now)
	default:
		return SweepResult{}, fmt.Errorf("%w: unknown sweep %q", ErrInvalidInput, name)
	}
}

func (r *SweepRunner) run(ctx context.Context, name string, now time.Time, fn func(context.Context, time.Time) (SweepResult, error)) (SweepResult, error) {
	log := r.logger.WithField("sweep", name)
	release, ok, err := r.lock.TryAcquire(ctx, name)
	if err != nil {
		log.WithError(err).Error("Failed to acquire sweep run-lock")
		return SweepResult{Name: name}, fmt.Errorf("failed to acquire run-lock for %s: %w", name, err)
	}
	if !ok {
		log.Warn("Sweep skipped, another run holds the lock")
		return SweepResult{Name: name}, ErrSweepInProgress
	}
	defer release()

	res, err := fn(ctx, now)
	res.Name = name
	if err != nil {
		log.WithError(err).Error("Sweep aborted")
		return res, err
	}
	log.WithFields(logrus.Fields{
		"processed": res.Processed,
		"succeeded": res.Succeeded,
		"skipped":   res.Skipped,
		"failed":    res.Failed,
		"took":      res.Finished.Sub(res.Started).String(),
	}).Info("Sweep finished")
	for _, o := range r.observers {
		o.ObserveSweep(ctx, res)
	}
	return res, nil
}
