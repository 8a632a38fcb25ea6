package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"partner_report_engine/internal/app"
	"partner_report_engine/internal/domain/schedule"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper runs a named sweep. *app.SweepRunner implements it.
type Sweeper interface {
	Run(ctx context.Context, name string, now time.Time) (app.SweepResult, error)
}

// Specs maps sweep names to cron specs, interpreted in the organization time zone.
type Specs map[string]string

type SweepScheduler struct {
	cronEngine *cron.Cron
	sweeper    Sweeper
	clock      app.Clock
	specs      Specs
	timeout    time.Duration
	logger     *logrus.Entry
}

func NewSweepScheduler(sweeper Sweeper, clock app.Clock, specs Specs, timeout time.Duration, logger *logrus.Logger) *SweepScheduler {
	cronLogger := cron.PrintfLogger(logger)
	return &SweepScheduler{
		cronEngine: cron.New(
			cron.WithLocation(schedule.OrgZone),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		sweeper: sweeper,
		clock:   clock,
		specs:   specs,
		timeout: timeout,
		logger:  logger.WithField("component", "sweep_scheduler"),
	}
}

// Start registers one job per configured sweep and starts the cron engine.
func (s *SweepScheduler) Start() error {
	s.logger.Info("Starting sweep scheduler...")
	for name, spec := range s.specs {
		if spec == "" {
			s.logger.WithField("sweep", name).Warn("No cron spec, sweep will only run on demand")
			continue
		}
		name := name
		if _, err := s.cronEngine.AddFunc(spec, func() { s.runSweep(name) }); err != nil {
			return fmt.Errorf("could not add cron job for sweep %s (%q): %w", name, spec, err)
		}
		s.logger.WithFields(logrus.Fields{"sweep": name, "spec": spec}).Info("Sweep job registered")
	}
	s.cronEngine.Start()
	s.logger.Info("Sweep scheduler started with jobs.")
	return nil
}

func (s *SweepScheduler) runSweep(name string) {
	log := s.logger.WithField("sweep", name)
	log.Debug("Cron job triggered")
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.sweeper.Run(ctx, name, s.clock())
	switch {
	case errors.Is(err, app.ErrSweepInProgress):
		log.Info("Sweep still running elsewhere, skipping this tick")
	case err != nil:
		log.WithError(err).Error("Error during scheduled sweep")
	}
}

func (s *SweepScheduler) Stop() {
	s.logger.Info("Stopping sweep scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Sweep scheduler gracefully stopped.")
}
