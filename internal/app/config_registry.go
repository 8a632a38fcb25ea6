// internal/app/config_registry.go
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"partner_report_engine/internal/domain/report"
	"partner_report_engine/internal/domain/schedule"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ConfigRegistry owns periodic report configurations and is the only writer of NextRunAt.
type ConfigRegistry struct {
	repo   report.Repository
	logger *logrus.Entry
}

func NewConfigRegistry(repo report.Repository, logger *logrus.Entry) *ConfigRegistry {
	return &ConfigRegistry{
		repo:   repo,
		logger: logger.WithField("component", "config_registry"),
	}
}

// DueConfigs returns active configs whose NextRunAt is at or before now.
func (r *ConfigRegistry) DueConfigs(ctx context.Context, now time.Time) ([]*report.Config, error) {
	configs, err := r.repo.ListDueConfigs(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due report configs: %w", err)
	}
	return configs, nil
}

// MarkRun records a generation at now and schedules the next one.
func (r *ConfigRegistry) MarkRun(ctx context.Context, configID uuid.UUID, now time.Time) error {
	cfg, err := r.repo.GetConfigByID(ctx, configID)
	if err != nil {
		return fmt.Errorf("failed to get report config %s: %w", configID, err)
	}
	rule, err := cfg.Rule()
	if err != nil {
		return fmt.Errorf("report config %s has an invalid rule: %w", configID, err)
	}
	cfg.LastGenerated = sql.NullTime{Time: now, Valid: true}
	cfg.NextRunAt = sql.NullTime{Time: schedule.NextRun(rule, now), Valid: true}
	cfg.UpdatedAt = now
	if err := r.repo.SaveConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to save report config %s: %w", configID, err)
	}
	r.logger.WithFields(logrus.Fields{
		"config_id":   configID,
		"next_run_at": cfg.NextRunAt.Time,
	}).Debug("Report config marked as run")
	return nil
}

// Upsert validates and stores c. NextRunAt is recomputed in the same write whenever the
// config is new or one of its recurrence fields changed; CronExpression is always re-derived.
func (r *ConfigRegistry) Upsert(ctx context.Context, c *report.Config, now time.Time) (*report.Config, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, fmt.Errorf("%w: report config name is required", ErrInvalidInput)
	}
	if c.Status == "" {
		c.Status = report.ConfigActive
	}
	if !c.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown report config status %q", ErrInvalidInput, c.Status)
	}
	rule, err := c.Rule()
	if err != nil {
		return nil, err
	}

	recompute := true
	if c.ID != uuid.Nil {
		existing, err := r.repo.GetConfigByID(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get report config %s: %w", c.ID, err)
		}
		c.LastGenerated = existing.LastGenerated
		c.CreatedAt = existing.CreatedAt
		if !existing.RuleChanged(c) && existing.NextRunAt.Valid {
			c.NextRunAt = existing.NextRunAt
			recompute = false
		}
	} else {
		c.CreatedAt = now
	}

	if recompute {
		c.NextRunAt = sql.NullTime{Time: schedule.NextRun(rule, now), Valid: true}
	}
	c.CronExpression = rule.CronDisplay()
	c.UpdatedAt = now

	if err := r.repo.SaveConfig(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save report config: %w", err)
	}
	r.logger.WithFields(logrus.Fields{
		"config_id":   c.ID,
		"recomputed":  recompute,
		"next_run_at": c.NextRunAt.Time,
	}).Info("Report config saved")
	return c, nil
}

// SetStatus pauses, resumes or deletes a config. Resuming schedules the next run from now
// so that runs missed while paused are not replayed.
func (r *ConfigRegistry) SetStatus(ctx context.Context, configID uuid.UUID, status report.ConfigStatus, now time.Time) (*report.Config, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown report config status %q", ErrInvalidInput, status)
	}
	cfg, err := r.repo.GetConfigByID(ctx, configID)
	if err != nil {
		return nil, fmt.Errorf("failed to get report config %s: %w", configID, err)
	}
	if cfg.Status == status {
		return cfg, nil
	}
	if status == report.ConfigActive {
		rule, err := cfg.Rule()
		if err != nil {
			return nil, err
		}
		cfg.NextRunAt = sql.NullTime{Time: schedule.NextRun(rule, now), Valid: true}
	}
	cfg.Status = status
	cfg.UpdatedAt = now
	if err := r.repo.SaveConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to save report config %s: %w", configID, err)
	}
	r.logger.WithFields(logrus.Fields{"config_id": configID, "status": status}).Info("Report config status changed")
	return cfg, nil
}

// RecomputeAll recomputes NextRunAt for every active config and returns how many were saved.
// A config with an invalid rule or a failed write is logged and skipped.
func (r *ConfigRegistry) RecomputeAll(ctx context.Context, now time.Time) (int, error) {
	configs, err := r.repo.ListConfigsByStatus(ctx, report.ConfigActive)
	if err != nil {
		return 0, fmt.Errorf("failed to list active report configs: %w", err)
	}
	touched := 0
	for _, cfg := range configs {
		log := r.logger.WithField("config_id", cfg.ID)
		rule, err := cfg.Rule()
		if err != nil {
			log.WithError(err).Warn("Skipping report config with invalid rule")
			continue
		}
		cfg.NextRunAt = sql.NullTime{Time: schedule.NextRun(rule, now), Valid: true}
		cfg.CronExpression = rule.CronDisplay()
		cfg.UpdatedAt = now
		if err := r.repo.SaveConfig(ctx, cfg); err != nil {
			log.WithError(err).Error("Failed to save recomputed report config")
			continue
		}
		touched++
	}
	r.logger.WithFields(logrus.Fields{"total": len(configs), "touched": touched}).Info("Recomputed next runs for active report configs")
	return touched, nil
}
