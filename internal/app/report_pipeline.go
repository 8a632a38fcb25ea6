// internal/app/report_pipeline.go
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"partner_report_engine/internal/domain/notify"
	"partner_report_engine/internal/domain/report"
	"partner_report_engine/internal/domain/schedule"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ReportPipeline generates digest reports for due configs and on demand.
type ReportPipeline struct {
	registry   *ConfigRegistry
	repo       report.Repository
	aggregator report.Aggregator
	sender     notify.Sender
	clock      Clock
	logger     *logrus.Entry
}

func NewReportPipeline(
	registry *ConfigRegistry,
	repo report.Repository,
	aggregator report.Aggregator,
	sender notify.Sender,
	clock Clock,
	logger *logrus.Entry,
) *ReportPipeline {
	return &ReportPipeline{
		registry:   registry,
		repo:       repo,
		aggregator: aggregator,
		sender:     sender,
		clock:      clock,
		logger:     logger.WithField("component", "report_pipeline"),
	}
}

// RunDueConfigs generates one report per due config. A failing config is logged and counted;
// it never stops the others. Only failing to list the due configs aborts the sweep.
func (p *ReportPipeline) RunDueConfigs(ctx context.Context, now time.Time) (SweepResult, error) {
	res := SweepResult{Started: p.clock()}
	configs, err := p.registry.DueConfigs(ctx, now)
	if err != nil {
		res.Finished = p.clock()
		return res, err
	}
	for _, cfg := range configs {
		res.Processed++
		if err := p.processConfig(ctx, cfg, now); err != nil {
			res.Failed++
			p.logger.WithError(err).WithField("config_id", cfg.ID).Error("Failed to process due report config")
			continue
		}
		res.Succeeded++
	}
	res.Finished = p.clock()
	return res, nil
}

// processConfig aggregates, persists and delivers one report. Aggregation or persistence
// failures leave the config due so the next sweep retries it; once the artifact exists the
// config is marked as run whatever the delivery outcome.
func (p *ReportPipeline) processConfig(ctx context.Context, cfg *report.Config, now time.Time) error {
	log := p.logger.WithFields(logrus.Fields{"config_id": cfg.ID, "period": cfg.Period})
	window := schedule.ReportingWindow(cfg.Period, now)

	data, err := p.aggregator.Aggregate(ctx, window, cfg.OrganizationID)
	if err != nil {
		return fmt.Errorf("failed to aggregate report data: %w", err)
	}

	g := &report.Generated{
		ConfigID:    uuid.NullUUID{UUID: cfg.ID, Valid: true},
		Title:       reportTitle(cfg.Period, window),
		Period:      cfg.Period,
		PeriodStart: window.Start,
		PeriodEnd:   window.End,
		Status:      report.GeneratedOK,
		Data:        data,
		IsManual:    false,
		CreatedAt:   now,
	}
	if err := p.repo.CreateGenerated(ctx, g); err != nil {
		return fmt.Errorf("failed to persist generated report: %w", err)
	}
	log = log.WithField("report_id", g.ID)
	log.Info("Report generated")

	var deliveryErr error
	if len(cfg.Recipients) > 0 {
		deliveryErr = p.deliver(ctx, g, cfg.Recipients, now)
		if deliveryErr != nil {
			log.WithError(deliveryErr).Error("Failed to record report delivery outcome")
		}
	}

	if err := p.registry.MarkRun(ctx, cfg.ID, now); err != nil {
		return err
	}
	return deliveryErr
}

// deliver sends g and records the outcome on the artifact. A send failure is not an error
// here: it is expressed as the failed status. Only failing to store the outcome is returned.
func (p *ReportPipeline) deliver(ctx context.Context, g *report.Generated, recipients []string, now time.Time) error {
	msg := notify.Message{
		To:      recipients,
		Subject: g.Title,
		Body:    reportDeliveryBody(g),
	}
	if err := p.sender.Send(ctx, msg); err != nil {
		g.Status = report.GeneratedFailed
		g.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		p.logger.WithError(err).WithField("report_id", g.ID).Warn("Report delivery failed")
	} else {
		g.Status = report.GeneratedSent
		g.SentTo = append([]string(nil), recipients...)
		g.SentAt = sql.NullTime{Time: now, Valid: true}
	}
	if err := p.repo.UpdateGeneratedDelivery(ctx, g); err != nil {
		return fmt.Errorf("failed to update delivery status of report %s: %w", g.ID, err)
	}
	return nil
}

// ManualReportParams are the inputs of an on-demand generation.
// Start and End are given together or not at all.
type ManualReportParams struct {
	Period         schedule.Period
	Start          *time.Time
	End            *time.Time
	OrganizationID uuid.NullUUID
	OperatorID     uuid.NullUUID
}

// GenerateManual produces a report outside any schedule and returns it as stored.
func (p *ReportPipeline) GenerateManual(ctx context.Context, params ManualReportParams) (*report.Generated, error) {
	now := p.clock()
	period := params.Period
	if period == "" {
		period = schedule.PeriodWeekly
	}
	if period != schedule.PeriodWeekly && period != schedule.PeriodMonthly {
		return nil, fmt.Errorf("%w: unknown period %q", ErrInvalidInput, period)
	}

	var window schedule.Window
	switch {
	case params.Start == nil && params.End == nil:
		window = schedule.ReportingWindow(period, now)
	case params.Start != nil && params.End != nil:
		if params.End.Before(*params.Start) {
			return nil, fmt.Errorf("%w: end %s is before start %s", ErrInvalidInput, params.End.Format(time.RFC3339), params.Start.Format(time.RFC3339))
		}
		window = schedule.Window{Start: *params.Start, End: *params.End}
	default:
		return nil, fmt.Errorf("%w: start and end must be given together", ErrInvalidInput)
	}

	data, err := p.aggregator.Aggregate(ctx, window, params.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate report data: %w", err)
	}
	g := &report.Generated{
		Title:       reportTitle(period, window),
		Period:      period,
		PeriodStart: window.Start,
		PeriodEnd:   window.End,
		Status:      report.GeneratedOK,
		Data:        data,
		IsManual:    true,
		OperatorID:  params.OperatorID,
		CreatedAt:   now,
	}
	if err := p.repo.CreateGenerated(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to persist manual report: %w", err)
	}
	p.logger.WithFields(logrus.Fields{"report_id": g.ID, "operator_id": params.OperatorID.UUID}).Info("Manual report generated")

	stored, err := p.repo.GetGeneratedByID(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload manual report %s: %w", g.ID, err)
	}
	return stored, nil
}
