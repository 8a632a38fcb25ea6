// internal/app/escalation_service.go
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"partner_report_engine/internal/domain/notify"
	"partner_report_engine/internal/domain/partner"
	"partner_report_engine/internal/domain/request"
	"partner_report_engine/internal/domain/schedule"
	"partner_report_engine/internal/domain/token"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EscalationService owns the report-request state machine: creation from schedules or by
// hand, overdue escalation with reminders, and resolution on submission.
type EscalationService struct {
	requests      request.Repository
	partners      partner.Repository
	tokens        *TokenService
	sender        notify.Sender
	clock         Clock
	portalBaseURL string
	logger        *logrus.Entry
}

func NewEscalationService(
	requests request.Repository,
	partners partner.Repository,
	tokens *TokenService,
	sender notify.Sender,
	clock Clock,
	portalBaseURL string,
	logger *logrus.Entry,
) *EscalationService {
	return &EscalationService{
		requests:      requests,
		partners:      partners,
		tokens:        tokens,
		sender:        sender,
		clock:         clock,
		portalBaseURL: portalBaseURL,
		logger:        logger.WithField("component", "escalation_service"),
	}
}

// RunEscalationSweep escalates every open request whose deadline has passed. Each request is
// handled on its own; one failure is logged and the sweep moves on.
func (s *EscalationService) RunEscalationSweep(ctx context.Context, now time.Time) (SweepResult, error) {
	res := SweepResult{Started: s.clock()}
	candidates, err := s.requests.ListEscalationCandidates(ctx, request.OpenStatuses, now)
	if err != nil {
		res.Finished = s.clock()
		return res, fmt.Errorf("failed to list escalation candidates: %w", err)
	}
	for _, req := range candidates {
		res.Processed++
		escalated, err := s.escalate(ctx, req, now)
		switch {
		case err != nil:
			res.Failed++
			s.logger.WithError(err).WithField("request_id", req.ID).Error("Failed to escalate report request")
		case escalated:
			res.Succeeded++
		default:
			res.Skipped++
		}
	}
	res.Finished = s.clock()
	return res, nil
}

// escalate raises the request to the level its overdue days call for. A level that was
// already reached is skipped, so repeated sweeps never re-send the same reminder.
// The write is guarded on the stored row: a request submitted or escalated since the
// candidate listing is skipped.
func (s *EscalationService) escalate(ctx context.Context, req *request.Request, now time.Time) (bool, error) {
	days := request.DaysOverdue(req.DeadlineAt, now)
	target := request.LevelForDaysOverdue(days)
	if target <= req.EscalationLevel {
		return false, nil
	}

	previous := req.EscalationLevel
	req.Status = request.StatusOverdue
	req.EscalationLevel = target
	req.LastReminderAt = sql.NullTime{Time: now, Valid: true}
	req.UpdatedAt = now
	applied, err := s.requests.Escalate(ctx, req, request.OpenStatuses)
	if err != nil {
		return false, fmt.Errorf("failed to escalate report request %s: %w", req.ID, err)
	}
	if !applied {
		s.logger.WithField("request_id", req.ID).Debug("Report request changed since listing, escalation skipped")
		return false, nil
	}
	s.logger.WithFields(logrus.Fields{
		"request_id":       req.ID,
		"partner_id":       req.PartnerID,
		"days_overdue":     days,
		"previous_level":   previous,
		"escalation_level": target,
	}).Info("Report request escalated")

	s.sendReminder(ctx, req, now)
	return true, nil
}

// sendReminder is best-effort: the escalation is already committed and stays authoritative.
func (s *EscalationService) sendReminder(ctx context.Context, req *request.Request, now time.Time) {
	log := s.logger.WithFields(logrus.Fields{"request_id": req.ID, "partner_id": req.PartnerID})

	tok, err := s.tokens.usableToken(ctx, token.ScopeOf(req.PartnerID, req.ProjectID), now)
	if err != nil {
		log.WithError(err).Warn("No token available, reminder not sent")
		return
	}
	p, err := s.partners.GetByID(ctx, req.PartnerID)
	if err != nil {
		log.WithError(err).Warn("Failed to load partner, reminder not sent")
		return
	}
	if !p.HasContact() {
		log.Debug("Partner has no contact address, reminder not sent")
		return
	}

	subject, body := reminderMessage(p, req, tok, s.portalBaseURL, now)
	if err := s.sender.Send(ctx, notify.Message{To: []string{p.ContactEmail.String}, Subject: subject, Body: body}); err != nil {
		log.WithError(err).Warn("Failed to send reminder")
		return
	}
	log.WithField("urgency", request.UrgencyFor(req.EscalationLevel)).Info("Reminder sent")
}

// RunScheduleSweep turns every due report schedule into a new pending request.
func (s *EscalationService) RunScheduleSweep(ctx context.Context, now time.Time) (SweepResult, error) {
	res := SweepResult{Started: s.clock()}
	schedules, err := s.requests.ListDueSchedules(ctx, now)
	if err != nil {
		res.Finished = s.clock()
		return res, fmt.Errorf("failed to list due report schedules: %w", err)
	}
	for _, sched := range schedules {
		res.Processed++
		if err := s.processSchedule(ctx, sched, now); err != nil {
			res.Failed++
			s.logger.WithError(err).WithField("schedule_id", sched.ID).Error("Failed to process due report schedule")
			continue
		}
		res.Succeeded++
	}
	res.Finished = s.clock()
	return res, nil
}

func (s *EscalationService) processSchedule(ctx context.Context, sched *request.Schedule, now time.Time) error {
	rule, err := sched.Rule()
	if err != nil {
		return fmt.Errorf("report schedule %s has an invalid rule: %w", sched.ID, err)
	}
	deadlineDays := sched.DeadlineDays
	if deadlineDays <= 0 {
		deadlineDays = request.DefaultDeadlineDays
	}

	req := &request.Request{
		PartnerID:      sched.PartnerID,
		ProjectID:      sched.ProjectID,
		OrganizationID: sched.OrganizationID,
		ScheduleID:     uuid.NullUUID{UUID: sched.ID, Valid: true},
		Status:         request.StatusPending,
		DeadlineAt:     now.AddDate(0, 0, deadlineDays),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	sched.LastSentAt = sql.NullTime{Time: now, Valid: true}
	sched.NextSendAt = sql.NullTime{Time: schedule.NextRun(rule, now), Valid: true}
	sched.UpdatedAt = now
	// Request and schedule advance commit together.
	if err := s.requests.CreateScheduledRequest(ctx, req, sched); err != nil {
		return fmt.Errorf("failed to create request for report schedule %s: %w", sched.ID, err)
	}
	s.logger.WithFields(logrus.Fields{
		"schedule_id":  sched.ID,
		"request_id":   req.ID,
		"partner_id":   req.PartnerID,
		"deadline_at":  req.DeadlineAt,
		"next_send_at": sched.NextSendAt.Time,
	}).Info("Report request created from schedule")

	s.sendRequestNotice(ctx, req, now)
	return nil
}

// sendRequestNotice is best-effort, like sendReminder.
func (s *EscalationService) sendRequestNotice(ctx context.Context, req *request.Request, now time.Time) {
	log := s.logger.WithFields(logrus.Fields{"request_id": req.ID, "partner_id": req.PartnerID})

	tok, err := s.tokens.usableToken(ctx, token.ScopeOf(req.PartnerID, req.ProjectID), now)
	if err != nil {
		log.WithError(err).Warn("No token available, request notice not sent")
		return
	}
	p, err := s.partners.GetByID(ctx, req.PartnerID)
	if err != nil {
		log.WithError(err).Warn("Failed to load partner, request notice not sent")
		return
	}
	if !p.HasContact() {
		log.Debug("Partner has no contact address, request notice not sent")
		return
	}
	subject, body := requestMessage(p, req, tok, s.portalBaseURL)
	if err := s.sender.Send(ctx, notify.Message{To: []string{p.ContactEmail.String}, Subject: subject, Body: body}); err != nil {
		log.WithError(err).Warn("Failed to send request notice")
	}
}

// ManualRequestParams are the inputs of CreateManualRequest. DeadlineDays <= 0 selects the default.
type ManualRequestParams struct {
	PartnerID      uuid.UUID
	OrganizationID uuid.NullUUID
	ProjectID      uuid.NullUUID
	DeadlineDays   int
}

// CreateManualRequest opens a pending request for a partner outside any schedule.
func (s *EscalationService) CreateManualRequest(ctx context.Context, params ManualRequestParams) (*request.Request, error) {
	if _, err := s.partners.GetByID(ctx, params.PartnerID); err != nil {
		return nil, fmt.Errorf("failed to get partner %s: %w", params.PartnerID, err)
	}
	deadlineDays := params.DeadlineDays
	if deadlineDays <= 0 {
		deadlineDays = request.DefaultDeadlineDays
	}
	now := s.clock()
	req := &request.Request{
		PartnerID:      params.PartnerID,
		ProjectID:      params.ProjectID,
		OrganizationID: params.OrganizationID,
		Status:         request.StatusPending,
		DeadlineAt:     now.AddDate(0, 0, deadlineDays),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.requests.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create report request: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"request_id": req.ID, "partner_id": req.PartnerID, "deadline_at": req.DeadlineAt}).Info("Manual report request created")

	s.sendRequestNotice(ctx, req, now)
	return req, nil
}

// MarkSubmitted closes the latest request of the partner in each open state with reportID.
// Every open state is checked, even after a match. It returns the requests it closed,
// which is empty when the partner had nothing open.
func (s *EscalationService) MarkSubmitted(ctx context.Context, partnerID, reportID uuid.UUID) ([]*request.Request, error) {
	now := s.clock()
	var closed []*request.Request
	for _, status := range request.OpenStatuses {
		req, err := s.requests.FindLatestByPartnerAndStatus(ctx, partnerID, status)
		if errors.Is(err, request.ErrRequestNotFound) {
			continue
		}
		if err != nil {
			return closed, fmt.Errorf("failed to find %s request of partner %s: %w", status, partnerID, err)
		}
		req.Status = request.StatusSubmitted
		req.ReportID = uuid.NullUUID{UUID: reportID, Valid: true}
		req.UpdatedAt = now
		if err := s.requests.UpdateRequest(ctx, req); err != nil {
			return closed, fmt.Errorf("failed to mark request %s submitted: %w", req.ID, err)
		}
		s.logger.WithFields(logrus.Fields{"request_id": req.ID, "partner_id": partnerID, "report_id": reportID}).Info("Report request submitted")
		closed = append(closed, req)
	}
	return closed, nil
}
