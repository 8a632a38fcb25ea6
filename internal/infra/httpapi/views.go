package httpapi

import (
	"database/sql"
	"encoding/json"
	"time"

	"partner_report_engine/internal/app"
	"partner_report_engine/internal/domain/report"
	"partner_report_engine/internal/domain/request"
	"partner_report_engine/internal/domain/token"

	"github.com/google/uuid"
)

type sweepView struct {
	Name       string    `json:"name"`
	Processed  int       `json:"processed"`
	Succeeded  int       `json:"succeeded"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func newSweepView(res app.SweepResult) sweepView {
	return sweepView{
		Name:       res.Name,
		Processed:  res.Processed,
		Succeeded:  res.Succeeded,
		Skipped:    res.Skipped,
		Failed:     res.Failed,
		StartedAt:  res.Started,
		FinishedAt: res.Finished,
	}
}

type configView struct {
	ID             uuid.UUID     `json:"id"`
	OrganizationID uuid.NullUUID `json:"organizationId"`
	Name           string        `json:"name"`
	Period         string        `json:"period"`
	DayOfWeek      int           `json:"dayOfWeek"`
	DayOfMonth     int           `json:"dayOfMonth"`
	SendTime       string        `json:"sendTime"`
	Recipients     []string      `json:"recipients"`
	Status         string        `json:"status"`
	CronExpression string        `json:"cronExpression"`
	LastGenerated  *time.Time    `json:"lastGenerated"`
	NextRunAt      *time.Time    `json:"nextRunAt"`
}

func newConfigView(c *report.Config) configView {
	return configView{
		ID:             c.ID,
		OrganizationID: c.OrganizationID,
		Name:           c.Name,
		Period:         string(c.Period),
		DayOfWeek:      c.DayOfWeek,
		DayOfMonth:     c.DayOfMonth,
		SendTime:       c.SendTime,
		Recipients:     c.Recipients,
		Status:         string(c.Status),
		CronExpression: c.CronExpression,
		LastGenerated:  timePtr(c.LastGenerated),
		NextRunAt:      timePtr(c.NextRunAt),
	}
}

type generatedView struct {
	ID          uuid.UUID       `json:"id"`
	ConfigID    uuid.NullUUID   `json:"configId"`
	Title       string          `json:"title"`
	Period      string          `json:"period"`
	PeriodStart time.Time       `json:"periodStart"`
	PeriodEnd   time.Time       `json:"periodEnd"`
	Status      string          `json:"status"`
	Data        json.RawMessage `json:"data"`
	IsManual    bool            `json:"isManual"`
	OperatorID  uuid.NullUUID   `json:"operatorId"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func newGeneratedView(g *report.Generated) generatedView {
	return generatedView{
		ID:          g.ID,
		ConfigID:    g.ConfigID,
		Title:       g.Title,
		Period:      string(g.Period),
		PeriodStart: g.PeriodStart,
		PeriodEnd:   g.PeriodEnd,
		Status:      string(g.Status),
		Data:        g.Data,
		IsManual:    g.IsManual,
		OperatorID:  g.OperatorID,
		CreatedAt:   g.CreatedAt,
	}
}

type requestView struct {
	ID              uuid.UUID     `json:"id"`
	PartnerID       uuid.UUID     `json:"partnerId"`
	ProjectID       uuid.NullUUID `json:"projectId"`
	Status          string        `json:"status"`
	DeadlineAt      time.Time     `json:"deadlineAt"`
	EscalationLevel int           `json:"escalationLevel"`
	ReminderCount   int           `json:"reminderCount"`
	ReportID        uuid.NullUUID `json:"reportId"`
}

func newRequestView(r *request.Request) requestView {
	return requestView{
		ID:              r.ID,
		PartnerID:       r.PartnerID,
		ProjectID:       r.ProjectID,
		Status:          string(r.Status),
		DeadlineAt:      r.DeadlineAt,
		EscalationLevel: r.EscalationLevel,
		ReminderCount:   r.ReminderCount,
		ReportID:        r.ReportID,
	}
}

type tokenView struct {
	ID        uuid.UUID     `json:"id"`
	PartnerID uuid.UUID     `json:"partnerId"`
	ProjectID uuid.NullUUID `json:"projectId"`
	Secret    string        `json:"secret,omitempty"`
	ExpiresAt *time.Time    `json:"expiresAt"`
	IsActive  bool          `json:"isActive"`
}

// newTokenView includes the secret only when withSecret is set.
func newTokenView(t *token.PartnerToken, withSecret bool) tokenView {
	v := tokenView{
		ID:        t.ID,
		PartnerID: t.Scope.PartnerID,
		ProjectID: t.Scope.ProjectID,
		ExpiresAt: timePtr(t.ExpiresAt),
		IsActive:  t.IsActive,
	}
	if withSecret {
		v.Secret = t.Secret
	}
	return v
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
