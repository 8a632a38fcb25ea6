package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"slices"
	"sort"
	"sync"
	"time"

	"partner_report_engine/internal/domain/notify"
	"partner_report_engine/internal/domain/partner"
	"partner_report_engine/internal/domain/report"
	"partner_report_engine/internal/domain/request"
	"partner_report_engine/internal/domain/schedule"
	"partner_report_engine/internal/domain/token"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var kst = time.FixedZone("KST", 9*3600)

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// --- report repository ---

type memReportRepo struct {
	mu        sync.Mutex
	configs   map[uuid.UUID]report.Config
	generated map[uuid.UUID]report.Generated
	order     []uuid.UUID

	failCreateFor  map[uuid.UUID]bool // config ids whose generated report cannot be stored
	failSaveConfig bool
}

func newMemReportRepo() *memReportRepo {
	return &memReportRepo{
		configs:       make(map[uuid.UUID]report.Config),
		generated:     make(map[uuid.UUID]report.Generated),
		failCreateFor: make(map[uuid.UUID]bool),
	}
}

func (m *memReportRepo) GetConfigByID(_ context.Context, id uuid.UUID) (*report.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[id]
	if !ok {
		return nil, report.ErrConfigNotFound
	}
	c.Recipients = append([]string(nil), c.Recipients...)
	return &c, nil
}

func (m *memReportRepo) SaveConfig(_ context.Context, c *report.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaveConfig {
		return errors.New("save failed")
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := *c
	cp.Recipients = append([]string(nil), c.Recipients...)
	m.configs[c.ID] = cp
	return nil
}

func (m *memReportRepo) ListDueConfigs(_ context.Context, now time.Time) ([]*report.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*report.Config
	for _, c := range m.configs {
		if c.Status == report.ConfigActive && c.NextRunAt.Valid && !c.NextRunAt.Time.After(now) {
			cp := c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRunAt.Time.Before(out[j].NextRunAt.Time) })
	return out, nil
}

func (m *memReportRepo) ListConfigsByStatus(_ context.Context, status report.ConfigStatus) ([]*report.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*report.Config
	for _, c := range m.configs {
		if c.Status == status {
			cp := c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memReportRepo) CreateGenerated(_ context.Context, g *report.Generated) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ConfigID.Valid && m.failCreateFor[g.ConfigID.UUID] {
		return errors.New("insert failed")
	}
	g.ID = uuid.New()
	m.generated[g.ID] = *g
	m.order = append(m.order, g.ID)
	return nil
}

func (m *memReportRepo) UpdateGeneratedDelivery(_ context.Context, g *report.Generated) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.generated[g.ID]; !ok {
		return report.ErrGeneratedNotFound
	}
	m.generated[g.ID] = *g
	return nil
}

func (m *memReportRepo) GetGeneratedByID(_ context.Context, id uuid.UUID) (*report.Generated, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.generated[id]
	if !ok {
		return nil, report.ErrGeneratedNotFound
	}
	return &g, nil
}

func (m *memReportRepo) generatedFor(configID uuid.UUID) []report.Generated {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []report.Generated
	for _, id := range m.order {
		g := m.generated[id]
		if g.ConfigID.Valid && g.ConfigID.UUID == configID {
			out = append(out, g)
		}
	}
	return out
}

// --- aggregator ---

type fakeAggregator struct {
	mu      sync.Mutex
	failFor map[uuid.UUID]bool // organization ids
	windows []schedule.Window
}

func (a *fakeAggregator) Aggregate(_ context.Context, w schedule.Window, orgID uuid.NullUUID) (json.RawMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if orgID.Valid && a.failFor[orgID.UUID] {
		return nil, errors.New("aggregation timed out")
	}
	a.windows = append(a.windows, w)
	return json.RawMessage(`{"requests":0}`), nil
}

// --- sender ---

type fakeSender struct {
	mu   sync.Mutex
	fail bool
	sent []notify.Message
}

func (s *fakeSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("smtp: connection refused")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// --- request repository ---

type memRequestRepo struct {
	mu        sync.Mutex
	requests  map[uuid.UUID]request.Request
	schedules map[uuid.UUID]request.Schedule
	failFor   map[uuid.UUID]bool // request ids whose update fails

	failScheduleFor map[uuid.UUID]bool // schedule ids whose advance fails
	beforeEscalate  func(id uuid.UUID) // runs between the candidate listing and the guarded write
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{
		requests:  make(map[uuid.UUID]request.Request),
		schedules: make(map[uuid.UUID]request.Schedule),
		failFor:   make(map[uuid.UUID]bool),

		failScheduleFor: make(map[uuid.UUID]bool),
	}
}

func (m *memRequestRepo) CreateRequest(_ context.Context, r *request.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.requests[r.ID] = *r
	return nil
}

func (m *memRequestRepo) UpdateRequest(_ context.Context, r *request.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[r.ID] {
		return errors.New("update failed")
	}
	if _, ok := m.requests[r.ID]; !ok {
		return request.ErrRequestNotFound
	}
	m.requests[r.ID] = *r
	return nil
}

func (m *memRequestRepo) Escalate(_ context.Context, r *request.Request, open []request.Status) (bool, error) {
	m.mu.Lock()
	hook := m.beforeEscalate
	m.mu.Unlock()
	if hook != nil {
		hook(r.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[r.ID] {
		return false, errors.New("update failed")
	}
	stored, ok := m.requests[r.ID]
	if !ok || !slices.Contains(open, stored.Status) || stored.EscalationLevel >= r.EscalationLevel {
		return false, nil
	}
	stored.Status = r.Status
	stored.EscalationLevel = r.EscalationLevel
	stored.ReminderCount++
	stored.LastReminderAt = r.LastReminderAt
	stored.UpdatedAt = r.UpdatedAt
	m.requests[r.ID] = stored
	r.ReminderCount = stored.ReminderCount
	return true, nil
}

func (m *memRequestRepo) GetRequestByID(_ context.Context, id uuid.UUID) (*request.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, request.ErrRequestNotFound
	}
	return &r, nil
}

func (m *memRequestRepo) ListEscalationCandidates(_ context.Context, statuses []request.Status, now time.Time) ([]*request.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*request.Request
	for _, r := range m.requests {
		for _, s := range statuses {
			if r.Status == s && !r.DeadlineAt.After(now) {
				cp := r
				out = append(out, &cp)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeadlineAt.Before(out[j].DeadlineAt) })
	return out, nil
}

func (m *memRequestRepo) FindLatestByPartnerAndStatus(_ context.Context, partnerID uuid.UUID, status request.Status) (*request.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *request.Request
	for _, r := range m.requests {
		if r.PartnerID != partnerID || r.Status != status {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			cp := r
			latest = &cp
		}
	}
	if latest == nil {
		return nil, request.ErrRequestNotFound
	}
	return latest, nil
}

func (m *memRequestRepo) ListDueSchedules(_ context.Context, now time.Time) ([]*request.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*request.Schedule
	for _, s := range m.schedules {
		if s.IsActive && s.NextSendAt.Valid && !s.NextSendAt.Time.After(now) {
			cp := s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRequestRepo) CreateScheduledRequest(_ context.Context, r *request.Request, s *request.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[s.ID]; !ok {
		return request.ErrScheduleNotFound
	}
	if m.failScheduleFor[s.ID] {
		return errors.New("schedule advance failed")
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.requests[r.ID] = *r
	m.schedules[s.ID] = *s
	return nil
}

func (m *memRequestRepo) get(id uuid.UUID) request.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[id]
}

func (m *memRequestRepo) all() []request.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]request.Request, 0, len(m.requests))
	for _, r := range m.requests {
		out = append(out, r)
	}
	return out
}

// --- token repository ---

type memTokenRepo struct {
	mu     sync.Mutex
	tokens []*token.PartnerToken
}

func (m *memTokenRepo) activeLocked(scope token.Scope) *token.PartnerToken {
	for _, t := range m.tokens {
		if t.IsActive && t.Scope == scope {
			return t
		}
	}
	return nil
}

func (m *memTokenRepo) FindActive(_ context.Context, scope token.Scope) (*token.PartnerToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.activeLocked(scope); t != nil {
		cp := *t
		return &cp, nil
	}
	return nil, token.ErrTokenNotFound
}

func (m *memTokenRepo) CreateIfNoActive(_ context.Context, t *token.PartnerToken) (*token.PartnerToken, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing := m.activeLocked(t.Scope); existing != nil {
		cp := *existing
		return &cp, false, nil
	}
	cp := *t
	m.tokens = append(m.tokens, &cp)
	return t, true, nil
}

func (m *memTokenRepo) ReplaceActive(_ context.Context, t *token.PartnerToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tokens {
		if existing.Scope == t.Scope {
			existing.IsActive = false
		}
	}
	cp := *t
	m.tokens = append(m.tokens, &cp)
	return nil
}

func (m *memTokenRepo) Deactivate(_ context.Context, partnerID uuid.UUID, tokenID uuid.NullUUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tokens {
		if t.Scope.PartnerID != partnerID || !t.IsActive {
			continue
		}
		if tokenID.Valid && t.ID != tokenID.UUID {
			continue
		}
		t.IsActive = false
		n++
	}
	return n, nil
}

func (m *memTokenRepo) GetBySecret(_ context.Context, secret string) (*token.PartnerToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.Secret == secret {
			cp := *t
			return &cp, nil
		}
	}
	return nil, token.ErrTokenNotFound
}

func (m *memTokenRepo) TouchLastUsed(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.ID == id {
			t.LastUsedAt.Time, t.LastUsedAt.Valid = at, true
			return nil
		}
	}
	return token.ErrTokenNotFound
}

func (m *memTokenRepo) activeCount(scope token.Scope) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.IsActive && t.Scope == scope {
			n++
		}
	}
	return n
}

// --- partner repository ---

type memPartnerRepo map[uuid.UUID]*partner.Partner

func (m memPartnerRepo) GetByID(_ context.Context, id uuid.UUID) (*partner.Partner, error) {
	p, ok := m[id]
	if !ok {
		return nil, partner.ErrPartnerNotFound
	}
	cp := *p
	return &cp, nil
}
