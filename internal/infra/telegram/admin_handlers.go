package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"partner_report_engine/internal/app"
	"partner_report_engine/internal/domain/partner"
	"partner_report_engine/internal/domain/request"
	"partner_report_engine/internal/domain/schedule"
	"partner_report_engine/internal/domain/token"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const msgUnauthorized = "Error: you are not allowed to run this command."

type Sweeper interface {
	Run(ctx context.Context, name string, now time.Time) (app.SweepResult, error)
}

type ConfigRecomputer interface {
	RecomputeAll(ctx context.Context, now time.Time) (int, error)
}

type TokenManager interface {
	Rotate(ctx context.Context, scope token.Scope, expiresInDays int) (*token.PartnerToken, error)
	Deactivate(ctx context.Context, partnerID uuid.UUID, tokenID uuid.NullUUID) (int64, error)
}

type RequestCreator interface {
	CreateManualRequest(ctx context.Context, params app.ManualRequestParams) (*request.Request, error)
}

// AdminDeps are the operations the admin bot exposes.
type AdminDeps struct {
	Sweeps   Sweeper
	Configs  ConfigRecomputer
	Tokens   TokenManager
	Requests RequestCreator
	Clock    app.Clock
}

type adminHandlers struct {
	ctx     context.Context
	deps    AdminDeps
	adminID int64
	logger  *logrus.Entry
}

// RegisterAdminHandlers registers handlers for admin commands.
// Only the configured admin Telegram ID may run them.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, deps AdminDeps, adminTelegramID int64, baseLogger *logrus.Entry) {
	h := &adminHandlers{ctx: ctx, deps: deps, adminID: adminTelegramID, logger: baseLogger}
	b.Handle("/sweep", h.handleSweep)
	b.Handle("/recompute_configs", h.handleRecompute)
	b.Handle("/rotate_token", h.handleRotateToken)
	b.Handle("/deactivate_tokens", h.handleDeactivateTokens)
	b.Handle("/request_report", h.handleRequestReport)
}

// authorize logs the command and rejects everyone but the admin.
func (h *adminHandlers) authorize(c telebot.Context, command string) (*logrus.Entry, bool) {
	log := h.logger.WithFields(logrus.Fields{
		"handler":   command,
		"sender_id": c.Sender().ID,
	})
	log.Info("Command received")
	if c.Sender().ID != h.adminID {
		log.Warn("Unauthorized access attempt")
		return log, false
	}
	return log, true
}

func (h *adminHandlers) handleSweep(c telebot.Context) error {
	log, ok := h.authorize(c, "/sweep")
	if !ok {
		return c.Send(msgUnauthorized)
	}
	args := c.Args()
	// Expected format: /sweep <reports|schedules|escalations>
	if len(args) != 1 {
		return c.Send("Invalid format. Use: /sweep <reports|schedules|escalations>")
	}
	name, known := app.SweepNameFor(args[0])
	if !known {
		return c.Send(fmt.Sprintf("Unknown sweep %q. Use reports, schedules or escalations.", args[0]))
	}
	return h.runSweep(c, log, name)
}

func (h *adminHandlers) runSweep(c telebot.Context, log *logrus.Entry, name string) error {
	res, err := h.deps.Sweeps.Run(h.ctx, name, h.deps.Clock())
	if err != nil {
		if errors.Is(err, app.ErrSweepInProgress) {
			log.WithField("sweep", name).Warn("Sweep already running")
			return c.Send(fmt.Sprintf("Sweep %s is already running, try again later.", name))
		}
		log.WithError(err).WithField("sweep", name).Error("On-demand sweep failed")
		return c.Send(fmt.Sprintf("Sweep %s failed: %s", name, err.Error()))
	}
	return c.Send(formatSweepResult(res))
}

func (h *adminHandlers) handleRecompute(c telebot.Context) error {
	log, ok := h.authorize(c, "/recompute_configs")
	if !ok {
		return c.Send(msgUnauthorized)
	}
	n, err := h.deps.Configs.RecomputeAll(h.ctx, h.deps.Clock())
	if err != nil {
		log.WithError(err).Error("Failed to recompute report configs")
		return c.Send(fmt.Sprintf("An error occurred while recomputing configs: %s", err.Error()))
	}
	return c.Send(fmt.Sprintf("Recomputed the next run of %d active report configs.", n))
}

func (h *adminHandlers) handleRotateToken(c telebot.Context) error {
	log, ok := h.authorize(c, "/rotate_token")
	if !ok {
		return c.Send(msgUnauthorized)
	}
	args := c.Args()
	// Expected format: /rotate_token <PartnerID> [ProjectID]
	if len(args) < 1 || len(args) > 2 {
		return c.Send("Invalid format. Use: /rotate_token <PartnerID> [ProjectID]")
	}
	partnerID, err := uuid.Parse(args[0])
	if err != nil {
		return c.Send("Error: PartnerID must be a UUID.")
	}
	scope := token.PartnerScope(partnerID)
	if len(args) == 2 {
		projectID, err := uuid.Parse(args[1])
		if err != nil {
			return c.Send("Error: ProjectID must be a UUID.")
		}
		scope = token.ProjectScope(partnerID, projectID)
	}

	t, err := h.deps.Tokens.Rotate(h.ctx, scope, 0)
	if err != nil {
		log.WithError(err).WithField("scope", scope.String()).Error("Failed to rotate token")
		return c.Send(fmt.Sprintf("An error occurred while rotating the token: %s", err.Error()))
	}
	log.WithFields(logrus.Fields{"scope": scope.String(), "token_id": t.ID}).Info("Token rotated by admin")
	return c.Send(fmt.Sprintf("Token rotated for %s. New token %s expires %s.",
		scope.String(), t.ID, t.ExpiresAt.Time.In(schedule.OrgZone).Format("2006-01-02 15:04")))
}

func (h *adminHandlers) handleDeactivateTokens(c telebot.Context) error {
	log, ok := h.authorize(c, "/deactivate_tokens")
	if !ok {
		return c.Send(msgUnauthorized)
	}
	args := c.Args()
	// Expected format: /deactivate_tokens <PartnerID> [TokenID]
	if len(args) < 1 || len(args) > 2 {
		return c.Send("Invalid format. Use: /deactivate_tokens <PartnerID> [TokenID]")
	}
	partnerID, err := uuid.Parse(args[0])
	if err != nil {
		return c.Send("Error: PartnerID must be a UUID.")
	}
	var tokenID uuid.NullUUID
	if len(args) == 2 {
		id, err := uuid.Parse(args[1])
		if err != nil {
			return c.Send("Error: TokenID must be a UUID.")
		}
		tokenID = uuid.NullUUID{UUID: id, Valid: true}
	}

	n, err := h.deps.Tokens.Deactivate(h.ctx, partnerID, tokenID)
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			return c.Send("No active tokens matched.")
		}
		log.WithError(err).Error("Failed to deactivate tokens")
		return c.Send(fmt.Sprintf("An error occurred while deactivating tokens: %s", err.Error()))
	}
	return c.Send(fmt.Sprintf("Deactivated %d token(s).", n))
}

func (h *adminHandlers) handleRequestReport(c telebot.Context) error {
	log, ok := h.authorize(c, "/request_report")
	if !ok {
		return c.Send(msgUnauthorized)
	}
	args := c.Args()
	// Expected format: /request_report <PartnerID> [DeadlineDays]
	if len(args) < 1 || len(args) > 2 {
		return c.Send("Invalid format. Use: /request_report <PartnerID> [DeadlineDays]")
	}
	partnerID, err := uuid.Parse(args[0])
	if err != nil {
		return c.Send("Error: PartnerID must be a UUID.")
	}
	params := app.ManualRequestParams{PartnerID: partnerID}
	if len(args) == 2 {
		days, err := strconv.Atoi(args[1])
		if err != nil || days <= 0 {
			return c.Send("Error: DeadlineDays must be a positive number.")
		}
		params.DeadlineDays = days
	}

	r, err := h.deps.Requests.CreateManualRequest(h.ctx, params)
	if err != nil {
		if errors.Is(err, partner.ErrPartnerNotFound) {
			return c.Send(fmt.Sprintf("Partner %s not found.", partnerID))
		}
		log.WithError(err).Error("Failed to create report request")
		return c.Send(fmt.Sprintf("An error occurred while creating the request: %s", err.Error()))
	}
	return c.Send(fmt.Sprintf("Report request %s created, due %s.", r.ID, r.DeadlineAt.In(schedule.OrgZone).Format("2006-01-02 15:04")))
}

func formatSweepResult(res app.SweepResult) string {
	return fmt.Sprintf("Sweep %s: processed %d, succeeded %d, skipped %d, failed %d (%s).",
		res.Name, res.Processed, res.Succeeded, res.Skipped, res.Failed, res.Finished.Sub(res.Started).Round(time.Millisecond))
}
