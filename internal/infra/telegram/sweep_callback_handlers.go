// internal/infra/telegram/sweep_callback_handlers.go
package telegram

import (
	"context"

	"partner_report_engine/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterSweepCallbacks handles the "Run again" button attached by SweepReporter.
func RegisterSweepCallbacks(ctx context.Context, b *telebot.Bot, deps AdminDeps, adminTelegramID int64, baseLogger *logrus.Entry) {
	h := &adminHandlers{ctx: ctx, deps: deps, adminID: adminTelegramID, logger: baseLogger}
	b.Handle(&telebot.InlineButton{Unique: rerunSweepUnique}, h.handleRerunCallback)
}

func (h *adminHandlers) handleRerunCallback(c telebot.Context) error {
	log, ok := h.authorize(c, rerunSweepUnique)
	if !ok {
		return c.Respond(&telebot.CallbackResponse{Text: msgUnauthorized})
	}
	name, known := app.SweepNameFor(c.Data())
	if !known {
		log.WithField("data", c.Data()).Warn("Unknown sweep in callback data")
		return c.Respond(&telebot.CallbackResponse{Text: "Unknown action."})
	}
	if err := c.Respond(&telebot.CallbackResponse{Text: "Running " + name + "..."}); err != nil {
		log.WithError(err).Warn("Failed to acknowledge callback")
	}
	return h.runSweep(c, log, name)
}
