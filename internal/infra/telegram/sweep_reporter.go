// internal/infra/telegram/sweep_reporter.go
package telegram

import (
	"context"

	"partner_report_engine/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const rerunSweepUnique = "rerun_sweep"

// SweepReporter messages the admin about sweeps that had failing items, with a button
// to run the sweep again.
type SweepReporter struct {
	client  Client
	adminID int64
	logger  *logrus.Entry
}

func NewSweepReporter(client Client, adminTelegramID int64, logger *logrus.Entry) *SweepReporter {
	return &SweepReporter{client: client, adminID: adminTelegramID, logger: logger.WithField("component", "telegram_sweep_reporter")}
}

func (r *SweepReporter) ObserveSweep(_ context.Context, res app.SweepResult) {
	if res.Failed == 0 {
		return
	}
	replyMarkup := &telebot.ReplyMarkup{ResizeKeyboard: true} // Inline keyboard
	btnRerun := replyMarkup.Data("Run again", rerunSweepUnique, res.Name)
	replyMarkup.Inline(replyMarkup.Row(btnRerun))

	err := r.client.SendMessage(r.adminID, formatSweepResult(res), &telebot.SendOptions{ReplyMarkup: replyMarkup})
	if err != nil {
		r.logger.WithError(err).WithField("sweep", res.Name).Warn("Failed to report sweep to admin")
	}
}
