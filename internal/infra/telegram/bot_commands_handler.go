// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func RegisterBotCommands(b *telebot.Bot, adminTelegramID int64, baseLogger *logrus.Entry) {
	h := &botCommands{adminID: adminTelegramID, logger: baseLogger.WithField("handler_group", "start_help")}
	b.Handle("/start", h.handleStart)
	b.Handle("/help", h.handleHelp)
}

type botCommands struct {
	adminID int64
	logger  *logrus.Entry
}

func (h *botCommands) handleStart(c telebot.Context) error {
	senderID := c.Sender().ID
	logCtx := h.logger.WithField("command", "/start").WithField("sender_id", senderID)
	logCtx.Info("Processing /start command")

	if senderID == h.adminID {
		return c.Send(fmt.Sprintf("Hello, %s! The report engine is running. Use /help for the list of commands.", c.Sender().FirstName))
	}
	logCtx.Info("User is unknown")
	return c.Send("This bot is for report engine operators only.")
}

func (h *botCommands) handleHelp(c telebot.Context) error {
	senderID := c.Sender().ID
	logCtx := h.logger.WithField("command", "/help").WithField("sender_id", senderID)
	logCtx.Info("Processing /help command")

	if senderID != h.adminID {
		return c.Send("No commands are available to you.")
	}
	var helpText strings.Builder
	helpText.WriteString("Operator commands:\n\n")
	helpText.WriteString("`/sweep <reports|schedules|escalations>`\n - Run a sweep now.\n\n")
	helpText.WriteString("`/recompute_configs`\n - Recompute the next run of every active report config.\n\n")
	helpText.WriteString("`/rotate_token <PartnerID> [ProjectID]`\n - Replace the partner's access token.\n\n")
	helpText.WriteString("`/deactivate_tokens <PartnerID> [TokenID]`\n - Deactivate one or all tokens of a partner.\n\n")
	helpText.WriteString("`/request_report <PartnerID> [DeadlineDays]`\n - Ask a partner for a report now.\n\n")
	helpText.WriteString("`/help`\n - Show this message.")
	return c.Send(helpText.String(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
}
