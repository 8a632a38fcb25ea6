package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"partner_report_engine/internal/app"
	"partner_report_engine/internal/domain/notify"
	"partner_report_engine/internal/infra/config"
	idb "partner_report_engine/internal/infra/database"
	"partner_report_engine/internal/infra/email"
	"partner_report_engine/internal/infra/logger"
	"partner_report_engine/internal/infra/metrics"
	"partner_report_engine/internal/infra/slack"
	"partner_report_engine/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// engine holds every service built from one configuration.
type engine struct {
	cfg        *config.AppConfig
	db         *sql.DB
	registry   *app.ConfigRegistry
	pipeline   *app.ReportPipeline
	tokens     *app.TokenService
	escalation *app.EscalationService
	runner     *app.SweepRunner
	bot        *telebot.Bot // nil unless TELEGRAM_TOKEN is set
	log        *logrus.Entry
}

// buildEngine loads configuration, connects and migrates the database and wires the services.
// The Telegram bot is created but not started.
func buildEngine(ctx context.Context) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	logger.Init(cfg)
	log := logger.Component("main")
	log.WithFields(logrus.Fields{"environment": cfg.Environment, "http_addr": cfg.HTTPAddr}).Info("Configuration loaded")

	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL, idb.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	if err := idb.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("Database connection established and schema applied")

	base := logger.Base()

	reportRepo := idb.NewPostgresReportRepository(db)
	requestRepo := idb.NewPostgresRequestRepository(db)
	tokenRepo := idb.NewPostgresTokenRepository(db)
	partnerRepo := idb.NewPostgresPartnerRepository(db)
	aggregator := idb.NewPostgresAggregator(db, cfg.SweepTimeout)

	var sender notify.Sender
	if cfg.EmailEnabled() {
		sender = email.NewSMTPSender(email.Config{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUsername,
			Password:   cfg.SMTPPassword,
			From:       cfg.SMTPFrom,
			RatePerSec: cfg.EmailRatePerSec,
		}, base)
	} else {
		log.Warn("SMTP is not configured, outgoing mail will only be logged")
		sender = email.NewLogSender(base)
	}

	e := &engine{cfg: cfg, db: db, log: log}
	e.registry = app.NewConfigRegistry(reportRepo, base)
	e.pipeline = app.NewReportPipeline(e.registry, reportRepo, aggregator, sender, app.SystemClock, base)
	e.tokens = app.NewTokenService(tokenRepo, app.SystemClock, cfg.TokenExpiryDays, base)
	e.escalation = app.NewEscalationService(requestRepo, partnerRepo, e.tokens, sender, app.SystemClock, cfg.PortalBaseURL, base)

	metrics.Init()
	observers := []app.SweepObserver{metrics.SweepObserver{}}
	if cfg.SlackEnabled() {
		observers = append(observers, slack.NewSweepReporter(cfg.SlackToken, cfg.SlackChannel, base))
	}
	if cfg.TelegramEnabled() {
		bot, err := newBot(cfg.TelegramToken, base)
		if err != nil {
			db.Close()
			return nil, err
		}
		e.bot = bot
		observers = append(observers, telegram.NewSweepReporter(telegram.NewTelebotAdapter(bot), cfg.AdminTelegramID, base))
	}

	lock := idb.NewAdvisoryRunLock(db, base)
	e.runner = app.NewSweepRunner(e.pipeline, e.escalation, lock, base, observers...)
	return e, nil
}

func (e *engine) Close() {
	if err := e.db.Close(); err != nil {
		e.log.WithError(err).Warn("Failed to close database")
	}
}

func newBot(token string, log *logrus.Entry) (*telebot.Bot, error) {
	pref := telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := log.WithError(err).WithField("component", "telebot")
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID, "text": c.Text()})
			}
			entry.Error("Telegram handler failed")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("could not create Telegram bot: %w", err)
	}
	return bot, nil
}
