package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"partner_report_engine/internal/app"
	"partner_report_engine/internal/infra/httpapi"
	"partner_report_engine/internal/infra/logger"
	"partner_report_engine/internal/infra/scheduler"
	"partner_report_engine/internal/infra/telegram"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sweep scheduler, the HTTP API and the admin bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()
			return serve(ctx, e)
		},
	}
}

func serve(ctx context.Context, e *engine) error {
	base := logger.Base()

	sweepScheduler := scheduler.NewSweepScheduler(e.runner, app.SystemClock, scheduler.Specs{
		app.SweepReportConfigs:   e.cfg.CronSpecReportSweep,
		app.SweepReportSchedules: e.cfg.CronSpecScheduleSweep,
		app.SweepEscalations:     e.cfg.CronSpecEscalationSweep,
	}, e.cfg.SweepTimeout, logger.Log)
	if err := sweepScheduler.Start(); err != nil {
		return err
	}
	defer sweepScheduler.Stop()

	server := httpapi.NewServer(e.cfg.HTTPAddr, httpapi.Deps{
		Sweeps:   e.runner,
		Configs:  e.registry,
		Reports:  e.pipeline,
		Requests: e.escalation,
		Tokens:   e.tokens,
		Clock:    app.SystemClock,
	}, base)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	if e.bot != nil {
		deps := telegram.AdminDeps{
			Sweeps:   e.runner,
			Configs:  e.registry,
			Tokens:   e.tokens,
			Requests: e.escalation,
			Clock:    app.SystemClock,
		}
		telegram.RegisterBotCommands(e.bot, e.cfg.AdminTelegramID, base)
		telegram.RegisterAdminHandlers(ctx, e.bot, deps, e.cfg.AdminTelegramID, base)
		telegram.RegisterSweepCallbacks(ctx, e.bot, deps, e.cfg.AdminTelegramID, base)
		go e.bot.Start()
		defer e.bot.Stop()
		e.log.Info("Telegram admin bot started")
	}

	e.log.Info("Application setup complete")
	select {
	case <-ctx.Done():
		e.log.Info("Shutting down application...")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server stopped: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		e.log.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	e.log.Info("Application shut down gracefully")
	return nil
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "sweep <reports|schedules|escalations>",
		Short:     "Run one sweep now and exit",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"reports", "schedules", "escalations"},
		RunE: func(cmd *cobra.Command, args []string) error {
			name, known := app.SweepNameFor(args[0])
			if !known {
				return fmt.Errorf("unknown sweep %q", args[0])
			}
			e, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), e.cfg.SweepTimeout)
			defer cancel()
			res, err := e.runner.Run(ctx, name, app.SystemClock())
			if errors.Is(err, app.ErrSweepInProgress) {
				return fmt.Errorf("sweep %s is already running elsewhere", name)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: processed %d, succeeded %d, skipped %d, failed %d\n",
				res.Name, res.Processed, res.Succeeded, res.Skipped, res.Failed)
			return nil
		},
	}
}

func newRecomputeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute-configs",
		Short: "Recompute the next run of every active report config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := e.registry.RecomputeAll(cmd.Context(), app.SystemClock())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recomputed %d active report configs\n", n)
			return nil
		},
	}
}
