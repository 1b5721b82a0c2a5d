package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/rent-ledger/api"
	"github.com/warp/rent-ledger/rent"
)

func serveCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the job scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(f)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := a.cfg
	handler := api.NewHandler(a.store, a.ledger, a.rollover, a.logger.Named("http"))
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.Origins(),
		Metrics:        a.metrics,
	})

	scheduler := api.NewRolloverScheduler(a.rollover, a.ledger, a.store, api.ScheduleConfig{
		Enabled:       cfg.Rollover.Enabled,
		Day:           cfg.Rollover.Day,
		Hour:          cfg.Rollover.Hour,
		ReconcileHour: cfg.Rollover.ReconcileHour,
		CheckInterval: cfg.Rollover.CheckInterval,
	}, a.logger)
	scheduler.Start(ctx)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler did not stop in time", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}

func rolloverCmd(f *flags) *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   "rollover",
		Short: "Roll every tenant into a month (default: current month)",
		Example: `  rent-ledger rollover
  rent-ledger rollover --period 2024-04`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(f)
			if err != nil {
				return err
			}
			defer a.Close()

			month := rent.MonthOf(a.ledger.Now())
			if period != "" {
				if month, err = rent.ParseMonth(period); err != nil {
					return err
				}
			}

			summary, err := a.rollover.Run(cmd.Context(), month)
			if err != nil {
				return fmt.Errorf("rollover %s: %w", month, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Rollover %s: %d processed (%d full, %d partial, %d unpaid), %d skipped, %d failed\n",
				summary.Period, summary.Processed(), summary.Full, summary.Partial, summary.Unpaid,
				summary.Skipped, summary.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "month to roll into, YYYY-MM")
	return cmd
}

func reconcileCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute every tenant balance from the payment ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(f)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.ledger.ReconcileAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reconciled %d tenants, %d failed\n", summary.Updated, summary.Failed)
			return nil
		},
	}
}
