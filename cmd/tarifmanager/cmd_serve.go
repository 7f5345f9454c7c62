package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bher20/tarifmanager/internal/api"
	"github.com/bher20/tarifmanager/internal/auth"
)

var serveNoJobs bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with the evaluator and the MQTT bridge",
	RunE:  runServe,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the periodic jobs and the MQTT bridge without the HTTP API",
	RunE:  runWorker,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoJobs, "no-jobs", false, "Serve the API only; run jobs in a separate worker")
	rootCmd.AddCommand(serveCmd, workerCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := api.Deps{Rates: a.rates, Storage: a.store, Notify: a.notify, Logger: logger}
	if cfg.AuthEnabled {
		if deps.Auth, err = auth.NewService(a.store); err != nil {
			return fmt.Errorf("initialize auth: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewMux(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var background <-chan struct{}
	if !serveNoJobs {
		background = a.runBackground(ctx)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Bool("auth", cfg.AuthEnabled).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			if background != nil {
				<-background
			}
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info().Msg("shutting down gracefully...")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if background != nil {
		<-background
	}
	logger.Info().Msg("tarifmanager stopped")
	return nil
}

func runWorker(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info().Msg("worker started")
	<-a.runBackground(ctx)
	logger.Info().Msg("worker stopped")
	return nil
}
