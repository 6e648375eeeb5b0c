package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/firstpro/mock-feedback-service/internal/config"
	"github.com/firstpro/mock-feedback-service/internal/corpus"
	"github.com/firstpro/mock-feedback-service/internal/logging"
	"github.com/firstpro/mock-feedback-service/internal/server"
	"github.com/firstpro/mock-feedback-service/internal/storage"
	"github.com/firstpro/mock-feedback-service/internal/textgen"
)

const shutdownTimeout = 30 * time.Second

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "feedbackd",
		Short: "Generate and serve a corpus of mock user feedback",
		Long: `feedbackd generates realistic mock user feedback with a text generation
backend and stores each record in an object store.

Running feedbackd without a subcommand starts the HTTP server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(contextOf(cmd), opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file (default ./feedbackd.yaml if present)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newFillCmd(opts),
		newVerifyCmd(opts),
	)
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (foreground)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(contextOf(cmd), opts)
		},
	}
}

// setup loads configuration and builds the logger shared by every command.
func setup(opts *rootOptions) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runServer(ctx context.Context, opts *rootOptions) error {
	cfg, logger, err := setup(opts)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	store, err := storage.NewStorage(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing storage", zap.Error(err))
		}
	}()

	// Initialize text generation backend
	tg, err := textgen.New(ctx, cfg.Generator)
	if err != nil {
		return fmt.Errorf("failed to initialize text generator: %w", err)
	}

	svc := corpus.NewService(cfg, store, tg, logger)
	httpServer := server.NewServer(cfg.Server, svc, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server",
			zap.Int("port", cfg.Server.Port),
			zap.String("storage", cfg.Storage.Type),
			zap.String("provider", cfg.Generator.Provider),
			zap.Int("target", cfg.Corpus.TargetSize))
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for a shutdown signal or a server error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, gracefully shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}
