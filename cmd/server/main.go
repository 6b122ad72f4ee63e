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

	"github.com/david/radar-licitacoes/internal/api"
	"github.com/david/radar-licitacoes/internal/config"
	"github.com/david/radar-licitacoes/internal/db"
)

func main() {
	v := config.NewViper()

	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "Serve the procurement radar API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), config.EnvFrom(v))
		},
	}
	rootCmd.Flags().String("port", "8081", "HTTP port (PORT)")
	rootCmd.Flags().String("config", "", "endpoints YAML file, embedded defaults when empty (CONFIG_PATH)")
	_ = v.BindPFlag("port", rootCmd.Flags().Lookup("port"))
	_ = v.BindPFlag("config_path", rootCmd.Flags().Lookup("config"))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(parent context.Context, env config.Env) error {
	logger := env.NewLogger(os.Stdout)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	cfg, err := config.Resolve(env)
	if err != nil {
		return err
	}

	var runs api.RunRecorder
	if env.DatabaseURL != "" {
		pool, err := db.Connect(ctx, env.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		applied, err := db.ApplyMigrations(ctx, pool)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		if len(applied) > 0 {
			logger.Info().Strs("migrations", applied).Msg("applied migrations")
		}
		runs = db.NewRunStore(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set; scan run log disabled")
	}

	srv := api.NewServer(cfg, runs, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("env", env.String()).Msg("server starting")
		errCh <- srv.Start(env.Port)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
