package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	handler "spaces-backend/api"
	"spaces-backend/pkg/config"
	"spaces-backend/pkg/database"
	"spaces-backend/pkg/handlers"
	"spaces-backend/pkg/log"
	"spaces-backend/pkg/server"
	"spaces-backend/pkg/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const ErrExitCode = 1

func main() {
	defer log.Sync()
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Println(err.Error())
		os.Exit(ErrExitCode)
	}
}

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "spaces",
		Short:   "spaces backend: hosted web and code spaces",
		Version: handlers.Version,
	}
	cmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newVersionCmd(),
		newGenSecretCmd(),
	)
	return cmd
}

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "run the http server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.LoadConfig()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if migrate && !cfg.UseLocalDB {
				if err := runMigrations(ctx, cfg); err != nil {
					return err
				}
			}

			app, err := server.NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			return server.Serve(ctx, net.JoinHostPort("", cfg.Port), handler.NewRouter(app))
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before serving")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "apply database migrations to DATABASE_URL",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.LoadConfig()
			if cfg.UseLocalDB {
				return fmt.Errorf("USE_LOCAL_DB is set; the in-memory store has no schema")
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runMigrations(ctx, cfg)
		},
	}
}

func runMigrations(ctx context.Context, cfg *config.Config) error {
	db, err := database.OpenPool(ctx, database.DatabaseConfig{
		DatabaseURL:  cfg.DatabaseURL,
		MaxOpenConns: 2,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.WithName("migrate").Info("database schema is up to date", zap.String("environment", cfg.Environment))
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(handlers.Version)
		},
	}
}

func newGenSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-secret",
		Short: "generate a random SECRET_KEY",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := utils.GenerateURLToken(32)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}
}
