/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kardai/apiserver/config"
	"github.com/kardai/apiserver/internal/db"
	"github.com/kardai/apiserver/internal/logging"
	"github.com/kardai/apiserver/internal/server"
	"github.com/spf13/cobra"
)

var runMigrations bool

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the Kard.ai backend server",
	Long: `Starts the Kard.ai backend server. Usage:

	kard server [--migrate]
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

		if runMigrations {
			if err := db.MigrateUp(cfg.Database); err != nil {
				return err
			}
			logger.Info("migrations applied")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := server.New(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			_ = srv.Shutdown(context.Background())
			return err
		case <-ctx.Done():
			logger.Info("shutting down")
			return srv.Shutdown(context.Background())
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().BoolVar(&runMigrations, "migrate", false, "apply database migrations before starting")
}
