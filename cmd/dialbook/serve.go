package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/dialbook/internal/db"
	"github.com/zulandar/dialbook/internal/logging"
	"github.com/zulandar/dialbook/internal/server"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the booking API and telephony webhooks",
		Long: "Migrates the database, starts the HTTP server for the booking API and " +
			"telephony webhooks, and sweeps idle calls on the configured schedule.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to dialbook config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)
	if err := cfg.ValidateServe(); err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	logger, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := buildApp(ctx, cfg, gormDB, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	stopSweeper, err := a.orchestrator.StartSweeper(ctx, cfg.Sessions.SweepSchedule)
	if err != nil {
		return err
	}
	defer stopSweeper()

	var authToken string
	if cfg.Telephony.ValidateSignatures {
		authToken = cfg.Telephony.AuthToken
	}
	logger.Info("starting dialbook",
		zap.String("env", cfg.Env),
		zap.String("telephony", cfg.Telephony.Provider),
		zap.String("dialogue", cfg.Dialogue.Provider),
		zap.Bool("signatures", authToken != ""),
		zap.Int("port", port))

	return server.Start(ctx, server.StartOpts{
		Opts: server.Opts{
			Bookings:          a.bookings,
			Calls:             a.orchestrator,
			Logger:            logger,
			RequestsPerMinute: cfg.Server.RequestsPerMinute,
			AuthToken:         authToken,
			PublicBaseURL:     cfg.Server.PublicBaseURL,
		},
		Port: port,
		Out:  cmd.OutOrStdout(),
	})
}
