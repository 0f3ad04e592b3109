package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amandocs/internal/daemon"
	"github.com/Aman-CERP/amandocs/internal/logging"
	"github.com/Aman-CERP/amandocs/internal/mcp"
	"github.com/Aman-CERP/amandocs/internal/service"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the Model Context Protocol over stdio",
		Long: `Expose search, upload, documents, status and watch tools to an MCP client
over stdin/stdout.

When the daemon is running, tool calls are forwarded to it. Otherwise the
service runs inside this process for the lifetime of the MCP session.
Logs go to the log file only; stdout carries protocol traffic.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cleanup, err := logging.SetupStdioSafe(cfg.Server.LogLevel)
			if err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}
			defer cleanup()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			dcfg := daemon.ConfigFrom(cfg)
			if client := daemon.NewClient(dcfg); client.IsRunning() {
				slog.Info("mcp forwarding to daemon", slog.String("socket", dcfg.SocketPath))
				return serveMCP(ctx, client)
			}

			if err := dcfg.EnsureDir(); err != nil {
				return err
			}
			pid := daemon.NewPIDFile(dcfg.PIDPath)
			if err := pid.Acquire(); err != nil {
				return err
			}
			defer func() { _ = pid.Remove() }()

			svc, err := service.New(ctx, service.Options{Config: cfg})
			if err != nil {
				return fmt.Errorf("failed to start service: %w", err)
			}
			runCtx, stop := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- svc.Run(runCtx) }()

			slog.Info("mcp running in-process service", slog.String("data_dir", cfg.Store.DataDir))
			serveErr := serveMCP(ctx, mcp.Local(svc))
			stop()
			if err := <-done; err != nil && serveErr == nil {
				serveErr = err
			}
			return serveErr
		},
	}
}

func serveMCP(ctx context.Context, backend mcp.Backend) error {
	srv, err := mcp.NewServer(backend)
	if err != nil {
		return err
	}
	err = srv.Serve(ctx, "stdio")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
