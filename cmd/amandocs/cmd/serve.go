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
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amandocs/internal/config"
	"github.com/Aman-CERP/amandocs/internal/daemon"
	"github.com/Aman-CERP/amandocs/internal/logging"
	"github.com/Aman-CERP/amandocs/internal/service"
)

func newServeCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the amandocs daemon",
		Long: `Run the daemon in the foreground. It owns the collections, the upload
queue and the change monitor, and listens for CLI requests on a unix socket.

Stop it with Ctrl+C or SIGTERM; indexes are flushed on shutdown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.Server.MetricsAddr = metricsAddr
			}
			return runServe(cmd.Context(), cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	out := newWriter(cmd)

	if !debugMode {
		logCfg := logging.DefaultConfig()
		logCfg.Level = cfg.Server.LogLevel
		logCfg.MaxSizeMB = cfg.Server.LogMaxSizeMB
		logCfg.MaxFiles = cfg.Server.LogMaxFiles
		logCfg.SyncInterval = cfg.Server.LogSyncInterval
		logCfg.WriteToStderr = true
		cleanup, err := logging.SetupDefault(logCfg)
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		defer cleanup()
	}

	dcfg := daemon.ConfigFrom(cfg)
	if err := dcfg.Validate(); err != nil {
		return err
	}
	if err := dcfg.EnsureDir(); err != nil {
		return err
	}

	pid := daemon.NewPIDFile(dcfg.PIDPath)
	if err := pid.Acquire(); err != nil {
		return err
	}
	defer func() { _ = pid.Remove() }()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, err := service.New(ctx, service.Options{Config: cfg})
	if err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	srv := daemon.NewServer(dcfg, svc)

	out.Successf("amandocs %s listening on %s", svc.Status(ctx).Version, dcfg.SocketPath)
	if cfg.Server.MetricsAddr != "" {
		out.Statusf("", "Metrics: http://%s/metrics", cfg.Server.MetricsAddr)
	}
	out.Statusf("", "Logs: %s", logging.DefaultLogPath())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		slog.Error("daemon stopped with error", slog.String("error", err.Error()))
		return err
	}
	slog.Info("daemon stopped")
	return nil
}
