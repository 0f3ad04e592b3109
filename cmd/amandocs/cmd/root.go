// Package cmd provides the CLI commands for amandocs.
package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amandocs/internal/config"
	"github.com/Aman-CERP/amandocs/internal/daemon"
	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/logging"
	"github.com/Aman-CERP/amandocs/internal/output"
	"github.com/Aman-CERP/amandocs/internal/profiling"
	"github.com/Aman-CERP/amandocs/pkg/version"
)

// Global flags
var (
	projectDir     string
	debugMode      bool
	jsonOutput     bool
	tableOutput    bool
	loggingCleanup func()

	profileOpts profiling.Options
	profile     *profiling.Session
)

// NewRootCmd creates the root command for the amandocs CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amandocs",
		Short: "Local-first document index with semantic search",
		Long: `amandocs indexes local documents (text, Markdown, PDF, Office, e-mail,
spreadsheets and scanned images) into per-collection vector indexes and
keeps them current as files change.

Run 'amandocs serve' to start the daemon, then use the other commands
to upload, search and watch documents.`,
		Version:           version.Version,
		SilenceUsage:      true,
		PersistentPreRunE: startProfilingAndLogging,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			stopLogging()
			return stopProfiling()
		},
	}
	cmd.SetVersionTemplate("amandocs version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&projectDir, "dir", ".", "Directory to load .amandocs.yaml and .env from")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr and the log file")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Force JSON output")
	cmd.PersistentFlags().BoolVar(&tableOutput, "table", false, "Force table output")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file on exit")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newDocumentsCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newMonitorCmd())
	cmd.AddCommand(newQueueCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints any error to stderr, as JSON
// when --json is set.
func Execute() error {
	root := NewRootCmd()
	root.SilenceErrors = true
	err := root.Execute()
	if err != nil {
		printError(root.ErrOrStderr(), err)
	}
	return err
}

func printError(w io.Writer, err error) {
	if jsonOutput {
		if data, jerr := amerrors.FormatJSON(err); jerr == nil {
			_, _ = fmt.Fprintln(w, string(data))
			return
		}
	}
	_, _ = fmt.Fprint(w, amerrors.FormatForCLI(err))
}

func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if profileOpts.Enabled() {
		s, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profile = s
	}
	if !debugMode {
		return nil
	}
	cleanup, err := logging.SetupDefault(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.Debug("Debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopProfiling() error {
	if profile == nil {
		return nil
	}
	err := profile.Stop()
	profile = nil
	return err
}

func stopLogging() {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newWriter(cmd *cobra.Command) *output.Writer {
	mode := output.ModeAuto
	switch {
	case jsonOutput:
		mode = output.ModeJSON
	case tableOutput:
		mode = output.ModeTable
	}
	return output.New(cmd.OutOrStdout(), mode)
}

// connect returns a client for the running daemon.
func connect() (*daemon.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dcfg := daemon.ConfigFrom(cfg)
	client := daemon.NewClient(dcfg)
	if !client.IsRunning() {
		return nil, fmt.Errorf("daemon is not running at %s (start it with 'amandocs serve')", dcfg.SocketPath)
	}
	return client, nil
}
