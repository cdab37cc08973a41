package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	gatewayctl "github.com/mcpgateway/gatewayctl"
	"github.com/mcpgateway/gatewayctl/internal/config"
	"github.com/mcpgateway/gatewayctl/internal/logger"
)

// command binds the subcommand handlers to shared global flags. Each
// invocation is one-shot: configuration is loaded and the supervisor is
// wired fresh inside every handler.
type command struct {
	flags *GlobalFlags
}

func (c *command) supervisor() (*gatewayctl.Supervisor, error) {
	cfg, err := config.Load(c.flags.EnvFile)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if c.flags.Debug || cfg.Debug {
		level = "debug"
	}
	log := logger.New(os.Stderr, logger.Options{
		Level:     level,
		Color:     logger.IsTerminal(os.Stderr),
		AuditFile: filepath.Join(cfg.LogDir(), "gatewayctl.log"),
	})
	return gatewayctl.New(cfg, log, os.Stdout)
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	logsFlags := &LogsFlags{}
	startupFlags := &LogsFlags{}
	cleanFlags := &CleanFlags{}

	cmd := command{flags: globalFlags}

	root := &cobra.Command{
		Use:           "gatewayctl",
		Short:         "Supervise the local Docker MCP Gateway process",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&globalFlags.EnvFile, "env-file", config.DefaultEnvFile, "key=value file with gateway settings")
	root.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "enable debug logging")

	root.AddCommand(
		createStartCommand(cmd),
		createStopCommand(cmd),
		createRestartCommand(cmd),
		createStatusCommand(cmd),
		createHealthCommand(cmd),
		createLogsCommand(cmd, logsFlags),
		createLogsFollowCommand(cmd),
		createLogsStartupCommand(cmd, startupFlags),
		createCleanCommand(cmd, cleanFlags),
	)
	return root
}

func createStartCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the gateway, reclaiming its port if necessary",
		Args:  cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			sup, err := c.supervisor()
			if err != nil {
				return err
			}
			if err := sup.VerifyEnvironment(cobraCmd.Context()); err != nil {
				return err
			}
			if err := sup.Start(); err != nil {
				if errors.Is(err, gatewayctl.ErrAlreadyRunning) {
					// Harmless no-op: surfaced but exit 0.
					fmt.Println(err)
					return nil
				}
				return err
			}
			return nil
		},
	}
}

func createStopCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the gateway; a no-op when it is not running",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			sup, err := c.supervisor()
			if err != nil {
				return err
			}
			return sup.Stop()
		},
	}
}

func createRestartCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the gateway, even when the old handle is stale",
		Args:  cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			sup, err := c.supervisor()
			if err != nil {
				return err
			}
			if err := sup.VerifyEnvironment(cobraCmd.Context()); err != nil {
				return err
			}
			return sup.Restart()
		},
	}
}

func createStatusCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the gateway's lifecycle state",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			sup, err := c.supervisor()
			if err != nil {
				return err
			}
			printStatus(os.Stdout, sup.Status())
			return nil
		},
	}
}

func createHealthCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run all health checks and report each verdict",
		Args:  cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			sup, err := c.supervisor()
			if err != nil {
				return err
			}
			report := sup.Health(cobraCmd.Context())
			printHealth(os.Stdout, report)
			if !report.Healthy() {
				return fmt.Errorf("gateway is unhealthy: process check failed")
			}
			return nil
		},
	}
}

func createLogsCommand(c command, f *LogsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs [N]",
		Short: "Print the last N lines of gateway output",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid line count %q", args[0])
				}
				f.Lines = n
			}
			sup, err := c.supervisor()
			if err != nil {
				return err
			}
			return printTail(os.Stdout, sup, gatewayctl.StreamOutput, f.Lines)
		},
	}
	cmd.Flags().IntVarP(&f.Lines, "lines", "n", 50, "number of lines")
	return cmd
}

func createLogsFollowCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "logs-follow",
		Short: "Stream gateway output until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			sup, err := c.supervisor()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cobraCmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return sup.Follow(ctx, gatewayctl.StreamOutput, os.Stdout)
		},
	}
}

func createLogsStartupCommand(c command, f *LogsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs-startup",
		Short: "Print the diagnostics captured since the last start",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			sup, err := c.supervisor()
			if err != nil {
				return err
			}
			return printTail(os.Stdout, sup, gatewayctl.StreamDiagnostics, f.Lines)
		},
	}
	cmd.Flags().IntVarP(&f.Lines, "lines", "n", 50, "number of lines")
	return cmd
}

func createCleanCommand(c command, f *CleanFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete aged log files and configuration backups",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			sup, err := c.supervisor()
			if err != nil {
				return err
			}
			sup.Prune(f.MaxAgeLogs, f.MaxAgeBackups)
			return nil
		},
	}
	cmd.Flags().DurationVar(&f.MaxAgeLogs, "max-age-logs", 7*24*time.Hour, "delete log files older than this")
	cmd.Flags().DurationVar(&f.MaxAgeBackups, "max-age-backups", 30*24*time.Hour, "delete config backups older than this")
	return cmd
}
