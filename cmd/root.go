// Package cmd implements the CLI surface (spec.md §6) using the cobra
// framework.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sylogd/agent/internal/buffer"
	"github.com/sylogd/agent/internal/collector"
	"github.com/sylogd/agent/internal/config"
	"github.com/sylogd/agent/internal/core"
	slog "github.com/sylogd/agent/internal/log"
	"github.com/sylogd/agent/internal/metrics"
)

var (
	settingsPath string
	verbose      bool
	useRawSocket bool
	metricsAddr  string
)

// rootCmd is the base command; running it with no subcommand starts the
// collector.
var rootCmd = &cobra.Command{
	Use:   "sylogd-agent",
	Short: "sylogd agent - a raw-socket syslog collector core",
	Long: `sylogd-agent ingests syslog datagrams off a raw IPv4 socket, decodes the
IP/UDP/syslog framing, and dispatches the resulting events to registered
sinks.`,
	Version: "0.1.0",
	RunE:    runCollector,
}

// Execute parses flags and runs the root command. It is called by
// main.main; a bind failure or other uncaught fault exits non-zero via
// exitWithError (spec.md §6).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		exitWithError("sylogd-agent", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&settingsPath, "settings", "s", "/etc/sylogd-agent/settings.json",
		"settings file path (created with defaults if absent)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"elevate log level to debug")
	rootCmd.PersistentFlags().BoolVar(&useRawSocket, "raw-socket", true,
		"use a raw IPv4 socket (disable to fall back to a plain UDP socket)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "",
		"optional address to serve Prometheus metrics on (e.g. :9109)")
}

func runCollector(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.Config{Verbose: verbose})

	settings, err := config.Load(afero.NewOsFs(), settingsPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	sinks := []core.Sink{
		core.SinkFunc(func(ctx context.Context, e core.SyslogEvent) error {
			logger.WithFields(map[string]interface{}{
				"source":   e.SourceIP,
				"severity": e.Severity,
				"facility": e.Facility,
			}).Info(e.Message)
			return nil
		}),
	}

	c := collector.New(collector.Config{
		Settings:     settings,
		UseRawSocket: useRawSocket,
		BufferPool: buffer.Config{
			BufferSize:  core.DefaultBufSize,
			WarmBuffers: 64,
			MaxBuffers:  256,
		},
		Log:   logger,
		Sinks: sinks,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if metricsAddr != "" {
		metricsSrv := metrics.NewServer(metricsAddr, "", settings.IPAddress(), logger)
		if err := metricsSrv.Start(ctx); err != nil {
			logger.WithError(err).Warn("metrics server failed to start")
		} else {
			defer func() {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer stopCancel()
				_ = metricsSrv.Stop(stopCtx)
			}()
		}
	}

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start collector: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping collector")
	c.Stop()
	return nil
}

// exitWithError prints an error message to stderr and exits with status 1.
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
