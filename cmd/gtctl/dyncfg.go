package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/psaab/gtctl/pkg/config"
	"github.com/psaab/gtctl/pkg/dyncfg"
	"github.com/psaab/gtctl/pkg/logging"
	"github.com/psaab/gtctl/pkg/metrics"
	"github.com/psaab/gtctl/pkg/reconcile"
	"github.com/psaab/gtctl/pkg/signals"
	"github.com/psaab/gtctl/pkg/state"
)

type dyncfgOptions struct {
	configFile string
	aggregate  string
}

func newDyncfgCommand() *cobra.Command {
	opts := &dyncfgOptions{}
	cmd := &cobra.Command{
		Use:   "dyncfg",
		Short: "Reconcile the dataplane LPM tables with an aggregate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDyncfg(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configFile, "config", "c", config.DefaultFile, "configuration file path")
	cmd.Flags().StringVarP(&opts.aggregate, "aggregate", "a", "", "aggregate file to apply")
	cmd.MarkFlagRequired("aggregate")
	return cmd
}

func runDyncfg(ctx context.Context, opts *dyncfgOptions) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	var syslogClient *logging.SyslogClient
	if cfg.Syslog != nil {
		syslogClient, err = logging.NewSyslogClient(cfg.Syslog.Address, logging.ParseFacility(cfg.Syslog.Facility))
		if err != nil {
			return fmt.Errorf("syslog: %w", err)
		}
		syslogClient.MinSeverity = logging.ParseSeverity(cfg.Syslog.Severity)
		defer syslogClient.Close()
	}
	logging.Setup(os.Stdout, logging.Options{Level: level, Syslog: syslogClient})
	slog.Debug("loaded configuration", "path", opts.configFile, "socket", cfg.Socket, "state_dir", cfg.StateDir)

	// A half-applied table is worse than a late exit.
	stop := signals.Ignore()
	defer stop()

	store, err := state.Open(cfg.StateDir)
	if err != nil {
		return err
	}
	defer store.Close()

	rec := metrics.New()
	engine := reconcile.New(cfg, store, dyncfg.New(cfg.Socket), rec)
	runErr := engine.Process(ctx, opts.aggregate)

	if cfg.MetricsTextfile != "" {
		if err := rec.WriteTextfile(cfg.MetricsTextfile); err != nil {
			slog.Warn("failed to write metrics textfile", "path", cfg.MetricsTextfile, "err", err)
		}
	}
	return runErr
}
