package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/monify-labs/sysmon/internal/agent"
	"github.com/monify-labs/sysmon/internal/config"
	"github.com/monify-labs/sysmon/internal/logger"
	"github.com/monify-labs/sysmon/internal/sender"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFlag  string
	envFileFlag string
	debugFlag   bool
	outputFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "sysmon",
	Short: "Resource monitoring engine",
	Long: `Sample cpu, memory, network and process state and emit one frame per tick.

Frames go to stdout as JSON or YAML, or are pushed over HTTP when push_url
is configured. Every setting can be overridden with a SYSMON_* variable.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// runCmd starts the tick loop
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the collection loop",
	Long: `Tick every update_ms and hand each frame to the configured sink until
interrupted. SIGUSR1 resets the network byte totals.

Examples:
  sysmon run
  sysmon run --output yaml
  SYSMON_PUSH_URL=https://collector.example/ingest sysmon run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd.Context())
	},
}

// snapshotCmd prints one frame and exits
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print a single frame",
	Long: `Prime enrichment, tick twice so rates have a baseline, and print the
second frame.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return snapshotCommand(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "sysmon v%s\n", config.Version)
		fmt.Fprintf(out, "Commit: %s\n", config.Commit)
		fmt.Fprintf(out, "Build Date: %s\n", config.BuildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", config.EnvFilePath, "KEY=VALUE environment file")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "", "frame format for stdout: json or yaml")

	rootCmd.AddCommand(runCmd, snapshotCmd, versionCmd)
}

// setup loads configuration and installs the default logger.
func setup() (*viper.Viper, error) {
	if err := config.LoadEnvFile(envFileFlag); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	if debugFlag {
		cfg.Set(config.KeyDebug, true)
	}
	if outputFlag != "" {
		cfg.Set(config.KeyOutput, outputFlag)
	}

	logger.SetDefault(logger.New(logger.Options{
		Level: cfg.GetString(config.KeyLogLevel),
		Debug: cfg.GetBool(config.KeyDebug),
		JSON:  cfg.GetBool(config.KeyLogJSON),
	}))
	return cfg, nil
}

func runCommand(ctx context.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	log := logger.Component("cli")
	if os.Geteuid() != 0 {
		log.Warn("Running without root privileges, some processes will lack details")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, err := sender.FromConfig(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer sink.Close()

	engine, err := agent.New(ctx, cfg, agent.Options{})
	if err != nil {
		return err
	}

	resetCh := make(chan os.Signal, 1)
	signal.Notify(resetCh, syscall.SIGUSR1)
	defer signal.Stop(resetCh)
	go watchTotalsReset(ctx, resetCh, engine, log)

	return engine.Run(ctx, sink)
}

type totalsResetter interface {
	ResetNetworkTotals()
}

// watchTotalsReset restarts the network byte totals on every signal until ctx
// is done.
func watchTotalsReset(ctx context.Context, sigs <-chan os.Signal, r totalsResetter, log *logrus.Entry) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			log.WithField("signal", sig.String()).Info("Resetting network totals")
			r.ResetNetworkTotals()
		}
	}
}

func snapshotCommand(ctx context.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	format, err := sender.ParseFormat(cfg.GetString(config.KeyOutput))
	if err != nil {
		return err
	}
	sink := sender.NewWriterSender(os.Stdout, format)
	defer sink.Close()

	engine, err := agent.New(ctx, cfg, agent.Options{})
	if err != nil {
		return err
	}
	engine.Start(ctx)
	defer engine.Stop()

	if _, err := engine.Tick(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(config.UpdateInterval(cfg)):
	}
	frame, err := engine.Tick(ctx)
	if err != nil {
		return err
	}
	return sink.Send(ctx, frame)
}
