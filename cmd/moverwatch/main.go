package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/moverwatch/moverwatch/pkg/config"
	"github.com/moverwatch/moverwatch/pkg/log"
	"github.com/moverwatch/moverwatch/pkg/metrics"
	"github.com/moverwatch/moverwatch/pkg/orchestrator"
	"github.com/moverwatch/moverwatch/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath   string
	logLevel     string
	dryRun       bool
	historyLimit int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "moverwatch",
	Short: "Moverwatch - progress monitor and notifier for mover runs",
	Long: `Moverwatch watches an external mover process drain a cache
filesystem: it detects the mover through its PID file or the process
table, samples disk usage to estimate progress and time to completion,
and delivers lifecycle notifications through Telegram, Discord, or
Slack.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Moverwatch version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		"/etc/moverwatch/config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override the configured log level (debug, info, warn, error)")

	runCmd.Flags().BoolVar(&dryRun, "dry-run", false,
		"Log notifications instead of sending them")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20,
		"Maximum number of delivery records to show")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(historyCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor daemon",
	Long: `Run the monitor until interrupted. SIGINT or SIGTERM triggers an
ordered shutdown: the notification bridge detaches, the dispatcher drains
its queue within the grace period, then the PID watcher stops.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if dryRun {
			cfg.Monitoring.DryRun = true
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Logging.Level),
			JSONOutput: cfg.Logging.JSONOutput,
			Syslog:     cfg.Logging.Syslog,
			SyslogTag:  cfg.Logging.SyslogTag,
		})
		metrics.SetVersion(Version)

		orch, err := orchestrator.New(cfg)
		if err != nil {
			return err
		}

		var metricsSrv *metrics.Server
		if cfg.Metrics.Enabled {
			metricsSrv = metrics.NewServer(cfg.Metrics.Listen)
			metricsSrv.Start()
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err = orch.Run(ctx)
		if metricsSrv != nil {
			_ = metricsSrv.Stop(context.Background())
		}
		return err
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration OK: %s\n", configPath)
		fmt.Printf("  Process: %s\n", cfg.Process.Name)
		fmt.Printf("  Paths: %v\n", cfg.Process.Paths)
		fmt.Printf("  Providers: %v\n", cfg.Notifications.EnabledProviders)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent notification deliveries",
	Long: `Show the most recent delivery records from the state database,
newest first. Each line carries the outcome, the message title, and the
per-provider results.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := storage.NewBoltStore(cfg.State.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.RecentDeliveries(historyLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No deliveries recorded.")
			return nil
		}

		for _, rec := range records {
			fmt.Printf("%s  %-7s  %s\n",
				rec.UpdatedAt.Format(time.RFC3339), rec.Outcome, rec.Message.Title)
			for _, r := range rec.Results {
				mark := "ok"
				if !r.Success {
					mark = "FAILED: " + r.Err
				}
				fmt.Printf("    %-10s attempts=%d  %s\n", r.Provider, r.Attempts, mark)
			}
		}
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}
