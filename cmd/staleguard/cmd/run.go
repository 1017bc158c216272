package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/staleguard/internal/escalation"
	"github.com/good-yellow-bee/staleguard/internal/metrics"
	"github.com/good-yellow-bee/staleguard/internal/notifier"
	"github.com/good-yellow-bee/staleguard/internal/run"
	"github.com/good-yellow-bee/staleguard/internal/storage"
	"github.com/good-yellow-bee/staleguard/pkg/config"
)

var (
	runDryRun      bool
	runEvery       time.Duration
	runMetricsAddr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate overdue assets and send due notifications",
	Long: `Run one notification batch: load the current overdue-asset set,
decide per asset whether a reminder is due and at which level, aggregate
decisions into one message per owner, dispatch, and record every attempt
in the audit trail.

Per-recipient delivery failures are reported in the summary and leave
reminder state untouched so the next run retries them; the command still
exits 0. A non-zero exit means the asset source or the state store was
unreachable and the run aborted without sending.

Examples:
  # Single batch
  staleguard run

  # Preview without sending or mutating state
  staleguard run --dry-run -v

  # Scheduled mode with metrics
  staleguard run --every 24h --metrics-addr :9090`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "report intended sends without dispatching or mutating state")
	runCmd.Flags().DurationVar(&runEvery, "every", 0, "run repeatedly at this interval (0 = run once)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address in scheduled mode")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// Handle signals: stop scheduling new work, let in-flight sends
	// complete or time out.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		PrintVerbose("Received interrupt, stopping...")
		cancel()
	}()

	if runEvery > 0 {
		return runScheduled(ctx, cfg, store)
	}

	runner, dispatcher, err := buildRunner(cfg, store)
	if err != nil {
		return err
	}
	if dispatcher != nil {
		defer dispatcher.Close()
	}

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

// buildRunner assembles the engine, templates, and dispatcher. The
// dispatcher is nil in dry-run mode, where no transport is needed.
func buildRunner(cfg *config.Config, store *storage.SQLiteStorage) (*run.Runner, *notifier.Dispatcher, error) {
	engine := escalation.NewEngine(
		store.Assets(), store.Reminders(), store.Owners(), store.Preferences(),
		escalation.Options{
			OverdueAfter:  time.Duration(cfg.Engine.OverdueAfterDays) * 24 * time.Hour,
			EscalateAfter: time.Duration(cfg.Engine.EscalateAfterDays) * 24 * time.Hour,
			ChunkSize:     cfg.Engine.ChunkSize,
			Concurrency:   cfg.Engine.EvalConcurrency,
			Location:      cfg.Location(),
			DryRun:        runDryRun,
		})

	templates, err := notifier.LoadTemplates()
	if err != nil {
		return nil, nil, fmt.Errorf("load templates: %w", err)
	}

	var dispatcher *notifier.Dispatcher
	if !runDryRun {
		transport, err := buildTransport(cfg)
		if err != nil {
			return nil, nil, err
		}
		dispatcher = notifier.NewDispatcher(transport, notifier.DispatcherConfig{
			SendTimeout:   cfg.Transport.SendTimeout,
			MaxRetries:    cfg.Transport.MaxRetries,
			RatePerSecond: cfg.Transport.RatePerSecond,
			Backoff:       notifier.DefaultBackoff(),
		})
	}

	runner := run.NewRunner(store, engine, templates, dispatcher, run.Options{
		DryRun:              runDryRun,
		DispatchConcurrency: cfg.Transport.Concurrency,
	})
	return runner, dispatcher, nil
}

// buildTransport creates the configured delivery channel.
func buildTransport(cfg *config.Config) (notifier.Transport, error) {
	switch cfg.Transport.DefaultChannel {
	case "webhook":
		return notifier.NewWebhookTransport(notifier.WebhookConfig{
			URL: cfg.Transport.WebhookURL,
		})
	case "email":
		return notifier.NewEmailTransport(notifier.EmailConfig{
			Host:     cfg.Transport.Email.Host,
			Port:     cfg.Transport.Email.Port,
			Username: cfg.Transport.Email.Username,
			Password: cfg.Transport.Email.Password,
			From:     cfg.Transport.Email.From,
		})
	default:
		return nil, fmt.Errorf("unknown transport channel: %s (configure transport in %s)", cfg.Transport.DefaultChannel, cfgFile)
	}
}

// runScheduled runs batches at a fixed interval with optional metrics
// serving and config hot-reload. Config edits rebuild the engine and
// transport before the next tick.
func runScheduled(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage) error {
	runner, dispatcher, err := buildRunner(cfg, store)
	if err != nil {
		return err
	}
	var mu sync.Mutex
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		if dispatcher != nil {
			dispatcher.Close()
		}
	}()

	metricsAddr := runMetricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Address
	}
	if metricsAddr != "" {
		srv := metrics.NewServer(metricsAddr, store.DB())
		go func() {
			if err := srv.Start(); err != nil {
				PrintError(err.Error(), false)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	sched := run.NewScheduler(runEvery, func(ctx context.Context) error {
		mu.Lock()
		r := runner
		mu.Unlock()
		result, err := r.Run(ctx)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	})

	if _, statErr := os.Stat(cfgFile); statErr == nil {
		sched.WatchConfig(cfgFile, func() {
			newCfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				PrintError(fmt.Sprintf("reload config: %v", err), false)
				return
			}
			newCfg.Verbose = verbose
			newRunner, newDispatcher, err := buildRunner(newCfg, store)
			if err != nil {
				PrintError(fmt.Sprintf("rebuild runner: %v", err), false)
				return
			}
			mu.Lock()
			old := dispatcher
			runner, dispatcher = newRunner, newDispatcher
			mu.Unlock()
			if old != nil {
				old.Close()
			}
		})
	}

	if err := sched.Run(ctx); err != context.Canceled {
		return err
	}
	return nil
}

// printResult prints verbose decision lines and the summary line.
func printResult(result *run.Result) {
	if IsVerbose() {
		for _, d := range result.Decisions {
			fmt.Printf("decision asset=%s owner=%s action=%s\n",
				d.Asset.AssetID, d.Asset.OwnerID, d.Action)
		}
		for _, b := range result.Bundles {
			fmt.Printf("bundle recipient=%s class=%s items=%d\n",
				b.Recipient, b.Class, len(b.Items)+len(b.Findings))
		}
	}
	fmt.Println(result.Summary.Line())
}
