package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"marketwatch/internal/market"
	"marketwatch/internal/notify"
	"marketwatch/internal/pipeline"
	"marketwatch/internal/scheduler"
	"marketwatch/internal/snapshot"
)

func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the dispatch loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatcher(app)
		},
	}
}

func runWatcher(app *App) error {
	cfg := app.Config
	logger := app.Logger

	store, err := snapshot.NewStore(cfg.Data.Dir)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}

	source := market.NewHTTPDataSource(cfg.Data.SourceURL)

	clock, err := market.NewClock(cfg.Exchange.Zone, source,
		market.WithIndex(cfg.Exchange.IndexSymbol, cfg.Exchange.WeakThresholdPct),
		market.WithLogger(logger),
	)
	if err != nil {
		// Degraded fixed-offset zone; keep going rather than skip
		// trading-hours work.
		logger.Warn().Err(err).Msg("Timezone resolution failed, using fixed offset")
	}

	var notifier notify.Notifier
	if cfg.Notifications.Enabled {
		mn := notify.NewMultiNotifier(cfg.Notifications.RetryAttempts, cfg.Notifications.RetryDelay, logger)
		mn.AddChannel(notify.NewTelegramChannel(notify.TelegramConfig{
			Enabled:  cfg.Notifications.Telegram.Enabled,
			BotToken: cfg.Notifications.Telegram.BotToken,
			ChatID:   cfg.Notifications.Telegram.ChatID,
		}))
		notifier = mn
	} else {
		notifier = notify.NewNoOpNotifier()
	}

	actions := &pipeline.Actions{
		Store:    store,
		Source:   source,
		Clock:    clock,
		Notifier: notifier,
		Broker:   pipeline.NoOpBroker{},
		Trainer:  pipeline.NoOpTrainer{},
		Tracker:  pipeline.NoOpTracker{},
		Reporter: pipeline.NoOpReporter{},
		Logger:   logger,
	}

	registry := scheduler.NewRegistry()
	if err := actions.Register(registry, jobSpecs(app)); err != nil {
		return fmt.Errorf("building job table: %w", err)
	}

	state, err := scheduler.NewSQLiteStateStore(cfg.StateDBPath(app.ConfigDir))
	if err != nil {
		logger.Warn().Err(err).Msg("Job state database unavailable, daily jobs may re-fire after restart")
		state = nil
	}

	opts := []scheduler.Option{
		scheduler.WithTick(cfg.Scheduler.Tick),
		scheduler.WithSession(clock),
		scheduler.WithLocation(clock.Location()),
		scheduler.WithLogger(logger),
	}
	if state != nil {
		defer state.Close()
		opts = append(opts, scheduler.WithState(state))
	}
	sched := scheduler.New(registry, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("zone", cfg.Exchange.Zone).Msg("marketwatch starting")
	err = sched.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info().Msg("marketwatch stopped")
		return nil
	}
	return err
}

// jobSpecs returns the configured cadence table, falling back to the
// built-in defaults when the config file does not override it.
func jobSpecs(app *App) []pipeline.JobSpec {
	if len(app.Config.Jobs) == 0 {
		return pipeline.DefaultJobSpecs()
	}
	specs := make([]pipeline.JobSpec, 0, len(app.Config.Jobs))
	for _, j := range app.Config.Jobs {
		specs = append(specs, pipeline.JobSpec{
			Name:    j.Name,
			Cadence: j.Cadence,
			Gate:    j.Gate,
			Serial:  j.Serial,
		})
	}
	return specs
}

func newJobsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "Print the job cadence table",
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := jobSpecs(app)
			for _, spec := range specs {
				serial := ""
				if spec.Serial {
					serial = "  [serial]"
				}
				fmt.Printf("%-24s %-16s %-12s%s\n", spec.Name, spec.Cadence, spec.Gate, serial)
			}
			return nil
		},
	}
}
