package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	apperrors "marketwatch/internal/errors"
	"marketwatch/internal/logging"
	"marketwatch/internal/market"
	"marketwatch/internal/notify"
	"marketwatch/internal/scheduler"
	"marketwatch/internal/snapshot"
)

// Snapshot list names.
const (
	ListTopStocks    = "top_stocks"
	ListPumpStocks   = "pump_stocks"
	ListHighMovement = "high_movement_stocks"
	ListPositiveNews = "positive_news_stocks"
	ListSymbols      = "symbols"
)

// SessionClock is the slice of the session clock the pipeline consults.
type SessionClock interface {
	IsWeak(ctx context.Context) bool
}

// Actions holds the dependencies shared by all pipeline actions. Every
// action catches its own failures: it logs, returns the error for the
// scheduler's log line, and never crashes the dispatch loop.
type Actions struct {
	Store    *snapshot.Store
	Source   market.SymbolSource
	Clock    SessionClock
	Notifier notify.Notifier
	Broker   Broker
	Trainer  ModelTrainer
	Tracker  TargetTracker
	Reporter Reporter
	Logger   zerolog.Logger
}

// refreshList fetches the named candidate list, rotates the snapshot and
// alerts on symbols that were absent from the prior generation. The very
// first refresh of a list suppresses alerting so a fresh deployment does
// not produce a notification storm.
func (a *Actions) refreshList(ctx context.Context, list, alertPrefix string) error {
	logger := logging.WithList(a.Logger, list)

	records, err := a.Source.FetchList(ctx, list)
	if err != nil {
		logger.Error().Err(err).Msg("List fetch failed")
		return err
	}

	old, err := a.Store.Read(list)
	firstRun := false
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrSnapshotNotFound) {
			logger.Error().Err(err).Msg("Snapshot read failed, skipping cycle")
			return err
		}
		firstRun = true
	}

	if err := a.Store.Refresh(list, records); err != nil {
		logger.Error().Err(err).Msg("Snapshot refresh failed, skipping cycle")
		return err
	}
	logger.Info().Int("count", len(records)).Msg("Snapshot refreshed")

	if firstRun {
		logger.Info().Msg("First refresh, alerts suppressed")
		return nil
	}

	fresh := snapshot.NewEntries(old, records)
	if len(fresh) == 0 {
		return nil
	}

	weak := false
	if a.Clock != nil {
		weak = a.Clock.IsWeak(ctx)
	}

	for _, rec := range fresh {
		msg := fmt.Sprintf("%s %s", alertPrefix, rec.Symbol)
		if weak {
			msg += "\n⚠️ Index is weak today, trade with caution"
		}
		event := notify.AlertEvent{
			Symbol:  rec.Symbol,
			List:    list,
			Message: msg,
		}
		if err := a.Notifier.SendAlert(ctx, event); err != nil {
			// Delivery failure is non-fatal; the alert is lost.
			logger.Warn().Err(err).Str("symbol", rec.Symbol).Msg("Alert not delivered")
			continue
		}
		logging.LogAlert(a.Logger, list, rec.Symbol)
	}
	return nil
}

// RefreshMarket refreshes the top-stocks snapshot and alerts on new
// strong symbols.
func (a *Actions) RefreshMarket(ctx context.Context) error {
	return a.refreshList(ctx, ListTopStocks, "🌀 New strong symbol:")
}

// RefreshPumps refreshes the pump-candidates snapshot and alerts on new
// pump symbols.
func (a *Actions) RefreshPumps(ctx context.Context) error {
	return a.refreshList(ctx, ListPumpStocks, "💥 New pump symbol:")
}

// RefreshHighMovement refreshes the high-movement snapshot and alerts on
// newly active symbols.
func (a *Actions) RefreshHighMovement(ctx context.Context) error {
	return a.refreshList(ctx, ListHighMovement, "🚀 New high-movement symbol:")
}

// WatchNews refreshes the positive-news snapshot and alerts on symbols
// newly carrying positive news sentiment.
func (a *Actions) WatchNews(ctx context.Context) error {
	return a.refreshList(ctx, ListPositiveNews, "📰 New positive-news symbol:")
}

// RefreshSymbols refreshes the full symbol universe. No alerting: the
// universe churns daily and is input data, not a signal.
func (a *Actions) RefreshSymbols(ctx context.Context) error {
	records, err := a.Source.FetchList(ctx, ListSymbols)
	if err != nil {
		a.Logger.Error().Err(err).Msg("Symbol universe fetch failed")
		return err
	}
	if err := a.Store.Refresh(ListSymbols, records); err != nil {
		a.Logger.Error().Err(err).Msg("Symbol universe refresh failed")
		return err
	}
	a.Logger.Info().Int("count", len(records)).Msg("Symbol universe refreshed")
	return nil
}

// TrackTargets follows active trade targets.
func (a *Actions) TrackTargets(ctx context.Context) error {
	if err := a.Tracker.CheckTargets(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("Target tracking failed")
		return err
	}
	return nil
}

// DailyReport generates and delivers the end-of-day summary.
func (a *Actions) DailyReport(ctx context.Context) error {
	summary, err := a.Reporter.GenerateSummary(ctx)
	if err != nil {
		a.Logger.Error().Err(err).Msg("Report generation failed")
		return err
	}
	if summary == "" {
		return nil
	}
	if err := a.Notifier.Send(ctx, summary); err != nil {
		a.Logger.Warn().Err(err).Msg("Report not delivered")
	}
	return nil
}

// CleanHistory prunes old trade history.
func (a *Actions) CleanHistory(ctx context.Context) error {
	if err := a.Tracker.CleanHistory(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("History cleanup failed")
		return err
	}
	return nil
}

// TrainModel runs the daily model training.
func (a *Actions) TrainModel(ctx context.Context) error {
	if err := a.Trainer.TrainDaily(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("Model training failed")
		return err
	}
	a.Logger.Info().Msg("Daily model training completed")
	return nil
}

// PnLSummary delivers the broker's P&L summary.
func (a *Actions) PnLSummary(ctx context.Context) error {
	summary, err := a.Broker.PnLSummary(ctx)
	if err != nil {
		a.Logger.Error().Err(err).Msg("P&L summary failed")
		return err
	}
	if summary == "" {
		return nil
	}
	if err := a.Notifier.Send(ctx, summary); err != nil {
		a.Logger.Warn().Err(err).Msg("P&L summary not delivered")
	}
	return nil
}

// ClosePositions closes all open positions ahead of the market close.
func (a *Actions) ClosePositions(ctx context.Context) error {
	if err := a.Broker.CloseAllPositions(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("Position close failed")
		return err
	}
	return nil
}

// VerifyStops verifies that active stop orders are still in place.
func (a *Actions) VerifyStops(ctx context.Context) error {
	if err := a.Broker.VerifyStopOrders(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("Stop order verification failed")
		return err
	}
	return nil
}

// JobSpec is one row of the cadence table: which action runs, how often
// and under which market gate.
type JobSpec struct {
	Name    string
	Cadence string
	Gate    string
	Serial  bool
}

// DefaultJobSpecs returns the standard cadence table.
func DefaultJobSpecs() []JobSpec {
	return []JobSpec{
		{Name: "train_model", Cadence: "daily:00:00", Gate: "always", Serial: true},
		{Name: "clean_history", Cadence: "daily:00:05", Gate: "always", Serial: true},
		{Name: "refresh_symbols", Cadence: "daily:03:00", Gate: "always", Serial: true},
		{Name: "refresh_market", Cadence: "interval:5m", Gate: "open-only", Serial: true},
		{Name: "refresh_pumps", Cadence: "interval:5m", Gate: "open-only", Serial: true},
		{Name: "refresh_high_movement", Cadence: "interval:5m", Gate: "open-only", Serial: true},
		{Name: "watch_news", Cadence: "interval:10m", Gate: "open-only", Serial: true},
		{Name: "track_targets", Cadence: "interval:5m", Gate: "always"},
		{Name: "pnl_summary", Cadence: "interval:15m", Gate: "always"},
		{Name: "close_positions", Cadence: "daily:15:50", Gate: "open-only", Serial: true},
		{Name: "verify_stops", Cadence: "interval:1m", Gate: "open-only"},
		{Name: "daily_report", Cadence: "daily:20:00", Gate: "closed-only", Serial: true},
	}
}

// actionFor maps a job name to its action.
func (a *Actions) actionFor(name string) (scheduler.Action, error) {
	switch name {
	case "refresh_market":
		return a.RefreshMarket, nil
	case "refresh_pumps":
		return a.RefreshPumps, nil
	case "refresh_high_movement":
		return a.RefreshHighMovement, nil
	case "watch_news":
		return a.WatchNews, nil
	case "refresh_symbols":
		return a.RefreshSymbols, nil
	case "track_targets":
		return a.TrackTargets, nil
	case "daily_report":
		return a.DailyReport, nil
	case "clean_history":
		return a.CleanHistory, nil
	case "train_model":
		return a.TrainModel, nil
	case "pnl_summary":
		return a.PnLSummary, nil
	case "close_positions":
		return a.ClosePositions, nil
	case "verify_stops":
		return a.VerifyStops, nil
	default:
		return nil, apperrors.Wrapf(apperrors.ErrUnknownJob, "%s", name)
	}
}

// Register validates the cadence table and registers each row's job.
func (a *Actions) Register(registry *scheduler.Registry, specs []JobSpec) error {
	for _, spec := range specs {
		action, err := a.actionFor(spec.Name)
		if err != nil {
			return err
		}
		cadence, err := scheduler.ParseCadence(spec.Cadence)
		if err != nil {
			return apperrors.Wrapf(err, "job %s", spec.Name)
		}
		gate := scheduler.GateAlways
		if spec.Gate != "" {
			gate, err = scheduler.ParseGate(spec.Gate)
			if err != nil {
				return apperrors.Wrapf(err, "job %s", spec.Name)
			}
		}
		job := &scheduler.Job{
			Name:    spec.Name,
			Cadence: cadence,
			Gate:    gate,
			Serial:  spec.Serial,
			Action:  action,
		}
		if err := registry.Add(job); err != nil {
			return err
		}
	}
	return nil
}
