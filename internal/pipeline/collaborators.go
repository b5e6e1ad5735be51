// Package pipeline implements the named job actions that compose the
// snapshot store, differ and notification sink, and call out to the
// external trading collaborators.
package pipeline

import (
	"context"
)

// Broker is the narrow surface of the trading collaborator the pipeline
// needs. Broker protocol handling lives entirely behind it.
type Broker interface {
	PnLSummary(ctx context.Context) (string, error)
	CloseAllPositions(ctx context.Context) error
	VerifyStopOrders(ctx context.Context) error
}

// ModelTrainer triggers the daily model training run.
type ModelTrainer interface {
	TrainDaily(ctx context.Context) error
}

// TargetTracker follows active trade targets and prunes old history.
type TargetTracker interface {
	CheckTargets(ctx context.Context) error
	CleanHistory(ctx context.Context) error
}

// Reporter produces the end-of-day report summary.
type Reporter interface {
	GenerateSummary(ctx context.Context) (string, error)
}

// NoOpBroker satisfies Broker without a live trading connection.
type NoOpBroker struct{}

// PnLSummary returns an empty summary.
func (NoOpBroker) PnLSummary(ctx context.Context) (string, error) { return "", nil }

// CloseAllPositions does nothing.
func (NoOpBroker) CloseAllPositions(ctx context.Context) error { return nil }

// VerifyStopOrders does nothing.
func (NoOpBroker) VerifyStopOrders(ctx context.Context) error { return nil }

// NoOpTrainer satisfies ModelTrainer without a model backend.
type NoOpTrainer struct{}

// TrainDaily does nothing.
func (NoOpTrainer) TrainDaily(ctx context.Context) error { return nil }

// NoOpTracker satisfies TargetTracker without tracked targets.
type NoOpTracker struct{}

// CheckTargets does nothing.
func (NoOpTracker) CheckTargets(ctx context.Context) error { return nil }

// CleanHistory does nothing.
func (NoOpTracker) CleanHistory(ctx context.Context) error { return nil }

// NoOpReporter satisfies Reporter without trade history.
type NoOpReporter struct{}

// GenerateSummary returns an empty summary.
func (NoOpReporter) GenerateSummary(ctx context.Context) (string, error) { return "", nil }
