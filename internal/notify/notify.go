// Package notify provides best-effort alert delivery to one or more
// channels with bounded retries.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "marketwatch/internal/errors"
	"marketwatch/pkg/utils"
)

// Notifier defines the interface for sending alerts.
type Notifier interface {
	Send(ctx context.Context, message string) error
	SendAlert(ctx context.Context, event AlertEvent) error
}

// Channel defines the interface for a single delivery channel.
type Channel interface {
	Name() string
	Send(ctx context.Context, message string) error
	IsEnabled() bool
}

// AlertEvent is an ephemeral change-alert: a symbol that newly appeared
// in a named list, plus the human message to deliver.
type AlertEvent struct {
	Symbol    string
	List      string
	Message   string
	Timestamp time.Time
}

// MultiNotifier fans a message out to all enabled channels, retrying each
// channel up to the configured attempts with a fixed delay in between.
// A channel that exhausts its retries is reported but never blocks the
// others; the total time spent per channel is bounded by attempts*delay.
type MultiNotifier struct {
	retry  utils.RetryConfig
	logger zerolog.Logger

	mu       sync.RWMutex
	channels []Channel
}

// NewMultiNotifier creates a notifier with the given retry policy.
func NewMultiNotifier(attempts int, delay time.Duration, logger zerolog.Logger) *MultiNotifier {
	if attempts <= 0 {
		attempts = 3
	}
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &MultiNotifier{
		retry:  utils.FixedRetryConfig(attempts, delay),
		logger: logger,
	}
}

// AddChannel adds a delivery channel.
func (mn *MultiNotifier) AddChannel(ch Channel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Send delivers message to every enabled channel. The returned error
// aggregates per-channel retry exhaustion; callers treat it as non-fatal.
func (mn *MultiNotifier) Send(ctx context.Context, message string) error {
	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var failures []string
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		err := utils.Retry(ctx, mn.retry, func() error {
			return ch.Send(ctx, message)
		})
		if err != nil {
			nerr := apperrors.NewNotifyError(ch.Name(), mn.retry.MaxAttempts, err)
			mn.logger.Error().Err(nerr).Str("channel", ch.Name()).Msg("Alert delivery failed")
			failures = append(failures, nerr.Error())
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(failures, "; "))
	}
	return nil
}

// SendAlert delivers a change-alert event.
func (mn *MultiNotifier) SendAlert(ctx context.Context, event AlertEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return mn.Send(ctx, event.Message)
}

// NoOpNotifier is a notifier that does nothing, for tests and disabled
// notification setups.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send does nothing.
func (n *NoOpNotifier) Send(ctx context.Context, message string) error {
	return nil
}

// SendAlert does nothing.
func (n *NoOpNotifier) SendAlert(ctx context.Context, event AlertEvent) error {
	return nil
}
