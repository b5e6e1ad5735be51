// Package market provides exchange session detection and market-data
// collaborator interfaces.
package market

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apperrors "marketwatch/internal/errors"
)

// DefaultZone is the exchange's local timezone.
const DefaultZone = "America/New_York"

// Session window in exchange-local minutes from midnight: [09:30, 16:00).
const (
	openMinutes  = 9*60 + 30
	closeMinutes = 16 * 60
)

// Clock answers session questions for a single exchange. It is a pure
// function of wall-clock time apart from the index quote lookup used for
// weakness detection.
type Clock struct {
	location *time.Location
	quotes   QuoteSource

	indexSymbol string
	weakPct     float64
	logger      zerolog.Logger
}

// ClockOption configures a Clock.
type ClockOption func(*Clock)

// WithIndex sets the index symbol and weakness threshold percentage.
func WithIndex(symbol string, weakPct float64) ClockOption {
	return func(c *Clock) {
		c.indexSymbol = symbol
		c.weakPct = weakPct
	}
}

// WithLogger sets the logger used for fail-closed weakness errors.
func WithLogger(logger zerolog.Logger) ClockOption {
	return func(c *Clock) {
		c.logger = logger
	}
}

// NewClock creates a session clock for the given IANA zone. If the zone
// cannot be resolved the clock degrades to a fixed Eastern offset so
// trading-hours work is never silently skipped.
func NewClock(zone string, quotes QuoteSource, opts ...ClockOption) (*Clock, error) {
	var clockErr error
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
		clockErr = apperrors.NewClockError(zone, err)
	}

	c := &Clock{
		location:    loc,
		quotes:      quotes,
		indexSymbol: "SPY",
		weakPct:     1.0,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, clockErr
}

// Location returns the exchange's timezone.
func (c *Clock) Location() *time.Location {
	return c.location
}

// IsOpen reports whether now, in the exchange's local timezone, falls on
// a trading weekday within the session window.
func (c *Clock) IsOpen(now time.Time) bool {
	local := now.In(c.location)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	return minutes >= openMinutes && minutes < closeMinutes
}

// IsWeak reports whether the index's latest close is down more than the
// configured percentage from the prior close. Data-fetch failures fail
// closed: the error is logged and false is returned, never raised.
func (c *Clock) IsWeak(ctx context.Context) bool {
	if c.quotes == nil {
		return false
	}

	quotes, err := c.quotes.IndexHistory(ctx, c.indexSymbol, 2)
	if err != nil {
		c.logger.Error().Err(err).Str("symbol", c.indexSymbol).Msg("Index history fetch failed")
		return false
	}
	if len(quotes) < 2 {
		c.logger.Error().
			Err(apperrors.ErrNoQuoteHistory).
			Str("symbol", c.indexSymbol).
			Int("quotes", len(quotes)).
			Msg("Not enough closes for weakness check")
		return false
	}

	prev := quotes[len(quotes)-2].Close
	last := quotes[len(quotes)-1].Close
	if prev == 0 {
		return false
	}

	changePct := (last - prev) / prev * 100
	return changePct < -c.weakPct
}
