package search

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/justestif/go-reels-feed/internal/metrics"
	"github.com/justestif/go-reels-feed/internal/song"
)

// BreakerSettings tunes the per-connector circuit breaker.
type BreakerSettings struct {
	FailureThreshold uint32        // consecutive failures before opening; 0 uses 5
	OpenTimeout      time.Duration // time spent open before probing; 0 uses 30s
}

type fetchFunc func(ctx context.Context, q Query) ([]song.Song, error)

// guard turns a fallible fetch into a fail-soft connector call: it bounds the
// call with a timeout, short-circuits through a breaker while the upstream is
// failing, drops unplayable results and records metrics.
type guard struct {
	name    string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[[]song.Song]
	logger  zerolog.Logger
}

func newGuard(name string, opts Options) *guard {
	threshold := opts.Breaker.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := opts.Breaker.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	logger := opts.Logger.With().Str("connector", name).Logger()

	cb := gobreaker.NewCircuitBreaker[[]song.Song](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up (race lost, feed closed) says nothing about upstream health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetCircuitBreakerState(name, to.String())
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &guard{
		name:    name,
		timeout: opts.Timeout,
		cb:      cb,
		logger:  logger,
	}
}

func (g *guard) run(ctx context.Context, q Query, fetch fetchFunc) (out []song.Song) {
	start := time.Now()
	outcome := metrics.OutcomeEmpty
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error().Interface("panic", r).Str("query", q.Text).Msg("connector panicked")
			out, outcome = nil, metrics.OutcomeError
		}
		metrics.ObserveConnector(g.name, outcome, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	songs, err := g.cb.Execute(func() ([]song.Song, error) {
		return fetch(ctx, q)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = metrics.OutcomeOpen
		g.logger.Debug().Str("query", q.Text).Msg("circuit open, skipping connector")
		return nil
	case err != nil:
		outcome = metrics.OutcomeError
		g.logger.Debug().Err(err).Str("query", q.Text).Msg("connector failed")
		return nil
	}

	songs = song.FilterPlayable(songs)
	if len(songs) > 0 {
		outcome = metrics.OutcomeHit
	}
	return songs
}
