package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/justestif/go-reels-feed/internal/metrics"
	"github.com/justestif/go-reels-feed/internal/song"
)

// Cascade tries its tiers in priority order and returns the first non-empty
// result. An all-empty cascade returns an empty result; that is a normal
// outcome. A Cascade is itself a Connector so cascades nest.
type Cascade struct {
	name           string
	tiers          []Connector
	attemptTimeout time.Duration
	logger         zerolog.Logger
}

// NewCascade creates a cascade over tiers. attemptTimeout bounds each tier;
// zero leaves tiers bounded only by their own timeouts.
func NewCascade(name string, attemptTimeout time.Duration, logger zerolog.Logger, tiers ...Connector) *Cascade {
	kept := make([]Connector, 0, len(tiers))
	for _, t := range tiers {
		if t != nil {
			kept = append(kept, t)
		}
	}
	return &Cascade{
		name:           name,
		tiers:          kept,
		attemptTimeout: attemptTimeout,
		logger:         logger.With().Str("cascade", name).Logger(),
	}
}

func (c *Cascade) Name() string { return c.name }

// Tiers returns the connectors in priority order.
func (c *Cascade) Tiers() []Connector {
	return append([]Connector(nil), c.tiers...)
}

func (c *Cascade) Search(ctx context.Context, q Query) []song.Song {
	for _, tier := range c.tiers {
		if ctx.Err() != nil {
			break
		}
		if songs := c.attempt(ctx, tier, q); len(songs) > 0 {
			c.logger.Debug().Str("tier", tier.Name()).Int("results", len(songs)).Str("query", q.Text).Msg("cascade hit")
			metrics.RecordCascade(c.name, true)
			return songs
		}
	}
	c.logger.Debug().Str("query", q.Text).Msg("cascade exhausted")
	metrics.RecordCascade(c.name, false)
	return nil
}

func (c *Cascade) attempt(ctx context.Context, tier Connector, q Query) []song.Song {
	if c.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()
	}
	return tier.Search(ctx, q)
}

// Race runs its connectors concurrently; the first non-empty result wins and
// the others are cancelled.
type Race struct {
	name       string
	connectors []Connector
}

// NewRace creates a race over connectors.
func NewRace(connectors ...Connector) *Race {
	names := make([]string, len(connectors))
	for i, c := range connectors {
		names[i] = c.Name()
	}
	return &Race{
		name:       "race(" + strings.Join(names, ",") + ")",
		connectors: connectors,
	}
}

func (r *Race) Name() string { return r.name }

func (r *Race) Search(ctx context.Context, q Query) []song.Song {
	switch len(r.connectors) {
	case 0:
		return nil
	case 1:
		return r.connectors[0].Search(ctx, q)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan []song.Song, len(r.connectors))
	for _, c := range r.connectors {
		go func() {
			results <- c.Search(ctx, q)
		}()
	}

	for range r.connectors {
		if songs := <-results; len(songs) > 0 {
			return songs
		}
	}
	return nil
}

// FanOut queries primary and secondary concurrently and returns primary's
// results followed by secondary's. Either side may be nil; each side's
// failure only removes its own contribution.
func FanOut(ctx context.Context, q Query, primary, secondary Connector) []song.Song {
	var a, b []song.Song
	var wg sync.WaitGroup
	if primary != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a = primary.Search(ctx, q)
		}()
	}
	if secondary != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b = secondary.Search(ctx, q)
		}()
	}
	wg.Wait()

	out := make([]song.Song, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
