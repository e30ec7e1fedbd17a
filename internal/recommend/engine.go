// Package recommend builds personalized feed pages from preference state, the
// local library and the search connectors.
package recommend

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-reels-feed/internal/library"
	"github.com/justestif/go-reels-feed/internal/metrics"
	"github.com/justestif/go-reels-feed/internal/preference"
	"github.com/justestif/go-reels-feed/internal/search"
	"github.com/justestif/go-reels-feed/internal/song"
)

// Preferences is the preference state the engine reads and updates.
type Preferences interface {
	HasSignal() bool
	Seed(ins []preference.Interaction)
	TopArtistNames(limit int) []string
	IsArtistSkipped(artist string) bool
	IsSeen(id string) bool
	MarkSeen(ids ...string)
	Languages() []preference.LanguagePreference
}

// Config tunes page generation.
type Config struct {
	QueriesPerPage int
	PerQueryLimit  int
	TopArtistPool  int
	Modifiers      []string
	Denylist       []string // case-insensitive substrings of title or artist
}

// DefaultConfig returns the standard page shape: 6 queries, at most 5 songs each.
func DefaultConfig() Config {
	return Config{
		QueriesPerPage: 6,
		PerQueryLimit:  5,
		TopArtistPool:  10,
		Modifiers:      []string{"songs", "hit songs", "melody songs"},
	}
}

// defaultSeedDuration stands in for library songs with unknown length.
const defaultSeedDuration = 30 * time.Second

// Engine generates feed pages.
type Engine struct {
	prefs     Preferences
	lib       library.Library
	primary   search.Connector
	secondary search.Connector
	cfg       Config
	denylist  []string
	logger    zerolog.Logger
	now       func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	seedMu sync.Mutex
	seeded bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand makes query generation and shuffling deterministic.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		if r != nil {
			e.rng = r
		}
	}
}

// WithClock overrides the time source used for seeded interactions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an engine. lib and secondary may be nil.
func New(prefs Preferences, lib library.Library, primary, secondary search.Connector, cfg Config, logger zerolog.Logger, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.QueriesPerPage <= 0 {
		cfg.QueriesPerPage = def.QueriesPerPage
	}
	if cfg.PerQueryLimit <= 0 {
		cfg.PerQueryLimit = def.PerQueryLimit
	}
	if cfg.TopArtistPool <= 0 {
		cfg.TopArtistPool = def.TopArtistPool
	}
	if len(cfg.Modifiers) == 0 {
		cfg.Modifiers = def.Modifiers
	}

	deny := make([]string, 0, len(cfg.Denylist))
	for _, d := range cfg.Denylist {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			deny = append(deny, d)
		}
	}

	e := &Engine{
		prefs:     prefs,
		lib:       lib,
		primary:   primary,
		secondary: secondary,
		cfg:       cfg,
		denylist:  deny,
		logger:    logger,
		now:       time.Now,
		rng:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SeedFromLibrary turns every library song with a known artist into a liked,
// fully watched interaction when the preference store has no signal yet. It
// runs at most once per engine and returns the number of interactions added.
func (e *Engine) SeedFromLibrary(ctx context.Context) (int, error) {
	e.seedMu.Lock()
	defer e.seedMu.Unlock()
	if e.seeded {
		return 0, nil
	}
	if e.prefs.HasSignal() || e.lib == nil {
		e.seeded = true
		return 0, nil
	}

	songs, err := e.lib.Songs(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing library: %w", err)
	}
	e.seeded = true

	at := e.now()
	var ins []preference.Interaction
	for _, s := range songs {
		if strings.TrimSpace(s.Artist) == "" {
			continue
		}
		d := time.Duration(s.Duration) * time.Second
		if d <= 0 {
			d = defaultSeedDuration
		}
		ins = append(ins, preference.NewInteraction(s, d, d, true, at))
	}
	e.prefs.Seed(ins)

	e.logger.Info().Int("interactions", len(ins)).Msg("seeded preferences from library")
	return len(ins), nil
}

// FetchPersonalizedFeed produces one shuffled page of unseen songs and marks
// them seen. An empty page is a normal result; the error is non-nil only
// when ctx is done.
func (e *Engine) FetchPersonalizedFeed(ctx context.Context) ([]song.Song, error) {
	if _, err := e.SeedFromLibrary(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("seeding from library failed")
	}
	return e.fetchPage(ctx)
}

// LoadMoreSongs produces the next page. Seen filtering keeps it disjoint from
// earlier pages.
func (e *Engine) LoadMoreSongs(ctx context.Context) ([]song.Song, error) {
	return e.fetchPage(ctx)
}

func (e *Engine) fetchPage(ctx context.Context) ([]song.Song, error) {
	idx := e.libraryIndex(ctx)
	queries := e.generateQueries(e.cfg.QueriesPerPage, idx)

	perQuery := make([][]song.Song, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			raw := search.FanOut(gctx, q, e.primary, e.secondary)
			metrics.AddFeedSongs("raw", len(raw))
			perQuery[i] = e.filter(raw, idx)
			e.logger.Debug().Str("query", q.Text).Str("language", q.Language).
				Int("raw", len(raw)).Int("kept", len(perQuery[i])).Msg("query complete")
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var page []song.Song
	for _, songs := range perQuery {
		page = append(page, songs...)
	}
	e.shuffle(len(page), func(i, j int) { page[i], page[j] = page[j], page[i] })

	ids := make([]string, len(page))
	for i, s := range page {
		ids[i] = s.ID
	}
	e.prefs.MarkSeen(ids...)
	metrics.AddFeedSongs("kept", len(page))

	e.logger.Info().Int("queries", len(queries)).Int("songs", len(page)).Msg("feed page ready")
	return page, nil
}

// filter applies local substitution and the drop rules to one query's raw
// results, then dedups and truncates them.
func (e *Engine) filter(raw []song.Song, idx *library.Index) []song.Song {
	out := make([]song.Song, 0, e.cfg.PerQueryLimit)
	keys := make(map[string]bool, len(raw))
	for _, s := range raw {
		if local, ok := idx.Lookup(s.Title, s.Artist); ok {
			s = localize(s, local)
		}
		switch {
		case !s.Playable(),
			e.prefs.IsSeen(s.ID),
			e.prefs.IsArtistSkipped(s.Artist),
			e.Denied(s):
			continue
		}
		key := s.Key()
		if keys[key] {
			continue
		}
		keys[key] = true
		out = append(out, s)
		if len(out) == e.cfg.PerQueryLimit {
			break
		}
	}
	return out
}

// Denied reports whether s matches the content denylist.
func (e *Engine) Denied(s song.Song) bool {
	hay := strings.ToLower(s.Title + " " + s.Artist)
	for _, term := range e.denylist {
		if strings.Contains(hay, term) {
			return true
		}
	}
	return false
}

func localize(remote, local song.Song) song.Song {
	remote.IsLocal = true
	remote.Source = song.SourceLocal
	remote.StreamURL = local.StreamURL
	if local.HighResArt != "" {
		remote.HighResArt = local.HighResArt
	}
	if remote.Duration == 0 {
		remote.Duration = local.Duration
	}
	return remote
}

func (e *Engine) libraryIndex(ctx context.Context) *library.Index {
	if e.lib == nil {
		return library.NewIndex(nil)
	}
	songs, err := e.lib.Songs(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("reading library failed")
		return library.NewIndex(nil)
	}
	return library.NewIndex(songs)
}

func (e *Engine) shuffle(n int, swap func(i, j int)) {
	e.rngMu.Lock()
	e.rng.Shuffle(n, swap)
	e.rngMu.Unlock()
}

func (e *Engine) intN(n int) int {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.IntN(n)
}

func (e *Engine) float64() float64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64()
}
