// Package app wires configuration into a running feed: storage, search,
// preferences, recommendations, audio and the control API.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/justestif/go-reels-feed/internal/buffer"
	"github.com/justestif/go-reels-feed/internal/config"
	"github.com/justestif/go-reels-feed/internal/feed"
	"github.com/justestif/go-reels-feed/internal/library"
	"github.com/justestif/go-reels-feed/internal/log"
	"github.com/justestif/go-reels-feed/internal/media"
	"github.com/justestif/go-reels-feed/internal/media/speaker"
	"github.com/justestif/go-reels-feed/internal/preference"
	"github.com/justestif/go-reels-feed/internal/recommend"
	"github.com/justestif/go-reels-feed/internal/storage"
	"github.com/justestif/go-reels-feed/internal/web"
)

// nullTick is how often the null output advances its clock.
const nullTick = 20 * time.Millisecond

// App owns every long-lived component. There is one of each per process.
type App struct {
	Config     *config.Config
	Prefs      *preference.Store
	Library    *library.SQLite // nil when the library is disabled
	Connectors Connectors
	Engine     *recommend.Engine

	logger zerolog.Logger
	kv     storage.Store

	mu         sync.Mutex
	controller *feed.Controller
	player     *buffer.Manager
	stopClock  context.CancelFunc
	closed     bool
}

// New opens storage and the library, builds search and the recommendation
// engine, and loads persisted preferences. Audio is not touched until
// OpenFeed.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := log.WithComponent("app")

	if cfg.Storage.Backend != "memory" {
		if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating storage dir: %w", err)
		}
	}
	kv, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	a := &App{Config: cfg, logger: logger, kv: kv}

	if cfg.Library.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Library.Path), 0o755); err != nil {
			a.Close()
			return nil, fmt.Errorf("creating library dir: %w", err)
		}
		lib, err := library.OpenSQLite(ctx, cfg.Library.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening library: %w", err)
		}
		a.Library = lib
	}

	a.Prefs = preference.NewStore(kv, log.WithComponent("preference"))
	if err := a.Prefs.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("loading preferences failed, starting fresh")
	}

	a.Connectors = NewConnectors(ctx, cfg.Search, log.WithComponent("search"))

	var opts []recommend.Option
	if cfg.Recommend.Seed != 0 {
		opts = append(opts, recommend.WithRand(rand.New(rand.NewPCG(uint64(cfg.Recommend.Seed), 0x5eed))))
	}
	var lib library.Library
	if a.Library != nil {
		lib = a.Library
	}
	a.Engine = recommend.New(a.Prefs, lib, a.Connectors.Primary, a.Connectors.Secondary, recommend.Config{
		QueriesPerPage: cfg.Recommend.QueriesPerPage,
		PerQueryLimit:  cfg.Recommend.PerQueryLimit,
		TopArtistPool:  cfg.Recommend.TopArtistPool,
		Modifiers:      cfg.Recommend.Modifiers,
		Denylist:       cfg.Recommend.Denylist,
	}, log.WithComponent("recommend"), opts...)

	logger.Info().
		Str("storage", cfg.Storage.Backend).
		Bool("library", a.Library != nil).
		Int("discover_tiers", len(a.Connectors.Discover.Tiers())).
		Msg("app initialized")
	return a, nil
}

// OpenFeed builds the audio output, buffer manager and feed controller and
// opens the feed. It is idempotent.
func (a *App) OpenFeed(ctx context.Context) (*feed.Controller, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, errors.New("app closed")
	}
	if a.controller != nil {
		return a.controller, nil
	}

	cfg := a.Config
	var (
		output  media.Output
		session buffer.Session
	)
	switch cfg.Buffer.Output {
	case "null":
		null := media.NewNullOutput(speaker.DefaultSampleRate)
		clockCtx, cancel := context.WithCancel(context.Background())
		go null.Run(clockCtx, nullTick)
		a.stopClock = cancel
		output = null
	default:
		sp := speaker.New(speaker.DefaultSampleRate, speaker.DefaultBufferSize, log.WithComponent("speaker"))
		output, session = sp, sp
	}

	loader := media.NewLoader(output, media.WithLogger(log.WithComponent("media")))
	bufOpts := []buffer.Option{
		buffer.WithConfig(buffer.Config{
			Behind:      cfg.Buffer.Behind,
			Ahead:       cfg.Buffer.Ahead,
			Stagger:     cfg.Buffer.Stagger,
			LoadTimeout: cfg.Buffer.LoadTimeout,
		}),
		buffer.WithLogger(log.WithComponent("buffer")),
	}
	if session != nil {
		bufOpts = append(bufOpts, buffer.WithSession(session))
	}
	a.player = buffer.New(loader, bufOpts...)

	feedOpts := []feed.Option{
		feed.WithDiscover(a.Connectors.Discover),
		feed.WithNearEndThreshold(cfg.Feed.NearEndThreshold),
		feed.WithLogger(log.WithComponent("feed")),
	}
	if a.Library != nil && cfg.Library.DownloadDir != "" {
		dl := library.NewDownloader(cfg.Library.DownloadDir, a.Library, log.WithComponent("download"),
			library.WithConcurrency(cfg.Library.DownloadConcurrency))
		feedOpts = append(feedOpts, feed.WithDownloader(dl))
	}
	c := feed.NewController(feed.NewStore(), a.player, a.Engine, a.Prefs, feedOpts...)
	if err := c.Open(ctx); err != nil {
		c.Close()
		a.player.Wait()
		return nil, fmt.Errorf("opening feed: %w", err)
	}
	a.controller = c
	return c, nil
}

// Server returns the control API for an opened feed.
func (a *App) Server(c *feed.Controller) *web.Server {
	cfg := a.Config.Server
	h := web.NewHandlers(c, a.Prefs, a.Connectors.Discover, log.WithComponent("api"))
	return web.NewServer(web.ServerConfig{
		Addr:            cfg.Addr,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		RequestsPerMin:  cfg.RequestsPerMin,
	}, h, log.WithComponent("web"))
}

// Close releases audio, flushes preferences and closes storage. It is safe
// to call more than once.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	if a.controller != nil {
		a.controller.Close()
	}
	if a.player != nil {
		a.player.Wait()
	}
	if a.stopClock != nil {
		a.stopClock()
	}
	if a.Prefs != nil {
		a.Prefs.Flush()
	}

	var errs []error
	if a.Library != nil {
		if err := a.Library.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing library: %w", err))
		}
	}
	if err := a.kv.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing storage: %w", err))
	}
	return errors.Join(errs...)
}
