package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/justestif/go-reels-feed/internal/buffer"
	"github.com/justestif/go-reels-feed/internal/library"
	"github.com/justestif/go-reels-feed/internal/preference"
	"github.com/justestif/go-reels-feed/internal/search"
	"github.com/justestif/go-reels-feed/internal/song"
)

const (
	// DefaultNearEndThreshold is how many songs may remain after the current
	// one before the next page is requested.
	DefaultNearEndThreshold = 3
	// DiscoverLimit caps how many songs one discover call inserts.
	DiscoverLimit = 10
)

var (
	// ErrDiscoverUnavailable is returned when no discover connector is set.
	ErrDiscoverUnavailable = errors.New("discover is not configured")
	// ErrDownloadsDisabled is returned when no downloader is set.
	ErrDownloadsDisabled = errors.New("vault downloads are not configured")
)

// Recommender produces feed pages.
type Recommender interface {
	FetchPersonalizedFeed(ctx context.Context) ([]song.Song, error)
	LoadMoreSongs(ctx context.Context) ([]song.Song, error)
}

// Preferences records interactions.
type Preferences interface {
	Load(ctx context.Context) error
	RecordInteraction(in preference.Interaction)
	Flush()
}

// Player is the buffer manager surface the controller drives.
type Player interface {
	Enter() error
	Exit()
	Begin(index int, songs []song.Song, play bool) buffer.Transition
	Settle(ctx context.Context, t buffer.Transition)
	Refresh(songs []song.Song)
	Pause()
	Resume()
	SeekTo(pos time.Duration)
	StopAll()
	SetSuspended(suspended bool)
	ActiveStatus() (buffer.Status, bool)
}

// Downloader saves songs into the local library.
type Downloader interface {
	Download(ctx context.Context, songs []song.Song) (library.Result, error)
}

// Controller is the feed screen: it turns viewability and gesture events
// into store mutations, buffer transitions and recorded interactions.
type Controller struct {
	store      *Store
	player     Player
	engine     Recommender
	prefs      Preferences
	discover   search.Connector
	downloader Downloader
	nearEnd    int
	logger     zerolog.Logger
	now        func() time.Time

	session string

	// moveMu orders every change of the current index or of the song list
	// together with the buffer's active index. It is never held across a
	// media load.
	moveMu sync.Mutex

	mu          sync.Mutex
	activeSong  song.Song
	activeSince time.Time
	hasActive   bool

	loadingMore atomic.Bool
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// Option configures a Controller.
type Option func(*Controller)

// WithDiscover sets the connector used by Discover.
func WithDiscover(c search.Connector) Option {
	return func(ctl *Controller) { ctl.discover = c }
}

// WithDownloader enables DownloadVault.
func WithDownloader(d Downloader) Option {
	return func(ctl *Controller) { ctl.downloader = d }
}

// WithNearEndThreshold overrides DefaultNearEndThreshold.
func WithNearEndThreshold(n int) Option {
	return func(ctl *Controller) {
		if n >= 0 {
			ctl.nearEnd = n
		}
	}
}

// WithClock overrides the clock used for watch durations.
func WithClock(now func() time.Time) Option {
	return func(ctl *Controller) {
		if now != nil {
			ctl.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(ctl *Controller) { ctl.logger = logger }
}

// NewController wires a feed screen.
func NewController(store *Store, player Player, engine Recommender, prefs Preferences, opts ...Option) *Controller {
	c := &Controller{
		store:   store,
		player:  player,
		engine:  engine,
		prefs:   prefs,
		nearEnd: DefaultNearEndThreshold,
		logger:  zerolog.Nop(),
		now:     time.Now,
		session: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("session", c.session).Logger()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Session identifies this feed screen instance.
func (c *Controller) Session() string { return c.session }

// Store returns the feed store.
func (c *Controller) Store() *Store { return c.store }

// Open claims audio, rehydrates preferences, loads the first page and
// activates its first song.
func (c *Controller) Open(ctx context.Context) error {
	if err := c.player.Enter(); err != nil {
		return fmt.Errorf("entering feed mode: %w", err)
	}
	if err := c.prefs.Load(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("loading preferences failed, starting fresh")
	}

	c.store.SetLoading(true)
	page, err := c.engine.FetchPersonalizedFeed(ctx)
	c.store.SetLoading(false)
	if err != nil {
		return fmt.Errorf("fetching feed: %w", err)
	}

	n := c.store.SetSongs(page)
	c.logger.Info().Int("songs", n).Msg("feed opened")
	if n == 0 {
		return nil
	}
	return c.activate(ctx, 0)
}

// OnViewableIndexChanged handles the screen settling on index: the song
// being left is recorded as an interaction, the buffer moves, and a new
// page is requested in the background when the end is near.
func (c *Controller) OnViewableIndexChanged(ctx context.Context, index int) error {
	c.moveMu.Lock()
	if index == c.store.CurrentIndex() {
		c.moveMu.Unlock()
		return nil
	}
	if _, ok := c.store.Song(index); !ok {
		c.moveMu.Unlock()
		return ErrIndexOutOfRange
	}
	c.recordLeaving()
	t, err := c.beginLocked(index)
	c.moveMu.Unlock()
	if err != nil {
		return err
	}

	c.player.Settle(ctx, t)
	c.maybeLoadMore(index)
	return nil
}

func (c *Controller) activate(ctx context.Context, index int) error {
	c.moveMu.Lock()
	t, err := c.beginLocked(index)
	c.moveMu.Unlock()
	if err != nil {
		return err
	}
	c.player.Settle(ctx, t)
	return nil
}

// beginLocked makes index current in the store and in the buffer. Callers
// hold moveMu and settle the returned transition after releasing it.
func (c *Controller) beginLocked(index int) (buffer.Transition, error) {
	if err := c.store.SetCurrentIndex(index); err != nil {
		return buffer.Transition{}, err
	}
	s, _ := c.store.Song(index)

	c.mu.Lock()
	c.activeSong = s
	c.activeSince = c.now()
	c.hasActive = true
	c.mu.Unlock()

	return c.player.Begin(index, c.store.Songs(), true), nil
}

// recordLeaving records how long the active song was watched.
func (c *Controller) recordLeaving() {
	c.mu.Lock()
	if !c.hasActive {
		c.mu.Unlock()
		return
	}
	s, since := c.activeSong, c.activeSince
	c.hasActive = false
	c.mu.Unlock()

	now := c.now()
	watch := now.Sub(since)
	total := time.Duration(s.Duration) * time.Second
	if total <= 0 {
		if st, ok := c.player.ActiveStatus(); ok {
			total = st.Duration
		}
	}
	c.prefs.RecordInteraction(preference.NewInteraction(s, watch, total, c.store.InVault(s.ID), now))
}

func (c *Controller) maybeLoadMore(index int) {
	if c.store.Len()-1-index > c.nearEnd {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.LoadMore(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn().Err(err).Msg("loading more songs failed")
		}
	}()
}

// LoadMore appends the next page. Only one page load runs at a time; a
// call made while another is running returns 0 immediately.
func (c *Controller) LoadMore(ctx context.Context) (int, error) {
	if !c.loadingMore.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer c.loadingMore.Store(false)

	c.store.SetLoading(true)
	defer c.store.SetLoading(false)

	page, err := c.engine.LoadMoreSongs(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading more songs: %w", err)
	}
	c.moveMu.Lock()
	n := c.store.AppendSongs(page)
	if n > 0 {
		c.player.Refresh(c.store.Songs())
	}
	c.moveMu.Unlock()
	c.logger.Debug().Int("added", n).Int("total", c.store.Len()).Msg("feed extended")
	return n, nil
}

// Refresh replaces the feed with a fresh page. An empty page leaves the
// current feed in place.
func (c *Controller) Refresh(ctx context.Context) (int, error) {
	c.store.SetLoading(true)
	page, err := c.engine.FetchPersonalizedFeed(ctx)
	c.store.SetLoading(false)
	if err != nil {
		return 0, fmt.Errorf("refreshing feed: %w", err)
	}
	if len(song.FilterPlayable(page)) == 0 {
		c.logger.Info().Msg("refresh returned nothing, keeping feed")
		return 0, nil
	}

	c.moveMu.Lock()
	c.recordLeaving()
	c.player.Exit()
	if err := c.player.Enter(); err != nil {
		c.moveMu.Unlock()
		return 0, fmt.Errorf("entering feed mode: %w", err)
	}
	n := c.store.SetSongs(page)
	t, err := c.beginLocked(0)
	c.moveMu.Unlock()
	if err != nil {
		return n, err
	}
	c.player.Settle(ctx, t)
	return n, nil
}

// ToggleLike saves or unsaves the current song and reports whether it is
// now saved.
func (c *Controller) ToggleLike() (bool, error) {
	s, ok := c.store.CurrentSong()
	if !ok {
		return false, ErrNoCurrentSong
	}
	return c.store.ToggleVault(s), nil
}

func (c *Controller) Pause()  { c.player.Pause() }
func (c *Controller) Resume() { c.player.Resume() }

// TogglePlayback pauses a playing song or resumes a paused one and returns
// whether it is now playing.
func (c *Controller) TogglePlayback() bool {
	if st, ok := c.player.ActiveStatus(); ok && st.Playing {
		c.player.Pause()
		return false
	}
	c.player.Resume()
	st, _ := c.player.ActiveStatus()
	return st.Playing
}

// SeekTo moves the current song to pos.
func (c *Controller) SeekTo(pos time.Duration) { c.player.SeekTo(pos) }

// PlaybackStatus reports the current song's progress.
func (c *Controller) PlaybackStatus() (buffer.Status, bool) { return c.player.ActiveStatus() }

// SetVisible suspends playback while the feed is hidden and resumes the
// current song when it is shown again.
func (c *Controller) SetVisible(visible bool) {
	if !visible {
		c.player.SetSuspended(true)
		c.player.Pause()
		return
	}
	c.player.SetSuspended(false)
	c.player.Resume()
}

// Discover searches for query, or the current artist when query is empty,
// and inserts the results right after the current song.
func (c *Controller) Discover(ctx context.Context, query string) (int, error) {
	if c.discover == nil {
		return 0, ErrDiscoverUnavailable
	}
	if query == "" {
		s, ok := c.store.CurrentSong()
		if !ok {
			return 0, ErrNoCurrentSong
		}
		query = s.Artist
	}

	results := c.discover.Search(ctx, search.Query{Text: query})
	if len(results) > DiscoverLimit {
		results = results[:DiscoverLimit]
	}
	c.moveMu.Lock()
	n, err := c.store.InsertAfter(c.store.CurrentIndex(), results)
	if err == nil && n > 0 {
		c.player.Refresh(c.store.Songs())
	}
	c.moveMu.Unlock()
	if err != nil {
		return 0, err
	}
	c.logger.Info().Str("query", query).Int("inserted", n).Msg("discover")
	return n, nil
}

// DownloadVault saves every vault song into the local library.
func (c *Controller) DownloadVault(ctx context.Context) (library.Result, error) {
	if c.downloader == nil {
		return library.Result{}, ErrDownloadsDisabled
	}
	return c.downloader.Download(ctx, c.store.Vault())
}

// Close records the final interaction, stops background page loads,
// releases audio and waits for preference writes.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.moveMu.Lock()
		c.recordLeaving()
		c.moveMu.Unlock()
		c.cancel()
		c.wg.Wait()
		c.player.StopAll()
		c.player.Exit()
		c.prefs.Flush()
		c.logger.Info().Msg("feed closed")
	})
}
