package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-reels-feed/internal/buffer"
	"github.com/justestif/go-reels-feed/internal/library"
	"github.com/justestif/go-reels-feed/internal/preference"
	"github.com/justestif/go-reels-feed/internal/search"
	"github.com/justestif/go-reels-feed/internal/song"
	"github.com/justestif/go-reels-feed/internal/storage"
)

type fakePlayer struct {
	mu        sync.Mutex
	enters    int
	exits     int
	updates   []int
	autoplay  bool
	refreshes int
	suspended bool
	playing   bool
	seek      time.Duration
	stopped   bool
}

func (p *fakePlayer) Enter() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enters++
	return nil
}

func (p *fakePlayer) Exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exits++
	p.playing = false
}

func (p *fakePlayer) Begin(index int, _ []song.Song, play bool) buffer.Transition {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, index)
	p.autoplay = play
	return buffer.Transition{}
}

func (p *fakePlayer) Settle(context.Context, buffer.Transition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = p.autoplay && !p.suspended
}

func (p *fakePlayer) Refresh([]song.Song) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshes++
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

func (p *fakePlayer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = !p.suspended
}

func (p *fakePlayer) SeekTo(pos time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seek = pos
}

func (p *fakePlayer) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	p.playing = false
}

func (p *fakePlayer) SetSuspended(s bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suspended = s
}

func (p *fakePlayer) ActiveStatus() (buffer.Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return buffer.Status{Duration: 90 * time.Second, Playing: p.playing}, true
}

type fakeEngine struct {
	mu    sync.Mutex
	pages [][]song.Song
	calls int
	block chan struct{}
}

func (e *fakeEngine) next(ctx context.Context) ([]song.Song, error) {
	e.mu.Lock()
	e.calls++
	block := e.block
	var page []song.Song
	if len(e.pages) > 0 {
		page, e.pages = e.pages[0], e.pages[1:]
	}
	e.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return page, nil
}

func (e *fakeEngine) FetchPersonalizedFeed(ctx context.Context) ([]song.Song, error) {
	return e.next(ctx)
}

func (e *fakeEngine) LoadMoreSongs(ctx context.Context) ([]song.Song, error) {
	return e.next(ctx)
}

type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	results []song.Song
}

func (f *fakeSearch) Name() string { return "fake" }

func (f *fakeSearch) Search(_ context.Context, q search.Query) []song.Song {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q.Text)
	return f.results
}

type fakeDownloader struct{ got []song.Song }

func (d *fakeDownloader) Download(_ context.Context, ss []song.Song) (library.Result, error) {
	d.got = ss
	return library.Result{Saved: ss}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	ctl    *Controller
	player *fakePlayer
	engine *fakeEngine
	prefs  *preference.Store
	clock  *clock
}

func newHarness(t *testing.T, pages [][]song.Song, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		player: &fakePlayer{},
		engine: &fakeEngine{pages: pages},
		prefs:  preference.NewStore(storage.NewMemory(), zerolog.Nop()),
		clock:  &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
	}
	opts = append([]Option{WithClock(h.clock.Now)}, opts...)
	h.ctl = NewController(NewStore(), h.player, h.engine, h.prefs, opts...)
	t.Cleanup(h.ctl.Close)
	return h
}

func TestControllerOpen(t *testing.T) {
	h := newHarness(t, [][]song.Song{songs("a", "b", "c")})
	require.NoError(t, h.ctl.Open(context.Background()))

	st := h.ctl.Store().Snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, ids(st.Songs))
	assert.Equal(t, 0, st.CurrentIndex)
	assert.False(t, st.Loading)
	assert.Equal(t, 1, h.player.enters)
	assert.Equal(t, []int{0}, h.player.updates)
	assert.NotEmpty(t, h.ctl.Session())
}

func TestControllerOpenEmptyFeed(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctl.Open(context.Background()))
	assert.Equal(t, -1, h.ctl.Store().CurrentIndex())
	assert.Empty(t, h.player.updates)
}

func TestControllerRecordsInteractions(t *testing.T) {
	h := newHarness(t, [][]song.Song{songs("a", "b", "c", "d", "e", "f", "g", "h")})
	ctx := context.Background()
	require.NoError(t, h.ctl.Open(ctx))

	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.ctl.OnViewableIndexChanged(ctx, 1))

	liked, err := h.ctl.ToggleLike()
	require.NoError(t, err)
	assert.True(t, liked)

	h.clock.Advance(time.Second)
	require.NoError(t, h.ctl.OnViewableIndexChanged(ctx, 2))

	ins := h.prefs.Snapshot().Interactions
	require.Len(t, ins, 2)
	assert.Equal(t, "a", ins[0].SongID)
	assert.Equal(t, 10.0, ins[0].WatchDuration)
	assert.Equal(t, 200.0, ins[0].TotalDuration)
	assert.False(t, ins[0].Liked)
	assert.False(t, ins[0].Skipped)

	assert.Equal(t, "b", ins[1].SongID)
	assert.True(t, ins[1].Liked)
	assert.True(t, ins[1].Skipped)

	assert.Equal(t, []int{0, 1, 2}, h.player.updates)
	require.NoError(t, h.ctl.OnViewableIndexChanged(ctx, 2), "same index is a no-op")
	assert.Len(t, h.prefs.Snapshot().Interactions, 2)
	assert.ErrorIs(t, h.ctl.OnViewableIndexChanged(ctx, 99), ErrIndexOutOfRange)
}

func TestControllerLoadsMoreNearEnd(t *testing.T) {
	h := newHarness(t, [][]song.Song{songs("a", "b", "c", "d", "e"), songs("f", "g")})
	ctx := context.Background()
	require.NoError(t, h.ctl.Open(ctx))

	require.NoError(t, h.ctl.OnViewableIndexChanged(ctx, 1))
	assert.Eventually(t, func() bool { return h.ctl.Store().Len() == 7 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		h.player.mu.Lock()
		defer h.player.mu.Unlock()
		return h.player.refreshes == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestControllerLoadMoreSingleFlight(t *testing.T) {
	h := newHarness(t, [][]song.Song{songs("a"), songs("b")})
	ctx := context.Background()
	require.NoError(t, h.ctl.Open(ctx))

	block := make(chan struct{})
	h.engine.mu.Lock()
	h.engine.block = block
	h.engine.mu.Unlock()

	done := make(chan int)
	go func() {
		n, _ := h.ctl.LoadMore(ctx)
		done <- n
	}()
	assert.Eventually(t, func() bool { return h.ctl.Store().Loading() }, 2*time.Second, 5*time.Millisecond)

	n, err := h.ctl.LoadMore(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	close(block)
	assert.Equal(t, 1, <-done)
	assert.False(t, h.ctl.Store().Loading())
}

func TestControllerDiscover(t *testing.T) {
	found := &fakeSearch{results: songs("x", "y", "a")}
	h := newHarness(t, [][]song.Song{songs("a", "b")}, WithDiscover(found))
	ctx := context.Background()
	require.NoError(t, h.ctl.Open(ctx))

	n, err := h.ctl.Discover(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"Artist a"}, found.queries)
	assert.Equal(t, []string{"a", "x", "y", "b"}, ids(h.ctl.Store().Songs()))
	assert.Equal(t, 1, h.player.refreshes)

	_, err = h.ctl.Discover(ctx, "lofi")
	require.NoError(t, err)
	assert.Equal(t, "lofi", found.queries[1])
}

func TestControllerDiscoverUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.ctl.Discover(context.Background(), "x")
	assert.ErrorIs(t, err, ErrDiscoverUnavailable)
}

func TestControllerPlayback(t *testing.T) {
	h := newHarness(t, [][]song.Song{songs("a", "b")})
	require.NoError(t, h.ctl.Open(context.Background()))

	assert.False(t, h.ctl.TogglePlayback())
	assert.True(t, h.ctl.TogglePlayback())

	h.ctl.SeekTo(30 * time.Second)
	assert.Equal(t, 30*time.Second, h.player.seek)

	h.ctl.SetVisible(false)
	assert.True(t, h.player.suspended)
	st, _ := h.ctl.PlaybackStatus()
	assert.False(t, st.Playing)

	h.ctl.SetVisible(true)
	st, _ = h.ctl.PlaybackStatus()
	assert.True(t, st.Playing)
}

func TestControllerRefresh(t *testing.T) {
	h := newHarness(t, [][]song.Song{songs("a", "b"), nil, songs("c", "d")})
	ctx := context.Background()
	require.NoError(t, h.ctl.Open(ctx))

	n, err := h.ctl.Refresh(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{"a", "b"}, ids(h.ctl.Store().Songs()), "empty refresh keeps the feed")

	n, err = h.ctl.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"c", "d"}, ids(h.ctl.Store().Songs()))
	assert.Equal(t, 0, h.ctl.Store().CurrentIndex())
	assert.Equal(t, 1, h.player.exits)
	assert.Len(t, h.prefs.Snapshot().Interactions, 1)
}

func TestControllerDownloadVault(t *testing.T) {
	h := newHarness(t, [][]song.Song{songs("a", "b")})
	_, err := h.ctl.DownloadVault(context.Background())
	assert.ErrorIs(t, err, ErrDownloadsDisabled)

	d := &fakeDownloader{}
	h = newHarness(t, [][]song.Song{songs("a", "b")}, WithDownloader(d))
	require.NoError(t, h.ctl.Open(context.Background()))
	_, err = h.ctl.ToggleLike()
	require.NoError(t, err)

	res, err := h.ctl.DownloadVault(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(res.Saved))
	assert.Equal(t, []string{"a"}, ids(d.got))
}

func TestControllerClose(t *testing.T) {
	h := newHarness(t, [][]song.Song{songs("a")})
	require.NoError(t, h.ctl.Open(context.Background()))
	h.clock.Advance(5 * time.Second)

	h.ctl.Close()
	h.ctl.Close()

	assert.Equal(t, 1, h.player.exits)
	assert.True(t, h.player.stopped)
	ins := h.prefs.Snapshot().Interactions
	require.Len(t, ins, 1)
	assert.Equal(t, 5.0, ins[0].WatchDuration)
}
