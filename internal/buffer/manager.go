package buffer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/justestif/go-reels-feed/internal/metrics"
	"github.com/justestif/go-reels-feed/internal/song"
)

// Manager owns the resident slots and the pending loads. All state changes
// go through its methods.
type Manager struct {
	loader  Loader
	session Session
	cfg     Config
	logger  zerolog.Logger

	mu        sync.Mutex
	entered   bool
	active    int
	gen       uint64 // bumped on every active or content change
	epoch     uint64 // bumped on Exit
	songs     []song.Song
	slots     map[int]*Slot
	pending   map[int]*pendingLoad
	autoplay  bool
	suspended bool
	onStatus  func(Status)
	ctx       context.Context
	cancel    context.CancelFunc

	// playMu serializes every transition into the playing state.
	playMu sync.Mutex
	wg     sync.WaitGroup
}

type pendingLoad struct {
	songID string
	epoch  uint64
	done   chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig replaces the window configuration. Behind and Stagger are taken
// as given, zero included, so callers start from DefaultConfig and change
// what they need. A zero Ahead or LoadTimeout falls back to its default.
// Negative values are ignored.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		def := DefaultConfig()
		if cfg.Behind >= 0 {
			m.cfg.Behind = cfg.Behind
		}
		switch {
		case cfg.Ahead > 0:
			m.cfg.Ahead = cfg.Ahead
		case cfg.Ahead == 0:
			m.cfg.Ahead = def.Ahead
		}
		if cfg.Stagger >= 0 {
			m.cfg.Stagger = cfg.Stagger
		}
		switch {
		case cfg.LoadTimeout > 0:
			m.cfg.LoadTimeout = cfg.LoadTimeout
		case cfg.LoadTimeout == 0:
			m.cfg.LoadTimeout = def.LoadTimeout
		}
	}
}

// WithSession sets the audio session claimed by Enter and returned by Exit.
func WithSession(s Session) Option {
	return func(m *Manager) { m.session = s }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// New creates a manager with no active index.
func New(loader Loader, opts ...Option) *Manager {
	m := &Manager{
		loader:   loader,
		cfg:      DefaultConfig(),
		logger:   zerolog.Nop(),
		active:   -1,
		slots:    make(map[int]*Slot),
		pending:  make(map[int]*pendingLoad),
		autoplay: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Enter claims the audio session. It is a no-op while already entered.
func (m *Manager) Enter() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entered {
		return nil
	}
	if m.session != nil {
		if err := m.session.Activate(); err != nil {
			return fmt.Errorf("activating audio session: %w", err)
		}
	}
	m.entered = true
	return nil
}

// Exit releases every resident slot, forgets pending loads and returns the
// audio session. Loads still in flight release their handle on arrival.
func (m *Manager) Exit() {
	m.mu.Lock()
	m.cancel()
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.epoch++
	m.gen++
	m.active = -1
	m.songs = nil
	slots := m.slots
	m.slots = make(map[int]*Slot)
	m.pending = make(map[int]*pendingLoad)
	entered := m.entered
	m.entered = false
	m.mu.Unlock()

	for _, sl := range slots {
		m.release(sl)
	}
	metrics.SetBufferResident(0)

	if entered && m.session != nil {
		if err := m.session.Deactivate(); err != nil {
			m.logger.Warn().Err(err).Msg("deactivating audio session failed")
		}
	}
	m.logger.Debug().Int("released", len(slots)).Msg("buffer exited")
}

// Transition is an active-index change recorded by Begin and completed by
// Settle.
type Transition struct {
	index  int
	gen    uint64
	target song.Song
	valid  bool
	play   bool
	noop   bool
}

// Index is the position the transition activates.
func (t Transition) Index() int { return t.index }

// Begin makes index the active position of songs and asks the previous slot
// to stop. It does not block on media, so callers may hold their own lock
// across it to keep other state in step with ActiveIndex. Repeating the
// current index yields a no-op transition.
func (m *Manager) Begin(index int, songs []song.Song, play bool) Transition {
	m.mu.Lock()
	if index == m.active {
		m.mu.Unlock()
		return Transition{index: index, noop: true}
	}
	prevIndex := m.active
	prev := m.slots[prevIndex]
	m.active = index
	m.gen++
	m.songs = append([]song.Song(nil), songs...)
	m.autoplay = play
	t := Transition{index: index, gen: m.gen, play: play}
	if index >= 0 && index < len(m.songs) {
		t.valid = true
		t.target = m.songs[index]
	}
	m.mu.Unlock()

	if prev != nil && prev.Loaded {
		prev.Handle.SetStatusCallback(nil)
		m.stopAsync(prevIndex, prev.Handle)
	}
	return t
}

// Settle loads the slot t activated and, when t asked for playback, starts
// it from zero. Nothing plays if a later transition has moved on. It returns
// once the slot has settled; the rest of the window is reconciled in the
// background.
func (m *Manager) Settle(ctx context.Context, t Transition) {
	if t.noop {
		return
	}
	if t.valid && m.current(t.gen) {
		if sl := m.load(ctx, t.index, t.target); sl != nil && sl.Loaded {
			if t.play {
				m.play(t.index)
			} else {
				m.attach(t.index)
			}
		}
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.fill(t.gen)
	}()
}

// Update is Begin followed by Settle.
func (m *Manager) Update(ctx context.Context, index int, songs []song.Song, play bool) {
	m.Settle(ctx, m.Begin(index, songs, play))
}

// Refresh replaces the feed contents without moving the active index.
// Slots whose song no longer sits at their index are evicted and the window
// is refilled.
func (m *Manager) Refresh(songs []song.Song) {
	m.mu.Lock()
	m.songs = append([]song.Song(nil), songs...)
	m.gen++
	gen := m.gen
	var gone []*Slot
	for i, sl := range m.slots {
		if i >= len(m.songs) || m.songs[i].ID != sl.Song.ID {
			gone = append(gone, sl)
			delete(m.slots, i)
		}
	}
	active := m.active
	var target song.Song
	reload := false
	if active >= 0 && active < len(m.songs) {
		if _, ok := m.slots[active]; !ok {
			reload = true
			target = m.songs[active]
		}
	}
	play := m.autoplay
	base := m.ctx
	m.mu.Unlock()

	for _, sl := range gone {
		m.release(sl)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if reload {
			if sl := m.load(base, active, target); sl != nil && sl.Loaded && play {
				m.play(active)
			}
		}
		m.fill(gen)
	}()
}

// LoadSlot loads song s for index unless it is already resident or loading,
// in which case the caller shares the existing result. The slot is kept
// only if index is inside the window when the load completes.
func (m *Manager) LoadSlot(ctx context.Context, index int, s song.Song) (Slot, bool) {
	sl := m.load(ctx, index, s)
	if sl == nil {
		return Slot{}, false
	}
	return *sl, true
}

// Pause pauses the active slot. Missing or unloaded slots are ignored.
func (m *Manager) Pause() {
	if h := m.activeHandle(); h != nil {
		m.swallow("pause", h.Pause())
	}
}

// Resume resumes the active slot unless playback is suspended.
func (m *Manager) Resume() {
	m.playMu.Lock()
	defer m.playMu.Unlock()
	if m.Suspended() {
		return
	}
	if h := m.activeHandle(); h != nil {
		m.swallow("resume", h.Resume())
	}
}

// SeekTo moves the active slot to pos.
func (m *Manager) SeekTo(pos time.Duration) {
	if h := m.activeHandle(); h != nil {
		m.swallow("seek", h.Seek(pos))
	}
}

// StopAll stops every resident slot without unloading it.
func (m *Manager) StopAll() {
	m.mu.Lock()
	var handles []Handle
	for _, sl := range m.slots {
		if sl.Loaded {
			handles = append(handles, sl.Handle)
		}
	}
	m.mu.Unlock()

	for _, h := range handles {
		m.swallow("stop", h.Stop())
	}
}

// SetSuspended gates playback starts. Loaded slots are left alone.
func (m *Manager) SetSuspended(suspended bool) {
	m.mu.Lock()
	m.suspended = suspended
	m.mu.Unlock()
}

// Suspended reports whether playback starts are gated.
func (m *Manager) Suspended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended
}

// SetStatusCallback registers the progress observer for whichever slot is
// active. It follows the active slot across index changes.
func (m *Manager) SetStatusCallback(fn func(Status)) {
	m.mu.Lock()
	m.onStatus = fn
	m.mu.Unlock()
	if h := m.activeHandle(); h != nil {
		h.SetStatusCallback(fn)
	}
}

// ActiveIndex returns the active index, or -1.
func (m *Manager) ActiveIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// ActiveStatus reports the active slot's playback status.
func (m *Manager) ActiveStatus() (Status, bool) {
	h := m.activeHandle()
	if h == nil {
		return Status{}, false
	}
	return h.Status(), true
}

// ResidentIndices returns the resident slot indices in ascending order.
func (m *Manager) ResidentIndices() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.residentLocked()
}

// Slot returns a copy of the slot at index.
func (m *Manager) Slot(index int) (Slot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sl, ok := m.slots[index]
	if !ok {
		return Slot{}, false
	}
	return *sl, true
}

// Wait blocks until background loads, fills and stops have finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) load(ctx context.Context, index int, s song.Song) *Slot {
	m.mu.Lock()
	if sl, ok := m.slots[index]; ok && sl.Song.ID == s.ID {
		m.mu.Unlock()
		return sl
	}
	if p, ok := m.pending[index]; ok && p.songID == s.ID {
		m.mu.Unlock()
		metrics.RecordBufferLoad(metrics.LoadDeduped)
		select {
		case <-p.done:
		case <-ctx.Done():
			return nil
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if sl, ok := m.slots[index]; ok && sl.Song.ID == s.ID {
			return sl
		}
		return nil
	}
	p := &pendingLoad{songID: s.ID, epoch: m.epoch, done: make(chan struct{})}
	m.pending[index] = p
	base := m.ctx
	m.mu.Unlock()
	defer close(p.done)

	lctx, cancel := context.WithTimeout(base, m.cfg.LoadTimeout)
	h, err := m.loader.Load(lctx, s)
	cancel()

	m.mu.Lock()
	if m.pending[index] == p {
		delete(m.pending, index)
	}
	lo, hi := WindowBounds(m.active, m.cfg.Behind, m.cfg.Ahead, len(m.songs))
	keep := p.epoch == m.epoch && index >= lo && index <= hi && m.songs[index].ID == s.ID
	var sl, replaced *Slot
	if keep {
		replaced = m.slots[index]
		sl = &Slot{Index: index, Song: s, Loaded: err == nil}
		if err == nil {
			sl.Handle = h
		}
		m.slots[index] = sl
	}
	resident := len(m.slots)
	m.mu.Unlock()

	m.release(replaced)

	switch {
	case !keep:
		if err == nil {
			m.releaseHandle(h)
		}
		m.logger.Debug().Int("index", index).Str("song", s.ID).Msg("discarding stale load")
		metrics.RecordBufferLoad(metrics.LoadStale)
		return nil
	case err != nil:
		m.logger.Warn().Err(err).Int("index", index).Str("song", s.ID).Msg("loading slot failed")
		metrics.RecordBufferLoad(metrics.LoadFailed)
	default:
		m.logger.Debug().Int("index", index).Str("song", s.ID).Msg("slot loaded")
		metrics.RecordBufferLoad(metrics.LoadLoaded)
	}
	metrics.SetBufferResident(resident)
	return sl
}

// play starts the slot at index from zero if it is still active, stopping
// any other slot that reports playing.
func (m *Manager) play(index int) {
	m.playMu.Lock()
	defer m.playMu.Unlock()

	m.mu.Lock()
	sl := m.slots[index]
	if m.active != index || m.suspended || sl == nil || !sl.Loaded {
		m.mu.Unlock()
		if sl != nil {
			m.logger.Debug().Int("index", index).Msg("skipping play for inactive slot")
		}
		return
	}
	var others []Handle
	for i, o := range m.slots {
		if i != index && o.Loaded {
			others = append(others, o.Handle)
		}
	}
	onStatus := m.onStatus
	m.mu.Unlock()

	for _, h := range others {
		if h.Status().Playing {
			m.swallow("stop", h.Stop())
		}
	}
	sl.Handle.SetStatusCallback(onStatus)
	m.swallow("play", sl.Handle.Play())
}

func (m *Manager) attach(index int) {
	m.mu.Lock()
	sl := m.slots[index]
	onStatus := m.onStatus
	active := m.active
	m.mu.Unlock()
	if active == index && sl != nil && sl.Loaded {
		sl.Handle.SetStatusCallback(onStatus)
	}
}

// stopAsync stops h in the background unless index became active again.
func (m *Manager) stopAsync(index int, h Handle) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.playMu.Lock()
		defer m.playMu.Unlock()
		if m.ActiveIndex() == index {
			return
		}
		m.swallow("stop", h.Stop())
	}()
}

// fill evicts slots outside the window and loads the missing ones, pausing
// Stagger before each load. It gives up as soon as gen is superseded.
func (m *Manager) fill(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	lo, hi := WindowBounds(m.active, m.cfg.Behind, m.cfg.Ahead, len(m.songs))
	resident := m.residentLocked()
	var gone []*Slot
	for _, i := range Evictions(resident, lo, hi) {
		gone = append(gone, m.slots[i])
		delete(m.slots, i)
	}
	covered := m.residentLocked()
	for i, p := range m.pending {
		if i >= lo && i <= hi && m.songs[i].ID == p.songID {
			covered = append(covered, i)
		}
	}
	order := FillOrder(m.active, lo, hi, covered)
	songs := m.songs
	base := m.ctx
	n := len(m.slots)
	m.mu.Unlock()

	for _, sl := range gone {
		m.release(sl)
	}
	if len(gone) > 0 {
		metrics.SetBufferResident(n)
		m.logger.Debug().Int("evicted", len(gone)).Msg("window evicted slots")
	}

	for _, i := range order {
		if m.cfg.Stagger > 0 {
			t := time.NewTimer(m.cfg.Stagger)
			select {
			case <-base.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
		if !m.current(gen) {
			return
		}
		s := songs[i]
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.load(base, i, s)
		}()
	}
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen
}

func (m *Manager) activeHandle() Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	sl, ok := m.slots[m.active]
	if !ok || !sl.Loaded {
		return nil
	}
	return sl.Handle
}

func (m *Manager) residentLocked() []int {
	out := make([]int, 0, len(m.slots))
	for i := range m.slots {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func (m *Manager) release(sl *Slot) {
	if sl == nil || !sl.Loaded {
		return
	}
	m.releaseHandle(sl.Handle)
}

func (m *Manager) releaseHandle(h Handle) {
	if h == nil {
		return
	}
	h.SetStatusCallback(nil)
	m.swallow("release", h.Release())
}

func (m *Manager) swallow(op string, err error) {
	if err == nil || errors.Is(err, ErrReleased) {
		return
	}
	m.logger.Debug().Err(err).Str("op", op).Msg("media operation failed")
}
