// Package feed holds what the feed screen shows and drives the buffer,
// recommendation engine and preference store from screen events.
package feed

import (
	"errors"
	"sync"

	"github.com/justestif/go-reels-feed/internal/song"
)

var (
	// ErrIndexOutOfRange is returned when an index is neither -1 nor a
	// position in the feed.
	ErrIndexOutOfRange = errors.New("feed index out of range")
	// ErrNoCurrentSong is returned by operations that need an active song.
	ErrNoCurrentSong = errors.New("no current song")
)

// State is a point-in-time copy of the store.
type State struct {
	Songs        []song.Song `json:"songs"`
	CurrentIndex int         `json:"currentIndex"`
	Vault        []song.Song `json:"vault"`
	Loading      bool        `json:"isLoading"`
}

// Store is the feed's single source of truth. Song ids are unique in the
// feed and in the vault, and every feed song is playable.
type Store struct {
	mu      sync.RWMutex
	songs   []song.Song
	ids     map[string]struct{}
	current int
	vault   []song.Song
	loading bool

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// NewStore returns an empty store with no current index.
func NewStore() *Store {
	return &Store{
		ids:     make(map[string]struct{}),
		current: -1,
		subs:    make(map[int]func(State)),
	}
}

// SetSongs replaces the feed and clears the current index. It returns how
// many songs were kept.
func (s *Store) SetSongs(songs []song.Song) int {
	s.mu.Lock()
	s.songs = nil
	s.ids = make(map[string]struct{})
	s.current = -1
	n := s.insertLocked(0, songs)
	s.mu.Unlock()
	s.notify()
	return n
}

// AppendSongs adds songs at the end, skipping unplayable songs and ids
// already in the feed.
func (s *Store) AppendSongs(songs []song.Song) int {
	s.mu.Lock()
	n := s.insertLocked(len(s.songs), songs)
	s.mu.Unlock()
	if n > 0 {
		s.notify()
	}
	return n
}

// InsertAfter inserts songs right after index; -1 inserts at the front. The
// current index keeps pointing at the same song.
func (s *Store) InsertAfter(index int, songs []song.Song) (int, error) {
	s.mu.Lock()
	if index < -1 || index >= len(s.songs) {
		s.mu.Unlock()
		return 0, ErrIndexOutOfRange
	}
	n := s.insertLocked(index+1, songs)
	if s.current > index {
		s.current += n
	}
	s.mu.Unlock()
	if n > 0 {
		s.notify()
	}
	return n, nil
}

func (s *Store) insertLocked(at int, songs []song.Song) int {
	var add []song.Song
	for _, sg := range songs {
		if !sg.Playable() {
			continue
		}
		if _, dup := s.ids[sg.ID]; dup {
			continue
		}
		s.ids[sg.ID] = struct{}{}
		add = append(add, sg)
	}
	if len(add) == 0 {
		return 0
	}
	tail := append(add, s.songs[at:]...)
	s.songs = append(s.songs[:at:at], tail...)
	return len(add)
}

// SetCurrentIndex moves the current index. Only -1 and feed positions are
// accepted.
func (s *Store) SetCurrentIndex(i int) error {
	s.mu.Lock()
	if i < -1 || i >= len(s.songs) {
		s.mu.Unlock()
		return ErrIndexOutOfRange
	}
	changed := s.current != i
	s.current = i
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return nil
}

// CurrentIndex returns the current index, or -1.
func (s *Store) CurrentIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// CurrentSong returns the song at the current index.
func (s *Store) CurrentSong() (song.Song, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current < 0 {
		return song.Song{}, false
	}
	return s.songs[s.current], true
}

// Song returns the song at i.
func (s *Store) Song(i int) (song.Song, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.songs) {
		return song.Song{}, false
	}
	return s.songs[i], true
}

// Len returns the feed length.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.songs)
}

// Songs returns a copy of the feed.
func (s *Store) Songs() []song.Song {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]song.Song(nil), s.songs...)
}

// ToggleVault adds sg to the vault or removes it, returning whether it is
// now in the vault.
func (s *Store) ToggleVault(sg song.Song) bool {
	s.mu.Lock()
	in := s.vaultIndexLocked(sg.ID) >= 0
	if in {
		s.removeVaultLocked(sg.ID)
	} else {
		s.vault = append(s.vault, sg)
	}
	s.mu.Unlock()
	s.notify()
	return !in
}

// AddToVault adds sg unless its id is already saved.
func (s *Store) AddToVault(sg song.Song) bool {
	s.mu.Lock()
	if s.vaultIndexLocked(sg.ID) >= 0 {
		s.mu.Unlock()
		return false
	}
	s.vault = append(s.vault, sg)
	s.mu.Unlock()
	s.notify()
	return true
}

// RemoveFromVault removes id from the vault.
func (s *Store) RemoveFromVault(id string) bool {
	s.mu.Lock()
	ok := s.removeVaultLocked(id)
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return ok
}

// InVault reports whether id is saved.
func (s *Store) InVault(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vaultIndexLocked(id) >= 0
}

// Vault returns the saved songs in the order they were added.
func (s *Store) Vault() []song.Song {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]song.Song(nil), s.vault...)
}

// ClearVault empties the vault.
func (s *Store) ClearVault() {
	s.mu.Lock()
	s.vault = nil
	s.mu.Unlock()
	s.notify()
}

func (s *Store) vaultIndexLocked(id string) int {
	for i, v := range s.vault {
		if v.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) removeVaultLocked(id string) bool {
	i := s.vaultIndexLocked(id)
	if i < 0 {
		return false
	}
	s.vault = append(s.vault[:i:i], s.vault[i+1:]...)
	return true
}

// SetLoading flags a page fetch in progress.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	changed := s.loading != loading
	s.loading = loading
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Loading reports whether a page fetch is in progress.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Snapshot copies the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Songs:        append([]song.Song{}, s.songs...),
		CurrentIndex: s.current,
		Vault:        append([]song.Song{}, s.vault...),
		Loading:      s.loading,
	}
}

// Subscribe calls fn with a snapshot after every change until cancel is
// called. fn must not block.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	if len(fns) == 0 {
		return
	}
	st := s.Snapshot()
	for _, fn := range fns {
		fn(st)
	}
}
