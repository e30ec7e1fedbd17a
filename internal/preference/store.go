// Package preference keeps the on-device taste model: a capped history of feed
// interactions, the artist scores and suppressions derived from it, language
// weights and the set of songs already shown.
package preference

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/justestif/go-reels-feed/internal/metrics"
	"github.com/justestif/go-reels-feed/internal/song"
	"github.com/justestif/go-reels-feed/internal/storage"
)

const (
	// MaxInteractions caps the interaction history; oldest are evicted.
	MaxInteractions = 100
	// MaxSeenIDs caps the remembered seen song ids.
	MaxSeenIDs = 200
	// SkipThreshold is the watch time below which an interaction is a skip.
	SkipThreshold = 3 * time.Second
	// StorageKey is the key the preference document is stored under.
	StorageKey = "reels_preferences"
)

// Interaction records how the user engaged with one feed song.
type Interaction struct {
	SongID        string  `json:"songId"`
	Title         string  `json:"title"`
	Artist        string  `json:"artist"`
	Timestamp     int64   `json:"timestamp"`     // unix milliseconds
	WatchDuration float64 `json:"watchDuration"` // seconds
	TotalDuration float64 `json:"totalDuration"` // seconds
	Liked         bool    `json:"liked"`
	Skipped       bool    `json:"skipped"`
}

// NewInteraction builds an interaction for s. Skipped is derived from watch.
func NewInteraction(s song.Song, watch, total time.Duration, liked bool, at time.Time) Interaction {
	return Interaction{
		SongID:        s.ID,
		Title:         s.Title,
		Artist:        s.Artist,
		Timestamp:     at.UnixMilli(),
		WatchDuration: watch.Seconds(),
		TotalDuration: total.Seconds(),
		Liked:         liked,
		Skipped:       watch < SkipThreshold,
	}
}

// State is the persisted preference document.
type State struct {
	Interactions       []Interaction        `json:"interactions"`
	SeenSongIDs        []string             `json:"seenSongIds"`
	SkippedArtists     []string             `json:"skippedArtists"`
	TopArtists         []ArtistScore        `json:"topArtists"`
	PreferredLanguages []LanguagePreference `json:"preferredLanguages"`
}

// Store is the preference store. Derived state is recomputed synchronously on
// every mutation; persistence happens in the background, newest write wins.
type Store struct {
	kv     storage.Store
	logger zerolog.Logger

	mu           sync.RWMutex
	loaded       bool
	interactions []Interaction
	seen         []string
	seenSet      map[string]struct{}
	scores       []ArtistScore
	suppressed   map[string]struct{}
	languages    []LanguagePreference
	seq          uint64

	writeMu sync.Mutex
	written uint64
	pending sync.WaitGroup
}

// NewStore creates a store persisting to kv. Call Load before use to rehydrate.
func NewStore(kv storage.Store, logger zerolog.Logger) *Store {
	return &Store{
		kv:         kv,
		logger:     logger,
		seenSet:    make(map[string]struct{}),
		suppressed: make(map[string]struct{}),
		languages:  DefaultLanguages(),
	}
}

// Load rehydrates state from storage. Only the first call reads storage. A
// missing document is not an error. On a read or decode error the store keeps
// its defaults and the error is returned for logging.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	s.loaded = true

	data, err := s.kv.Get(ctx, StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading preferences: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("parsing preferences: %w", err)
	}

	s.interactions = tail(st.Interactions, MaxInteractions)
	s.seen = nil
	s.seenSet = make(map[string]struct{})
	s.addSeenLocked(st.SeenSongIDs)
	if len(st.PreferredLanguages) > 0 {
		s.languages = NormalizeLanguages(st.PreferredLanguages)
	}
	s.recomputeLocked()

	s.logger.Debug().
		Int("interactions", len(s.interactions)).
		Int("seen", len(s.seen)).
		Msg("preferences loaded")
	return nil
}

// RecordInteraction appends an interaction, evicting the oldest past
// MaxInteractions, and recomputes all derived scores before returning.
func (s *Store) RecordInteraction(in Interaction) {
	s.mu.Lock()
	s.interactions = tail(append(s.interactions, in), MaxInteractions)
	s.recomputeLocked()
	s.persistLocked()
	s.mu.Unlock()

	switch {
	case in.Liked:
		metrics.RecordInteraction("liked")
	case in.Skipped:
		metrics.RecordInteraction("skipped")
	default:
		metrics.RecordInteraction("watched")
	}
}

// Seed bulk-appends interactions with a single recompute and write.
func (s *Store) Seed(ins []Interaction) {
	if len(ins) == 0 {
		return
	}
	s.mu.Lock()
	s.interactions = tail(append(s.interactions, ins...), MaxInteractions)
	s.recomputeLocked()
	s.persistLocked()
	s.mu.Unlock()
}

// MarkSeen remembers song ids as shown, evicting the oldest past MaxSeenIDs.
func (s *Store) MarkSeen(ids ...string) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	s.addSeenLocked(ids)
	s.persistLocked()
	s.mu.Unlock()
}

// IsSeen reports whether id was already shown.
func (s *Store) IsSeen(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seenSet[id]
	return ok
}

// SetLanguageWeights replaces the language weights after normalizing them.
func (s *Store) SetLanguageWeights(prefs []LanguagePreference) []LanguagePreference {
	s.mu.Lock()
	s.languages = NormalizeLanguages(prefs)
	out := append([]LanguagePreference(nil), s.languages...)
	s.persistLocked()
	s.mu.Unlock()
	return out
}

// Languages returns the current language weights.
func (s *Store) Languages() []LanguagePreference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LanguagePreference(nil), s.languages...)
}

// TopArtistNames returns up to limit positive-scoring artists, best first.
// Names are normalized lowercase.
func (s *Store) TopArtistNames(limit int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, sc := range s.scores {
		if len(out) >= limit {
			break
		}
		if sc.Score > 0 {
			out = append(out, sc.Artist)
		}
	}
	return out
}

// SkippedArtistNames returns the suppressed artists, sorted.
func (s *Store) SkippedArtistNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.suppressed)
}

// IsArtistSkipped reports whether artist is suppressed. Matching is
// case-insensitive.
func (s *Store) IsArtistSkipped(artist string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.suppressed[song.NormalizeArtist(artist)]
	return ok
}

// ArtistScores returns every artist score, best first.
func (s *Store) ArtistScores() []ArtistScore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ArtistScore(nil), s.scores...)
}

// HasSignal reports whether any interaction has been recorded.
func (s *Store) HasSignal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.interactions) > 0
}

// Snapshot returns a copy of the persisted document.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Reset clears all learned state and restores default languages.
func (s *Store) Reset() {
	s.mu.Lock()
	s.interactions = nil
	s.seen = nil
	s.seenSet = make(map[string]struct{})
	s.languages = DefaultLanguages()
	s.recomputeLocked()
	s.persistLocked()
	s.mu.Unlock()
}

// Flush blocks until every scheduled write has finished.
func (s *Store) Flush() {
	s.pending.Wait()
}

func (s *Store) recomputeLocked() {
	s.scores = ComputeArtistScores(s.interactions)
	s.suppressed = make(map[string]struct{})
	for _, a := range SuppressedArtists(s.interactions) {
		s.suppressed[a] = struct{}{}
	}
}

func (s *Store) addSeenLocked(ids []string) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := s.seenSet[id]; ok {
			continue
		}
		s.seen = append(s.seen, id)
		s.seenSet[id] = struct{}{}
	}
	if over := len(s.seen) - MaxSeenIDs; over > 0 {
		for _, id := range s.seen[:over] {
			delete(s.seenSet, id)
		}
		s.seen = append([]string(nil), s.seen[over:]...)
	}
}

func (s *Store) snapshotLocked() State {
	top := make([]ArtistScore, 0, len(s.scores))
	for _, sc := range s.scores {
		if sc.Score > 0 {
			top = append(top, sc)
		}
	}
	return State{
		Interactions:       append([]Interaction{}, s.interactions...),
		SeenSongIDs:        append([]string{}, s.seen...),
		SkippedArtists:     sortedKeys(s.suppressed),
		TopArtists:         top,
		PreferredLanguages: append([]LanguagePreference{}, s.languages...),
	}
}

// persistLocked encodes the current state and writes it in the background.
// Writes carry a sequence number so a slow older write never replaces a
// newer document.
func (s *Store) persistLocked() {
	s.seq++
	seq := s.seq
	data, err := json.Marshal(s.snapshotLocked())
	if err != nil {
		s.logger.Warn().Err(err).Msg("encoding preferences failed")
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		if seq <= s.written {
			return
		}
		if err := s.kv.Put(context.Background(), StorageKey, data); err != nil {
			s.logger.Warn().Err(err).Msg("persisting preferences failed")
			return
		}
		s.written = seq
	}()
}

func tail[T any](xs []T, n int) []T {
	if len(xs) <= n {
		return xs
	}
	return append([]T(nil), xs[len(xs)-n:]...)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
