// Package library exposes the songs the user already owns on the device and
// saves vault songs into it.
package library

import (
	"context"
	"strings"
	"sync"

	"github.com/justestif/go-reels-feed/internal/song"
)

// Library lists locally owned songs.
type Library interface {
	Songs(ctx context.Context) ([]song.Song, error)
}

// Memory is an in-memory Library.
type Memory struct {
	mu    sync.RWMutex
	songs []song.Song
}

// NewMemory creates a library holding songs.
func NewMemory(songs ...song.Song) *Memory {
	m := &Memory{}
	for _, s := range songs {
		m.put(s)
	}
	return m
}

func (m *Memory) Songs(context.Context) ([]song.Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]song.Song(nil), m.songs...), nil
}

// Add inserts s, replacing any song with the same id.
func (m *Memory) Add(_ context.Context, s song.Song) error {
	m.put(s)
	return nil
}

func (m *Memory) put(s song.Song) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.IsLocal = true
	s.Source = song.SourceLocal
	for i := range m.songs {
		if m.songs[i].ID == s.ID {
			m.songs[i] = s
			return
		}
	}
	m.songs = append(m.songs, s)
}

// Index is a lookup view over a library snapshot.
type Index struct {
	byKey   map[string]song.Song
	artists []string
}

// NewIndex indexes songs by normalized title_artist key and collects their
// distinct artists, keeping the first-seen spelling.
func NewIndex(songs []song.Song) *Index {
	idx := &Index{byKey: make(map[string]song.Song, len(songs))}
	seen := make(map[string]bool)
	for _, s := range songs {
		if _, ok := idx.byKey[s.Key()]; !ok {
			idx.byKey[s.Key()] = s
		}
		artist := strings.TrimSpace(s.Artist)
		if artist == "" {
			continue
		}
		if norm := song.NormalizeArtist(artist); !seen[norm] {
			seen[norm] = true
			idx.artists = append(idx.artists, artist)
		}
	}
	return idx
}

// Lookup returns the local song matching title and artist.
func (i *Index) Lookup(title, artist string) (song.Song, bool) {
	if i == nil {
		return song.Song{}, false
	}
	s, ok := i.byKey[song.Key(title, artist)]
	return s, ok
}

// Artists returns the distinct artists in library order.
func (i *Index) Artists() []string {
	if i == nil {
		return nil
	}
	return append([]string(nil), i.artists...)
}

// Len returns the number of indexed songs.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.byKey)
}
