// Package buffer keeps a sliding window of preloaded media around the active
// feed position and makes sure only the active item plays.
package buffer

import (
	"context"
	"errors"
	"time"

	"github.com/justestif/go-reels-feed/internal/song"
)

// ErrReleased is returned by a Handle whose resources are already gone.
// The manager treats it as a successful release.
var ErrReleased = errors.New("media handle already released")

// Status is a playback progress report.
type Status struct {
	Position time.Duration
	Duration time.Duration
	Playing  bool
}

// Handle is one loaded, playable media resource.
type Handle interface {
	// Play starts playback from position zero.
	Play() error
	Stop() error
	Pause() error
	Resume() error
	Seek(pos time.Duration) error
	Status() Status
	// SetStatusCallback registers the single progress observer; nil detaches it.
	SetStatusCallback(fn func(Status))
	Release() error
}

// Loader creates media handles for songs.
type Loader interface {
	Load(ctx context.Context, s song.Song) (Handle, error)
}

// Session claims and returns exclusive audio output for the feed.
type Session interface {
	Activate() error
	Deactivate() error
}

// Config sizes the window and paces loading.
type Config struct {
	Behind      int
	Ahead       int
	Stagger     time.Duration // delay between neighbor loads
	LoadTimeout time.Duration
}

// DefaultConfig keeps one item behind and four ahead of the active one.
func DefaultConfig() Config {
	return Config{
		Behind:      1,
		Ahead:       4,
		Stagger:     350 * time.Millisecond,
		LoadTimeout: 20 * time.Second,
	}
}

// Slot is a resident window entry. Handle is nil and Loaded false when the
// load failed; such a slot stays resident and is never retried.
type Slot struct {
	Index  int
	Song   song.Song
	Handle Handle
	Loaded bool
}
