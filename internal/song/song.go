// Package song defines the unified song record shared by every feed component.
package song

import (
	"strings"
)

// Source identifies the upstream a song was resolved from.
type Source string

const (
	SourceSaavn      Source = "saavn"
	SourceSoundCloud Source = "soundcloud"
	SourceITunes     Source = "itunes"
	SourceDeezer     Source = "deezer"
	SourceSpotify    Source = "spotify"
	SourceLocal      Source = "local"
)

// Song is the normalized record produced by search connectors and the local library.
type Song struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	HighResArt string `json:"highResArt,omitempty"`
	StreamURL  string `json:"streamUrl"`
	Source     Source `json:"source"`
	Duration   int    `json:"duration,omitempty"` // seconds
	HasLyrics  bool   `json:"hasLyrics"`
	Language   string `json:"language,omitempty"`
	IsLocal    bool   `json:"isLocal,omitempty"`
}

// Playable reports whether the song has a media URL and may enter a feed.
func (s Song) Playable() bool {
	return strings.TrimSpace(s.StreamURL) != ""
}

// Key returns the normalized title_artist key used for deduplication and
// local-library matching.
func (s Song) Key() string {
	return Key(s.Title, s.Artist)
}

// Key builds the normalized lowercase "title_artist" key.
func Key(title, artist string) string {
	return normalize(title) + "_" + normalize(artist)
}

// NormalizeArtist lowercases and trims an artist name for score aggregation.
func NormalizeArtist(artist string) string {
	return strings.ToLower(strings.TrimSpace(artist))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// FilterPlayable returns the songs that carry a playable URL, preserving order.
func FilterPlayable(songs []Song) []Song {
	out := make([]Song, 0, len(songs))
	for _, s := range songs {
		if s.Playable() {
			out = append(out, s)
		}
	}
	return out
}
