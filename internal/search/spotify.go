package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/justestif/go-reels-feed/internal/song"
)

// TrackSearcher is the subset of *spotify.Client the connector uses.
type TrackSearcher interface {
	Search(ctx context.Context, query string, t spotify.SearchType, opts ...spotify.RequestOption) (*spotify.SearchResult, error)
}

// NewSpotifyAPI returns a Spotify Web API client authenticated with the
// client-credentials flow. Tokens are cached and renewed by oauth2.
func NewSpotifyAPI(ctx context.Context, clientID, clientSecret string) *spotify.Client {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return spotify.New(cfg.Client(ctx))
}

// Spotify searches the Spotify catalogue. Only tracks that expose a preview
// clip are playable.
type Spotify struct {
	api   TrackSearcher
	limit int
	guard *guard
}

// NewSpotify creates the connector around an authenticated API client.
func NewSpotify(api TrackSearcher, opts Options) *Spotify {
	opts = opts.withDefaults(8 * time.Second)
	return &Spotify{
		api:   api,
		limit: opts.Limit,
		guard: newGuard("spotify", opts),
	}
}

func (c *Spotify) Name() string { return c.guard.name }

func (c *Spotify) Search(ctx context.Context, q Query) []song.Song {
	return c.guard.run(ctx, q, c.search)
}

func (c *Spotify) search(ctx context.Context, q Query) ([]song.Song, error) {
	res, err := c.api.Search(ctx, q.Text, spotify.SearchTypeTrack, spotify.Limit(c.limit))
	if err != nil {
		return nil, fmt.Errorf("searching spotify: %w", err)
	}
	if res == nil || res.Tracks == nil {
		return nil, nil
	}

	songs := make([]song.Song, 0, len(res.Tracks.Tracks))
	for _, t := range res.Tracks.Tracks {
		songs = append(songs, convertTrack(t))
	}
	return songs, nil
}

// convertTrack converts a Spotify FullTrack into a Song, choosing the largest
// album image.
func convertTrack(t spotify.FullTrack) song.Song {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var art string
	best := -1
	for _, img := range t.Album.Images {
		if int(img.Height) > best {
			best = int(img.Height)
			art = img.URL
		}
	}

	return song.Song{
		ID:         string(song.SourceSpotify) + ":" + t.ID.String(),
		Title:      t.Name,
		Artist:     strings.Join(artists, ", "),
		HighResArt: art,
		StreamURL:  t.PreviewURL,
		Source:     song.SourceSpotify,
		Duration:   int(t.Duration) / 1000,
	}
}
