package search

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/justestif/go-reels-feed/internal/song"
)

// ITunes searches the iTunes Search API. Results are 30 second previews.
type ITunes struct {
	baseURL string
	client  *HTTPClient
	limit   int
	guard   *guard
}

// NewITunes creates the connector for baseURL (normally https://itunes.apple.com).
func NewITunes(baseURL string, opts Options) *ITunes {
	opts = opts.withDefaults(6 * time.Second)
	return &ITunes{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  opts.Client,
		limit:   opts.Limit,
		guard:   newGuard("itunes", opts),
	}
}

func (c *ITunes) Name() string { return c.guard.name }

func (c *ITunes) Search(ctx context.Context, q Query) []song.Song {
	return c.guard.run(ctx, q, c.search)
}

type itunesResponse struct {
	Results []struct {
		TrackID         flexString `json:"trackId"`
		TrackName       string     `json:"trackName"`
		ArtistName      string     `json:"artistName"`
		PreviewURL      string     `json:"previewUrl"`
		ArtworkURL100   string     `json:"artworkUrl100"`
		TrackTimeMillis flexInt    `json:"trackTimeMillis"`
	} `json:"results"`
}

func (c *ITunes) search(ctx context.Context, q Query) ([]song.Song, error) {
	body, err := c.client.Get(ctx, c.baseURL+"/search", url.Values{
		"term":   {q.Text},
		"media":  {"music"},
		"entity": {"song"},
		"limit":  {strconv.Itoa(c.limit)},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("searching itunes: %w", err)
	}

	var resp itunesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing itunes response: %w", err)
	}

	songs := make([]song.Song, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.TrackID == "" || r.TrackName == "" {
			continue
		}
		songs = append(songs, song.Song{
			ID:         string(song.SourceITunes) + ":" + string(r.TrackID),
			Title:      r.TrackName,
			Artist:     r.ArtistName,
			HighResArt: strings.Replace(r.ArtworkURL100, "100x100bb", "600x600bb", 1),
			StreamURL:  r.PreviewURL,
			Source:     song.SourceITunes,
			Duration:   int(r.TrackTimeMillis) / 1000,
		})
	}
	return songs, nil
}
