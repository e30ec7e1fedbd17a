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

var deezerArt = fieldProbe{"cover_xl", "cover_big", "cover_medium", "cover"}

// Deezer searches the public Deezer API. Results are 30 second previews.
type Deezer struct {
	baseURL string
	client  *HTTPClient
	limit   int
	guard   *guard
}

// NewDeezer creates the connector for baseURL (normally https://api.deezer.com).
func NewDeezer(baseURL string, opts Options) *Deezer {
	opts = opts.withDefaults(6 * time.Second)
	return &Deezer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  opts.Client,
		limit:   opts.Limit,
		guard:   newGuard("deezer", opts),
	}
}

func (c *Deezer) Name() string { return c.guard.name }

func (c *Deezer) Search(ctx context.Context, q Query) []song.Song {
	return c.guard.run(ctx, q, c.search)
}

func (c *Deezer) search(ctx context.Context, q Query) ([]song.Song, error) {
	body, err := c.client.Get(ctx, c.baseURL+"/search", url.Values{
		"q":     {q.Text},
		"limit": {strconv.Itoa(c.limit)},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("searching deezer: %w", err)
	}

	items, ok := envelope(body, "data")
	if !ok {
		return nil, fmt.Errorf("decoding deezer response: %w", errMalformed)
	}

	songs := make([]song.Song, 0, len(items))
	for _, item := range items {
		id := item.str(fieldProbe{"id"})
		title := item.str(fieldProbe{"title", "title_short"})
		if id == "" || title == "" {
			continue
		}

		var artist, art string
		if raw, ok := item.raw(fieldProbe{"artist"}); ok {
			var a object
			if err := json.Unmarshal(raw, &a); err == nil {
				artist = a.str(fieldProbe{"name"})
			}
		}
		if raw, ok := item.raw(fieldProbe{"album"}); ok {
			var a object
			if err := json.Unmarshal(raw, &a); err == nil {
				art = a.str(deezerArt)
			}
		}

		songs = append(songs, song.Song{
			ID:         string(song.SourceDeezer) + ":" + id,
			Title:      title,
			Artist:     artist,
			HighResArt: art,
			StreamURL:  item.str(fieldProbe{"preview"}),
			Source:     song.SourceDeezer,
			Duration:   item.integer(fieldProbe{"duration"}),
		})
	}
	return songs, nil
}
