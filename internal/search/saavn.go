package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/justestif/go-reels-feed/internal/song"
)

// Saavn mirrors expose the same catalogue with drifting JSON layouts, so each
// logical field is probed under every name the mirrors are known to use.
var saavnFields = struct {
	id, title, artist, art, stream, duration, lyrics, language fieldProbe
}{
	id:       fieldProbe{"id", "songid", "song_id"},
	title:    fieldProbe{"name", "title", "song"},
	artist:   fieldProbe{"artists", "primaryArtists", "primary_artists", "singers", "artist"},
	art:      fieldProbe{"image", "image_url", "thumbnail"},
	stream:   fieldProbe{"downloadUrl", "download_url", "media_url"},
	duration: fieldProbe{"duration"},
	lyrics:   fieldProbe{"hasLyrics", "has_lyrics"},
	language: fieldProbe{"language"},
}

var saavnEnvelopes = []string{"data.results", "results", "data"}

var errMalformed = errors.New("malformed response")

// Saavn searches one Saavn API mirror.
type Saavn struct {
	endpoint string
	client   *HTTPClient
	limit    int
	guard    *guard
}

// NewSaavn creates a connector for the mirror search endpoint, e.g.
// "https://saavn.dev/api/search/songs".
func NewSaavn(endpoint string, opts Options) *Saavn {
	opts = opts.withDefaults(8 * time.Second)
	return &Saavn{
		endpoint: endpoint,
		client:   opts.Client,
		limit:    opts.Limit,
		guard:    newGuard(saavnName(endpoint), opts),
	}
}

func saavnName(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return "saavn:" + u.Host
	}
	return "saavn"
}

func (s *Saavn) Name() string { return s.guard.name }

func (s *Saavn) Search(ctx context.Context, q Query) []song.Song {
	return s.guard.run(ctx, q, s.search)
}

func (s *Saavn) search(ctx context.Context, q Query) ([]song.Song, error) {
	params := url.Values{
		"query": {q.Text},
		"limit": {strconv.Itoa(s.limit)},
	}
	body, err := s.client.Get(ctx, s.endpoint, params, nil)
	if err != nil {
		return nil, fmt.Errorf("searching saavn: %w", err)
	}

	items, ok := envelope(body, saavnEnvelopes...)
	if !ok {
		return nil, fmt.Errorf("decoding saavn response: %w", errMalformed)
	}

	songs := make([]song.Song, 0, len(items))
	for _, item := range items {
		if sg, ok := saavnSong(item); ok {
			songs = append(songs, sg)
		}
	}

	if q.Language != "" {
		preferLanguage(songs, q.Language)
	}
	return songs, nil
}

func saavnSong(item object) (song.Song, bool) {
	f := saavnFields
	sg := song.Song{
		ID:         item.str(f.id),
		Title:      item.str(f.title),
		Artist:     item.artists(f.artist),
		HighResArt: upgradeSaavnArt(item.url(f.art)),
		StreamURL:  item.url(f.stream),
		Source:     song.SourceSaavn,
		Duration:   item.integer(f.duration),
		HasLyrics:  item.boolean(f.lyrics),
		Language:   strings.ToLower(item.str(f.language)),
	}
	if sg.ID == "" || sg.Title == "" || !sg.Playable() {
		return song.Song{}, false
	}
	sg.ID = string(song.SourceSaavn) + ":" + sg.ID
	return sg, true
}

// Older mirrors only return the 150x150 rendition; the CDN serves 500x500
// under the same path.
func upgradeSaavnArt(u string) string {
	return strings.Replace(u, "150x150", "500x500", 1)
}

// preferLanguage moves songs in lang to the front, keeping relative order.
func preferLanguage(songs []song.Song, lang string) {
	lang = strings.ToLower(lang)
	sort.SliceStable(songs, func(i, j int) bool {
		return songs[i].Language == lang && songs[j].Language != lang
	})
}
