package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-reels-feed/internal/song"
)

// ErrNoCredential is returned when no client_id could be scraped.
var ErrNoCredential = errors.New("no soundcloud client_id found")

var (
	scriptSrcPattern = regexp.MustCompile(`<script[^>]+src="([^"]+/assets/[^"]+\.js)"`)
	clientIDPattern  = regexp.MustCompile(`client_id\s*[:=]\s*"([a-zA-Z0-9]{32})"`)
)

const streamResolveConcurrency = 4

// SoundCloud searches the public SoundCloud v2 API using a client_id scraped
// from the web player's bundled scripts.
type SoundCloud struct {
	homeURL string
	apiURL  string
	client  *HTTPClient
	limit   int
	creds   *credentialCache
	guard   *guard
}

// NewSoundCloud creates the connector. credentialTTL bounds how long a scraped
// client_id is reused.
func NewSoundCloud(homeURL, apiURL string, credentialTTL time.Duration, opts Options) *SoundCloud {
	opts = opts.withDefaults(12 * time.Second)
	if credentialTTL <= 0 {
		credentialTTL = time.Hour
	}
	s := &SoundCloud{
		homeURL: strings.TrimRight(homeURL, "/"),
		apiURL:  strings.TrimRight(apiURL, "/"),
		client:  opts.Client,
		limit:   opts.Limit,
		guard:   newGuard("soundcloud", opts),
	}
	s.creds = newCredentialCache(credentialTTL, s.scrapeClientID)
	return s
}

func (s *SoundCloud) Name() string { return s.guard.name }

func (s *SoundCloud) Search(ctx context.Context, q Query) []song.Song {
	return s.guard.run(ctx, q, s.search)
}

type soundcloudTrack struct {
	ID                 flexString `json:"id"`
	Title              string     `json:"title"`
	Duration           flexInt    `json:"duration"` // milliseconds
	ArtworkURL         string     `json:"artwork_url"`
	TrackAuthorization string     `json:"track_authorization"`
	User               struct {
		Username  string `json:"username"`
		AvatarURL string `json:"avatar_url"`
	} `json:"user"`
	PublisherMetadata struct {
		Artist string `json:"artist"`
	} `json:"publisher_metadata"`
	Media struct {
		Transcodings []struct {
			URL    string `json:"url"`
			Format struct {
				Protocol string `json:"protocol"`
				MimeType string `json:"mime_type"`
			} `json:"format"`
		} `json:"transcodings"`
	} `json:"media"`
}

type soundcloudSearchResponse struct {
	Collection []soundcloudTrack `json:"collection"`
}

func (s *SoundCloud) search(ctx context.Context, q Query) ([]song.Song, error) {
	clientID, err := s.creds.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting client_id: %w", err)
	}

	body, err := s.get(ctx, s.apiURL+"/search/tracks", url.Values{
		"q":     {q.Text},
		"limit": {strconv.Itoa(s.limit)},
	}, clientID)
	if isAuthFailure(err) {
		// Scraped ids rotate without notice; retry once with a fresh one.
		s.creds.Invalidate()
		if clientID, err = s.creds.Get(ctx); err != nil {
			return nil, fmt.Errorf("refreshing client_id: %w", err)
		}
		body, err = s.get(ctx, s.apiURL+"/search/tracks", url.Values{
			"q":     {q.Text},
			"limit": {strconv.Itoa(s.limit)},
		}, clientID)
	}
	if err != nil {
		return nil, fmt.Errorf("searching soundcloud: %w", err)
	}

	var resp soundcloudSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing soundcloud response: %w", err)
	}

	return s.resolve(ctx, resp.Collection, clientID), nil
}

// resolve turns each track's progressive transcoding into a direct stream URL.
// Tracks whose stream cannot be resolved are dropped.
func (s *SoundCloud) resolve(ctx context.Context, tracks []soundcloudTrack, clientID string) []song.Song {
	resolved := make([]song.Song, len(tracks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(streamResolveConcurrency)
	for i, t := range tracks {
		transcoding := progressiveURL(t)
		if transcoding == "" || t.Title == "" {
			continue
		}
		g.Go(func() error {
			stream, err := s.streamURL(gctx, transcoding, t.TrackAuthorization, clientID)
			if err != nil {
				s.guard.logger.Debug().Err(err).Str("track", string(t.ID)).Msg("resolving stream failed")
				return nil
			}
			resolved[i] = soundcloudSong(t, stream)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]song.Song, 0, len(resolved))
	for _, sg := range resolved {
		if sg.Playable() {
			out = append(out, sg)
		}
	}
	return out
}

func (s *SoundCloud) streamURL(ctx context.Context, transcoding, auth, clientID string) (string, error) {
	params := url.Values{}
	if auth != "" {
		params.Set("track_authorization", auth)
	}
	body, err := s.get(ctx, transcoding, params, clientID)
	if err != nil {
		return "", err
	}
	var resp struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parsing stream response: %w", err)
	}
	return resp.URL, nil
}

func (s *SoundCloud) get(ctx context.Context, endpoint string, params url.Values, clientID string) ([]byte, error) {
	params.Set("client_id", clientID)
	return s.client.Get(ctx, endpoint, params, http.Header{
		"Origin":  {s.homeURL},
		"Referer": {s.homeURL + "/"},
	})
}

// scrapeClientID loads the web player and searches its script bundles,
// newest (last) first, for the embedded client_id.
func (s *SoundCloud) scrapeClientID(ctx context.Context) (string, error) {
	page, err := s.client.Get(ctx, s.homeURL, nil, nil)
	if err != nil {
		return "", fmt.Errorf("fetching soundcloud home: %w", err)
	}

	base, err := url.Parse(s.homeURL + "/")
	if err != nil {
		return "", fmt.Errorf("parsing home url: %w", err)
	}

	matches := scriptSrcPattern.FindAllSubmatch(page, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		ref, err := url.Parse(string(matches[i][1]))
		if err != nil {
			continue
		}
		script, err := s.client.Get(ctx, base.ResolveReference(ref).String(), nil, nil)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if m := clientIDPattern.FindSubmatch(script); m != nil {
			return string(m[1]), nil
		}
	}
	return "", ErrNoCredential
}

func isAuthFailure(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden)
}

func progressiveURL(t soundcloudTrack) string {
	for _, tc := range t.Media.Transcodings {
		if tc.Format.Protocol == "progressive" && tc.URL != "" {
			return tc.URL
		}
	}
	return ""
}

func soundcloudSong(t soundcloudTrack, stream string) song.Song {
	artist := t.PublisherMetadata.Artist
	if artist == "" {
		artist = t.User.Username
	}
	art := t.ArtworkURL
	if art == "" {
		art = t.User.AvatarURL
	}
	return song.Song{
		ID:         string(song.SourceSoundCloud) + ":" + string(t.ID),
		Title:      t.Title,
		Artist:     artist,
		HighResArt: strings.Replace(art, "-large", "-t500x500", 1),
		StreamURL:  stream,
		Source:     song.SourceSoundCloud,
		Duration:   int(t.Duration) / 1000,
	}
}
