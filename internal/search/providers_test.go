package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-reels-feed/internal/song"
)

func TestITunesSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %q, want /search", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("term") != "anirudh songs" || q.Get("entity") != "song" {
			t.Errorf("query = %v", q)
		}
		_, _ = w.Write([]byte(`{"resultCount":3,"results":[
  {"trackId":1440,"trackName":"Why This Kolaveri Di","artistName":"Dhanush","previewUrl":"https://audio-ssl.itunes.apple.com/1440.m4a","artworkUrl100":"https://is1.mzstatic.com/a/100x100bb.jpg","trackTimeMillis":249000},
  {"trackId":1441,"trackName":"No Preview","artistName":"Dhanush"},
  {"trackName":"Missing Id","previewUrl":"https://x"}
]}`))
	}))
	defer server.Close()

	c := NewITunes(server.URL, Options{Logger: zerolog.Nop()})
	got := c.Search(context.Background(), Query{Text: "anirudh songs"})

	want := []song.Song{{
		ID:         "itunes:1440",
		Title:      "Why This Kolaveri Di",
		Artist:     "Dhanush",
		HighResArt: "https://is1.mzstatic.com/a/600x600bb.jpg",
		StreamURL:  "https://audio-ssl.itunes.apple.com/1440.m4a",
		Source:     song.SourceITunes,
		Duration:   249,
	}}
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("Search() = %+v, want %+v", got, want)
	}
}

func TestDeezerSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[
  {"id":3135556,"title":"Harder, Better, Faster, Stronger","duration":224,
   "preview":"https://cdns-preview-d.dzcdn.net/stream/3135556.mp3",
   "artist":{"id":27,"name":"Daft Punk"},
   "album":{"cover":"https://api.deezer.com/album/302127/image","cover_big":"https://e-cdns/big.jpg","cover_xl":"https://e-cdns/xl.jpg"}},
  {"id":1,"title":"","preview":"https://x"}
],"total":2}`))
	}))
	defer server.Close()

	c := NewDeezer(server.URL, Options{Logger: zerolog.Nop()})
	got := c.Search(context.Background(), Query{Text: "daft punk"})

	want := song.Song{
		ID:         "deezer:3135556",
		Title:      "Harder, Better, Faster, Stronger",
		Artist:     "Daft Punk",
		HighResArt: "https://e-cdns/xl.jpg",
		StreamURL:  "https://cdns-preview-d.dzcdn.net/stream/3135556.mp3",
		Source:     song.SourceDeezer,
		Duration:   224,
	}
	if len(got) != 1 || got[0] != want {
		t.Errorf("Search() = %+v, want [%+v]", got, want)
	}
}

type fakeSpotifyAPI struct {
	result *spotify.SearchResult
	err    error
	query  string
}

func (f *fakeSpotifyAPI) Search(_ context.Context, query string, _ spotify.SearchType, _ ...spotify.RequestOption) (*spotify.SearchResult, error) {
	f.query = query
	return f.result, f.err
}

func TestSpotifySearch(t *testing.T) {
	track := spotify.FullTrack{
		SimpleTrack: spotify.SimpleTrack{
			ID:         "6habFhsOp2NvshLv26DqMb",
			Name:       "Despacito",
			Duration:   229360,
			PreviewURL: "https://p.scdn.co/mp3-preview/abc",
			Artists: []spotify.SimpleArtist{
				{Name: "Luis Fonsi"},
				{Name: "Daddy Yankee"},
			},
		},
		Album: spotify.SimpleAlbum{
			Images: []spotify.Image{
				{URL: "https://i.scdn.co/64.jpg", Height: 64, Width: 64},
				{URL: "https://i.scdn.co/640.jpg", Height: 640, Width: 640},
				{URL: "https://i.scdn.co/300.jpg", Height: 300, Width: 300},
			},
		},
	}
	noPreview := spotify.FullTrack{SimpleTrack: spotify.SimpleTrack{ID: "x", Name: "No Preview"}}

	api := &fakeSpotifyAPI{result: &spotify.SearchResult{
		Tracks: &spotify.FullTrackPage{Tracks: []spotify.FullTrack{track, noPreview}},
	}}
	c := NewSpotify(api, Options{Logger: zerolog.Nop()})

	got := c.Search(context.Background(), Query{Text: "despacito"})
	want := song.Song{
		ID:         "spotify:6habFhsOp2NvshLv26DqMb",
		Title:      "Despacito",
		Artist:     "Luis Fonsi, Daddy Yankee",
		HighResArt: "https://i.scdn.co/640.jpg",
		StreamURL:  "https://p.scdn.co/mp3-preview/abc",
		Source:     song.SourceSpotify,
		Duration:   229,
	}
	if len(got) != 1 || got[0] != want {
		t.Errorf("Search() = %+v, want [%+v]", got, want)
	}
	if api.query != "despacito" {
		t.Errorf("query = %q, want despacito", api.query)
	}
}

func TestSpotifySearchError(t *testing.T) {
	c := NewSpotify(&fakeSpotifyAPI{err: errors.New("401 invalid token")}, Options{Logger: zerolog.Nop()})
	if got := c.Search(context.Background(), Query{Text: "x"}); len(got) != 0 {
		t.Errorf("Search() = %v, want empty", got)
	}
}

func TestHTTPClientRetriesRateLimit(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`ok`))
	}))
	defer server.Close()

	c := NewHTTPClient(WithRetryDelays(0))
	body, err := c.Get(context.Background(), server.URL, nil, nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(body) != "ok" || calls != 2 {
		t.Errorf("Get() = %q after %d calls, want ok after 2", body, calls)
	}
}

func TestHTTPClientStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewHTTPClient().Get(context.Background(), server.URL, nil, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadGateway {
		t.Fatalf("Get() error = %v, want StatusError 502", err)
	}
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("errors.Is(err, ErrUnexpectedStatus) = false")
	}
}

func TestRedact(t *testing.T) {
	got := redact("https://api-v2.soundcloud.com/search/tracks?client_id=secret&q=x")
	if got != "https://api-v2.soundcloud.com/search/tracks?client_id=REDACTED&q=x" {
		t.Errorf("redact() = %q", got)
	}
}
