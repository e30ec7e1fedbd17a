package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-reels-feed/internal/config"
	"github.com/justestif/go-reels-feed/internal/log"
	"github.com/justestif/go-reels-feed/internal/search"
)

func TestMain(m *testing.M) {
	log.Configure(log.Config{Level: "disabled"})
	os.Exit(m.Run())
}

func names(cs []search.Connector) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name()
	}
	return out
}

func TestNewConnectors(t *testing.T) {
	cfg := config.Default().Search

	c := NewConnectors(context.Background(), cfg, log.Nop())
	assert.Equal(t, []string{
		"saavn:saavn.dev",
		"saavn:jiosaavn-api-privatecvc2.vercel.app",
		"saavn:saavn.me",
		"race(itunes,deezer)",
	}, names(c.Discover.Tiers()))
	assert.Len(t, c.Primary.Tiers(), 3)
	assert.Equal(t, []string{"soundcloud", "race(itunes,deezer)"}, names(c.Secondary.Tiers()))
}

func TestNewConnectorsWithSpotify(t *testing.T) {
	cfg := config.Default().Search
	cfg.Spotify.ClientID = "id"
	cfg.Spotify.ClientSecret = "secret"
	cfg.SoundCloud.Enabled = false
	cfg.Deezer.Enabled = false

	c := NewConnectors(context.Background(), cfg, log.Nop())
	got := names(c.Discover.Tiers())
	require.Len(t, got, 5)
	assert.Equal(t, "spotify", got[3])
	assert.Equal(t, "race(itunes)", got[4])
	assert.Equal(t, []string{"race(itunes)"}, names(c.Secondary.Tiers()))
}

// upstream serves a Saavn-style search whose songs stream WAV clips from the
// same server.
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	clip := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(clip)
	require.NoError(t, err)
	rate := beep.SampleRate(8000)
	require.NoError(t, wav.Encode(f, beep.Silence(rate.N(5*time.Second)), beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2}))
	require.NoError(t, f.Close())

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/search/songs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"results":[
			{"id":"1","song":"First","primaryArtists":"Artist One","media_url":"%[1]s/clips/1.wav","duration":"5"},
			{"id":"2","song":"Second","primaryArtists":"Artist Two","media_url":"%[1]s/clips/2.wav","duration":"5"}
		]}`, srv.URL)
	})
	mux.HandleFunc("/clips/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		http.ServeFile(w, r, clip)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(srv *httptest.Server) *config.Config {
	cfg := config.Default()
	cfg.Storage.Backend = "memory"
	cfg.Library.Path = ""
	cfg.Buffer.Output = "null"
	cfg.Buffer.Stagger = 0
	cfg.Search.RequestsPerSecond = 100
	cfg.Search.Burst = 20
	cfg.Search.Saavn.Endpoints = []string{srv.URL + "/search/songs"}
	cfg.Search.SoundCloud.Enabled = false
	cfg.Search.ITunes.Enabled = false
	cfg.Search.Deezer.Enabled = false
	cfg.Recommend.Seed = 7
	return cfg
}

func TestOpenFeedPlaysFirstSong(t *testing.T) {
	srv := upstream(t)
	a, err := New(context.Background(), testConfig(srv))
	require.NoError(t, err)
	defer a.Close()

	c, err := a.OpenFeed(context.Background())
	require.NoError(t, err)

	again, err := a.OpenFeed(context.Background())
	require.NoError(t, err)
	assert.Same(t, c, again)

	assert.Equal(t, 2, c.Store().Len())
	assert.Equal(t, 0, c.Store().CurrentIndex())
	for _, s := range c.Store().Songs() {
		assert.True(t, a.Prefs.IsSeen(s.ID), s.ID)
	}

	assert.Eventually(t, func() bool {
		st, ok := c.PlaybackStatus()
		return ok && st.Playing && st.Position > 0
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, c.OnViewableIndexChanged(context.Background(), 1))
	assert.Eventually(t, func() bool {
		st, ok := c.PlaybackStatus()
		return ok && st.Playing
	}, 5*time.Second, 20*time.Millisecond)
	assert.Len(t, a.Prefs.Snapshot().Interactions, 1)
}

func TestOpenFeedEmptyUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv)
	cfg.Search.Saavn.Endpoints = []string{srv.URL}
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)

	c, err := a.OpenFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, c.Store().Len())
	_, ok := c.PlaybackStatus()
	assert.False(t, ok)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	_, err = a.OpenFeed(context.Background())
	assert.Error(t, err)
}

func TestNewWithLibrary(t *testing.T) {
	srv := upstream(t)
	cfg := testConfig(srv)
	dir := t.TempDir()
	cfg.Storage.Backend = "file"
	cfg.Storage.Dir = filepath.Join(dir, "state")
	cfg.Library.Path = filepath.Join(dir, "lib", "library.db")
	cfg.Library.DownloadDir = filepath.Join(dir, "vault")

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, a.Library)
	songs, err := a.Library.Songs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, songs)
	require.NoError(t, a.Close())
}
