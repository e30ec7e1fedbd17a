package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/justestif/go-reels-feed/internal/buffer"
	"github.com/justestif/go-reels-feed/internal/feed"
	"github.com/justestif/go-reels-feed/internal/library"
	"github.com/justestif/go-reels-feed/internal/preference"
	"github.com/justestif/go-reels-feed/internal/search"
	"github.com/justestif/go-reels-feed/internal/song"
)

const maxBodyBytes = 64 << 10

// Feed is the feed screen the API drives.
type Feed interface {
	Session() string
	Store() *feed.Store
	Refresh(ctx context.Context) (int, error)
	LoadMore(ctx context.Context) (int, error)
	OnViewableIndexChanged(ctx context.Context, index int) error
	ToggleLike() (bool, error)
	Discover(ctx context.Context, query string) (int, error)
	SetVisible(visible bool)
	DownloadVault(ctx context.Context) (library.Result, error)
	Pause()
	Resume()
	TogglePlayback() bool
	SeekTo(pos time.Duration)
	PlaybackStatus() (buffer.Status, bool)
}

// Preferences is the preference state the API reads and edits.
type Preferences interface {
	SetLanguageWeights(prefs []preference.LanguagePreference) []preference.LanguagePreference
	Snapshot() preference.State
}

// Handlers contains the API handlers.
type Handlers struct {
	feed   Feed
	prefs  Preferences
	search search.Connector
	logger zerolog.Logger
}

// NewHandlers creates a new Handlers instance. search may be nil.
func NewHandlers(f Feed, prefs Preferences, searcher search.Connector, logger zerolog.Logger) *Handlers {
	return &Handlers{feed: f, prefs: prefs, search: searcher, logger: logger}
}

type playbackResponse struct {
	PositionMs int64 `json:"positionMs"`
	DurationMs int64 `json:"durationMs"`
	Playing    bool  `json:"playing"`
}

type feedResponse struct {
	Session string `json:"session"`
	feed.State
	Playback *playbackResponse `json:"playback,omitempty"`
}

func toPlayback(st buffer.Status) *playbackResponse {
	return &playbackResponse{
		PositionMs: st.Position.Milliseconds(),
		DurationMs: st.Duration.Milliseconds(),
		Playing:    st.Playing,
	}
}

// Feed returns the feed state (GET /api/feed).
func (h *Handlers) Feed(w http.ResponseWriter, r *http.Request) {
	resp := feedResponse{Session: h.feed.Session(), State: h.feed.Store().Snapshot()}
	if st, ok := h.feed.PlaybackStatus(); ok {
		resp.Playback = toPlayback(st)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Refresh replaces the feed with a new page (POST /api/feed/refresh).
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	n, err := h.feed.Refresh(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"added": n})
}

// LoadMore appends the next page (POST /api/feed/more).
func (h *Handlers) LoadMore(w http.ResponseWriter, r *http.Request) {
	n, err := h.feed.LoadMore(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"added": n})
}

// SetIndex reports the index the screen settled on (PUT /api/feed/index).
func (h *Handlers) SetIndex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index *int `json:"index"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Index == nil {
		writeError(w, http.StatusBadRequest, "index is required")
		return
	}
	if err := h.feed.OnViewableIndexChanged(r.Context(), *req.Index); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleLike saves or unsaves the current song (POST /api/feed/like).
func (h *Handlers) ToggleLike(w http.ResponseWriter, r *http.Request) {
	liked, err := h.feed.ToggleLike()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"liked": liked})
}

// Discover inserts songs for a query after the current one
// (POST /api/feed/discover).
func (h *Handlers) Discover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.feed.Discover(r.Context(), strings.TrimSpace(req.Query))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"inserted": n})
}

// SetVisibility suspends or resumes playback (POST /api/feed/visibility).
func (h *Handlers) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visible bool `json:"visible"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	h.feed.SetVisible(req.Visible)
	w.WriteHeader(http.StatusNoContent)
}

// Vault lists saved songs (GET /api/vault).
func (h *Handlers) Vault(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]song.Song{"songs": h.feed.Store().Vault()})
}

// DownloadVault saves vault songs to the library (POST /api/vault/download).
func (h *Handlers) DownloadVault(w http.ResponseWriter, r *http.Request) {
	res, err := h.feed.DownloadVault(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	failed := make(map[string]string, len(res.Failed))
	for id, err := range res.Failed {
		failed[id] = err.Error()
	}
	writeJSON(w, http.StatusOK, struct {
		Saved   []song.Song       `json:"saved"`
		Skipped []song.Song       `json:"skipped"`
		Failed  map[string]string `json:"failed"`
	}{emptyIfNil(res.Saved), emptyIfNil(res.Skipped), failed})
}

// Playback pauses, resumes or toggles the current song
// (POST /api/playback/{action}).
func (h *Handlers) Playback(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "pause":
		h.feed.Pause()
	case "resume":
		h.feed.Resume()
	case "toggle":
		h.feed.TogglePlayback()
	default:
		writeError(w, http.StatusNotFound, "unknown playback action")
		return
	}
	st, _ := h.feed.PlaybackStatus()
	writeJSON(w, http.StatusOK, toPlayback(st))
}

// Seek moves the current song (PUT /api/playback/seek).
func (h *Handlers) Seek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PositionMs int64 `json:"positionMs"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PositionMs < 0 {
		writeError(w, http.StatusBadRequest, "positionMs must not be negative")
		return
	}
	h.feed.SeekTo(time.Duration(req.PositionMs) * time.Millisecond)
	w.WriteHeader(http.StatusNoContent)
}

// Search runs the discover cascade (GET /api/search?q=&lang=).
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		writeError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	songs := h.search.Search(r.Context(), search.Query{Text: q, Language: r.URL.Query().Get("lang")})
	writeJSON(w, http.StatusOK, map[string][]song.Song{"songs": emptyIfNil(songs)})
}

// Preferences summarizes the taste model (GET /api/preferences).
func (h *Handlers) Preferences(w http.ResponseWriter, r *http.Request) {
	st := h.prefs.Snapshot()
	writeJSON(w, http.StatusOK, struct {
		TopArtists     []preference.ArtistScore        `json:"topArtists"`
		SkippedArtists []string                        `json:"skippedArtists"`
		Languages      []preference.LanguagePreference `json:"languages"`
		Interactions   int                             `json:"interactions"`
		SeenSongs      int                             `json:"seenSongs"`
	}{st.TopArtists, st.SkippedArtists, st.PreferredLanguages, len(st.Interactions), len(st.SeenSongIDs)})
}

// SetLanguages replaces the language weights (PUT /api/preferences/languages).
func (h *Handlers) SetLanguages(w http.ResponseWriter, r *http.Request) {
	var req []struct {
		Language string  `json:"language"`
		Weight   float64 `json:"weight"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	langs := make([]preference.LanguagePreference, 0, len(req))
	for _, l := range req {
		lang, ok := preference.ParseLanguage(l.Language)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown language: "+l.Language)
			return
		}
		if l.Weight < 0 {
			writeError(w, http.StatusBadRequest, "weights must not be negative")
			return
		}
		langs = append(langs, preference.LanguagePreference{Language: lang, Weight: l.Weight})
	}
	writeJSON(w, http.StatusOK, map[string][]preference.LanguagePreference{
		"languages": h.prefs.SetLanguageWeights(langs),
	})
}

// fail maps controller errors to status codes.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, feed.ErrIndexOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, feed.ErrNoCurrentSong):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, feed.ErrDiscoverUnavailable), errors.Is(err, feed.ErrDownloadsDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func emptyIfNil(ss []song.Song) []song.Song {
	if ss == nil {
		return []song.Song{}
	}
	return ss
}
