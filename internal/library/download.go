package library

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-reels-feed/internal/song"
)

// Saver records a downloaded song in the library.
type Saver interface {
	Add(ctx context.Context, s song.Song) error
}

// DefaultDownloadConcurrency bounds parallel vault downloads.
const DefaultDownloadConcurrency = 3

var unsafeFileChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]+`)

// Downloader saves vault songs to disk and registers them in the library.
type Downloader struct {
	dir         string
	saver       Saver
	httpClient  *http.Client
	concurrency int
	logger      zerolog.Logger
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithConcurrency sets the number of parallel downloads.
func WithConcurrency(n int) DownloaderOption {
	return func(d *Downloader) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithHTTPClient replaces the HTTP client used for downloads.
func WithHTTPClient(c *http.Client) DownloaderOption {
	return func(d *Downloader) {
		if c != nil {
			d.httpClient = c
		}
	}
}

// NewDownloader creates a downloader writing into dir.
func NewDownloader(dir string, saver Saver, logger zerolog.Logger, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		dir:         dir,
		saver:       saver,
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		concurrency: DefaultDownloadConcurrency,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Result reports a batch download. Failed is keyed by song id.
type Result struct {
	Saved   []song.Song
	Skipped []song.Song
	Failed  map[string]error
}

// Download fetches every non-local song concurrently. One song failing does
// not stop the others; failures are collected in the result. The returned
// error is non-nil only when ctx ends the batch.
func (d *Downloader) Download(ctx context.Context, songs []song.Song) (Result, error) {
	res := Result{Failed: make(map[string]error)}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return res, fmt.Errorf("creating download directory: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, s := range songs {
		if s.IsLocal || !s.Playable() {
			res.Skipped = append(res.Skipped, s)
			continue
		}
		g.Go(func() error {
			saved, err := d.downloadOne(gctx, s)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.logger.Warn().Err(err).Str("song", s.ID).Msg("download failed")
				res.Failed[s.ID] = err
				return nil
			}
			res.Saved = append(res.Saved, saved)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (d *Downloader) downloadOne(ctx context.Context, s song.Song) (song.Song, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.StreamURL, nil)
	if err != nil {
		return song.Song{}, fmt.Errorf("creating request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return song.Song{}, fmt.Errorf("fetching stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return song.Song{}, fmt.Errorf("fetching stream: status %d", resp.StatusCode)
	}

	dest := filepath.Join(d.dir, FileName(s, extension(s.StreamURL, resp.Header.Get("Content-Type"))))

	pf, err := renameio.NewPendingFile(dest, renameio.WithPermissions(0o644))
	if err != nil {
		return song.Song{}, fmt.Errorf("creating %s: %w", dest, err)
	}
	defer func() { _ = pf.Cleanup() }()

	if _, err := io.Copy(pf, resp.Body); err != nil {
		return song.Song{}, fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return song.Song{}, fmt.Errorf("committing %s: %w", dest, err)
	}

	local := s
	local.StreamURL = dest
	if err := d.saver.Add(ctx, local); err != nil {
		return song.Song{}, err
	}
	local.IsLocal = true
	local.Source = song.SourceLocal
	return local, nil
}

// FileName builds "<artist> - <title><ext>" with characters unsafe for
// common filesystems replaced.
func FileName(s song.Song, ext string) string {
	name := s.Title
	if s.Artist != "" {
		name = s.Artist + " - " + s.Title
	}
	name = strings.TrimSpace(unsafeFileChars.ReplaceAllString(name, "_"))
	name = strings.Trim(name, ". ")
	if name == "" {
		name = strings.ReplaceAll(s.ID, ":", "_")
	}
	return name + ext
}

var knownExt = map[string]bool{".mp3": true, ".m4a": true, ".mp4": true, ".aac": true, ".wav": true, ".flac": true, ".ogg": true}

func extension(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); knownExt[ext] {
			return ext
		}
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "audio/mp4", "audio/x-m4a":
			return ".m4a"
		case "audio/wav", "audio/x-wav", "audio/wave":
			return ".wav"
		case "audio/flac", "audio/x-flac":
			return ".flac"
		case "audio/ogg":
			return ".ogg"
		}
	}
	return ".mp3"
}
