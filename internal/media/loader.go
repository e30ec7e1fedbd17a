// Package media loads feed songs into memory and plays them with beep.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog"

	"github.com/justestif/go-reels-feed/internal/buffer"
	"github.com/justestif/go-reels-feed/internal/song"
)

// DefaultMaxBytes caps how much of a stream is read into memory.
const DefaultMaxBytes = 32 << 20

// ErrUnsupportedFormat is returned for media beep cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported media format")

type format int

const (
	formatUnknown format = iota
	formatMP3
	formatWAV
	formatFLAC
	formatVorbis
)

// Loader fetches and decodes songs for the buffer manager.
type Loader struct {
	output   Output
	client   *http.Client
	maxBytes int64
	logger   zerolog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHTTPClient sets the client used for remote streams.
func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *Loader) {
		if c != nil {
			l.client = c
		}
	}
}

// WithMaxBytes overrides DefaultMaxBytes.
func WithMaxBytes(n int64) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a loader whose handles play through output.
func NewLoader(output Output, opts ...LoaderOption) *Loader {
	l := &Loader{
		output:   output,
		client:   &http.Client{Timeout: 0},
		maxBytes: DefaultMaxBytes,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads s into memory and decodes it.
func (l *Loader) Load(ctx context.Context, s song.Song) (buffer.Handle, error) {
	start := time.Now()
	data, contentType, err := l.fetch(ctx, s)
	if err != nil {
		return nil, err
	}

	f := detect(s.StreamURL, contentType, data)
	streamer, fmtInfo, err := decode(f, data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.ID, err)
	}

	l.logger.Debug().
		Str("song", s.ID).
		Int("bytes", len(data)).
		Int("sample_rate", int(fmtInfo.SampleRate)).
		Dur("elapsed", time.Since(start)).
		Msg("media loaded")
	return newHandle(l.output, streamer, fmtInfo), nil
}

func (l *Loader) fetch(ctx context.Context, s song.Song) ([]byte, string, error) {
	if p, ok := localPath(s); ok {
		f, err := os.Open(p)
		if err != nil {
			return nil, "", fmt.Errorf("opening %s: %w", p, err)
		}
		defer f.Close()
		data, err := l.readLimited(f)
		return data, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.StreamURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Linux; Android 14) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Mobile Safari/537.36")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetching stream: status %d", resp.StatusCode)
	}
	data, err := l.readLimited(resp.Body)
	return data, resp.Header.Get("Content-Type"), err
}

func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("stream exceeds %d bytes", l.maxBytes)
	}
	return data, nil
}

func localPath(s song.Song) (string, bool) {
	u, err := url.Parse(s.StreamURL)
	switch {
	case err == nil && u.Scheme == "file":
		return u.Path, true
	case s.IsLocal, err == nil && u.Scheme == "":
		return s.StreamURL, true
	}
	return "", false
}

// detect picks a decoder by URL extension, then Content-Type, then magic bytes.
func detect(rawURL, contentType string, data []byte) format {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".mp3":
		return formatMP3
	case ".wav", ".wave":
		return formatWAV
	case ".flac":
		return formatFLAC
	case ".ogg", ".oga":
		return formatVorbis
	}

	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "audio/mpeg", "audio/mp3":
			return formatMP3
		case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
			return formatWAV
		case "audio/flac", "audio/x-flac":
			return formatFLAC
		case "audio/ogg", "audio/vorbis", "application/ogg":
			return formatVorbis
		}
	}

	switch {
	case bytes.HasPrefix(data, []byte("ID3")), len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return formatMP3
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return formatWAV
	case bytes.HasPrefix(data, []byte("fLaC")):
		return formatFLAC
	case bytes.HasPrefix(data, []byte("OggS")):
		return formatVorbis
	}
	return formatUnknown
}

type memFile struct{ *bytes.Reader }

func (memFile) Close() error { return nil }

func decode(f format, data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	r := memFile{bytes.NewReader(data)}
	switch f {
	case formatMP3:
		return mp3.Decode(r)
	case formatWAV:
		return wav.Decode(r)
	case formatFLAC:
		return flac.Decode(r)
	case formatVorbis:
		return vorbis.Decode(r)
	}
	return nil, beep.Format{}, ErrUnsupportedFormat
}
