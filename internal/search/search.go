// Package search queries upstream music-search providers and normalizes their
// responses into song.Song records.
//
// Connectors never return errors: any failure (timeout, non-2xx, malformed
// body, open circuit) is logged and reported as an empty result. Cascades and
// races compose connectors into fallback chains.
package search

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/justestif/go-reels-feed/internal/song"
)

// Query is one search request.
type Query struct {
	Text     string
	Language string // optional hint; connectors treat it as a soft preference
}

// Connector searches exactly one upstream.
type Connector interface {
	Name() string
	Search(ctx context.Context, q Query) []song.Song
}

// Options configures a connector.
type Options struct {
	Client  *HTTPClient
	Timeout time.Duration
	Limit   int
	Breaker BreakerSettings
	Logger  zerolog.Logger
}

const defaultLimit = 20

func (o Options) withDefaults(timeout time.Duration) Options {
	if o.Client == nil {
		o.Client = NewHTTPClient()
	}
	if o.Timeout <= 0 {
		o.Timeout = timeout
	}
	if o.Limit <= 0 {
		o.Limit = defaultLimit
	}
	return o
}
