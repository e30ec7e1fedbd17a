package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/justestif/go-reels-feed/internal/config"
	"github.com/justestif/go-reels-feed/internal/search"
)

// Connectors are the three search surfaces the app composes.
type Connectors struct {
	// Discover serves user searches and magic-discover.
	Discover *search.Cascade
	// Primary and Secondary feed the recommendation fan-out.
	Primary   *search.Cascade
	Secondary *search.Cascade
}

// NewConnectors builds every enabled connector from cfg around one shared,
// rate-limited HTTP client.
func NewConnectors(ctx context.Context, cfg config.SearchConfig, logger zerolog.Logger) Connectors {
	client := search.NewHTTPClient(search.WithRateLimit(cfg.RequestsPerSecond, cfg.Burst))
	breaker := search.BreakerSettings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
	}
	opts := func(timeout time.Duration) search.Options {
		return search.Options{
			Client:  client,
			Timeout: timeout,
			Limit:   cfg.ResultLimit,
			Breaker: breaker,
			Logger:  logger,
		}
	}

	saavn := make([]search.Connector, 0, len(cfg.Saavn.Endpoints))
	for _, ep := range cfg.Saavn.Endpoints {
		saavn = append(saavn, search.NewSaavn(ep, opts(cfg.Saavn.Timeout)))
	}

	var catalogue []search.Connector
	if cfg.ITunes.Enabled {
		catalogue = append(catalogue, search.NewITunes(cfg.ITunes.BaseURL, opts(cfg.ITunes.Timeout)))
	}
	if cfg.Deezer.Enabled {
		catalogue = append(catalogue, search.NewDeezer(cfg.Deezer.BaseURL, opts(cfg.Deezer.Timeout)))
	}
	var previews search.Connector
	if len(catalogue) > 0 {
		previews = search.NewRace(catalogue...)
	}

	var spotify search.Connector
	if cfg.Spotify.Enabled() {
		api := search.NewSpotifyAPI(ctx, cfg.Spotify.ClientID, cfg.Spotify.ClientSecret)
		spotify = search.NewSpotify(api, opts(cfg.Spotify.Timeout))
	}

	var soundcloud search.Connector
	if cfg.SoundCloud.Enabled {
		soundcloud = search.NewSoundCloud(cfg.SoundCloud.HomeURL, cfg.SoundCloud.APIURL,
			cfg.SoundCloud.CredentialTTL, opts(cfg.SoundCloud.Timeout))
	}

	discover := append(append([]search.Connector(nil), saavn...), spotify, previews)
	return Connectors{
		Discover:  search.NewCascade("discover", cfg.AttemptTimeout, logger, discover...),
		Primary:   search.NewCascade("primary", cfg.AttemptTimeout, logger, saavn...),
		Secondary: search.NewCascade("secondary", cfg.AttemptTimeout, logger, soundcloud, previews),
	}
}
