package config

import (
	"fmt"
)

// Validate checks the configuration for values the feed cannot run with.
func (c *Config) Validate() error {
	if c.Buffer.Behind < 0 || c.Buffer.Ahead < 0 {
		return fmt.Errorf("%w: buffer window sizes must be non-negative (behind=%d, ahead=%d)",
			ErrInvalidConfig, c.Buffer.Behind, c.Buffer.Ahead)
	}
	if c.Buffer.LoadTimeout <= 0 {
		return fmt.Errorf("%w: buffer.load_timeout must be positive", ErrInvalidConfig)
	}
	switch c.Buffer.Output {
	case "speaker", "null":
	default:
		return fmt.Errorf("%w: unknown buffer.output %q", ErrInvalidConfig, c.Buffer.Output)
	}

	switch c.Storage.Backend {
	case "badger", "file":
		if c.Storage.Dir == "" {
			return fmt.Errorf("%w: storage.dir is required for backend %q", ErrInvalidConfig, c.Storage.Backend)
		}
	case "memory":
	default:
		return fmt.Errorf("%w: unknown storage.backend %q", ErrInvalidConfig, c.Storage.Backend)
	}

	if err := c.validateSearch(); err != nil {
		return err
	}

	r := c.Recommend
	if r.QueriesPerPage <= 0 || r.PerQueryLimit <= 0 || r.TopArtistPool <= 0 {
		return fmt.Errorf("%w: recommend counts must be positive", ErrInvalidConfig)
	}
	if len(r.Modifiers) == 0 {
		return fmt.Errorf("%w: recommend.modifiers must not be empty", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) validateSearch() error {
	s := c.Search
	if s.AttemptTimeout <= 0 {
		return fmt.Errorf("%w: search.attempt_timeout must be positive", ErrInvalidConfig)
	}
	if s.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: search.requests_per_second must be positive", ErrInvalidConfig)
	}
	if len(s.Saavn.Endpoints) == 0 && !s.SoundCloud.Enabled && !s.ITunes.Enabled && !s.Deezer.Enabled && !s.Spotify.Enabled() {
		return fmt.Errorf("%w: no search connectors enabled", ErrInvalidConfig)
	}
	for name, d := range map[string]int64{
		"saavn":      int64(s.Saavn.Timeout),
		"soundcloud": int64(s.SoundCloud.Timeout),
		"itunes":     int64(s.ITunes.Timeout),
		"deezer":     int64(s.Deezer.Timeout),
		"spotify":    int64(s.Spotify.Timeout),
	} {
		if d <= 0 {
			return fmt.Errorf("%w: search.%s.timeout must be positive", ErrInvalidConfig, name)
		}
	}
	return nil
}
