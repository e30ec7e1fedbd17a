// Package config loads layered configuration: struct defaults, an optional
// YAML file, then REELS_* environment variables.
package config

import (
	"time"
)

// Config is the full runtime configuration.
type Config struct {
	Log       LogConfig       `koanf:"log"`
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	Library   LibraryConfig   `koanf:"library"`
	Buffer    BufferConfig    `koanf:"buffer"`
	Search    SearchConfig    `koanf:"search"`
	Recommend RecommendConfig `koanf:"recommend"`
	Feed      FeedConfig      `koanf:"feed"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	RequestsPerMin  int           `koanf:"requests_per_min"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StorageConfig selects the durable key/value backend for preference state.
type StorageConfig struct {
	Backend string `koanf:"backend"` // badger, file or memory
	Dir     string `koanf:"dir"`
}

type LibraryConfig struct {
	Path                string `koanf:"path"` // sqlite database; empty disables the library
	DownloadDir         string `koanf:"download_dir"`
	DownloadConcurrency int    `koanf:"download_concurrency"`
}

type BufferConfig struct {
	Behind      int           `koanf:"behind"`
	Ahead       int           `koanf:"ahead"`
	Stagger     time.Duration `koanf:"stagger"`
	LoadTimeout time.Duration `koanf:"load_timeout"`
	Output      string        `koanf:"output"` // speaker or null
}

type SearchConfig struct {
	AttemptTimeout    time.Duration    `koanf:"attempt_timeout"`
	ResultLimit       int              `koanf:"result_limit"`
	RequestsPerSecond float64          `koanf:"requests_per_second"`
	Burst             int              `koanf:"burst"`
	Breaker           BreakerConfig    `koanf:"breaker"`
	Saavn             SaavnConfig      `koanf:"saavn"`
	SoundCloud        SoundCloudConfig `koanf:"soundcloud"`
	ITunes            ProviderConfig   `koanf:"itunes"`
	Deezer            ProviderConfig   `koanf:"deezer"`
	Spotify           SpotifyConfig    `koanf:"spotify"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `koanf:"failure_threshold"`
	OpenTimeout      time.Duration `koanf:"open_timeout"`
}

// SaavnConfig lists mirror endpoints tried in order.
type SaavnConfig struct {
	Endpoints []string      `koanf:"endpoints"`
	Timeout   time.Duration `koanf:"timeout"`
}

type SoundCloudConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Timeout       time.Duration `koanf:"timeout"`
	CredentialTTL time.Duration `koanf:"credential_ttl"`
	HomeURL       string        `koanf:"home_url"`
	APIURL        string        `koanf:"api_url"`
}

type ProviderConfig struct {
	Enabled bool          `koanf:"enabled"`
	Timeout time.Duration `koanf:"timeout"`
	BaseURL string        `koanf:"base_url"`
}

type SpotifyConfig struct {
	ClientID     string        `koanf:"client_id"`
	ClientSecret string        `koanf:"client_secret"`
	Timeout      time.Duration `koanf:"timeout"`
}

// Enabled reports whether Spotify credentials were supplied.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

type RecommendConfig struct {
	QueriesPerPage int      `koanf:"queries_per_page"`
	PerQueryLimit  int      `koanf:"per_query_limit"`
	TopArtistPool  int      `koanf:"top_artist_pool"`
	Modifiers      []string `koanf:"modifiers"`
	Denylist       []string `koanf:"denylist"`
	Seed           int64    `koanf:"seed"` // 0 seeds from the clock
}

type FeedConfig struct {
	NearEndThreshold int `koanf:"near_end_threshold"`
}
