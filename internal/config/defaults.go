package config

import "time"

// DefaultSaavnEndpoints are the public Saavn API mirrors, tried in order.
var DefaultSaavnEndpoints = []string{
	"https://saavn.dev/api/search/songs",
	"https://jiosaavn-api-privatecvc2.vercel.app/search/songs",
	"https://saavn.me/search/songs",
}

// DefaultModifiers are appended to artist names when building feed queries.
var DefaultModifiers = []string{
	"songs",
	"hit songs",
	"melody songs",
	"best songs",
	"latest songs",
	"love songs",
}

// DefaultDenylist holds substrings that exclude a result when found in its
// title or artist.
var DefaultDenylist = []string{
	"devotional",
	"bhakti",
	"bhajan",
	"aarti",
	"mantra",
	"stotram",
	"suprabhatam",
	"keerthana",
	"god songs",
	"sped up",
	"slowed",
	"nightcore",
	"reverb",
	"8d audio",
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			RequestsPerMin:  120,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "badger",
			Dir:     defaultDataDir("state"),
		},
		Library: LibraryConfig{
			Path:                defaultDataDir("library.db"),
			DownloadDir:         defaultDataDir("vault"),
			DownloadConcurrency: 3,
		},
		Buffer: BufferConfig{
			Behind:      1,
			Ahead:       4,
			Stagger:     350 * time.Millisecond,
			LoadTimeout: 20 * time.Second,
			Output:      "speaker",
		},
		Search: SearchConfig{
			AttemptTimeout:    15 * time.Second,
			ResultLimit:       20,
			RequestsPerSecond: 4,
			Burst:             4,
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				OpenTimeout:      30 * time.Second,
			},
			Saavn: SaavnConfig{
				Endpoints: append([]string(nil), DefaultSaavnEndpoints...),
				Timeout:   8 * time.Second,
			},
			SoundCloud: SoundCloudConfig{
				Enabled:       true,
				Timeout:       12 * time.Second,
				CredentialTTL: time.Hour,
				HomeURL:       "https://soundcloud.com",
				APIURL:        "https://api-v2.soundcloud.com",
			},
			ITunes: ProviderConfig{
				Enabled: true,
				Timeout: 6 * time.Second,
				BaseURL: "https://itunes.apple.com",
			},
			Deezer: ProviderConfig{
				Enabled: true,
				Timeout: 6 * time.Second,
				BaseURL: "https://api.deezer.com",
			},
			Spotify: SpotifyConfig{
				Timeout: 8 * time.Second,
			},
		},
		Recommend: RecommendConfig{
			QueriesPerPage: 6,
			PerQueryLimit:  5,
			TopArtistPool:  10,
			Modifiers:      append([]string(nil), DefaultModifiers...),
			Denylist:       append([]string(nil), DefaultDenylist...),
		},
		Feed: FeedConfig{
			NearEndThreshold: 3,
		},
	}
}
