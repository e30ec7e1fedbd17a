package recommend

import (
	"context"
	"strings"

	"github.com/justestif/go-reels-feed/internal/library"
	"github.com/justestif/go-reels-feed/internal/preference"
	"github.com/justestif/go-reels-feed/internal/search"
	"github.com/justestif/go-reels-feed/internal/song"
)

// GenerateQueries returns n search queries drawn from the user's artist pool,
// padded with language trending queries when the pool runs short.
func (e *Engine) GenerateQueries(ctx context.Context, n int) []search.Query {
	return e.generateQueries(n, e.libraryIndex(ctx))
}

func (e *Engine) generateQueries(n int, idx *library.Index) []search.Query {
	if n <= 0 {
		return nil
	}
	langs := e.prefs.Languages()

	pool := e.artistPool(idx)
	e.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > n {
		pool = pool[:n]
	}

	queries := make([]search.Query, 0, n)
	for _, artist := range pool {
		modifier := e.cfg.Modifiers[e.intN(len(e.cfg.Modifiers))]
		queries = append(queries, search.Query{
			Text:     artist + " " + modifier,
			Language: string(e.drawLanguage(langs)),
		})
	}
	for len(queries) < n {
		lang := e.drawLanguage(langs)
		queries = append(queries, search.Query{
			Text:     TrendingQuery(lang),
			Language: string(lang),
		})
	}
	return queries
}

// TrendingQuery is the language-only fallback query.
func TrendingQuery(lang preference.Language) string {
	if lang == "" {
		return "trending songs"
	}
	return string(lang) + " trending songs"
}

// artistPool is the union of top-scoring artists and library artists, minus
// suppressed artists. Names are deduplicated case-insensitively; library
// spelling wins over the lowercase score key.
func (e *Engine) artistPool(idx *library.Index) []string {
	seen := make(map[string]bool)
	var pool []string
	add := func(name string) {
		norm := song.NormalizeArtist(name)
		if norm == "" || seen[norm] || e.prefs.IsArtistSkipped(name) {
			return
		}
		seen[norm] = true
		pool = append(pool, strings.TrimSpace(name))
	}
	for _, a := range idx.Artists() {
		add(a)
	}
	for _, a := range e.prefs.TopArtistNames(e.cfg.TopArtistPool) {
		add(a)
	}
	return pool
}

func (e *Engine) drawLanguage(langs []preference.LanguagePreference) preference.Language {
	var total float64
	for _, l := range langs {
		if l.Weight > 0 {
			total += l.Weight
		}
	}
	if total <= 0 {
		return ""
	}
	return WeightedChoice(langs, e.float64()*total)
}

// WeightedChoice walks the positive-weight languages accumulating weights and
// returns the first whose cumulative weight reaches r. r must be in
// [0, total weight).
func WeightedChoice(langs []preference.LanguagePreference, r float64) preference.Language {
	var cum float64
	var last preference.Language
	for _, l := range langs {
		if l.Weight <= 0 {
			continue
		}
		cum += l.Weight
		last = l.Language
		if cum >= r {
			return l.Language
		}
	}
	return last
}
