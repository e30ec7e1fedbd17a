package preference

import (
	"strings"
)

// Language is a feed language the user can weight.
type Language string

const (
	Telugu    Language = "telugu"
	Hindi     Language = "hindi"
	Tamil     Language = "tamil"
	English   Language = "english"
	Kannada   Language = "kannada"
	Malayalam Language = "malayalam"
	Punjabi   Language = "punjabi"
	Bengali   Language = "bengali"
	Marathi   Language = "marathi"
)

// Languages lists every supported language.
var Languages = []Language{Telugu, Hindi, Tamil, English, Kannada, Malayalam, Punjabi, Bengali, Marathi}

// ParseLanguage matches s case-insensitively against the supported set.
func ParseLanguage(s string) (Language, bool) {
	l := Language(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Languages {
		if l == known {
			return l, true
		}
	}
	return "", false
}

// LanguagePreference is a language and its share (0-100) of generated queries.
type LanguagePreference struct {
	Language Language `json:"language"`
	Weight   float64  `json:"weight"`
}

// DefaultLanguages is used until the user sets their own weights.
func DefaultLanguages() []LanguagePreference {
	return []LanguagePreference{
		{Language: Telugu, Weight: 60},
		{Language: Hindi, Weight: 40},
	}
}

// NormalizeLanguages drops unknown and non-positive entries, clamps weights to
// 100, merges duplicates and rescales so the weights sum to 100. Input with no
// usable weight yields the defaults.
func NormalizeLanguages(prefs []LanguagePreference) []LanguagePreference {
	var order []Language
	merged := make(map[Language]float64)
	for _, p := range prefs {
		lang, ok := ParseLanguage(string(p.Language))
		if !ok || p.Weight <= 0 {
			continue
		}
		w := p.Weight
		if w > 100 {
			w = 100
		}
		if _, seen := merged[lang]; !seen {
			order = append(order, lang)
		}
		merged[lang] += w
	}

	var total float64
	for _, w := range merged {
		total += w
	}
	if total <= 0 {
		return DefaultLanguages()
	}

	out := make([]LanguagePreference, 0, len(order))
	for _, lang := range order {
		out = append(out, LanguagePreference{Language: lang, Weight: merged[lang] / total * 100})
	}
	return out
}
