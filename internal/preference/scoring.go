package preference

import (
	"sort"

	"github.com/justestif/go-reels-feed/internal/song"
)

// Scoring weights.
const (
	likeWeight   = 50.0
	skipPenalty  = 30.0
	watchWeight  = 30.0
	suppressMin  = 2   // interactions before an artist can be suppressed
	suppressRate = 0.6 // skip rate above which an artist is suppressed
)

// ArtistScore is an artist's mean engagement score.
type ArtistScore struct {
	Artist           string  `json:"artist"` // normalized lowercase
	Score            float64 `json:"score"`
	InteractionCount int     `json:"interactionCount"`
}

// ComputeArtistScores rebuilds every artist score from the full history,
// oldest interaction first. Later interactions weigh up to twice as much.
// The result is sorted by score descending, ties by artist name.
func ComputeArtistScores(interactions []Interaction) []ArtistScore {
	n := float64(len(interactions))
	type acc struct {
		sum   float64
		count int
	}
	byArtist := make(map[string]*acc)

	for i, in := range interactions {
		artist := song.NormalizeArtist(in.Artist)
		if artist == "" {
			continue
		}
		recency := 1 + float64(i)/n

		var score float64
		switch {
		case in.Liked:
			score = likeWeight * recency
		case in.Skipped:
			score = -skipPenalty * recency
		default:
			var ratio float64
			if in.TotalDuration > 0 {
				ratio = in.WatchDuration / in.TotalDuration
			}
			score = ratio * watchWeight * recency
		}

		a, ok := byArtist[artist]
		if !ok {
			a = &acc{}
			byArtist[artist] = a
		}
		a.sum += score
		a.count++
	}

	scores := make([]ArtistScore, 0, len(byArtist))
	for artist, a := range byArtist {
		scores = append(scores, ArtistScore{
			Artist:           artist,
			Score:            a.sum / float64(a.count),
			InteractionCount: a.count,
		})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Artist < scores[j].Artist
	})
	return scores
}

// SuppressedArtists returns, sorted, the normalized artists with at least two
// interactions of which more than 60% were skips.
func SuppressedArtists(interactions []Interaction) []string {
	type acc struct{ total, skipped int }
	byArtist := make(map[string]*acc)
	for _, in := range interactions {
		artist := song.NormalizeArtist(in.Artist)
		if artist == "" {
			continue
		}
		a, ok := byArtist[artist]
		if !ok {
			a = &acc{}
			byArtist[artist] = a
		}
		a.total++
		if in.Skipped {
			a.skipped++
		}
	}

	var out []string
	for artist, a := range byArtist {
		if a.total >= suppressMin && float64(a.skipped)/float64(a.total) > suppressRate {
			out = append(out, artist)
		}
	}
	sort.Strings(out)
	return out
}
