package search

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/justestif/go-reels-feed/internal/song"
)

type fakeConnector struct {
	name  string
	songs []song.Song
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeConnector) Name() string { return f.name }

func (f *fakeConnector) Search(ctx context.Context, _ Query) []song.Song {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil
		}
	}
	return f.songs
}

func songs(ids ...string) []song.Song {
	out := make([]song.Song, len(ids))
	for i, id := range ids {
		out[i] = song.Song{ID: id, Title: id, StreamURL: "https://cdn/" + id}
	}
	return out
}

func ids(ss []song.Song) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.ID
	}
	return out
}

func TestCascade(t *testing.T) {
	tests := []struct {
		name      string
		tiers     []*fakeConnector
		wantIDs   []string
		wantCalls []int32
	}{
		{
			name:      "first tier hit stops",
			tiers:     []*fakeConnector{{name: "a", songs: songs("a1")}, {name: "b", songs: songs("b1")}},
			wantIDs:   []string{"a1"},
			wantCalls: []int32{1, 0},
		},
		{
			name:      "falls through empty tiers",
			tiers:     []*fakeConnector{{name: "a"}, {name: "b"}, {name: "c", songs: songs("c1", "c2")}},
			wantIDs:   []string{"c1", "c2"},
			wantCalls: []int32{1, 1, 1},
		},
		{
			name:      "all empty",
			tiers:     []*fakeConnector{{name: "a"}, {name: "b"}},
			wantIDs:   []string{},
			wantCalls: []int32{1, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tiers := make([]Connector, len(tt.tiers))
			for i, c := range tt.tiers {
				tiers[i] = c
			}
			c := NewCascade("test", time.Second, zerolog.Nop(), tiers...)

			got := ids(c.Search(context.Background(), Query{Text: "q"}))
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Search() = %v, want %v", got, tt.wantIDs)
			}
			for i := range got {
				if got[i] != tt.wantIDs[i] {
					t.Errorf("Search()[%d] = %s, want %s", i, got[i], tt.wantIDs[i])
				}
			}
			for i, c := range tt.tiers {
				if n := c.calls.Load(); n != tt.wantCalls[i] {
					t.Errorf("tier %s called %d times, want %d", c.name, n, tt.wantCalls[i])
				}
			}
		})
	}
}

func TestCascadeAttemptTimeout(t *testing.T) {
	slow := &fakeConnector{name: "slow", songs: songs("s1"), delay: time.Second}
	fast := &fakeConnector{name: "fast", songs: songs("f1")}
	c := NewCascade("test", 50*time.Millisecond, zerolog.Nop(), slow, fast)

	start := time.Now()
	got := ids(c.Search(context.Background(), Query{Text: "q"}))
	if len(got) != 1 || got[0] != "f1" {
		t.Errorf("Search() = %v, want [f1]", got)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Search() took %v, want the slow tier cut off", elapsed)
	}
}

func TestCascadeSkipsNilTiers(t *testing.T) {
	c := NewCascade("test", 0, zerolog.Nop(), nil, &fakeConnector{name: "a", songs: songs("a1")})
	if len(c.Tiers()) != 1 {
		t.Fatalf("Tiers() = %d, want 1", len(c.Tiers()))
	}
}

func TestRace(t *testing.T) {
	tests := []struct {
		name string
		a, b *fakeConnector
		want string
	}{
		{
			name: "faster non-empty wins",
			a:    &fakeConnector{name: "a", songs: songs("a1"), delay: 300 * time.Millisecond},
			b:    &fakeConnector{name: "b", songs: songs("b1"), delay: 10 * time.Millisecond},
			want: "b1",
		},
		{
			name: "fast empty result is ignored",
			a:    &fakeConnector{name: "a", songs: songs("a1"), delay: 50 * time.Millisecond},
			b:    &fakeConnector{name: "b"},
			want: "a1",
		},
		{
			name: "both empty",
			a:    &fakeConnector{name: "a"},
			b:    &fakeConnector{name: "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRace(tt.a, tt.b)
			got := r.Search(context.Background(), Query{Text: "q"})
			if tt.want == "" {
				if len(got) != 0 {
					t.Errorf("Search() = %v, want empty", ids(got))
				}
				return
			}
			if len(got) != 1 || got[0].ID != tt.want {
				t.Errorf("Search() = %v, want [%s]", ids(got), tt.want)
			}
		})
	}
}

func TestRaceName(t *testing.T) {
	r := NewRace(&fakeConnector{name: "itunes"}, &fakeConnector{name: "deezer"})
	if r.Name() != "race(itunes,deezer)" {
		t.Errorf("Name() = %q", r.Name())
	}
}

func TestFanOut(t *testing.T) {
	primary := &fakeConnector{name: "p", songs: songs("p1", "p2"), delay: 20 * time.Millisecond}
	secondary := &fakeConnector{name: "s", songs: songs("s1")}

	got := ids(FanOut(context.Background(), Query{Text: "q"}, primary, secondary))
	want := []string{"p1", "p2", "s1"}
	if len(got) != len(want) {
		t.Fatalf("FanOut() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FanOut()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if got := FanOut(context.Background(), Query{Text: "q"}, nil, secondary); len(got) != 1 {
		t.Errorf("FanOut() with nil primary = %v, want [s1]", ids(got))
	}
	if got := FanOut(context.Background(), Query{Text: "q"}, &fakeConnector{name: "e"}, &fakeConnector{name: "e2"}); len(got) != 0 {
		t.Errorf("FanOut() of empty sides = %v, want empty", ids(got))
	}
}
