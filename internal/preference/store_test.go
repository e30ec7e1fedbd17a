package preference

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-reels-feed/internal/song"
	"github.com/justestif/go-reels-feed/internal/storage"
)

type failingKV struct{ storage.Store }

func (failingKV) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk gone") }
func (failingKV) Put(context.Context, string, []byte) error  { return errors.New("disk full") }

func newStore(t *testing.T) (*Store, *storage.Memory) {
	t.Helper()
	kv := storage.NewMemory()
	s := NewStore(kv, zerolog.Nop())
	require.NoError(t, s.Load(context.Background()))
	return s, kv
}

func TestNewInteraction(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	s := song.Song{ID: "saavn:1", Title: "Kesariya", Artist: "Arijit Singh"}

	in := NewInteraction(s, 2900*time.Millisecond, 30*time.Second, false, at)
	assert.True(t, in.Skipped)
	assert.Equal(t, int64(1_700_000_000_000), in.Timestamp)
	assert.InDelta(t, 2.9, in.WatchDuration, 1e-9)

	in = NewInteraction(s, 3*time.Second, 30*time.Second, false, at)
	assert.False(t, in.Skipped, "exactly 3s is not a skip")
}

func TestStoreRecordInteraction(t *testing.T) {
	s, _ := newStore(t)

	s.RecordInteraction(liked("Anirudh"))
	s.RecordInteraction(watched("Thaman S", 20, 30))
	s.RecordInteraction(skipped("Noisy"))
	s.RecordInteraction(skipped("Noisy"))

	assert.Equal(t, []string{"anirudh", "thaman s"}, s.TopArtistNames(5))
	assert.Equal(t, []string{"anirudh"}, s.TopArtistNames(1))
	assert.Equal(t, []string{"noisy"}, s.SkippedArtistNames())
	assert.True(t, s.IsArtistSkipped("NOISY "))
	assert.False(t, s.IsArtistSkipped("Anirudh"))
	assert.True(t, s.HasSignal())
	s.Flush()
}

func TestStoreCapsHistory(t *testing.T) {
	s, _ := newStore(t)

	for i := 0; i < MaxInteractions+20; i++ {
		s.RecordInteraction(liked(fmt.Sprintf("artist-%03d", i)))
	}
	for i := 0; i < MaxSeenIDs+50; i++ {
		s.MarkSeen(fmt.Sprintf("id-%d", i))
	}
	s.Flush()

	snap := s.Snapshot()
	require.Len(t, snap.Interactions, MaxInteractions)
	assert.Equal(t, "artist-020", snap.Interactions[0].Artist, "oldest interactions are evicted first")
	require.Len(t, snap.SeenSongIDs, MaxSeenIDs)
	assert.False(t, s.IsSeen("id-0"))
	assert.True(t, s.IsSeen(fmt.Sprintf("id-%d", MaxSeenIDs+49)))
}

func TestStoreMarkSeenDedup(t *testing.T) {
	s, _ := newStore(t)
	s.MarkSeen("a", "b", "a", "")
	s.MarkSeen("b")
	s.Flush()
	assert.Equal(t, []string{"a", "b"}, s.Snapshot().SeenSongIDs)
}

func TestStorePersistenceRoundTrip(t *testing.T) {
	s, kv := newStore(t)

	s.RecordInteraction(liked("Sid Sriram"))
	s.RecordInteraction(skipped("Bad Remix"))
	s.RecordInteraction(skipped("Bad Remix"))
	s.MarkSeen("saavn:1", "saavn:2")
	s.SetLanguageWeights([]LanguagePreference{{Tamil, 1}, {Telugu, 3}})
	s.Flush()

	raw, err := kv.Get(context.Background(), StorageKey)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, key := range []string{"interactions", "seenSongIds", "skippedArtists", "topArtists", "preferredLanguages"} {
		assert.Contains(t, doc, key)
	}

	restored := NewStore(kv, zerolog.Nop())
	require.NoError(t, restored.Load(context.Background()))

	assert.Equal(t, s.TopArtistNames(10), restored.TopArtistNames(10))
	assert.Equal(t, []string{"bad remix"}, restored.SkippedArtistNames())
	assert.True(t, restored.IsSeen("saavn:2"))
	assert.Equal(t, s.Languages(), restored.Languages())
	assert.InDelta(t, 75, restored.Languages()[1].Weight, 1e-9)
}

func TestStoreLastWriteWins(t *testing.T) {
	s, kv := newStore(t)
	for i := 0; i < 50; i++ {
		s.MarkSeen(fmt.Sprintf("id-%d", i))
	}
	s.Flush()

	raw, err := kv.Get(context.Background(), StorageKey)
	require.NoError(t, err)
	var st State
	require.NoError(t, json.Unmarshal(raw, &st))
	assert.Len(t, st.SeenSongIDs, 50)
}

func TestStoreLoadOnce(t *testing.T) {
	kv := storage.NewMemory()
	s := NewStore(kv, zerolog.Nop())
	require.NoError(t, s.Load(context.Background()))
	s.RecordInteraction(liked("A"))

	// A second Load must not clobber in-memory state.
	require.NoError(t, s.Load(context.Background()))
	assert.True(t, s.HasSignal())
	s.Flush()
}

func TestStoreLoadCorrupt(t *testing.T) {
	kv := storage.NewMemory()
	require.NoError(t, kv.Put(context.Background(), StorageKey, []byte(`{not json`)))

	s := NewStore(kv, zerolog.Nop())
	err := s.Load(context.Background())
	require.Error(t, err)

	assert.False(t, s.HasSignal())
	assert.Equal(t, DefaultLanguages(), s.Languages())
}

func TestStorePersistenceFailureSwallowed(t *testing.T) {
	s := NewStore(failingKV{}, zerolog.Nop())
	require.Error(t, s.Load(context.Background()))

	s.RecordInteraction(liked("A"))
	s.Flush()
	assert.Equal(t, []string{"a"}, s.TopArtistNames(5))
}

func TestStoreReset(t *testing.T) {
	s, _ := newStore(t)
	s.RecordInteraction(liked("A"))
	s.MarkSeen("x")
	s.SetLanguageWeights([]LanguagePreference{{English, 100}})

	s.Reset()
	s.Flush()

	assert.False(t, s.HasSignal())
	assert.False(t, s.IsSeen("x"))
	assert.Empty(t, s.TopArtistNames(5))
	assert.Equal(t, DefaultLanguages(), s.Languages())
}
