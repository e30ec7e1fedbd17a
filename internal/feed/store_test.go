package feed

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-reels-feed/internal/song"
)

func songs(ids ...string) []song.Song {
	out := make([]song.Song, len(ids))
	for i, id := range ids {
		out[i] = song.Song{
			ID:        id,
			Title:     "Title " + id,
			Artist:    "Artist " + id,
			StreamURL: fmt.Sprintf("https://cdn/%s.mp3", id),
			Duration:  200,
		}
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

func TestStoreSetAndAppend(t *testing.T) {
	s := NewStore()
	assert.Equal(t, -1, s.CurrentIndex())

	in := songs("a", "b", "a")
	in = append(in, song.Song{ID: "nourl", Title: "x"})
	assert.Equal(t, 2, s.SetSongs(in))
	assert.Equal(t, []string{"a", "b"}, ids(s.Songs()))

	assert.Equal(t, 1, s.AppendSongs(songs("b", "c")))
	assert.Equal(t, []string{"a", "b", "c"}, ids(s.Songs()))
	assert.Zero(t, s.AppendSongs(nil))
}

func TestStoreCurrentIndex(t *testing.T) {
	s := NewStore()
	s.SetSongs(songs("a", "b"))

	require.NoError(t, s.SetCurrentIndex(1))
	cur, ok := s.CurrentSong()
	require.True(t, ok)
	assert.Equal(t, "b", cur.ID)

	assert.ErrorIs(t, s.SetCurrentIndex(2), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.SetCurrentIndex(-2), ErrIndexOutOfRange)
	require.NoError(t, s.SetCurrentIndex(-1))
	_, ok = s.CurrentSong()
	assert.False(t, ok)

	s.SetSongs(songs("x"))
	assert.Equal(t, -1, s.CurrentIndex(), "replacing the feed clears the index")
}

func TestStoreInsertAfter(t *testing.T) {
	s := NewStore()
	s.SetSongs(songs("a", "b", "c"))
	require.NoError(t, s.SetCurrentIndex(1))

	n, err := s.InsertAfter(1, songs("x", "y", "a"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b", "x", "y", "c"}, ids(s.Songs()))
	assert.Equal(t, 1, s.CurrentIndex())

	n, err = s.InsertAfter(-1, songs("z"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, s.CurrentIndex(), "current song keeps its identity")
	cur, _ := s.CurrentSong()
	assert.Equal(t, "b", cur.ID)

	_, err = s.InsertAfter(10, songs("q"))
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestStoreVault(t *testing.T) {
	s := NewStore()
	a, b := songs("a", "b")[0], songs("a", "b")[1]

	assert.True(t, s.ToggleVault(a))
	assert.True(t, s.AddToVault(b))
	assert.False(t, s.AddToVault(a), "no duplicate ids")
	assert.Equal(t, []string{"a", "b"}, ids(s.Vault()))
	assert.True(t, s.InVault("a"))

	assert.False(t, s.ToggleVault(a))
	assert.False(t, s.InVault("a"))
	assert.True(t, s.RemoveFromVault("b"))
	assert.False(t, s.RemoveFromVault("b"))

	s.AddToVault(a)
	s.ClearVault()
	assert.Empty(t, s.Vault())
}

func TestStoreSubscribe(t *testing.T) {
	s := NewStore()
	var got []State
	cancel := s.Subscribe(func(st State) { got = append(got, st) })

	s.SetSongs(songs("a"))
	s.SetLoading(true)
	s.SetLoading(true) // unchanged, no notification
	require.NoError(t, s.SetCurrentIndex(0))
	require.Len(t, got, 3)
	assert.True(t, got[1].Loading)
	assert.Equal(t, 0, got[2].CurrentIndex)

	cancel()
	cancel()
	s.SetLoading(false)
	assert.Len(t, got, 3)
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	s := NewStore()
	s.SetSongs(songs("a"))
	snap := s.Snapshot()
	snap.Songs[0].ID = "mutated"
	assert.Equal(t, "a", s.Songs()[0].ID)
	assert.NotNil(t, snap.Vault)
}
