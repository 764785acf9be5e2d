package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreNotifiesSubscribers(t *testing.T) {
	store := NewMemoryStore(Default())

	var got []Profile
	cancel := store.Subscribe(func(p Profile) { got = append(got, p) })

	_, err := store.AddTag("chess")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"chess"}, got[0].Tags)

	cancel()
	cancel()
	_, err = store.RemoveTag("chess")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Empty(t, store.Snapshot().Tags)
}

func TestMemoryStoreRejectedPatchKeepsState(t *testing.T) {
	store := NewMemoryStore(Default())
	notified := 0
	store.Subscribe(func(Profile) { notified++ })

	bad := Tone("nope")
	_, err := store.Update(Patch{Agent: &AgentPatch{Tone: &bad}})
	require.Error(t, err)
	assert.Equal(t, 0, notified)
	assert.Equal(t, ToneFriendly, store.Snapshot().Agent.Tone)
}

func TestSnapshotIsACopy(t *testing.T) {
	store := NewMemoryStore(Default().AddTag("x"))
	snap := store.Snapshot()
	snap.Tags[0] = "y"
	assert.Equal(t, "x", store.Snapshot().Tags[0])
}

func TestFileStorePersistsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "profile.yaml")

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), store.Snapshot())

	loc := "Bogotá"
	_, err = store.Update(Patch{Location: &loc})
	require.NoError(t, err)

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, "Bogotá", reopened.Snapshot().Location)
	assert.Equal(t, "es", reopened.Snapshot().Language)
}

func TestFileStoreMergesPartialDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("language: en\ntags: [chess]\n"), 0o600))

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	snap := store.Snapshot()
	assert.Equal(t, "en", snap.Language)
	assert.Equal(t, []string{"chess"}, snap.Tags)
	assert.Equal(t, "Emi", snap.Agent.Name)
}

func TestFileStoreInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("language: [unterminated"), 0o600))

	_, err := OpenFileStore(path)
	assert.Error(t, err)
}
