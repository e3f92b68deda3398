package persist

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopePathFor(t *testing.T) {
	tests := []struct {
		name     string
		database string
		expected string
	}{
		{"KdbxExtension", "/data/passwords.kdbx", "/data/passwords.challenge"},
		{"NoExtension", "/data/passwords", "/data/passwords.challenge"},
		{"DottedDirectory", "/home/user.name/passwords.kdbx", "/home/user.name/passwords.challenge"},
		{"RelativePath", "db.kdbx", "db.challenge"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.expected), EnvelopePathFor(filepath.FromSlash(tt.database)))
		})
	}
}

func TestNewFileSystemStore(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileSystemStore(filepath.Join(dir, "passwords.kdbx"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "passwords.challenge"), store.EnvelopePath())

	_, err = NewFileSystemStore("")
	assert.Error(t, err)

	_, err = NewFileSystemStore(filepath.Join(dir, "missing", "passwords.kdbx"))
	assert.Error(t, err, "store creation must fail when the directory is absent")
}

func TestFileSystemStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSystemStore(filepath.Join(dir, "passwords.kdbx"))
	require.NoError(t, err)
	defer store.Close()

	exists, err := store.EnvelopeExists()
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.LoadEnvelope()
	assert.ErrorIs(t, err, ErrEnvelopeNotFound)

	payload := []byte("challenge: abc\nencrypted: def\n")
	require.NoError(t, store.SaveEnvelope(payload))

	exists, err = store.EnvelopeExists()
	require.NoError(t, err)
	assert.True(t, exists)

	loaded, err := store.LoadEnvelope()
	require.NoError(t, err)
	assert.Equal(t, payload, loaded)

	// Overwrite replaces, never appends.
	next := []byte("challenge: xyz\n")
	require.NoError(t, store.SaveEnvelope(next))
	loaded, err = store.LoadEnvelope()
	require.NoError(t, err)
	assert.Equal(t, next, loaded)
}

func TestFileSystemStorePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}

	dir := t.TempDir()
	store, err := NewFileSystemStore(filepath.Join(dir, "passwords.kdbx"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SaveEnvelope([]byte("data")))

	info, err := os.Stat(store.EnvelopePath())
	require.NoError(t, err)
	assert.Equal(t, FilePermissions, info.Mode().Perm())
}

func TestFileSystemStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSystemStore(filepath.Join(dir, "passwords.kdbx"))
	require.NoError(t, err)
	defer store.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveEnvelope([]byte("data")))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "passwords.challenge", entries[0].Name())
}

func TestFileSystemStoreDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSystemStore(filepath.Join(dir, "passwords.kdbx"))
	require.NoError(t, err)
	defer store.Close()

	// Deleting an absent envelope is not an error.
	require.NoError(t, store.DeleteEnvelope())

	require.NoError(t, store.SaveEnvelope([]byte("data")))
	require.NoError(t, store.DeleteEnvelope())

	exists, err := store.EnvelopeExists()
	require.NoError(t, err)
	assert.False(t, exists)
}
