package persist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreFileSystem(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "passwords.kdbx")

	store, err := NewStore(StoreConfig{
		Type:   StoreTypeFileSystem,
		Config: map[string]interface{}{"database_path": databasePath},
	})
	require.NoError(t, err)
	defer store.Close()

	fs, ok := store.(*FileSystemStore)
	require.True(t, ok, "Expected a FileSystemStore")
	assert.Equal(t, EnvelopePathFor(databasePath), fs.EnvelopePath())
}

func TestNewStoreInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config StoreConfig
	}{
		{"UnknownType", StoreConfig{Type: StoreType("redis")}},
		{"FileSystemWithoutPath", StoreConfig{Type: StoreTypeFileSystem}},
		{"FileSystemNonStringPath", StoreConfig{
			Type:   StoreTypeFileSystem,
			Config: map[string]interface{}{"database_path": 42},
		}},
		{"S3WithoutBucket", StoreConfig{Type: StoreTypeS3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStore(tt.config)
			assert.Error(t, err)
		})
	}
}
