package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	FilePermissions os.FileMode = 0600
	DirPermissions  os.FileMode = 0700
)

// FileSystemStore keeps the envelope on the local filesystem as a sibling
// of the protected database: same directory, same base name, the
// EnvelopeExtension instead of the database's own extension. Writes go
// through a temp file in the same directory followed by a rename, so a
// crash mid-write never exposes a partial envelope.
type FileSystemStore struct {
	databasePath string
	envelopePath string
}

// NewFileSystemStore derives the envelope path from the database path and
// verifies the containing directory exists. The database itself does not
// have to exist yet; the envelope location only depends on its name.
func NewFileSystemStore(databasePath string) (*FileSystemStore, error) {
	if databasePath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	envelopePath := EnvelopePathFor(databasePath)
	dir := filepath.Dir(envelopePath)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("envelope directory %s is not accessible: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("envelope parent %s is not a directory", dir)
	}

	return &FileSystemStore{
		databasePath: databasePath,
		envelopePath: envelopePath,
	}, nil
}

// EnvelopePathFor returns the sibling envelope path for a database path.
func EnvelopePathFor(databasePath string) string {
	base := strings.TrimSuffix(databasePath, filepath.Ext(databasePath))
	return base + EnvelopeExtension
}

// EnvelopePath returns the path this store reads and writes.
func (fs *FileSystemStore) EnvelopePath() string {
	return fs.envelopePath
}

// SaveEnvelope writes the envelope atomically with 0600 permissions.
func (fs *FileSystemStore) SaveEnvelope(data []byte) error {
	if err := writeSecureFile(fs.envelopePath, data, FilePermissions); err != nil {
		return fmt.Errorf("failed to save envelope: %w", err)
	}
	return nil
}

// LoadEnvelope reads the envelope, or reports ErrEnvelopeNotFound.
func (fs *FileSystemStore) LoadEnvelope() ([]byte, error) {
	data, err := os.ReadFile(fs.envelopePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrEnvelopeNotFound
		}
		return nil, fmt.Errorf("failed to load envelope: %w", err)
	}
	return data, nil
}

// EnvelopeExists reports envelope presence without reading it.
func (fs *FileSystemStore) EnvelopeExists() (bool, error) {
	_, err := os.Stat(fs.envelopePath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat envelope: %w", err)
}

// DeleteEnvelope removes the envelope file; absence is not an error.
func (fs *FileSystemStore) DeleteEnvelope() error {
	if err := os.Remove(fs.envelopePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete envelope: %w", err)
	}
	return nil
}

// Close is a no-op for the filesystem backend.
func (fs *FileSystemStore) Close() error {
	return nil
}

func writeSecureFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err = tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err = tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err = tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err = os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err = os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
