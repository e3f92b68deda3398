package keechallenge

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Silvenga/KeeChallenge-Fork/persist"
)

func TestBackupRestoreRoundTrip(t *testing.T) {
	options := testOptions(t, ModeFixed)
	service := newTestProvider(t, options, testResponder(t), nil)

	want := bytes.Repeat([]byte{0x01}, SecretSize)
	_, err := service.Establish(context.Background(), fixedSecretSource(0x01))
	require.NoError(t, err)

	backupPath := filepath.Join(t.TempDir(), "envelope.backup")
	manifest, err := service.BackupEnvelope(backupPath, "correct horse battery staple")
	require.NoError(t, err)
	require.NotNil(t, manifest)
	assert.NotEmpty(t, manifest.ID)
	assert.NotEmpty(t, manifest.Checksum)
	assert.Equal(t, "passwords.kdbx", manifest.Database)

	// The container on disk must not expose the envelope document.
	raw, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "challenge:")
	assert.NotContains(t, string(raw), "encrypted:")

	// Rotate past the backed-up envelope, then restore over it.
	_, err = service.Unlock(context.Background())
	require.NoError(t, err)

	restored, err := service.RestoreEnvelope(backupPath, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, manifest.ID, restored.ID)
	assert.Equal(t, manifest.Checksum, restored.Checksum)

	// The restored envelope unlocks to the same secret.
	secret, err := service.Unlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, secret)
}

func TestBackupWrongPassphrase(t *testing.T) {
	options := testOptions(t, ModeFixed)
	service := newTestProvider(t, options, testResponder(t), nil)

	_, err := service.Establish(context.Background(), fixedSecretSource(0x01))
	require.NoError(t, err)

	backupPath := filepath.Join(t.TempDir(), "envelope.backup")
	_, err = service.BackupEnvelope(backupPath, "right passphrase")
	require.NoError(t, err)

	_, err = service.RestoreEnvelope(backupPath, "wrong passphrase")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decrypt")
}

func TestBackupRefusesMissingOrCorruptEnvelope(t *testing.T) {
	options := testOptions(t, ModeFixed)
	service := newTestProvider(t, options, testResponder(t), nil)
	backupPath := filepath.Join(t.TempDir(), "envelope.backup")

	_, err := service.BackupEnvelope(backupPath, "passphrase")
	require.Error(t, err, "backup of a missing envelope must fail")

	path := persist.EnvelopePathFor(options.DatabasePath)
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))

	_, err = service.BackupEnvelope(backupPath, "passphrase")
	require.Error(t, err, "backup of a corrupt envelope must fail")
}

func TestBackupEmptyPassphrase(t *testing.T) {
	options := testOptions(t, ModeFixed)
	service := newTestProvider(t, options, testResponder(t), nil)

	_, err := service.Establish(context.Background(), fixedSecretSource(0x01))
	require.NoError(t, err)

	_, err = service.BackupEnvelope(filepath.Join(t.TempDir(), "b"), "")
	require.Error(t, err)
}

func TestRestoreRejectsTamperedContainer(t *testing.T) {
	options := testOptions(t, ModeFixed)
	service := newTestProvider(t, options, testResponder(t), nil)

	_, err := service.Establish(context.Background(), fixedSecretSource(0x01))
	require.NoError(t, err)

	backupPath := filepath.Join(t.TempDir(), "envelope.backup")
	_, err = service.BackupEnvelope(backupPath, "passphrase")
	require.NoError(t, err)

	raw, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(backupPath, raw, 0600))

	// The container is AEAD-sealed, so any bit flip fails decryption.
	_, err = service.RestoreEnvelope(backupPath, "passphrase")
	require.Error(t, err)
}
