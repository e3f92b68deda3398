package keechallenge

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Silvenga/KeeChallenge-Fork/audit"
	"github.com/Silvenga/KeeChallenge-Fork/internal/crypto"
)

// BackupManifest describes one exported envelope container. It travels
// inside the encrypted container and is returned to the caller for
// display; it contains no secret material - the envelope itself is
// useless without the token.
type BackupManifest struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Database  string    `json:"database"`
	Checksum  string    `json:"checksum"`
}

// backupContainer is the plaintext that gets passphrase-encrypted into
// the backup file.
type backupContainer struct {
	Manifest BackupManifest `json:"manifest"`
	Envelope string         `json:"envelope"` // base64 of the envelope document
}

// BackupEnvelope exports the current envelope as a passphrase-encrypted
// container at path. The envelope is not secret on its own, but the
// container is encrypted anyway so a stray backup cannot even leak the
// challenge or the ciphertext shape.
func (p *Provider) BackupEnvelope(path, passphrase string) (*BackupManifest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if passphrase == "" {
		return nil, fmt.Errorf("backup passphrase cannot be empty")
	}

	data, err := p.store.LoadEnvelope()
	if err != nil {
		err = fmt.Errorf("failed to read envelope for backup: %w", err)
		p.logAudit(audit.ActionEnvelopeBackup, err, nil)
		return nil, err
	}

	// Refuse to back up garbage.
	if _, err = ParseEnvelope(data); err != nil {
		p.logAudit(audit.ActionEnvelopeBackup, err, nil)
		return nil, err
	}

	container := backupContainer{
		Manifest: BackupManifest{
			ID:        uuid.NewString(),
			CreatedAt: time.Now().UTC(),
			Database:  filepath.Base(p.options.DatabasePath),
			Checksum:  crypto.CalculateChecksum(data),
		},
		Envelope: base64.StdEncoding.EncodeToString(data),
	}

	plaintext, err := json.Marshal(container)
	if err != nil {
		p.logAudit(audit.ActionEnvelopeBackup, err, nil)
		return nil, fmt.Errorf("failed to marshal backup container: %w", err)
	}

	encrypted, err := crypto.EncryptWithPassphrase(plaintext, passphrase)
	if err != nil {
		p.logAudit(audit.ActionEnvelopeBackup, err, nil)
		return nil, fmt.Errorf("failed to encrypt backup container: %w", err)
	}

	if err = os.WriteFile(path, encrypted, 0600); err != nil {
		err = fmt.Errorf("failed to write backup file: %w", err)
		p.logAudit(audit.ActionEnvelopeBackup, err, nil)
		return nil, err
	}

	p.logAudit(audit.ActionEnvelopeBackup, nil, map[string]interface{}{
		"backup_id": container.Manifest.ID,
		"path":      path,
	})
	return &container.Manifest, nil
}

// RestoreEnvelope decrypts a container written by BackupEnvelope,
// verifies its checksum and envelope document, and replaces the current
// envelope with it. The restored envelope only unlocks with the token it
// was written against.
func (p *Provider) RestoreEnvelope(path, passphrase string) (*BackupManifest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	encrypted, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read backup file: %w", err)
		p.logAudit(audit.ActionEnvelopeRestore, err, nil)
		return nil, err
	}

	plaintext, err := crypto.DecryptWithPassphrase(encrypted, passphrase)
	if err != nil {
		err = fmt.Errorf("failed to decrypt backup container (wrong passphrase?): %w", err)
		p.logAudit(audit.ActionEnvelopeRestore, err, nil)
		return nil, err
	}

	var container backupContainer
	if err = json.Unmarshal(plaintext, &container); err != nil {
		err = fmt.Errorf("failed to parse backup container: %w", err)
		p.logAudit(audit.ActionEnvelopeRestore, err, nil)
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(container.Envelope)
	if err != nil {
		err = fmt.Errorf("failed to decode backup envelope: %w", err)
		p.logAudit(audit.ActionEnvelopeRestore, err, nil)
		return nil, err
	}

	if checksum := crypto.CalculateChecksum(data); checksum != container.Manifest.Checksum {
		err = errors.New("backup checksum mismatch")
		p.logAudit(audit.ActionEnvelopeRestore, err, nil)
		return nil, err
	}

	if _, err = ParseEnvelope(data); err != nil {
		p.logAudit(audit.ActionEnvelopeRestore, err, nil)
		return nil, err
	}

	if err = p.store.SaveEnvelope(data); err != nil {
		err = fmt.Errorf("%w: %v", ErrPersistence, err)
		p.logAudit(audit.ActionEnvelopeRestore, err, nil)
		return nil, err
	}

	p.logAudit(audit.ActionEnvelopeRestore, nil, map[string]interface{}{
		"backup_id": container.Manifest.ID,
		"path":      path,
	})
	return &container.Manifest, nil
}
