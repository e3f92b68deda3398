package keechallenge

import (
	"context"

	"github.com/Silvenga/KeeChallenge-Fork/audit"
)

// SecretService is the caller-facing surface of the provider: the two
// secret-producing flows plus envelope maintenance.
//
// Both flows return the 20-byte secret on success; the caller owns it and
// must wipe it after use. Both honor ctx cancellation: an in-flight token
// round trip is abandoned and the operation reports ErrCancelled instead
// of hanging. See Provider for the asymmetry rules around persistence
// failures.
type SecretService interface {

	// Establish creates a new envelope for a secret obtained from source
	// and returns the secret.
	Establish(ctx context.Context, source SecretSource) ([]byte, error)

	// Unlock recovers the secret from the persisted envelope, rotating it
	// on success.
	Unlock(ctx context.Context) ([]byte, error)

	// Status reports envelope presence, mode and a challenge fingerprint
	// without a token round trip.
	Status() (EnvelopeStatus, error)

	// BackupEnvelope exports the envelope as a passphrase-encrypted
	// container at path.
	BackupEnvelope(path, passphrase string) (*BackupManifest, error)

	// RestoreEnvelope imports a container written by BackupEnvelope,
	// replacing the current envelope.
	RestoreEnvelope(path, passphrase string) (*BackupManifest, error)

	// GetAudit exposes the audit logger for queries.
	GetAudit() audit.Logger

	// MemoryProtection describes the achieved memory protection level.
	MemoryProtection() string

	// Close releases the store and audit logger.
	Close() error
}

var _ SecretService = (*Provider)(nil)
