package persist

import "errors"

// ErrEnvelopeNotFound is returned by LoadEnvelope when no envelope has
// been persisted yet. Callers treat it the same as a corrupt envelope:
// recovery mode, not a fatal error.
var ErrEnvelopeNotFound = errors.New("persist: envelope not found")

// EnvelopeExtension is the fixed extension distinguishing the envelope
// from the database it protects. The two are sibling artifacts sharing a
// base name; the envelope file is owned exclusively by this subsystem.
const EnvelopeExtension = ".challenge"

// Store persists the serialized challenge-response envelope.
//
// The envelope bytes passed through this interface are already in their
// durable document form; stores treat them as opaque. Implementations must
// make SaveEnvelope atomic from the caller's point of view: a crash
// mid-write may lose the new envelope but must never leave a half-written
// one that a later load could mistake for valid.
//
// The subsystem is single-writer, single-reader: no store needs to defend
// against concurrent Save/Load of the same envelope.
type Store interface {

	// SaveEnvelope durably replaces the envelope, atomically.
	SaveEnvelope(data []byte) error

	// LoadEnvelope returns the envelope bytes, or ErrEnvelopeNotFound.
	LoadEnvelope() ([]byte, error)

	// EnvelopeExists reports whether an envelope is present without
	// reading it.
	EnvelopeExists() (bool, error)

	// DeleteEnvelope removes the envelope. Deleting an absent envelope is
	// not an error.
	DeleteEnvelope() error

	// Close releases any resources held by the store.
	Close() error
}

// StoreType identifies a storage backend.
type StoreType string

const (
	StoreTypeFileSystem StoreType = "filesystem"
	StoreTypeS3         StoreType = "s3"
)

// StoreConfig carries backend selection plus backend-specific settings.
type StoreConfig struct {
	Type   StoreType              `json:"type" yaml:"type"`
	Config map[string]interface{} `json:"config" yaml:"config"`
}
