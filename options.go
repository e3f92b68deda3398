package keechallenge

import (
	"fmt"
	"time"
)

// DefaultTokenTimeout bounds the token round trip. Hardware tokens wait
// about 15 seconds for a button touch before giving up themselves; there
// is no point waiting longer than the device does.
const DefaultTokenTimeout = 15 * time.Second

// Options configures a secret provider.
//
// Collaborators (store, responder, recovery source, audit logger) are
// passed to the constructor, not carried here: Options holds only plain
// configuration that is safe to serialize into config files. Secret
// material never belongs in Options.
type Options struct {
	// DatabasePath is the path of the protected database. It names the
	// envelope's sibling location for the filesystem store and appears in
	// audit events. Never the secret itself.
	DatabasePath string `json:"database_path" yaml:"database_path"`

	// Slot selects which token slot answers challenges (1 or 2).
	Slot Slot `json:"slot" yaml:"slot"`

	// Mode selects 64-byte or truncated 63-byte challenge handling for
	// newly written envelopes. Existing envelopes carry their own mode
	// bit and unlock in the mode they were written with.
	Mode LengthMode `json:"mode" yaml:"mode"`

	// TokenTimeout bounds each token round trip. Zero means
	// DefaultTokenTimeout.
	TokenTimeout time.Duration `json:"token_timeout" yaml:"token_timeout"`

	// EnableMemoryLock requests mlockall so secret material cannot be
	// swapped to disk. Falls back to partial protection without the
	// privilege.
	EnableMemoryLock bool `json:"enable_memory_lock" yaml:"enable_memory_lock"`
}

// Validate checks the configuration and fills defaults in place.
func (o *Options) Validate() error {
	if o.DatabasePath == "" {
		return fmt.Errorf("database path must be provided")
	}
	if !o.Slot.valid() {
		return fmt.Errorf("slot must be 1 or 2, got %d", o.Slot)
	}
	if o.Mode != ModeFixed && o.Mode != ModeTruncated {
		return fmt.Errorf("unknown length mode %d", o.Mode)
	}
	if o.TokenTimeout < 0 {
		return fmt.Errorf("token timeout cannot be negative")
	}
	if o.TokenTimeout == 0 {
		o.TokenTimeout = DefaultTokenTimeout
	}
	return nil
}
