package keechallenge

import "errors"

// Failure taxonomy for the challenge-response subsystem.
//
// Callers classify failures with errors.Is against these sentinels; every
// error returned by this package wraps exactly one of them (or is nil).
// The distinctions matter because the caller's reaction differs per class:
//
//   - ErrCancelled: the user or caller aborted. A normal outcome, not a
//     fault. The unlock attempt is over; nothing was written.
//   - ErrToken: the hardware token round trip failed (driver error, device
//     absent, timeout inside the device). Retry is a fresh user action.
//   - ErrFormat: the persisted envelope is missing, truncated or corrupt.
//     Always recoverable: Unlock escalates to recovery mode instead of
//     surfacing this to the caller.
//   - ErrCipher: padding or block-level corruption during decryption.
//     Surfaced, never auto-recovered.
//   - ErrVerification: decryption produced a secret whose digest does not
//     match the envelope. Presented to users as an incorrect response; the
//     candidate secret is wiped before the error is returned.
//   - ErrPersistence: the fresh envelope could not be written. Deliberately
//     non-fatal when an in-memory secret already exists: the database can
//     still be unlocked this session.
var (
	ErrCancelled    = errors.New("keechallenge: operation cancelled")
	ErrToken        = errors.New("keechallenge: token communication failed")
	ErrFormat       = errors.New("keechallenge: envelope format invalid")
	ErrCipher       = errors.New("keechallenge: cipher operation failed")
	ErrVerification = errors.New("keechallenge: secret verification failed")
	ErrPersistence  = errors.New("keechallenge: envelope could not be persisted")
)
