package keechallenge

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/Silvenga/KeeChallenge-Fork/audit"
	"github.com/Silvenga/KeeChallenge-Fork/internal/debug"
	"github.com/Silvenga/KeeChallenge-Fork/internal/mem"
	"github.com/Silvenga/KeeChallenge-Fork/persist"
)

// Initialize memguard before any provider operation so interrupted runs
// still purge protected buffers.
func init() {
	memguard.CatchInterrupt()
}

// SecretSource supplies a fresh secret for first-time establishment,
// typically a user-entry prompt. Returning ErrCancelled (or any error)
// aborts the establish.
type SecretSource interface {
	Secret(ctx context.Context) ([]byte, error)
}

// SecretSourceFunc adapts a function to the SecretSource interface.
type SecretSourceFunc func(ctx context.Context) ([]byte, error)

func (f SecretSourceFunc) Secret(ctx context.Context) ([]byte, error) { return f(ctx) }

// RecoverySource supplies the secret directly when the envelope or the
// token path is unavailable. It receives the failure that triggered
// recovery so a UI can explain why it is asking; returning ErrCancelled
// means the user declined recovery and the surrounding operation aborts.
type RecoverySource interface {
	RecoverSecret(ctx context.Context, cause error) ([]byte, error)
}

// RecoverySourceFunc adapts a function to the RecoverySource interface.
type RecoverySourceFunc func(ctx context.Context, cause error) ([]byte, error)

func (f RecoverySourceFunc) RecoverSecret(ctx context.Context, cause error) ([]byte, error) {
	return f(ctx, cause)
}

// Provider orchestrates the challenge-response envelope scheme: it owns
// the envelope's lifecycle and the two secret-producing flows, Establish
// and Unlock.
//
// SECRET OWNERSHIP:
// Secrets returned by Establish and Unlock are owned by the caller, who
// must wipe them after use. Every intermediate buffer (response, derived
// key, padded plaintext) is wiped by the provider on every path, success
// or failure. A provider holds no secret material between calls; all that
// persists is the envelope, which is useless without the token.
//
// KEY ROTATION:
// Every successful Establish or Unlock writes a fresh envelope: new
// challenge, new IV, new ciphertext. A response is therefore single-use -
// an intercepted (challenge, response) pair loses its value as soon as
// the envelope rotates.
//
// CONCURRENCY:
// One Establish or Unlock runs at a time per provider; the envelope file
// assumes a single writer. The token round trip runs on its own goroutine
// so the caller's context can cancel the wait (the hardware press takes
// up to ~15s), and an abandoned round trip has its late result wiped.
type Provider struct {
	options   Options
	store     persist.Store
	responder ChallengeResponder
	recovery  RecoverySource
	audit     audit.Logger

	mu                    sync.Mutex
	memoryProtectionLevel mem.ProtectionLevel
	closed                bool
}

// New builds a provider over the filesystem store derived from
// options.DatabasePath. The recovery source may be nil, in which case
// failures surface instead of escalating to recovery.
func New(options Options, responder ChallengeResponder, recovery RecoverySource, auditLogger audit.Logger) (SecretService, error) {
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	store, err := persist.NewFileSystemStore(options.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create envelope store: %w", err)
	}
	return NewWithStore(options, store, responder, recovery, auditLogger)
}

// NewWithStore builds a provider over an explicit store.
func NewWithStore(options Options, store persist.Store, responder ChallengeResponder, recovery RecoverySource, auditLogger audit.Logger) (SecretService, error) {
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if responder == nil {
		return nil, fmt.Errorf("challenge responder is required")
	}
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}

	p := &Provider{
		options:   options,
		store:     store,
		responder: responder,
		recovery:  recovery,
		audit:     auditLogger,

		memoryProtectionLevel: mem.ProtectionNone,
	}

	if options.EnableMemoryLock {
		level, err := mem.Lock()
		if err != nil {
			debug.Print("memory lock unavailable: %v\n", err)
		}
		p.memoryProtectionLevel = level
	}

	p.logAudit(audit.ActionProviderInit, nil, map[string]interface{}{
		"mode":        options.Mode.String(),
		"memory_lock": options.EnableMemoryLock,
	})

	return p, nil
}

// Establish creates a brand-new envelope for a secret obtained from
// source and returns the secret.
//
// The flow: obtain secret, generate challenge, token round trip, derive
// key, encrypt, persist. A token failure before persistence leaves no
// envelope behind. Persistence failure is the one deliberate asymmetry:
// the secret is still returned alongside an ErrPersistence-wrapped error,
// because the database can still be unlocked this session even when the
// envelope could not be saved. Callers must therefore check the secret
// before the error.
func (p *Provider) Establish(ctx context.Context, source SecretSource) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	secret, err := p.obtainSecret(ctx, source)
	if err != nil {
		p.logAudit(audit.ActionEstablish, err, p.eventMetadata(start))
		return nil, err
	}

	if err = p.establishLocked(ctx, secret); err != nil {
		p.logAudit(audit.ActionEstablish, err, p.eventMetadata(start))
		if errors.Is(err, ErrPersistence) {
			return secret, err
		}
		wipe(secret)
		return nil, err
	}

	p.logAudit(audit.ActionEstablish, nil, p.eventMetadata(start))
	return secret, nil
}

// Unlock recovers the secret from the persisted envelope.
//
// A missing or malformed envelope escalates to the recovery source rather
// than failing: format problems always leave the recovery escape hatch
// open. A failed token round trip consults the recovery source too, but
// an ErrCancelled answer from it aborts the unlock; cancellation never
// falls through to recovery silently. Cipher and verification failures
// are surfaced as-is.
//
// On success the envelope is rotated before the secret is returned. A
// failed rotation does not invalidate the already-verified secret: it is
// returned together with an ErrPersistence-wrapped error and the previous
// envelope stays usable.
func (p *Provider) Unlock(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()

	data, err := p.store.LoadEnvelope()
	if err != nil {
		cause := fmt.Errorf("%w: %v", ErrFormat, err)
		return p.recoverLocked(ctx, cause, start)
	}

	env, err := ParseEnvelope(data)
	if err != nil {
		return p.recoverLocked(ctx, err, start)
	}

	response, err := p.respond(ctx, env.Challenge, env.Mode)
	if err != nil {
		return p.recoverLocked(ctx, err, start)
	}

	key := DeriveKey(response)
	wipe(response)

	secret, err := DecryptSecret(env.Ciphertext, key, env.IV)
	wipe(key)
	if err != nil {
		p.logAudit(audit.ActionUnlock, err, p.eventMetadata(start))
		return nil, err
	}

	digest := VerificationDigest(secret)
	if subtle.ConstantTimeCompare(digest, env.Verification) != 1 {
		wipe(secret)
		err = fmt.Errorf("%w: digest mismatch", ErrVerification)
		p.logAudit(audit.ActionUnlock, err, p.eventMetadata(start))
		return nil, err
	}

	// Rotate: a fresh challenge and ciphertext after every successful
	// use bounds the replay value of any observed response.
	if rotErr := p.establishLocked(ctx, secret); rotErr != nil {
		rotErr = fmt.Errorf("%w: envelope rotation failed: %v", ErrPersistence, rotErr)
		p.logAudit(audit.ActionRotate, rotErr, p.eventMetadata(start))
		p.logAudit(audit.ActionUnlock, nil, p.eventMetadata(start))
		return secret, rotErr
	}

	p.logAudit(audit.ActionRotate, nil, p.eventMetadata(start))
	p.logAudit(audit.ActionUnlock, nil, p.eventMetadata(start))
	return secret, nil
}

// Status reports what is known about the persisted envelope without
// touching the token.
func (p *Provider) Status() (EnvelopeStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := EnvelopeStatus{Database: p.options.DatabasePath}

	data, err := p.store.LoadEnvelope()
	if err != nil {
		if errors.Is(err, persist.ErrEnvelopeNotFound) {
			return status, nil
		}
		return status, fmt.Errorf("failed to read envelope: %w", err)
	}

	status.Present = true

	env, err := ParseEnvelope(data)
	if err != nil {
		status.Corrupt = true
		return status, nil
	}

	status.Mode = env.Mode
	status.ChallengeFingerprint = fingerprint(env.Challenge)
	return status, nil
}

// GetAudit exposes the audit logger, mainly for CLI queries.
func (p *Provider) GetAudit() audit.Logger {
	return p.audit
}

// MemoryProtection describes the achieved memory protection level.
func (p *Provider) MemoryProtection() string {
	switch p.memoryProtectionLevel {
	case mem.ProtectionFull:
		return "full"
	case mem.ProtectionPartial:
		return "partial"
	default:
		return "none"
	}
}

// Close releases the store and the audit logger. The provider holds no
// secret material, so there is nothing to wipe here.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if err := p.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}
	if err := p.audit.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close audit logger: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("provider close errors: %v", errs)
	}
	return nil
}

// EnvelopeStatus is a non-sensitive snapshot of the persisted envelope.
type EnvelopeStatus struct {
	Database             string     `json:"database"`
	Present              bool       `json:"present"`
	Corrupt              bool       `json:"corrupt,omitempty"`
	Mode                 LengthMode `json:"mode"`
	ChallengeFingerprint string     `json:"challenge_fingerprint,omitempty"`
}

// obtainSecret pulls and validates a fresh secret from the source.
func (p *Provider) obtainSecret(ctx context.Context, source SecretSource) ([]byte, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: no secret source provided", ErrCancelled)
	}
	secret, err := source.Secret(ctx)
	if err != nil {
		return nil, p.classifyCancellation(err)
	}
	if len(secret) != SecretSize {
		wipe(secret)
		return nil, fmt.Errorf("%w: secret must be %d bytes, got %d", ErrCancelled, SecretSize, len(secret))
	}
	return secret, nil
}

// establishLocked runs challenge generation, the token round trip,
// encryption and persistence for an in-memory secret. The caller keeps
// ownership of the secret; everything derived here is wiped before
// return. Failures before SaveEnvelope leave the store untouched.
func (p *Provider) establishLocked(ctx context.Context, secret []byte) error {
	if p.closed {
		return fmt.Errorf("provider is closed")
	}

	challenge, err := GenerateChallenge(p.options.Mode)
	if err != nil {
		return err
	}

	response, err := p.respond(ctx, challenge, p.options.Mode)
	if err != nil {
		return err
	}

	key := DeriveKey(response)
	wipe(response)

	ciphertext, iv, err := EncryptSecret(secret, key)
	wipe(key)
	if err != nil {
		return err
	}

	env := &Envelope{
		Challenge:    challenge,
		Ciphertext:   ciphertext,
		IV:           iv,
		Verification: VerificationDigest(secret),
		Mode:         p.options.Mode,
	}

	data, err := env.Marshal()
	if err != nil {
		return err
	}

	if err = p.store.SaveEnvelope(data); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// recoverLocked is the escape hatch: ask the recovery source for the
// secret directly, then establish a fresh envelope for it. An
// ErrCancelled answer from the source aborts the unlock - recovery is
// always an explicit user decision, never a silent fallback.
func (p *Provider) recoverLocked(ctx context.Context, cause error, start time.Time) ([]byte, error) {
	if p.recovery == nil {
		p.logAudit(audit.ActionUnlock, cause, p.eventMetadata(start))
		return nil, cause
	}

	secret, err := p.recovery.RecoverSecret(ctx, cause)
	if err != nil {
		err = p.classifyCancellation(err)
		p.logAudit(audit.ActionRecover, err, p.eventMetadata(start))
		return nil, err
	}
	if len(secret) != SecretSize {
		wipe(secret)
		err = fmt.Errorf("%w: recovery secret must be %d bytes, got %d", ErrCancelled, SecretSize, len(secret))
		p.logAudit(audit.ActionRecover, err, p.eventMetadata(start))
		return nil, err
	}

	// The user just proved knowledge of the secret; a failure to write
	// the fresh envelope (token still absent, disk full) must not destroy
	// it. Same asymmetry as Establish's persistence failure.
	if err = p.establishLocked(ctx, secret); err != nil {
		if !errors.Is(err, ErrPersistence) {
			err = fmt.Errorf("%w: recovery envelope not written: %v", ErrPersistence, err)
		}
		p.logAudit(audit.ActionRecover, err, p.eventMetadata(start))
		return secret, err
	}

	p.logAudit(audit.ActionRecover, nil, p.eventMetadata(start))
	return secret, nil
}

// respond runs the token round trip on its own goroutine, bounded by the
// configured timeout and the caller's context. An abandoned call keeps
// running until the responder notices the cancelled context; its late
// result is drained and wiped so no response lingers.
func (p *Provider) respond(ctx context.Context, challenge []byte, mode LengthMode) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.options.TokenTimeout)
	defer cancel()

	type result struct {
		response []byte
		err      error
	}
	ch := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{nil, fmt.Errorf("%w: responder panic: %v", ErrToken, r)}
			}
		}()
		response, err := p.responder.Respond(ctx, p.options.Slot, macInput(challenge, mode))
		ch <- result{response, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.response != nil {
				wipe(r.response)
			}
		}()
		return nil, fmt.Errorf("%w: token round trip abandoned: %v", ErrCancelled, ctx.Err())

	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, ErrCancelled) || errors.Is(r.err, context.Canceled) || errors.Is(r.err, context.DeadlineExceeded) {
				return nil, p.classifyCancellation(r.err)
			}
			if errors.Is(r.err, ErrToken) {
				return nil, r.err
			}
			return nil, fmt.Errorf("%w: %v", ErrToken, r.err)
		}
		if len(r.response) != ResponseSize {
			wipe(r.response)
			return nil, fmt.Errorf("%w: response must be %d bytes, got %d", ErrToken, ResponseSize, len(r.response))
		}
		return r.response, nil
	}
}

// classifyCancellation folds context errors into the Cancelled class and
// leaves already-classified errors untouched.
func (p *Provider) classifyCancellation(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCancelled), errors.Is(err, ErrToken),
		errors.Is(err, ErrFormat), errors.Is(err, ErrCipher),
		errors.Is(err, ErrVerification), errors.Is(err, ErrPersistence):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	default:
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
}

func (p *Provider) eventMetadata(start time.Time) map[string]interface{} {
	return map[string]interface{}{
		"database":    p.options.DatabasePath,
		"slot":        int(p.options.Slot),
		"duration_ms": time.Since(start).Milliseconds(),
	}
}

func (p *Provider) logAudit(action string, err error, metadata map[string]interface{}) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	if err != nil {
		metadata["error"] = err.Error()
	}
	// Audit failures must never block a secret operation.
	_ = p.audit.Log(action, err == nil, metadata)
}
