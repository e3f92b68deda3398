package keechallenge

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Slot identifies which of the token's two configuration slots answers
// challenges.
type Slot uint8

const (
	Slot1 Slot = 1
	Slot2 Slot = 2
)

func (s Slot) valid() bool { return s == Slot1 || s == Slot2 }

// ChallengeResponder is the opaque capability that answers challenges.
// Production implementations talk to a hardware token; the round trip may
// block for several seconds while the user touches the device.
//
// Respond receives exactly the bytes to be MAC'd (63 bytes for a truncated
// envelope, 64 otherwise) and returns the 20-byte HMAC-SHA1 response.
// Implementations must honor ctx cancellation where the underlying
// transport permits, and must tolerate being abandoned: the provider stops
// waiting when its deadline passes and ignores any late result.
type ChallengeResponder interface {
	Respond(ctx context.Context, slot Slot, challenge []byte) ([]byte, error)
}

// HMACResponder answers challenges in software from in-memory per-slot
// secrets. It serves three roles: recovery mode (the user proves knowledge
// of the token's secret key directly), token-free deployments, and tests.
type HMACResponder struct {
	secrets map[Slot][]byte
}

// NewHMACResponder copies the given per-slot secrets into a responder.
// Destroy releases them.
func NewHMACResponder(secrets map[Slot][]byte) (*HMACResponder, error) {
	if len(secrets) == 0 {
		return nil, fmt.Errorf("%w: no slot secrets configured", ErrToken)
	}
	r := &HMACResponder{secrets: make(map[Slot][]byte, len(secrets))}
	for slot, secret := range secrets {
		if !slot.valid() {
			return nil, fmt.Errorf("%w: invalid slot %d", ErrToken, slot)
		}
		if len(secret) == 0 {
			return nil, fmt.Errorf("%w: empty secret for slot %d", ErrToken, slot)
		}
		r.secrets[slot] = append([]byte(nil), secret...)
	}
	return r, nil
}

// HMACResponderFromPassphrase derives a slot secret from a passphrase with
// Argon2id and builds a responder for the given slot. This is the
// token-free deployment path: the passphrase stands in for the secret
// programmed into a hardware token, so the same envelope scheme works
// unchanged.
func HMACResponderFromPassphrase(passphrase, salt []byte, slot Slot) (*HMACResponder, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("%w: empty passphrase", ErrToken)
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: empty salt", ErrToken)
	}
	secret := argon2.IDKey(passphrase, salt, 3, 64*1024, 4, SecretSize)
	defer wipe(secret)
	return NewHMACResponder(map[Slot][]byte{slot: secret})
}

// Respond computes HMAC-SHA1(slotSecret, challenge) over exactly the bytes
// it is handed.
func (r *HMACResponder) Respond(_ context.Context, slot Slot, challenge []byte) ([]byte, error) {
	secret, ok := r.secrets[slot]
	if !ok {
		return nil, fmt.Errorf("%w: slot %d is not configured", ErrToken, slot)
	}
	mac := hmac.New(sha1.New, secret)
	mac.Write(challenge)
	return mac.Sum(nil), nil
}

// Destroy wipes the slot secrets. The responder is unusable afterwards.
func (r *HMACResponder) Destroy() {
	for slot, secret := range r.secrets {
		wipe(secret)
		delete(r.secrets, slot)
	}
}
