package keechallenge

import "fmt"

const (
	// SecretSize is the length of the protected credential in bytes.
	SecretSize = 20

	// ChallengeSize is the length of a generated challenge in bytes.
	ChallengeSize = 64

	// ResponseSize is the length of a token response (HMAC-SHA1 output).
	ResponseSize = 20
)

// LengthMode selects how much of a challenge the token is asked to MAC.
//
// Some tokens cannot take a full 64-byte challenge and instead operate on
// 63 bytes, signalled by a fixed marker in the challenge itself. The mode
// travels with each envelope (it is a per-envelope fact, not global
// configuration) so an envelope written in one mode always unlocks in the
// same mode.
type LengthMode int

const (
	// ModeFixed uses all 64 challenge bytes.
	ModeFixed LengthMode = iota

	// ModeTruncated marks the challenge for 63-byte handling: byte 62 is
	// overwritten with the bitwise complement of byte 63, and only the
	// first 63 bytes are ever fed to the MAC.
	ModeTruncated
)

func (m LengthMode) String() string {
	switch m {
	case ModeFixed:
		return "fixed"
	case ModeTruncated:
		return "truncated"
	default:
		return fmt.Sprintf("LengthMode(%d)", int(m))
	}
}

// GenerateChallenge produces a fresh random challenge for one envelope.
//
// In ModeTruncated the second-to-last byte is replaced with the complement
// of the last byte. The marker is a token-compatibility quirk, not a
// security measure: it is not secret, and the entropy loss is immaterial
// because only the first 63 bytes participate in the MAC in that mode.
func GenerateChallenge(mode LengthMode) ([]byte, error) {
	challenge, err := randomBytes(ChallengeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate challenge: %w", err)
	}
	if mode == ModeTruncated {
		challenge[ChallengeSize-2] = ^challenge[ChallengeSize-1]
	}
	return challenge, nil
}

// macInput returns the exact challenge bytes a responder must MAC for the
// given mode: the first 63 bytes in ModeTruncated, all 64 otherwise. The
// returned slice aliases challenge.
func macInput(challenge []byte, mode LengthMode) []byte {
	if mode == ModeTruncated {
		return challenge[:ChallengeSize-1]
	}
	return challenge
}
