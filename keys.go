package keechallenge

import "crypto/sha256"

// KeySize is the length of a derived cipher key: SHA-256 output, which
// also fixes the AES key size at 256 bits.
const KeySize = sha256.Size

// DigestSize is the length of a verification digest.
const DigestSize = sha256.Size

// DeriveKey turns a token response into the symmetric cipher key.
//
// The key exists only for the duration of one encrypt or decrypt and is
// never persisted; the envelope stores the challenge instead, so the key
// can only be re-derived by something holding the token.
func DeriveKey(response []byte) []byte {
	key := sha256.Sum256(response)
	return key[:]
}

// VerificationDigest computes the integrity digest stored alongside the
// ciphertext. Comparing digests detects a wrong or corrupt decryption
// without ever comparing secrets directly.
//
// The digest deliberately does not cover the ciphertext: the cipher layer
// is unauthenticated CBC, and integrity of the recovered secret is carried
// entirely by this check (see DecryptSecret).
func VerificationDigest(secret []byte) []byte {
	digest := sha256.Sum256(secret)
	return digest[:]
}
