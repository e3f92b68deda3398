// Package crypto holds the passphrase-based container encryption used for
// envelope backups. The envelope cipher itself lives in the root package;
// this is only the outer wrapping for export/import.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	pbkdf2Iter = 100000
	keySize    = 32
)

// EncryptWithPassphrase encrypts data using a passphrase with PBKDF2 + ChaCha20-Poly1305.
// Output layout: salt (32) || nonce (12) || ciphertext+tag.
func EncryptWithPassphrase(data []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iter, keySize, sha256.New)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, data, nil)

	result := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	result = append(result, salt...)
	result = append(result, nonce...)
	result = append(result, ciphertext...)

	return result, nil
}

// DecryptWithPassphrase decrypts EncryptWithPassphrase output. A wrong
// passphrase surfaces as an authentication failure from the AEAD.
func DecryptWithPassphrase(encryptedData []byte, passphrase string) ([]byte, error) {
	if len(encryptedData) < saltSize+chacha20poly1305.NonceSize {
		return nil, errors.New("encrypted data too short")
	}

	salt := encryptedData[:saltSize]
	nonce := encryptedData[saltSize : saltSize+chacha20poly1305.NonceSize]
	ciphertext := encryptedData[saltSize+chacha20poly1305.NonceSize:]

	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iter, keySize, sha256.New)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// CalculateChecksum calculates the SHA-256 checksum of data as hex.
func CalculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
