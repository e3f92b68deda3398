package keechallenge

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// EncryptSecret encrypts a secret under a derived key using AES-256-CBC
// with PKCS#7 padding and a fresh random IV.
//
// ENCRYPTION ALGORITHM:
// - Cipher: AES-256 in CBC mode
// - Key Size: 256 bits (32 bytes), exactly the DeriveKey output
// - IV Size: 128 bits (16 bytes) - randomly generated per encryption
// - Padding: PKCS#7 to the AES block size
//
// CBC provides confidentiality only. Integrity of the recovered secret is
// carried by the separate verification digest check in the provider; an
// implementer must not skip that check believing the cipher authenticates.
// This matches the historical envelope format, which predates AEAD modes.
//
// Returns the ciphertext and the IV; neither is sensitive on its own.
func EncryptSecret(secret, key []byte) (ciphertext, iv []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCipher, err)
	}

	iv, err = randomBytes(aes.BlockSize)
	if err != nil {
		return nil, nil, err
	}

	padded := padPKCS7(secret, aes.BlockSize)
	ciphertext = make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	// The padded buffer holds a copy of the secret.
	wipe(padded)

	return ciphertext, iv, nil
}

// DecryptSecret reverses EncryptSecret. Padding or block-format corruption
// is reported as ErrCipher and never masked; the caller decides whether to
// surface it or escalate to recovery.
//
// A successful return means only that the ciphertext decrypted cleanly,
// not that the key was right: CBC happily produces garbage under a wrong
// key whenever the last block un-pads by accident. Callers must verify the
// result against the envelope's verification digest.
func DecryptSecret(ciphertext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCipher, err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrCipher, aes.BlockSize, len(iv))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a positive multiple of the block size", ErrCipher, len(ciphertext))
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	secret, err := unpadPKCS7(padded, aes.BlockSize)
	if err != nil {
		wipe(padded)
		return nil, err
	}

	// unpadPKCS7 copies, so the working buffer can be scrubbed here.
	wipe(padded)

	return secret, nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: invalid padded length %d", ErrCipher, len(data))
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: invalid padding", ErrCipher)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: invalid padding", ErrCipher)
		}
	}
	return append([]byte{}, data[:len(data)-n]...), nil
}
