package keechallenge

import (
	"crypto/aes"
	"encoding/base64"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Envelope is the durable unit protecting one secret: the challenge the
// token must answer, the secret encrypted under the key derived from that
// answer, and a digest to verify the decryption.
//
// An envelope is only ever written after a successful encryption and only
// trusted once all fields parse; anything partial is treated as absent and
// handled through recovery.
type Envelope struct {
	Challenge    []byte
	Ciphertext   []byte
	IV           []byte
	Verification []byte
	Mode         LengthMode
}

// envelopeDoc is the wire form: a field-oriented YAML document with binary
// fields base64-encoded. The lt64 flag is kept as a literal "True"/"False"
// string, case-sensitive, for compatibility with the historical format.
// Unknown extra fields are ignored on read for forward compatibility.
type envelopeDoc struct {
	Encrypted    string `yaml:"encrypted"`
	IV           string `yaml:"iv"`
	Challenge    string `yaml:"challenge"`
	Verification string `yaml:"verification"`
	LT64         string `yaml:"lt64"`
}

// Marshal serializes the envelope to its durable document form.
func (e *Envelope) Marshal() ([]byte, error) {
	lt64 := "False"
	if e.Mode == ModeTruncated {
		lt64 = "True"
	}

	doc := envelopeDoc{
		Encrypted:    base64.StdEncoding.EncodeToString(e.Ciphertext),
		IV:           base64.StdEncoding.EncodeToString(e.IV),
		Challenge:    base64.StdEncoding.EncodeToString(e.Challenge),
		Verification: base64.StdEncoding.EncodeToString(e.Verification),
		LT64:         lt64,
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return data, nil
}

// ParseEnvelope deserializes an envelope document. Field order does not
// matter and unknown fields are ignored, but every required field must be
// present and well formed, and the lt64 flag must be exactly "True" or
// "False". Anything else is ErrFormat, which the provider treats as an
// absent envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var doc envelopeDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	env := &Envelope{}
	var err error

	if env.Ciphertext, err = decodeField("encrypted", doc.Encrypted); err != nil {
		return nil, err
	}
	if env.IV, err = decodeField("iv", doc.IV); err != nil {
		return nil, err
	}
	if env.Challenge, err = decodeField("challenge", doc.Challenge); err != nil {
		return nil, err
	}
	if env.Verification, err = decodeField("verification", doc.Verification); err != nil {
		return nil, err
	}

	switch doc.LT64 {
	case "True":
		env.Mode = ModeTruncated
	case "False":
		env.Mode = ModeFixed
	case "":
		return nil, fmt.Errorf("%w: missing required field %q", ErrFormat, "lt64")
	default:
		return nil, fmt.Errorf("%w: field %q must be \"True\" or \"False\", got %q", ErrFormat, "lt64", doc.LT64)
	}

	if err := env.validate(); err != nil {
		return nil, err
	}
	return env, nil
}

func decodeField(name, value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: missing required field %q", ErrFormat, name)
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: field %q is not valid base64: %v", ErrFormat, name, err)
	}
	return raw, nil
}

func (e *Envelope) validate() error {
	if len(e.Challenge) != ChallengeSize {
		return fmt.Errorf("%w: challenge must be %d bytes, got %d", ErrFormat, ChallengeSize, len(e.Challenge))
	}
	if len(e.Verification) != DigestSize {
		return fmt.Errorf("%w: verification digest must be %d bytes, got %d", ErrFormat, DigestSize, len(e.Verification))
	}
	if len(e.IV) != aes.BlockSize {
		return fmt.Errorf("%w: iv must be %d bytes, got %d", ErrFormat, aes.BlockSize, len(e.IV))
	}
	if len(e.Ciphertext) == 0 || len(e.Ciphertext)%aes.BlockSize != 0 {
		return fmt.Errorf("%w: ciphertext length %d is not a positive multiple of %d", ErrFormat, len(e.Ciphertext), aes.BlockSize)
	}
	return nil
}
