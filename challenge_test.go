package keechallenge

import (
	"bytes"
	"testing"
)

func TestGenerateChallengeFixed(t *testing.T) {
	challenge, err := GenerateChallenge(ModeFixed)
	if err != nil {
		t.Fatalf("Failed to generate challenge: %v", err)
	}
	if len(challenge) != ChallengeSize {
		t.Fatalf("Expected %d bytes, got %d", ChallengeSize, len(challenge))
	}

	other, err := GenerateChallenge(ModeFixed)
	if err != nil {
		t.Fatalf("Failed to generate second challenge: %v", err)
	}
	if bytes.Equal(challenge, other) {
		t.Fatal("Two generated challenges are identical")
	}
}

func TestGenerateChallengeTruncatedMarker(t *testing.T) {
	for i := 0; i < 32; i++ {
		challenge, err := GenerateChallenge(ModeTruncated)
		if err != nil {
			t.Fatalf("Failed to generate challenge: %v", err)
		}
		if challenge[62] != ^challenge[63] {
			t.Fatalf("Marker byte wrong: byte[62]=%#x, byte[63]=%#x", challenge[62], challenge[63])
		}
	}
}

func TestMacInput(t *testing.T) {
	challenge := make([]byte, ChallengeSize)
	for i := range challenge {
		challenge[i] = byte(i)
	}

	tests := []struct {
		name string
		mode LengthMode
		want int
	}{
		{"Fixed", ModeFixed, 64},
		{"Truncated", ModeTruncated, 63},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := macInput(challenge, tt.mode)
			if len(input) != tt.want {
				t.Fatalf("Expected %d MAC input bytes, got %d", tt.want, len(input))
			}
			if !bytes.Equal(input, challenge[:tt.want]) {
				t.Fatal("MAC input is not a prefix of the challenge")
			}
		})
	}
}

func TestLengthModeString(t *testing.T) {
	if ModeFixed.String() != "fixed" || ModeTruncated.String() != "truncated" {
		t.Fatalf("Unexpected mode strings: %q, %q", ModeFixed, ModeTruncated)
	}
}
