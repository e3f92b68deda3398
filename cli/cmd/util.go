package cmd

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	keechallenge "github.com/Silvenga/KeeChallenge-Fork"
)

func promptLine(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads a 20-byte secret as 40 hex characters.
func promptSecret(label string) ([]byte, error) {
	line, err := promptLine(label)
	if err != nil {
		return nil, err
	}
	secret, err := hex.DecodeString(line)
	if err != nil {
		return nil, fmt.Errorf("secret is not valid hex: %w", err)
	}
	if len(secret) != keechallenge.SecretSize {
		return nil, fmt.Errorf("secret must be %d bytes (%d hex characters), got %d bytes",
			keechallenge.SecretSize, keechallenge.SecretSize*2, len(secret))
	}
	return secret, nil
}

// promptRecoverySecret is the RecoverySource for the CLI: it explains why
// recovery triggered and asks whether to proceed. Declining aborts the
// unlock instead of silently recovering.
func promptRecoverySecret(ctx context.Context, cause error) ([]byte, error) {
	fmt.Fprintf(os.Stderr, "Unlock needs recovery: %v\n", cause)
	answer, err := promptLine("Enter the database secret directly? [y/N]: ")
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
		return nil, keechallenge.ErrCancelled
	}
	return promptSecret("Database secret (hex): ")
}
