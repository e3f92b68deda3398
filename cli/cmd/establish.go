package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	keechallenge "github.com/Silvenga/KeeChallenge-Fork"
)

var establishCmd = &cobra.Command{
	Use:   "establish",
	Short: "Create a new envelope for a database secret",
	Long: `Create a brand-new envelope: prompts for the database secret, generates a
random challenge, asks the responder for its answer and writes the
encrypted envelope next to the database.`,
	RunE: runEstablish,
}

func init() {
	rootCmd.AddCommand(establishCmd)
}

func runEstablish(cmd *cobra.Command, args []string) error {
	source := keechallenge.SecretSourceFunc(func(ctx context.Context) ([]byte, error) {
		return promptSecret("Database secret (hex): ")
	})

	secret, err := secretSvc.Establish(context.Background(), source)
	if secret != nil {
		defer memguard.WipeBytes(secret)
	}
	if err != nil {
		if secret != nil && errors.Is(err, keechallenge.ErrPersistence) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: envelope could not be saved: %v\n", err)
			fmt.Println(hex.EncodeToString(secret))
			return nil
		}
		return err
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "Envelope established.")
	return nil
}
