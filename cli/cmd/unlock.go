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

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Recover the database secret from the envelope",
	Long: `Read the envelope, answer its challenge, decrypt and verify the secret,
and rotate the envelope. Prints the secret as hex on stdout for piping
into database tooling. Falls back to recovery entry when the envelope is
missing or the responder fails, if the user opts in.`,
	RunE: runUnlock,
}

func init() {
	rootCmd.AddCommand(unlockCmd)
}

func runUnlock(cmd *cobra.Command, args []string) error {
	secret, err := secretSvc.Unlock(context.Background())
	if secret != nil {
		defer memguard.WipeBytes(secret)
	}
	if err != nil {
		// A verified secret with a rotation or persistence problem is
		// still usable this session.
		if secret != nil && errors.Is(err, keechallenge.ErrPersistence) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
			fmt.Println(hex.EncodeToString(secret))
			return nil
		}
		if errors.Is(err, keechallenge.ErrCancelled) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Unlock cancelled.")
			return nil
		}
		return err
	}

	fmt.Println(hex.EncodeToString(secret))
	return nil
}
