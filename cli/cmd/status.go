package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show envelope status",
	Long:  "Display envelope presence, its length mode and the challenge fingerprint, without a token round trip.",
	RunE:  showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func showStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("Envelope Status")
	fmt.Println("===============")

	status, err := secretSvc.Status()
	if err != nil {
		return err
	}

	fmt.Printf("Database:          %s\n", status.Database)
	fmt.Printf("Memory Protection: %s\n", secretSvc.MemoryProtection())

	switch {
	case !status.Present:
		fmt.Println("Envelope:          absent (unlock will enter recovery mode)")
	case status.Corrupt:
		fmt.Println("Envelope:          corrupt (unlock will enter recovery mode)")
	default:
		fmt.Println("Envelope:          present")
		fmt.Printf("Length Mode:       %s\n", status.Mode)
		fmt.Printf("Challenge:         %s (fingerprint)\n", status.ChallengeFingerprint)
	}

	return nil
}
