package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export or import the envelope as an encrypted container",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create <file>",
	Short: "Export the envelope to a passphrase-encrypted container",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupCreate,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Import a container, replacing the current envelope",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupRestore,
}

func init() {
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	passphrase, err := promptLine("Backup passphrase: ")
	if err != nil {
		return err
	}

	manifest, err := secretSvc.BackupEnvelope(args[0], passphrase)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Backup %s written to %s (created %s)\n",
		manifest.ID, args[0], manifest.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	passphrase, err := promptLine("Backup passphrase: ")
	if err != nil {
		return err
	}

	manifest, err := secretSvc.RestoreEnvelope(args[0], passphrase)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Restored backup %s of %s (created %s)\n",
		manifest.ID, manifest.Database, manifest.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}
