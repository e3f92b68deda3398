package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	keechallenge "github.com/Silvenga/KeeChallenge-Fork"
	"github.com/Silvenga/KeeChallenge-Fork/audit"
	"github.com/Silvenga/KeeChallenge-Fork/persist"
)

var (
	cfgFile      string
	databasePath string
	secretSvc    keechallenge.SecretService
	auditLogger  audit.Logger
	responder    *keechallenge.HMACResponder
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "keechallenge",
	Short: "Protect a database secret behind a challenge-response token",
	Long: `keechallenge guards the symmetric secret of a password database behind a
challenge-response token. The secret is never stored in plaintext: it is
encrypted under a key derived from the token's answer to a random
challenge, and the envelope is rotated after every successful unlock.

This CLI answers challenges in software from a configured slot secret
(HMAC-SHA1), which is also how recovery mode works when the hardware
token is unavailable.`,
	PersistentPreRunE: initializeProvider,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if responder != nil {
			responder.Destroy()
		}
		if secretSvc != nil {
			return secretSvc.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.keechallenge.yaml)")
	rootCmd.PersistentFlags().StringVarP(&databasePath, "database", "d", "", "path to the protected database")
	rootCmd.PersistentFlags().Int("slot", 2, "token slot answering challenges (1 or 2)")
	rootCmd.PersistentFlags().Bool("lt64", false, "use truncated 63-byte challenges for new envelopes")
	rootCmd.PersistentFlags().Duration("token-timeout", 15*time.Second, "token round trip timeout")
	rootCmd.PersistentFlags().Bool("memory-lock", false, "lock process memory to prevent swapping")
	rootCmd.PersistentFlags().String("store-type", "", "storage backend type (filesystem, s3)")
	rootCmd.PersistentFlags().String("slot-secret", "", "hex slot secret for the software responder (or KEECHALLENGE_SLOT_SECRET)")

	bindFlagOrPanic("database.path", "database")
	bindFlagOrPanic("token.slot", "slot")
	bindFlagOrPanic("token.lt64", "lt64")
	bindFlagOrPanic("token.timeout", "token-timeout")
	bindFlagOrPanic("token.slot_secret", "slot-secret")
	bindFlagOrPanic("provider.memory_lock", "memory-lock")
	bindFlagOrPanic("store.type", "store-type")

	// Audit flags
	rootCmd.PersistentFlags().Bool("audit", false, "enable audit logging")
	rootCmd.PersistentFlags().String("audit-type", "", "audit logger type (file, syslog)")
	rootCmd.PersistentFlags().String("audit-file", "", "audit log file path")

	bindFlagOrPanic("audit.enabled", "audit")
	bindFlagOrPanic("audit.type", "audit-type")
	bindFlagOrPanic("audit.options.file_path", "audit-file")

	// S3 flags (for direct CLI usage)
	rootCmd.PersistentFlags().String("s3-endpoint", "", "S3 endpoint URL")
	rootCmd.PersistentFlags().String("s3-region", "", "S3 region")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket name")
	rootCmd.PersistentFlags().String("s3-prefix", "", "S3 key prefix")
	rootCmd.PersistentFlags().String("s3-access-key", "", "S3 access key ID")
	rootCmd.PersistentFlags().String("s3-secret-key", "", "S3 secret access key")
	rootCmd.PersistentFlags().Bool("s3-use-ssl", true, "Use SSL for S3 connections")

	bindFlagOrPanic("store.s3.endpoint", "s3-endpoint")
	bindFlagOrPanic("store.s3.region", "s3-region")
	bindFlagOrPanic("store.s3.bucket", "s3-bucket")
	bindFlagOrPanic("store.s3.key_prefix", "s3-prefix")
	bindFlagOrPanic("store.s3.access_key_id", "s3-access-key")
	bindFlagOrPanic("store.s3.secret_access_key", "s3-secret-key")
	bindFlagOrPanic("store.s3.use_ssl", "s3-use-ssl")
}

func bindFlagOrPanic(configKey, flagName string) {
	if err := viper.BindPFlag(configKey, rootCmd.PersistentFlags().Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", flagName, err))
	}
}

func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")

		viper.SetConfigType("yaml")
		viper.SetConfigName(".keechallenge")
	}

	viper.SetEnvPrefix("KEECHALLENGE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		// A missing config file is fine; flags and env vars cover it.
	}
}

func setDefaults() {
	viper.SetDefault("token.slot", 2)
	viper.SetDefault("token.lt64", false)
	viper.SetDefault("token.timeout", 15*time.Second)
	viper.SetDefault("store.type", "filesystem")
	viper.SetDefault("store.s3.region", "us-east-1")
	viper.SetDefault("store.s3.use_ssl", true)
	viper.SetDefault("audit.enabled", false)
	viper.SetDefault("audit.type", "file")
}

// initializeProvider builds the store, responder and provider for every
// command except the ones that opt out (completion, audit queries work on
// the same provider so they stay in).
func initializeProvider(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "completion" || cmd.Name() == "help" {
		return nil
	}
	// Config commands only touch the config file.
	if cmd.HasParent() && cmd.Parent().Name() == "config" {
		return nil
	}

	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		return fmt.Errorf("database path is required (--database or KEECHALLENGE_DATABASE_PATH)")
	}

	options := keechallenge.Options{
		DatabasePath:     dbPath,
		Slot:             keechallenge.Slot(viper.GetInt("token.slot")),
		Mode:             keechallenge.ModeFixed,
		TokenTimeout:     viper.GetDuration("token.timeout"),
		EnableMemoryLock: viper.GetBool("provider.memory_lock"),
	}
	if viper.GetBool("token.lt64") {
		options.Mode = keechallenge.ModeTruncated
	}

	store, err := buildStore(dbPath)
	if err != nil {
		return err
	}

	auditLogger, err = buildAuditLogger()
	if err != nil {
		return err
	}

	responder, err = buildResponder(options.Slot)
	if err != nil {
		return err
	}

	recovery := keechallenge.RecoverySourceFunc(promptRecoverySecret)

	secretSvc, err = keechallenge.NewWithStore(options, store, responder, recovery, auditLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize provider: %w", err)
	}
	return nil
}

func buildStore(dbPath string) (persist.Store, error) {
	switch persist.StoreType(viper.GetString("store.type")) {
	case persist.StoreTypeFileSystem, "":
		return persist.NewFileSystemStore(dbPath)

	case persist.StoreTypeS3:
		return persist.NewS3Store(persist.S3Config{
			Endpoint:        viper.GetString("store.s3.endpoint"),
			AccessKeyID:     viper.GetString("store.s3.access_key_id"),
			SecretAccessKey: viper.GetString("store.s3.secret_access_key"),
			Bucket:          viper.GetString("store.s3.bucket"),
			KeyPrefix:       viper.GetString("store.s3.key_prefix"),
			UseSSL:          viper.GetBool("store.s3.use_ssl"),
			Region:          viper.GetString("store.s3.region"),
			DatabaseName:    dbPath,
		})

	default:
		return nil, fmt.Errorf("unsupported store type: %s", viper.GetString("store.type"))
	}
}

func buildAuditLogger() (audit.Logger, error) {
	config := &audit.Config{
		Enabled: viper.GetBool("audit.enabled"),
		Type:    audit.ConfigType(viper.GetString("audit.type")),
		Options: viper.GetStringMap("audit.options"),
	}
	logger, err := audit.NewLogger(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	return logger, nil
}

// buildResponder configures the software responder from the slot secret.
// The secret comes from config or env, or is prompted for; it mirrors the
// secret programmed into the hardware token's HMAC-SHA1 slot.
func buildResponder(slot keechallenge.Slot) (*keechallenge.HMACResponder, error) {
	secretHex := viper.GetString("token.slot_secret")
	if secretHex == "" {
		var err error
		secretHex, err = promptLine("Slot secret (hex): ")
		if err != nil {
			return nil, err
		}
	}

	secret, err := hex.DecodeString(strings.TrimSpace(secretHex))
	if err != nil {
		return nil, fmt.Errorf("slot secret is not valid hex: %w", err)
	}
	defer memguard.WipeBytes(secret)

	return keechallenge.NewHMACResponder(map[keechallenge.Slot][]byte{slot: secret})
}
