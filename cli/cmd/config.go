package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage keechallenge configuration",
	Long:  `Inspect and initialize the configuration file read by every command.`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View effective configuration",
	Long:  `Display the effective configuration merged from config file, environment variables and flags. The slot secret is redacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigView(cmd, args)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long:  `Create a configuration file with default values at $HOME/.keechallenge.yaml (or the --config path).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigInit(cmd, args)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the configuration file in use",
	RunE: func(cmd *cobra.Command, args []string) error {
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Println(used)
			return nil
		}
		fmt.Println("no configuration file loaded (using defaults, environment and flags)")
		return nil
	},
}

var (
	configForce  bool
	configFormat string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configViewCmd.Flags().StringVarP(&configFormat, "format", "f", "yaml", "output format (yaml, json)")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing config file")
}

func runConfigView(cmd *cobra.Command, args []string) error {
	settings := viper.AllSettings()
	redactSlotSecret(settings)

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Println(string(data))
	case "yaml":
		data, err := yaml.Marshal(settings)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Print(string(data))
	default:
		return fmt.Errorf("unsupported format: %s", configFormat)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := cfgFile
	if configFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
		configFile = filepath.Join(home, ".keechallenge.yaml")
	}

	if _, err := os.Stat(configFile); err == nil && !configForce {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configFile)
	}

	defaults := map[string]interface{}{
		"database": map[string]interface{}{
			"path": "",
		},
		"token": map[string]interface{}{
			"slot":    2,
			"lt64":    false,
			"timeout": "15s",
		},
		"provider": map[string]interface{}{
			"memory_lock": false,
		},
		"store": map[string]interface{}{
			"type": "filesystem",
		},
		"audit": map[string]interface{}{
			"enabled": false,
			"type":    "file",
		},
	}

	data, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Configuration file created: %s\n", configFile)
	return nil
}

// redactSlotSecret keeps the software responder's secret out of view
// output; everything else in the config is non-sensitive.
func redactSlotSecret(settings map[string]interface{}) {
	token, ok := settings["token"].(map[string]interface{})
	if !ok {
		return
	}
	if secret, ok := token["slot_secret"].(string); ok && secret != "" {
		token["slot_secret"] = "<redacted>"
	}
}
