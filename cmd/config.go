package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/PolarWolf314/pantry/internal/configs"
	"github.com/PolarWolf314/pantry/internal/ui"
	"github.com/PolarWolf314/pantry/internal/workflows"

	"github.com/spf13/cobra"
)

var configShowJSON bool

func init() {
	addCommonFlags(ConfigCmd)
	configShowCmd.Flags().BoolVar(&configShowJSON, "json", false, "output in JSON format")
	configShowCmd.Flags().Var(&vaultMode, "vault-mode", "override vault_mode from the configuration")
	ConfigCmd.AddCommand(configShowCmd)
}

// ConfigCmd groups configuration commands.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the knife configuration",
	Long: `Provides commands for inspecting the knife configuration pantry uses.

The configuration is read from --config, then $PANTRY_CONFIG, then the
nearest .chef/knife.rb, .chef/config.rb or .chef/knife.toml above the current
directory, and finally ~/.chef/knife.rb.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the resolved configuration",
	Long: `Displays the configuration with defaults applied and every path resolved.

The output is TOML that pantry can load back with --config. Unrecognized
options are listed under [extensions] exactly as written.

Examples:
  pantry config show
  pantry config show --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting config show command")

		cfg, err := workflows.ShowConfig(cmd.Context(), configOptions())
		if err != nil {
			fmt.Println(formatError("Failed to load configuration", err))
			return shownError{err}
		}
		Logger.Debugf("Loaded configuration from %s", cfg.SourcePath)

		if configShowJSON {
			return outputConfigJSON(cfg)
		}

		fmt.Println(ui.Muted.Sprint("# " + cfg.SourcePath))
		return configs.EncodeTOML(os.Stdout, cfg)
	},
}

func outputConfigJSON(cfg *configs.ClientConfig) error {
	out := map[string]any{
		"source":                 cfg.SourcePath,
		"chef_server_url":        cfg.ServerURL,
		"chef_server_root":       cfg.ServerRoot,
		"organization":           cfg.Organization,
		"node_name":              cfg.ClientIdentity,
		"client_key":             cfg.PrivateKeyPath,
		"validation_client_name": cfg.ValidationIdentity,
		"validation_key":         cfg.ValidationKeyPath,
		"cache_path":             cfg.CachePath,
		"cookbook_path":          cfg.CookbookPaths,
		"vault_mode":             cfg.VaultMode,
		"editor":                 cfg.EditorPath,
		"log_level":              cfg.LogLevel.String(),
		"log_location":           cfg.LogLocation,
		"extensions":             cfg.Extensions,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
