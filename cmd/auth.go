package cmd

import (
	"github.com/PolarWolf314/pantry/internal/server"
	"github.com/PolarWolf314/pantry/internal/ui"
	"github.com/PolarWolf314/pantry/internal/workflows"

	"github.com/spf13/cobra"
)

var authTimeout = server.DefaultTimeout

func init() {
	addCommonFlags(AuthCmd)
	AuthCmd.Flags().DurationVar(&authTimeout, "timeout", server.DefaultTimeout, "timeout for each request to the server")
}

// AuthCmd loads the client credential, registering the client if needed.
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Check the client credential, registering this client if needed",
	Long: `Loads the client key named by client_key.

If the key does not exist and validation_client_name and validation_key are
configured, the client is registered with the server and the issued key is
written to client_key.

Examples:
  pantry auth
  pantry auth --config .chef/knife.rb`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting auth command")
		spinner, cleanup := startSpinner("Authenticating...")
		defer cleanup()

		result, err := workflows.Auth(cmd.Context(), workflows.AuthOptions{
			ConfigOptions: configOptions(),
			Timeout:       authTimeout,
			Verbose:       verbose,
			Debug:         debug,
		})
		if err != nil {
			spinner.FinalMSG = formatError("Authentication failed", err)
			return shownError{err}
		}

		if result.Bootstrapped {
			spinner.FinalMSG = ui.SuccessMark() + " Registered " + ui.Cookbook.Sprint(result.Identity) + " with " + result.Server + "\n" +
				ui.HintMark() + " Client key written to " + ui.Path.Sprint(result.KeyPath)
			return nil
		}
		spinner.FinalMSG = ui.SuccessMark() + " Authenticated as " + ui.Cookbook.Sprint(result.Identity) + " " +
			ui.Muted.Sprint(result.KeyPath)
		return nil
	},
}
