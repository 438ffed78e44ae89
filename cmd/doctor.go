package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	kerrors "github.com/PolarWolf314/pantry/internal/errors"
	"github.com/PolarWolf314/pantry/internal/ui"
	"github.com/PolarWolf314/pantry/internal/workflows"

	"github.com/spf13/cobra"
)

var doctorJSONOutput bool

func init() {
	addCommonFlags(DoctorCmd)
	DoctorCmd.Flags().BoolVar(&doctorJSONOutput, "json", false, "output results in JSON format")
	DoctorCmd.Flags().Var(&vaultMode, "vault-mode", "override vault_mode from the configuration")
}

func resetDoctorCommandState() {
	doctorJSONOutput = false
}

// DoctorCmd checks the local setup without contacting the server.
var DoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the local setup for common problems",
	Long: `Runs health checks on the configuration, client key, cookbook paths
and integrity cache. The server is never contacted.

Exit codes:
  0 - All checks passed
  1 - Warnings found
  2 - Errors found

Examples:
  pantry doctor
  pantry doctor --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting doctor command")

		spinner, cleanup := startSpinner("Running health checks...")
		defer cleanup()

		result, err := workflows.Doctor(cmd.Context(), workflows.DoctorOptions{
			ConfigOptions: configOptions(),
		})
		if err != nil {
			spinner.FinalMSG = ui.FailureMark() + " Failed to run health checks: " + err.Error()
			return shownError{err}
		}

		for _, check := range result.Checks {
			Logger.Debugf("Check %s: status=%s, message=%s", check.Name, check.Status.String(), check.Message)
		}

		if doctorJSONOutput {
			if err := outputDoctorJSON(result); err != nil {
				return err
			}
		} else {
			printDoctorResults(result)
			switch {
			case result.Summary.Errors > 0:
				spinner.FinalMSG = ui.FailureMark() + " Health checks completed with errors"
			case result.Summary.Warnings > 0:
				spinner.FinalMSG = ui.Warning.Sprint("⚠") + " Health checks completed with warnings"
			default:
				spinner.FinalMSG = ui.SuccessMark() + " Health checks completed"
			}
		}

		switch {
		case result.Summary.Errors > 0:
			exitCode = kerrors.ExitSyncFailure
		case result.Summary.Warnings > 0:
			exitCode = kerrors.ExitPartial
		}
		return nil
	},
}

func outputDoctorJSON(result *workflows.DoctorResult) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// printDoctorResults prints the doctor results in a human-readable format.
func printDoctorResults(result *workflows.DoctorResult) {
	if result.ConfigPath != "" {
		fmt.Println("Configuration: " + ui.Path.Sprint(result.ConfigPath))
		fmt.Println()
	}

	for _, check := range result.Checks {
		var statusIcon string
		switch check.Status {
		case workflows.CheckPass:
			statusIcon = ui.SuccessMark()
		case workflows.CheckWarning:
			statusIcon = ui.Warning.Sprint("⚠")
		case workflows.CheckError:
			statusIcon = ui.FailureMark()
		}
		fmt.Printf("%s %s\n", statusIcon, check.Message)
	}

	fmt.Println()
	fmt.Printf("Summary: %d passed", result.Summary.Passed)
	if result.Summary.Warnings > 0 {
		fmt.Printf(", %s", ui.Warning.Sprintf("%d warning(s)", result.Summary.Warnings))
	}
	if result.Summary.Errors > 0 {
		fmt.Printf(", %s", ui.Error.Sprintf("%d error(s)", result.Summary.Errors))
	}
	fmt.Println()

	if len(result.Suggestions) > 0 {
		fmt.Println()
		fmt.Println("Suggestions:")
		for _, suggestion := range result.Suggestions {
			fmt.Printf("  %s %s\n", ui.HintMark(), suggestion)
		}
	}
}
