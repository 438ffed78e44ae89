package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PolarWolf314/pantry/internal/audit"
	kerrors "github.com/PolarWolf314/pantry/internal/errors"
	"github.com/PolarWolf314/pantry/internal/ui"
	"github.com/PolarWolf314/pantry/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	logLimit      int
	logReverse    bool
	logNode       string
	logOperation  string
	logFailedOnly bool
	logSince      string
	logUntil      string
	logJSON       bool
)

func init() {
	addCommonFlags(LogCmd)
	LogCmd.Flags().IntVarP(&logLimit, "number", "n", 0, "limit number of entries shown")
	LogCmd.Flags().BoolVar(&logReverse, "reverse", false, "show most recent entries first")
	LogCmd.Flags().StringVar(&logNode, "node", "", "filter by node name")
	LogCmd.Flags().StringVar(&logOperation, "operation", "", "filter by operation type (comma-separated)")
	LogCmd.Flags().BoolVar(&logFailedOnly, "failed", false, "only show runs with failures")
	LogCmd.Flags().StringVar(&logSince, "since", "", "show entries after date (YYYY-MM-DD)")
	LogCmd.Flags().StringVar(&logUntil, "until", "", "show entries before date (YYYY-MM-DD)")
	LogCmd.Flags().BoolVar(&logJSON, "json", false, "output as JSON array")
}

// resetLogCommandState resets the log command's global state for testing.
func resetLogCommandState() {
	logLimit = 0
	logReverse = false
	logNode = ""
	logOperation = ""
	logFailedOnly = false
	logSince = ""
	logUntil = ""
	logJSON = false
}

// LogCmd shows the sync history.
var LogCmd = &cobra.Command{
	Use:   "log",
	Short: "View the sync history",
	Long: `Displays the history of syncs and client registrations recorded in the
cache directory.

Examples:
  pantry log                        # View full history
  pantry log -n 10                  # Last 10 entries
  pantry log --reverse              # Most recent first
  pantry log --failed               # Runs with failures
  pantry log --operation bootstrap  # Client registrations only
  pantry log --since 2024-01-01     # Filter by date
  pantry log --json                 # JSON output`,
	RunE: runLog,
}

func runLog(cmd *cobra.Command, args []string) error {
	Logger.Infof("Starting log command")

	result, err := workflows.Log(cmd.Context(), workflows.LogOptions{
		ConfigOptions: configOptions(),
		Limit:         logLimit,
		Reverse:       logReverse,
		Node:          logNode,
		Operations:    logOperation,
		FailedOnly:    logFailedOnly,
		Since:         logSince,
		Until:         logUntil,
	})
	if err != nil {
		fmt.Println(formatLogError(err))
		if isLogUnexpectedError(err) {
			return shownError{err}
		}
		return nil
	}

	Logger.Debugf("Parsed %d entries from sync history", result.TotalEntriesBeforeFilter)
	Logger.Debugf("After filtering: %d entries", len(result.Entries))

	if len(result.Entries) == 0 {
		if result.TotalEntriesBeforeFilter == 0 {
			fmt.Println("No sync history entries found.")
		} else {
			fmt.Println("No sync history entries found matching the filters.")
		}
		return nil
	}

	if logJSON {
		return outputLogJSON(result.Entries)
	}
	outputLogDefault(result.Entries)
	return nil
}

// formatLogError formats a log error for display to the user.
func formatLogError(err error) string {
	switch {
	case errors.Is(err, kerrors.ErrNoHistory):
		return ui.Info.Sprint("ℹ") + " No sync history found. Runs are recorded after " + ui.Code.Sprint("pantry sync") + "."

	case errors.Is(err, kerrors.ErrInvalidDateFormat):
		return ui.FailureMark() + " " + err.Error()

	default:
		return formatError("Failed to read sync history", err)
	}
}

// isLogUnexpectedError returns true if the error is unexpected and should cause a non-zero exit.
func isLogUnexpectedError(err error) bool {
	switch {
	case errors.Is(err, kerrors.ErrNoHistory),
		errors.Is(err, kerrors.ErrInvalidDateFormat):
		return false
	default:
		return true
	}
}

func outputLogJSON(entries []audit.Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entries to JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func outputLogDefault(entries []audit.Entry) {
	for _, e := range entries {
		datetime := workflows.FormatDateTime(e.Timestamp)
		details := workflows.FormatDetails(e)
		fmt.Printf("%-19s  %-20s  %-9s  %s\n", datetime, e.Node, e.Operation, details)
	}
}
