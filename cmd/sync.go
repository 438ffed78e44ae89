package cmd

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PolarWolf314/pantry/internal/reconciler"
	"github.com/PolarWolf314/pantry/internal/server"
	"github.com/PolarWolf314/pantry/internal/ui"
	"github.com/PolarWolf314/pantry/internal/utils"
	"github.com/PolarWolf314/pantry/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	syncTimeout  time.Duration
	syncDeadline time.Duration
	syncWorkers  int
	syncVerify   bool
)

func init() {
	addCommonFlags(SyncCmd)
	SyncCmd.Flags().DurationVar(&syncTimeout, "timeout", server.DefaultTimeout, "timeout for each request to the server")
	SyncCmd.Flags().DurationVar(&syncDeadline, "deadline", 0, "abandon the sync after this long (0 for no limit)")
	SyncCmd.Flags().IntVarP(&syncWorkers, "workers", "w", reconciler.DefaultWorkers, "maximum concurrent downloads")
	SyncCmd.Flags().BoolVar(&syncVerify, "verify", false, "re-hash cached content and refetch cookbooks that no longer match")
	SyncCmd.Flags().Var(&vaultMode, "vault-mode", "override vault_mode from the configuration")
}

func resetSyncCommandState() {
	syncTimeout = server.DefaultTimeout
	syncDeadline = 0
	syncWorkers = reconciler.DefaultWorkers
	syncVerify = false
}

// SyncCmd reconciles the local cache with the server catalog.
var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch new and changed cookbooks from the server",
	Long: `Authenticates against the server, lists its cookbook catalog, and downloads
every cookbook whose version or checksum differs from the local cache.

Cookbooks that fail to download are reported without stopping the others.
If no client key exists yet and a validation key is configured, the client
is registered first.

Exit codes:
  0  every cookbook is in sync
  1  one or more cookbooks failed
  2  the sync could not authenticate or reach the server

Examples:
  pantry sync
  pantry sync --config ~/chef-repo/.chef/knife.rb
  pantry sync --workers 4 --deadline 5m
  pantry sync --verify`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting sync command")
		spinner, cleanup := startSpinner("Syncing cookbooks...")
		defer cleanup()

		var total, done atomic.Int32
		result, err := workflows.Sync(cmd.Context(), workflows.SyncOptions{
			ConfigOptions: configOptions(),
			Timeout:       syncTimeout,
			Deadline:      syncDeadline,
			Workers:       syncWorkers,
			Verify:        syncVerify,
			Verbose:       verbose,
			Debug:         debug,
			OnPlan: func(plan reconciler.Plan) {
				total.Store(int32(len(plan.Fetch)))
				Logger.Debugf("Plan: %d to fetch, %d up to date", len(plan.Fetch), len(plan.Skip))
				setSpinnerSuffix(spinner, fmt.Sprintf("Fetching %d cookbooks...", len(plan.Fetch)))
			},
			OnResult: func(entry server.CatalogEntry, err error) {
				n := done.Add(1)
				setSpinnerSuffix(spinner, fmt.Sprintf("Fetching cookbooks (%d/%d)...", n, total.Load()))
			},
		})
		if err != nil {
			Logger.Errorf("Sync failed: %v", err)
			spinner.FinalMSG = formatError("Sync failed", err)
			return shownError{err}
		}

		report := result.Report
		exitCode = report.ExitCode()
		spinner.FinalMSG = formatReport(report)
		return nil
	},
}

// formatReport renders the summary printed after a sync.
func formatReport(r *reconciler.Report) string {
	var b strings.Builder

	counts := fmt.Sprintf("%d fetched, %d up to date, %d failed", r.Fetched, r.Skipped, len(r.Failed))
	if len(r.Failed) == 0 {
		b.WriteString(ui.SuccessMark() + " Cookbooks synced " + ui.Muted.Sprint(counts) + "\n")
	} else {
		b.WriteString(ui.FailureMark() + " Sync finished with " + utils.Plural(len(r.Failed), "failure", "failures") + " " + ui.Muted.Sprint(counts) + "\n")
		for _, f := range r.Failed {
			b.WriteString("  " + ui.Cookbook.Sprint(f.Name) + ui.Version.Sprint(f.Version) + ": " + ui.Error.Sprint(f.Err.Error()) + "\n")
		}
	}

	for _, c := range r.Conflicts {
		b.WriteString(ui.HintMark() + " Local copy of " + ui.Cookbook.Sprint(c.Name) + " at " + ui.Path.Sprint(c.Path) +
			" is " + ui.Version.Sprint(c.LocalVersion) + ", server has " + ui.Version.Sprint(c.ServerVersion) + "\n")
	}
	if len(r.LocalOnly) > 0 {
		b.WriteString(ui.HintMark() + " Only in cookbook_path: " + strings.Join(r.LocalOnly, ", ") + "\n")
	}
	return b.String()
}
