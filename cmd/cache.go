package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/PolarWolf314/pantry/internal/ui"
	"github.com/PolarWolf314/pantry/internal/workflows"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	cacheListVerify bool
	cacheListJSON   bool
)

func init() {
	addCommonFlags(CacheCmd)
	cacheListCmd.Flags().BoolVar(&cacheListVerify, "verify", false, "re-hash stored content and flag mismatches")
	cacheListCmd.Flags().BoolVar(&cacheListJSON, "json", false, "output in JSON format")
	CacheCmd.AddCommand(cacheListCmd)
}

func resetCacheCommandState() {
	cacheListVerify = false
	cacheListJSON = false
}

// CacheCmd groups integrity cache commands.
var CacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the local integrity cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached cookbooks",
	Long: `Lists every cookbook recorded in the integrity cache with its version,
content hash and when it was last synced.

Use --verify to re-hash the stored content. A cookbook that fails
verification is refetched by 'pantry sync --verify'.

Examples:
  pantry cache list
  pantry cache list --verify
  pantry cache list --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting cache list command")

		result, err := workflows.CacheList(cmd.Context(), workflows.CacheOptions{
			ConfigOptions: configOptions(),
			Verify:        cacheListVerify,
		})
		if err != nil {
			fmt.Println(formatError("Failed to read the cache", err))
			return shownError{err}
		}
		Logger.Debugf("Cache directory: %s", result.Dir)

		if cacheListJSON {
			return outputCacheJSON(result)
		}

		if len(result.Entries) == 0 {
			fmt.Println("No cookbooks cached in " + ui.Path.Sprint(result.Dir) + ". Run " + ui.Code.Sprint("pantry sync") + " first.")
			return nil
		}

		outputCacheTable(result)
		if result.Corrupt > 0 {
			fmt.Println(ui.FailureMark() + " " + fmt.Sprintf("%d cookbooks failed verification", result.Corrupt) + "\n" +
				ui.HintMark() + " Run " + ui.Code.Sprint("pantry sync --verify") + " to refetch them")
		}
		return nil
	},
}

func outputCacheTable(result *workflows.CacheResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)

	header := table.Row{
		text.FgHiCyan.Sprint("COOKBOOK"),
		text.FgHiCyan.Sprint("VERSION"),
		text.FgHiCyan.Sprint("HASH"),
		text.FgHiCyan.Sprint("SYNCED"),
	}
	if cacheListVerify {
		header = append(header, text.FgHiCyan.Sprint("STATUS"))
	}
	t.AppendHeader(header)

	for _, e := range result.Entries {
		row := table.Row{e.Name, e.Version, shortHash(e.ContentHash), e.LastSyncedAt.Local().Format(time.DateTime)}
		if cacheListVerify {
			if e.VerifyErr != nil {
				row = append(row, text.FgRed.Sprint("corrupt"))
			} else {
				row = append(row, text.FgGreen.Sprint("ok"))
			}
		}
		t.AppendRow(row)
	}
	t.Render()
}

// shortHash keeps the algorithm and the first 12 hex digits.
func shortHash(h string) string {
	for i := 0; i < len(h); i++ {
		if h[i] == ':' && len(h) > i+13 {
			return h[:i+13]
		}
	}
	return h
}

type cacheEntryJSON struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	ContentHash string    `json:"hash"`
	SyncedAt    time.Time `json:"synced_at"`
	Path        string    `json:"path"`
	Error       string    `json:"error,omitempty"`
}

func outputCacheJSON(result *workflows.CacheResult) error {
	entries := make([]cacheEntryJSON, 0, len(result.Entries))
	for _, e := range result.Entries {
		entry := cacheEntryJSON{
			Name:        e.Name,
			Version:     e.Version,
			ContentHash: e.ContentHash,
			SyncedAt:    e.LastSyncedAt,
			Path:        e.ContentPath,
		}
		if e.VerifyErr != nil {
			entry.Error = e.VerifyErr.Error()
		}
		entries = append(entries, entry)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entries to JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
