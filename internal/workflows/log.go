package workflows

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/PolarWolf314/pantry/internal/audit"
	"github.com/PolarWolf314/pantry/internal/configs"
	kerrors "github.com/PolarWolf314/pantry/internal/errors"
)

// LogOptions selects and orders history entries.
type LogOptions struct {
	ConfigOptions

	// Limit caps the number of entries returned; 0 returns all of them.
	Limit int

	// Reverse lists the newest entry first.
	Reverse bool

	// Node keeps entries recorded by this client identity (case-insensitive).
	Node string

	// Operations is a comma-separated list of operations to keep.
	Operations string

	// FailedOnly keeps runs that had at least one failure or did not complete.
	FailedOnly bool

	// Since and Until bound entries by day, inclusive, as YYYY-MM-DD.
	Since string
	Until string
}

// LogResult holds the entries left after filtering.
type LogResult struct {
	Entries []audit.Entry

	// TotalEntriesBeforeFilter counts every entry in the history.
	TotalEntriesBeforeFilter int
}

const dayLayout = "2006-01-02"

// Log reads the sync history from the cache directory and filters it.
//
// Returns ErrNoHistory if nothing has been recorded yet and
// ErrInvalidDateFormat if Since or Until is not a YYYY-MM-DD date.
func Log(ctx context.Context, opts LogOptions) (*LogResult, error) {
	cfg, err := LoadConfig(opts.ConfigOptions, configs.LoadOptions{})
	if err != nil {
		return nil, err
	}

	keep, err := logFilters(opts)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(audit.LogPath(cfg.CachePath)); errors.Is(err, fs.ErrNotExist) {
		return nil, kerrors.ErrNoHistory
	}
	entries, err := audit.ReadEntries(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("reading sync history: %w", err)
	}

	matched := make([]audit.Entry, 0, len(entries))
	for _, e := range entries {
		if matchesAll(e, keep) {
			matched = append(matched, e)
		}
	}

	// The newest entries survive the limit in either order.
	matched = audit.Last(matched, opts.Limit)
	if opts.Reverse {
		slices.Reverse(matched)
	}

	return &LogResult{
		Entries:                  matched,
		TotalEntriesBeforeFilter: len(entries),
	}, nil
}

type entryFilter func(audit.Entry) bool

func matchesAll(e audit.Entry, filters []entryFilter) bool {
	for _, f := range filters {
		if !f(e) {
			return false
		}
	}
	return true
}

// logFilters turns the options into predicates, validating the dates before
// any history is read.
func logFilters(opts LogOptions) ([]entryFilter, error) {
	var filters []entryFilter

	if opts.Node != "" {
		filters = append(filters, func(e audit.Entry) bool {
			return strings.EqualFold(e.Node, opts.Node)
		})
	}

	if opts.Operations != "" {
		wanted := make(map[string]bool)
		for _, op := range strings.Split(opts.Operations, ",") {
			wanted[strings.ToLower(strings.TrimSpace(op))] = true
		}
		filters = append(filters, func(e audit.Entry) bool {
			return wanted[strings.ToLower(e.Operation)]
		})
	}

	if opts.FailedOnly {
		filters = append(filters, func(e audit.Entry) bool {
			return len(e.Failed) > 0 || e.Error != ""
		})
	}

	if opts.Since != "" {
		since, err := time.Parse(dayLayout, opts.Since)
		if err != nil {
			return nil, fmt.Errorf("%w: --since expects YYYY-MM-DD, got %q", kerrors.ErrInvalidDateFormat, opts.Since)
		}
		filters = append(filters, func(e audit.Entry) bool {
			t := e.Time()
			return !t.IsZero() && !t.Before(since)
		})
	}

	if opts.Until != "" {
		until, err := time.Parse(dayLayout, opts.Until)
		if err != nil {
			return nil, fmt.Errorf("%w: --until expects YYYY-MM-DD, got %q", kerrors.ErrInvalidDateFormat, opts.Until)
		}
		end := until.AddDate(0, 0, 1)
		filters = append(filters, func(e audit.Entry) bool {
			t := e.Time()
			return !t.IsZero() && t.Before(end)
		})
	}

	return filters, nil
}

// FormatDateTime renders an entry timestamp as "YYYY-MM-DD HH:MM:SS" in UTC.
// Unparseable timestamps are returned unchanged.
func FormatDateTime(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.UTC().Format(time.DateTime)
}

// FormatDetails summarises a history entry on one line.
func FormatDetails(e audit.Entry) string {
	switch e.Operation {
	case audit.OpSync:
		if e.Error != "" {
			return "error: " + e.Error
		}
		details := fmt.Sprintf("%d fetched, %d skipped, %d failed", e.Fetched, e.Skipped, len(e.Failed))
		if len(e.Failed) > 0 && len(e.Failed) <= 3 {
			details += " (" + strings.Join(e.Failed, ", ") + ")"
		}
		if e.Conflicts > 0 {
			details += fmt.Sprintf(", %d conflicts", e.Conflicts)
		}
		return details
	case audit.OpBootstrap:
		return "registered with " + e.Server
	default:
		return ""
	}
}
