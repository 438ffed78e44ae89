package workflows

import (
	"context"
	"time"

	"github.com/PolarWolf314/pantry/internal/configs"
	"github.com/PolarWolf314/pantry/internal/reconciler"
	"github.com/PolarWolf314/pantry/internal/server"
)

// SyncOptions configures the sync workflow.
type SyncOptions struct {
	ConfigOptions

	// Timeout bounds each request to the server. 0 selects the default.
	Timeout time.Duration

	// Deadline bounds the whole run. 0 means no deadline.
	Deadline time.Duration

	// Workers bounds concurrent fetches. 0 selects the default.
	Workers int

	// Verify re-hashes cached content and refetches corrupt cookbooks.
	Verify bool

	Verbose bool
	Debug   bool

	// OnPlan and OnResult report progress to the caller.
	OnPlan   func(plan reconciler.Plan)
	OnResult func(entry server.CatalogEntry, err error)
}

// SyncResult contains the outcome of a sync.
type SyncResult struct {
	Config *configs.ClientConfig
	Report *reconciler.Report
}

// Sync loads the configuration and reconciles the cache with the server.
//
// Returns ErrConfig if the configuration cannot be used for a sync, and an
// ErrSync error when authentication or listing the catalog fails. Failures of
// individual cookbooks are in the report, not the error.
func Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	cfg, err := LoadConfig(opts.ConfigOptions, configs.LoadOptions{RequireSync: true})
	if err != nil {
		return nil, err
	}

	log, closeLog, err := newLogger(cfg, opts.Verbose, opts.Debug)
	if err != nil {
		return nil, err
	}
	defer closeLog()

	log.Infof("Syncing %s as %s", cfg.ServerURL, cfg.ClientIdentity)
	log.Debugf("Configuration loaded from %s", cfg.SourcePath)
	log.Debugf("Cache path: %s", cfg.CachePath)

	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	report, err := reconciler.Sync(ctx, cfg, reconciler.Options{
		Workers:     opts.Workers,
		Timeout:     opts.Timeout,
		VerifyCache: opts.Verify,
		Logger:      log,
		OnPlan:      opts.OnPlan,
		OnResult:    opts.OnResult,
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Fetched %d, skipped %d, failed %d in %s", report.Fetched, report.Skipped, len(report.Failed), report.Duration.Round(time.Millisecond))
	return &SyncResult{Config: cfg, Report: report}, nil
}
