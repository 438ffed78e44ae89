package reconciler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/PolarWolf314/pantry/internal/audit"
	"github.com/PolarWolf314/pantry/internal/cache"
	"github.com/PolarWolf314/pantry/internal/configs"
	"github.com/PolarWolf314/pantry/internal/credentials"
	kerrors "github.com/PolarWolf314/pantry/internal/errors"
	logger "github.com/PolarWolf314/pantry/internal/logging"
	"github.com/PolarWolf314/pantry/internal/server"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent fetches when Options.Workers is unset.
const DefaultWorkers = 8

// Source lists and downloads cookbooks. *server.Client implements it.
type Source interface {
	ListCatalog(ctx context.Context, cred *credentials.Credential) ([]server.CatalogEntry, error)
	Fetch(ctx context.Context, cred *credentials.Credential, name, version string) ([]byte, error)
}

// Options configures a sync run. Zero values select the defaults.
type Options struct {
	Workers int
	// Timeout bounds each request made by the default source.
	Timeout time.Duration
	// VerifyCache re-hashes cached content and refetches what no longer matches.
	VerifyCache bool

	Source        Source
	Authenticator *credentials.Authenticator
	Cache         *cache.Store
	Logger        logger.Logger

	// OnPlan is called once the plan is known, before any fetch starts.
	OnPlan func(plan Plan)
	// OnResult is called as each planned fetch completes, from the worker
	// that ran it. err is nil on success.
	OnResult func(entry server.CatalogEntry, err error)
}

func (o Options) withDefaults(cfg *configs.ClientConfig) (Options, error) {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Source == nil {
		o.Source = server.NewClient(cfg, server.Options{Timeout: o.Timeout, Logger: o.Logger})
	}
	if o.Authenticator == nil {
		registrar, _ := o.Source.(credentials.Registrar)
		o.Authenticator = &credentials.Authenticator{Registrar: registrar, Logger: o.Logger}
	}
	if o.Cache == nil {
		store, err := cache.Open(cfg.CachePath)
		if err != nil {
			return o, err
		}
		o.Cache = store
	}
	return o, nil
}

// Authenticate loads the client credential, recording a history entry when
// the credential had to be bootstrapped.
func Authenticate(ctx context.Context, cfg *configs.ClientConfig, auth *credentials.Authenticator) (*credentials.Credential, error) {
	_, statErr := os.Stat(cfg.PrivateKeyPath)
	bootstrapping := cfg.PrivateKeyPath != "" && os.IsNotExist(statErr)

	cred, err := auth.Authenticate(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if bootstrapping {
		audit.Log(cfg.CachePath, audit.Entry{
			Node:      cfg.ClientIdentity,
			RunID:     uuid.NewString(),
			Operation: audit.OpBootstrap,
			Server:    cfg.ServerURL,
		})
	}
	return cred, nil
}

// Sync reconciles the cache with the server catalog.
//
// Returns an error satisfying errors.Is(err, ErrSync) only when the run could
// not start: the configuration is unusable, authentication failed, or the
// catalog could not be listed. Per-cookbook failures are collected in the
// Report.
func Sync(ctx context.Context, cfg *configs.ClientConfig, opts Options) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString()}

	entry := audit.Entry{
		Node:      cfg.ClientIdentity,
		RunID:     report.RunID,
		Operation: audit.OpSync,
		Server:    cfg.ServerURL,
	}
	fail := func(what string, err error) (*Report, error) {
		err = fmt.Errorf("%s: %w", what, kerrors.Wrap(kerrors.ErrSync, err))
		entry.Error = err.Error()
		entry.DurationMS = time.Since(start).Milliseconds()
		audit.Log(cfg.CachePath, entry)
		return nil, err
	}

	if err := cfg.ValidateForSync(); err != nil {
		return fail("invalid configuration", err)
	}
	opts, err := opts.withDefaults(cfg)
	if err != nil {
		return fail("opening cache", err)
	}
	log := opts.Logger

	// Steps before the fetch pool run sequentially and abort the run on error.
	cred, err := Authenticate(ctx, cfg, opts.Authenticator)
	if err != nil {
		return fail("authentication failed", err)
	}

	catalog, err := opts.Source.ListCatalog(ctx, cred)
	if err != nil {
		return fail("could not list the server catalog", err)
	}
	log.Debugf("Server lists %d cookbooks", len(catalog))

	local, err := LocalCookbooks(cfg.CookbookPaths)
	if err != nil {
		log.Warnf("Skipping local cookbook scan: %v", err)
	}

	plan := NewPlan(catalog, opts.Cache, local)
	if opts.VerifyCache {
		plan.Reverify(opts.Cache)
	}
	report.Skipped = len(plan.Skip)
	report.Conflicts = plan.Conflicts
	report.LocalOnly = plan.LocalOnly
	for _, c := range plan.Conflicts {
		log.Warnf("Local copy of %s at %s is %s, server has %s", c.Name, c.Path, c.LocalVersion, c.ServerVersion)
	}
	if opts.OnPlan != nil {
		opts.OnPlan(plan)
	}

	r := &run{opts: opts, cred: cred, report: report}
	r.fetchAll(ctx, plan.Fetch)

	if counter, ok := opts.Source.(interface{ Attempts() int64 }); ok {
		report.Attempts = counter.Attempts()
	}
	report.Duration = time.Since(start)

	entry.Fetched = report.Fetched
	entry.Skipped = report.Skipped
	entry.Failed = report.FailedNames()
	entry.Conflicts = len(report.Conflicts)
	entry.DurationMS = report.Duration.Milliseconds()
	audit.Log(cfg.CachePath, entry)

	return report, nil
}

// run holds the state shared by the fetch workers of one sync.
type run struct {
	opts Options
	cred *credentials.Credential

	mu     sync.Mutex
	report *Report
}

type fetchResult struct {
	data []byte
	err  error
}

func (r *run) fetchAll(ctx context.Context, entries []server.CatalogEntry) {
	if len(entries) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(min(r.opts.Workers, len(entries)))

	for _, entry := range entries {
		entry := entry
		if err := ctx.Err(); err != nil {
			r.record(entry, abandoned(entry, err))
			continue
		}
		g.Go(func() error {
			r.record(entry, r.fetchOne(ctx, entry))
			return nil
		})
	}
	_ = g.Wait()
}

// fetchOne downloads and commits one cookbook. The download runs in its own
// goroutine so a deadline can abandon it even if the source ignores ctx.
func (r *run) fetchOne(ctx context.Context, entry server.CatalogEntry) error {
	done := make(chan fetchResult, 1)
	go func() {
		data, err := r.opts.Source.Fetch(ctx, r.cred, entry.Name, entry.Version)
		done <- fetchResult{data: data, err: err}
	}()

	var res fetchResult
	select {
	case <-ctx.Done():
		return abandoned(entry, ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return res.err
	}

	if err := verifyChecksum(entry, res.data); err != nil {
		return err
	}

	// Results that arrive after the deadline are discarded, never committed.
	if _, err := r.opts.Cache.Commit(ctx, entry.Name, entry.Version, res.data); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return abandoned(entry, ctxErr)
		}
		return err
	}
	return nil
}

func (r *run) record(entry server.CatalogEntry, err error) {
	r.mu.Lock()
	if err == nil {
		r.report.Fetched++
		r.opts.Logger.Debugf("Fetched %s %s", entry.Name, entry.Version)
	} else {
		r.report.Failed = append(r.report.Failed, Failure{Name: entry.Name, Version: entry.Version, Err: err})
		r.opts.Logger.Debugf("Failed to fetch %s %s: %v", entry.Name, entry.Version, err)
	}
	r.mu.Unlock()

	if r.opts.OnResult != nil {
		r.opts.OnResult(entry, err)
	}
}

func verifyChecksum(entry server.CatalogEntry, data []byte) error {
	if entry.Checksum == "" {
		return nil
	}
	want, err := digest.Parse(entry.Checksum)
	if err != nil {
		return fmt.Errorf("%w: %s %s has an invalid checksum %q: %w", kerrors.ErrIntegrity, entry.Name, entry.Version, entry.Checksum, err)
	}
	if got := want.Algorithm().FromBytes(data); got != want {
		return fmt.Errorf("%w: %s %s downloaded as %s, server advertised %s", kerrors.ErrIntegrity, entry.Name, entry.Version, got, want)
	}
	return nil
}

func abandoned(entry server.CatalogEntry, err error) error {
	if errors.Is(err, kerrors.ErrNetwork) {
		return err
	}
	return fmt.Errorf("%w: %s %s abandoned: %w", kerrors.ErrNetwork, entry.Name, entry.Version, err)
}
