package workflows

import (
	"context"

	"github.com/PolarWolf314/pantry/internal/cache"
	"github.com/PolarWolf314/pantry/internal/configs"
)

// CacheOptions configures the cache list workflow.
type CacheOptions struct {
	ConfigOptions

	// Verify re-hashes the stored content of every record.
	Verify bool
}

// CacheEntry is one cached cookbook.
type CacheEntry struct {
	cache.Record
	ContentPath string

	// VerifyErr is set when Verify was requested and the content did not
	// match its recorded hash.
	VerifyErr error
}

// CacheResult lists the cache contents.
type CacheResult struct {
	Dir     string
	Entries []CacheEntry
	// Corrupt counts entries whose verification failed.
	Corrupt int
}

// CacheList returns the records in the integrity cache.
func CacheList(ctx context.Context, opts CacheOptions) (*CacheResult, error) {
	cfg, err := LoadConfig(opts.ConfigOptions, configs.LoadOptions{})
	if err != nil {
		return nil, err
	}

	store, err := cache.Open(cfg.CachePath)
	if err != nil {
		return nil, err
	}

	result := &CacheResult{Dir: store.Dir()}
	for _, rec := range store.Records() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entry := CacheEntry{Record: rec, ContentPath: store.ContentPath(rec.Name, rec.Version)}
		if opts.Verify {
			entry.VerifyErr = store.Verify(rec)
			if entry.VerifyErr != nil {
				result.Corrupt++
			}
		}
		result.Entries = append(result.Entries, entry)
	}
	return result, nil
}
