package reconciler

import (
	"sort"

	"github.com/PolarWolf314/pantry/internal/cache"
	"github.com/PolarWolf314/pantry/internal/server"
)

// Conflict is a local working copy whose version differs from the server's.
// Conflicts are reported but do not stop the cached copy from being synced.
type Conflict struct {
	Name          string
	LocalVersion  string
	ServerVersion string
	Path          string
}

// Plan partitions the catalog for one sync run.
type Plan struct {
	Fetch     []server.CatalogEntry
	Skip      []server.CatalogEntry
	Conflicts []Conflict
	// LocalOnly names cookbooks found in the cookbook paths that the server
	// does not know about.
	LocalOnly []string
}

// NewPlan decides which catalog entries need fetching. Each entry lands in
// exactly one of Fetch or Skip; a name listed twice in the catalog is planned
// once.
func NewPlan(catalog []server.CatalogEntry, store *cache.Store, local map[string]LocalCookbook) Plan {
	var plan Plan
	seen := make(map[string]bool, len(catalog))

	for _, entry := range catalog {
		if seen[entry.Name] {
			continue
		}
		seen[entry.Name] = true

		if store.IsStale(entry.Name, entry.Version, entry.Checksum) {
			plan.Fetch = append(plan.Fetch, entry)
		} else {
			plan.Skip = append(plan.Skip, entry)
		}

		if cb, ok := local[entry.Name]; ok && cb.Version != "" && cb.Version != entry.Version {
			plan.Conflicts = append(plan.Conflicts, Conflict{
				Name:          entry.Name,
				LocalVersion:  cb.Version,
				ServerVersion: entry.Version,
				Path:          cb.Path,
			})
		}
	}

	for name := range local {
		if !seen[name] {
			plan.LocalOnly = append(plan.LocalOnly, name)
		}
	}
	sort.Strings(plan.LocalOnly)

	return plan
}

// Reverify moves skipped entries whose cached content no longer matches its
// recorded hash into Fetch.
func (p *Plan) Reverify(store *cache.Store) {
	kept := p.Skip[:0]
	for _, entry := range p.Skip {
		rec, ok := store.Get(entry.Name)
		if ok && store.Verify(rec) == nil {
			kept = append(kept, entry)
			continue
		}
		p.Fetch = append(p.Fetch, entry)
	}
	p.Skip = kept
}
