package server

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// CatalogEntry is the server's current record for one cookbook.
type CatalogEntry struct {
	Name    string
	Version string
	URL     string
	// Checksum is the advertised digest of the version's content, in
	// "algorithm:hex" form. Servers that do not advertise one leave it empty.
	Checksum string
}

type catalogVersion struct {
	Version  string `json:"version"`
	URL      string `json:"url"`
	Checksum string `json:"checksum,omitempty"`
}

type catalogCookbook struct {
	URL      string           `json:"url"`
	Versions []catalogVersion `json:"versions"`
}

// catalogResponse is the body of GET /cookbooks, keyed by cookbook name.
type catalogResponse map[string]catalogCookbook

// entries flattens the response to the newest version of every cookbook,
// ordered by name.
func (r catalogResponse) entries() []CatalogEntry {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]CatalogEntry, 0, len(names))
	for _, name := range names {
		latest, ok := newest(r[name].Versions)
		if !ok {
			continue
		}
		out = append(out, CatalogEntry{
			Name:     name,
			Version:  latest.Version,
			URL:      latest.URL,
			Checksum: latest.Checksum,
		})
	}
	return out
}

// newest picks the highest semantic version. Versions that do not parse
// rank below every valid one, in listing order.
func newest(versions []catalogVersion) (catalogVersion, bool) {
	var (
		best       catalogVersion
		bestParsed *semver.Version
		found      bool
	)
	for _, v := range versions {
		parsed, err := semver.NewVersion(v.Version)
		switch {
		case !found:
			best, bestParsed, found = v, nil, true
			if err == nil {
				bestParsed = parsed
			}
		case err == nil && (bestParsed == nil || parsed.GreaterThan(bestParsed)):
			best, bestParsed = v, parsed
		}
	}
	return best, found
}

type registerRequest struct {
	Name      string `json:"name"`
	Validator bool   `json:"validator"`
	CreateKey bool   `json:"create_key"`
}

type registerResponse struct {
	URI        string `json:"uri"`
	PrivateKey string `json:"private_key,omitempty"`
	ChefKey    *struct {
		PrivateKey string `json:"private_key"`
	} `json:"chef_key,omitempty"`
}

func (r registerResponse) key() string {
	if r.ChefKey != nil && r.ChefKey.PrivateKey != "" {
		return r.ChefKey.PrivateKey
	}
	return r.PrivateKey
}
