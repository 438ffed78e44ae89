package reconciler

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/PolarWolf314/pantry/internal/configs"

	"github.com/bmatcuk/doublestar/v4"
)

const metadataPattern = "*/metadata.{json,rb}"

// LocalCookbook is a working copy found in one of the cookbook paths.
type LocalCookbook struct {
	Name string
	// Version is empty when the metadata could not be read.
	Version string
	Path    string
}

// LocalCookbooks enumerates the cookbooks under paths. When a name appears in
// more than one path the first path wins, matching the lookup order.
func LocalCookbooks(paths []string) (map[string]LocalCookbook, error) {
	found := make(map[string]LocalCookbook)

	for _, root := range paths {
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}

		fsys := os.DirFS(root)
		matches, err := doublestar.Glob(fsys, metadataPattern)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cookbook path %s: %w", root, err)
		}
		// metadata.json sorts before metadata.rb and is preferred when both exist.
		sort.Strings(matches)

		for _, match := range matches {
			dir := path.Dir(match)
			cb, err := readMetadata(fsys, match)
			if err != nil {
				cb = LocalCookbook{}
			}
			if cb.Name == "" {
				cb.Name = dir
			}
			cb.Path = filepath.Join(root, filepath.FromSlash(dir))

			if _, seen := found[cb.Name]; seen {
				continue
			}
			found[cb.Name] = cb
		}
	}
	return found, nil
}

func readMetadata(fsys fs.FS, name string) (LocalCookbook, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return LocalCookbook{}, err
	}

	if path.Ext(name) == ".json" {
		var meta struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		}
		if err := json.Unmarshal(data, &meta); err != nil {
			return LocalCookbook{}, err
		}
		return LocalCookbook{Name: meta.Name, Version: meta.Version}, nil
	}

	// metadata.rb uses the same declaration style as knife.rb.
	decls, err := configs.DecodeKnife(data, name)
	if err != nil {
		return LocalCookbook{}, err
	}
	return LocalCookbook{Name: decls.Scalar("name"), Version: decls.Scalar("version")}, nil
}
