package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// KnifeConfigCandidates are the file names looked up inside a .chef directory, in order.
var KnifeConfigCandidates = []string{"knife.rb", "config.rb", "knife.toml"}

// FindKnifeConfig traverses up from dir looking for a .chef directory holding a
// knife configuration. Returns an empty string when none is found.
func FindKnifeConfig(dir string) (string, error) {
	currentDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	for {
		for _, name := range KnifeConfigCandidates {
			candidate := filepath.Join(currentDir, ".chef", name)
			info, err := os.Stat(candidate)
			if err == nil {
				if !info.IsDir() {
					return candidate, nil
				}
			} else if !os.IsNotExist(err) {
				return "", fmt.Errorf("error checking for %s: %w", candidate, err)
			}
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return "", nil
		}
		currentDir = parentDir
	}
}

// ExpandHome replaces a leading ~ with the current user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// ResolvePath expands ~ and makes path absolute relative to base.
// Drive-letter paths (D:/repo) are absolute on Windows; elsewhere they are
// rooted at / so they never depend on the working directory.
func ResolvePath(base, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	expanded, err := ExpandHome(path)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(expanded) {
		return filepath.Clean(expanded), nil
	}
	if hasDriveLetter(expanded) {
		return filepath.Join(string(filepath.Separator), expanded), nil
	}
	return filepath.Clean(filepath.Join(base, expanded)), nil
}

func hasDriveLetter(path string) bool {
	return len(path) >= 3 && path[1] == ':' && (path[2] == '/' || path[2] == '\\') &&
		((path[0] >= 'a' && path[0] <= 'z') || (path[0] >= 'A' && path[0] <= 'Z'))
}
