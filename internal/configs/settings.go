package configs

import (
	"os"
	"path/filepath"

	"github.com/PolarWolf314/pantry/internal/utils"
)

// EnvConfigPath names the environment variable that overrides config discovery.
const EnvConfigPath = "PANTRY_CONFIG"

// DefaultConfigPath picks the configuration file to use when none is given on
// the command line: $PANTRY_CONFIG, then the nearest .chef directory above the
// working directory, then ~/.chef/knife.rb.
func DefaultConfigPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return utils.ExpandHome(p)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	found, err := utils.FindKnifeConfig(wd)
	if err != nil {
		return "", err
	}
	if found != "" {
		return found, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".chef", "knife.rb"), nil
}
