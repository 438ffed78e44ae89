package workflows

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/PolarWolf314/pantry/internal/configs"
	kerrors "github.com/PolarWolf314/pantry/internal/errors"
	logger "github.com/PolarWolf314/pantry/internal/logging"
	"github.com/PolarWolf314/pantry/internal/utils"
)

// ConfigOptions selects the configuration file shared by every workflow.
type ConfigOptions struct {
	// ConfigPath is the knife configuration to load. Empty selects the default
	// lookup: $PANTRY_CONFIG, the nearest .chef directory, ~/.chef/knife.rb.
	ConfigPath string

	// VaultMode overrides vault_mode from the file when set.
	VaultMode configs.VaultMode
}

// LoadConfig resolves and loads the configuration.
func LoadConfig(opts ConfigOptions, load configs.LoadOptions) (*configs.ClientConfig, error) {
	path := opts.ConfigPath
	if path == "" {
		var err error
		path, err = configs.DefaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("%w: locating configuration: %w", kerrors.ErrConfig, err)
		}
	} else {
		expanded, err := utils.ExpandHome(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", kerrors.ErrConfig, err)
		}
		path = expanded
	}

	cfg, err := configs.Load(path, load)
	if err != nil {
		return nil, err
	}
	if opts.VaultMode != "" {
		overridden := *cfg
		overridden.VaultMode = opts.VaultMode
		cfg = &overridden
	}
	return cfg, nil
}

// ShowConfig loads the configuration for display.
func ShowConfig(ctx context.Context, opts ConfigOptions) (*configs.ClientConfig, error) {
	return LoadConfig(opts, configs.LoadOptions{})
}

// newLogger builds a logger honouring the configured log_level and
// log_location. The returned function closes a file sink.
func newLogger(cfg *configs.ClientConfig, verbose, debug bool) (logger.Logger, func() error, error) {
	log := logger.FromLevel(cfg.LogLevel, verbose, debug)

	sink, closeSink, err := logger.OpenSink(cfg.LogLocation)
	if err != nil {
		return log, nil, fmt.Errorf("%w: %w", kerrors.ErrConfig, err)
	}
	log.Out = sink
	if !isStandardStream(sink) {
		log.Err = sink
	}
	return log, closeSink, nil
}

func isStandardStream(w io.Writer) bool {
	return w == os.Stdout || w == os.Stderr
}
