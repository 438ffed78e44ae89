package workflows

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/PolarWolf314/pantry/internal/configs"
	"github.com/PolarWolf314/pantry/internal/credentials"
	kerrors "github.com/PolarWolf314/pantry/internal/errors"
	"github.com/PolarWolf314/pantry/internal/reconciler"
	"github.com/PolarWolf314/pantry/internal/server"
)

// AuthOptions configures the auth workflow.
type AuthOptions struct {
	ConfigOptions

	// Timeout bounds each request made during bootstrap.
	Timeout time.Duration

	Verbose bool
	Debug   bool
}

// AuthResult contains the outcome of authenticating.
type AuthResult struct {
	Identity string
	KeyPath  string
	Server   string

	// Bootstrapped is true when the key was issued by the server in this run.
	Bootstrapped bool
}

// Auth loads the client credential, registering the client with the
// validation credential when no client key exists yet.
//
// Returns ErrConfig if the server URL or client key is not configured, and
// ErrAuth if the key cannot be loaded or the server rejects the bootstrap.
func Auth(ctx context.Context, opts AuthOptions) (*AuthResult, error) {
	cfg, err := LoadConfig(opts.ConfigOptions, configs.LoadOptions{})
	if err != nil {
		return nil, err
	}
	if cfg.ServerURL == "" || cfg.PrivateKeyPath == "" {
		return nil, fmt.Errorf("%w: authenticating requires %s and %s", kerrors.ErrConfig, configs.KeyServerURL, configs.KeyClientKey)
	}

	log, closeLog, err := newLogger(cfg, opts.Verbose, opts.Debug)
	if err != nil {
		return nil, err
	}
	defer closeLog()

	_, statErr := os.Stat(cfg.PrivateKeyPath)
	missing := errors.Is(statErr, os.ErrNotExist)

	client := server.NewClient(cfg, server.Options{Timeout: opts.Timeout, Logger: log})
	auth := &credentials.Authenticator{Registrar: client, Logger: log}

	cred, err := reconciler.Authenticate(ctx, cfg, auth)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		Identity:     cred.Identity(),
		KeyPath:      cfg.PrivateKeyPath,
		Server:       cfg.ServerURL,
		Bootstrapped: missing,
	}, nil
}
