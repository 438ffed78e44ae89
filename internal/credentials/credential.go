package credentials

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/PolarWolf314/pantry/internal/configs"
	kerrors "github.com/PolarWolf314/pantry/internal/errors"
	logger "github.com/PolarWolf314/pantry/internal/logging"

	"golang.org/x/sync/singleflight"
)

// Credential is a client identity paired with its private key. It is
// immutable once created.
type Credential struct {
	identity string
	key      *rsa.PrivateKey
}

// New builds a Credential.
func New(identity string, key *rsa.PrivateKey) *Credential {
	return &Credential{identity: identity, key: key}
}

// Identity returns the client name the credential signs as.
func (c *Credential) Identity() string {
	return c.identity
}

// PublicKey returns the public half of the credential's key.
func (c *Credential) PublicKey() *rsa.PublicKey {
	return &c.key.PublicKey
}

// Registrar exchanges a validation credential for a newly issued client key.
type Registrar interface {
	// RegisterClient creates client name on the server, signing the request
	// with validator, and returns the issued private key in PEM form.
	RegisterClient(ctx context.Context, validator *Credential, name string) ([]byte, error)
}

// Authenticator loads client credentials, bootstrapping them through a
// Registrar when the client key does not exist yet.
type Authenticator struct {
	Registrar Registrar
	Logger    logger.Logger

	bootstrap singleflight.Group
}

// Authenticate returns the credential for cfg's client identity.
//
// Returns ErrAuth when the key is unreadable or malformed, when no key exists
// and no validation credential is configured, or when the server rejects the
// bootstrap registration.
func (a *Authenticator) Authenticate(ctx context.Context, cfg *configs.ClientConfig) (*Credential, error) {
	if cfg.PrivateKeyPath == "" {
		return nil, fmt.Errorf("%w: %s is not configured", kerrors.ErrAuth, configs.KeyClientKey)
	}

	cred, err := loadCredential(cfg.ClientIdentity, cfg.PrivateKeyPath)
	if err == nil {
		a.Logger.Debugf("Loaded client key %s for %s", cfg.PrivateKeyPath, cfg.ClientIdentity)
		return cred, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if cfg.ValidationIdentity == "" || cfg.ValidationKeyPath == "" {
		return nil, fmt.Errorf("%w: client key %s not found and no validation credential is configured", kerrors.ErrAuth, cfg.PrivateKeyPath)
	}
	if a.Registrar == nil {
		return nil, fmt.Errorf("%w: client key %s not found and bootstrap is unavailable", kerrors.ErrAuth, cfg.PrivateKeyPath)
	}

	v, err, _ := a.bootstrap.Do(cfg.PrivateKeyPath, func() (any, error) {
		return a.register(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Credential), nil
}

func (a *Authenticator) register(ctx context.Context, cfg *configs.ClientConfig) (*Credential, error) {
	// Another caller may have finished a bootstrap between our first look and
	// acquiring the flight.
	if cred, err := loadCredential(cfg.ClientIdentity, cfg.PrivateKeyPath); err == nil {
		return cred, nil
	}

	validatorKey, err := LoadPrivateKey(cfg.ValidationKeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: loading validation key %s: %w", kerrors.ErrAuth, cfg.ValidationKeyPath, err)
	}
	validator := New(cfg.ValidationIdentity, validatorKey)

	a.Logger.Infof("Registering client %s using validator %s", cfg.ClientIdentity, cfg.ValidationIdentity)
	issued, err := a.Registrar.RegisterClient(ctx, validator, cfg.ClientIdentity)
	if err != nil {
		if errors.Is(err, kerrors.ErrNetwork) {
			return nil, fmt.Errorf("registering client %s: %w", cfg.ClientIdentity, err)
		}
		return nil, fmt.Errorf("registering client %s: %w", cfg.ClientIdentity, kerrors.Wrap(kerrors.ErrAuth, err))
	}

	key, err := ParsePrivateKey(issued)
	if err != nil {
		return nil, fmt.Errorf("%w: server issued an unusable key: %w", kerrors.ErrAuth, err)
	}

	if err := WriteKeyFile(cfg.PrivateKeyPath, EncodePrivateKey(key)); err != nil {
		return nil, fmt.Errorf("%w: %w", kerrors.ErrAuth, err)
	}
	a.Logger.Infof("Wrote new client key to %s", cfg.PrivateKeyPath)

	return New(cfg.ClientIdentity, key), nil
}

// loadCredential returns an error satisfying errors.Is(err, os.ErrNotExist)
// when the key file is absent, and an ErrAuth error for every other failure.
func loadCredential(identity, path string) (*Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reading client key %s: %w", kerrors.ErrAuth, path, err)
	}
	key, err := ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing client key %s: %w", kerrors.ErrAuth, path, err)
	}
	return New(identity, key), nil
}
