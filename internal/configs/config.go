package configs

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	kerrors "github.com/PolarWolf314/pantry/internal/errors"
	logger "github.com/PolarWolf314/pantry/internal/logging"
	"github.com/PolarWolf314/pantry/internal/utils"
)

// VaultMode selects how encrypted data bags are distributed to clients.
type VaultMode string

const (
	VaultModeClient VaultMode = "client"
	VaultModeSolo   VaultMode = "solo"
)

// ParseVaultMode validates a vault_mode value.
func ParseVaultMode(s string) (VaultMode, error) {
	switch VaultMode(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ":"))) {
	case VaultModeClient, "":
		return VaultModeClient, nil
	case VaultModeSolo:
		return VaultModeSolo, nil
	default:
		return "", fmt.Errorf("%w: unknown vault_mode %q (expected client or solo)", kerrors.ErrConfig, s)
	}
}

// Option keys recognized by Load.
const (
	KeyLogLevel             = "log_level"
	KeyLogLocation          = "log_location"
	KeyNodeName             = "node_name"
	KeyClientKey            = "client_key"
	KeyValidationClientName = "validation_client_name"
	KeyValidationKey        = "validation_key"
	KeyServerURL            = "chef_server_url"
	KeyServerRoot           = "chef_server_root"
	KeyCachePath            = "cache_path"
	KeySyntaxCheckCachePath = "syntax_check_cache_path"
	KeyCookbookPath         = "cookbook_path"
	KeyEditor               = "editor"
	KeyVaultMode            = "vault_mode"
)

// knifeKeys are options that live in the knife[...] namespace of a knife.rb.
var knifeKeys = map[string]bool{
	KeyEditor:    true,
	KeyVaultMode: true,
}

var topLevelKeys = map[string]bool{
	KeyLogLevel:             true,
	KeyLogLocation:          true,
	KeyNodeName:             true,
	KeyClientKey:            true,
	KeyValidationClientName: true,
	KeyValidationKey:        true,
	KeyServerURL:            true,
	KeyServerRoot:           true,
	KeyCachePath:            true,
	KeySyntaxCheckCachePath: true,
	KeyCookbookPath:         true,
}

// DefaultCacheDir is the cache directory used when neither cache option is set,
// relative to the configuration file.
const DefaultCacheDir = "syntax_check_cache"

// ClientConfig is the resolved client configuration. It is built once by Load
// and must not be modified afterwards.
type ClientConfig struct {
	SourcePath string

	ServerURL    string
	ServerRoot   string
	Organization string

	ClientIdentity     string
	PrivateKeyPath     string
	ValidationIdentity string
	ValidationKeyPath  string

	CachePath     string
	CookbookPaths []string

	VaultMode  VaultMode
	EditorPath string

	LogLevel    logger.Level
	LogLocation string

	// Extensions holds unrecognized keys verbatim. Core logic never reads it.
	Extensions map[string]string
}

// LoadOptions adjusts validation performed by Load.
type LoadOptions struct {
	// RequireSync enforces the options a server sync cannot run without.
	RequireSync bool
}

// OrganizationURL returns the base of every organization-scoped endpoint.
func (c *ClientConfig) OrganizationURL() string {
	return c.ServerRoot + "/organizations/" + url.PathEscape(c.Organization)
}

// CatalogURL returns the endpoint listing the organization's cookbooks.
func (c *ClientConfig) CatalogURL() string {
	return c.OrganizationURL() + "/cookbooks"
}

// CookbookURL returns the endpoint for one cookbook version.
func (c *ClientConfig) CookbookURL(name, version string) string {
	return c.CatalogURL() + "/" + url.PathEscape(name) + "/" + url.PathEscape(version)
}

// ClientsURL returns the endpoint used for bootstrap registration.
func (c *ClientConfig) ClientsURL() string {
	return c.OrganizationURL() + "/clients"
}

// ExtensionKeys returns the unrecognized keys in sorted order.
func (c *ClientConfig) ExtensionKeys() []string {
	keys := make([]string, 0, len(c.Extensions))
	for k := range c.Extensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load reads and validates the configuration file at path.
func Load(path string, opts LoadOptions) (*ClientConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %w", kerrors.ErrConfig, path, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", kerrors.ErrConfig, absPath, err)
	}

	baseDir := filepath.Dir(absPath)

	var decls *Declarations
	if strings.EqualFold(filepath.Ext(absPath), ".toml") {
		decls, err = DecodeTOML(data)
	} else {
		decls, err = DecodeKnife(data, absPath)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", kerrors.ErrConfig, absPath, err)
	}

	cfg, err := Build(decls, baseDir, opts)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath
	return cfg, nil
}

var organizationPath = regexp.MustCompile(`/organizations/([^/]+)/?$`)

// Build turns parsed declarations into a validated ClientConfig. Relative paths
// are anchored at baseDir.
func Build(decls *Declarations, baseDir string, opts LoadOptions) (*ClientConfig, error) {
	cfg := &ClientConfig{
		Extensions: make(map[string]string),
	}

	for _, d := range decls.Entries() {
		if !d.recognized() {
			cfg.Extensions[d.qualifiedKey()] = d.Raw
		}
	}

	resolve := func(key string) (string, error) {
		p, err := utils.ResolvePath(baseDir, decls.Scalar(key))
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", kerrors.ErrConfig, key, err)
		}
		return p, nil
	}

	var err error
	if cfg.PrivateKeyPath, err = resolve(KeyClientKey); err != nil {
		return nil, err
	}
	if cfg.ValidationKeyPath, err = resolve(KeyValidationKey); err != nil {
		return nil, err
	}

	cacheKey := KeyCachePath
	if decls.Scalar(KeyCachePath) == "" {
		cacheKey = KeySyntaxCheckCachePath
	}
	if cfg.CachePath, err = resolve(cacheKey); err != nil {
		return nil, err
	}
	if cfg.CachePath == "" {
		cfg.CachePath = filepath.Join(baseDir, DefaultCacheDir)
	}

	for _, p := range decls.List(KeyCookbookPath) {
		resolved, err := utils.ResolvePath(baseDir, p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", kerrors.ErrConfig, KeyCookbookPath, err)
		}
		if resolved != "" {
			cfg.CookbookPaths = append(cfg.CookbookPaths, resolved)
		}
	}

	if editor := decls.Scalar(KeyEditor); editor != "" {
		// Editors are often given as a bare command name, so only anchor real paths.
		if strings.ContainsAny(editor, `/\`) {
			if cfg.EditorPath, err = resolve(KeyEditor); err != nil {
				return nil, err
			}
		} else {
			cfg.EditorPath = editor
		}
	}

	cfg.ClientIdentity = decls.Scalar(KeyNodeName)
	if cfg.ClientIdentity == "" {
		cfg.ClientIdentity = utils.DefaultNodeName()
	}
	cfg.ValidationIdentity = decls.Scalar(KeyValidationClientName)

	if cfg.VaultMode, err = ParseVaultMode(decls.Scalar(KeyVaultMode)); err != nil {
		return nil, err
	}

	if cfg.LogLevel, err = logger.ParseLevel(decls.Scalar(KeyLogLevel)); err != nil {
		return nil, fmt.Errorf("%w: %w", kerrors.ErrConfig, err)
	}
	cfg.LogLocation = decls.Scalar(KeyLogLocation)
	if cfg.LogLocation == "" {
		cfg.LogLocation = "STDOUT"
	} else if l := strings.ToUpper(cfg.LogLocation); l != "STDOUT" && l != "STDERR" {
		if cfg.LogLocation, err = resolve(KeyLogLocation); err != nil {
			return nil, err
		}
	}

	if err := cfg.setServer(decls.Scalar(KeyServerURL), decls.Scalar(KeyServerRoot)); err != nil {
		return nil, err
	}

	if opts.RequireSync {
		if err := cfg.ValidateForSync(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *ClientConfig) setServer(serverURL, serverRoot string) error {
	if serverURL == "" {
		if serverRoot != "" {
			return fmt.Errorf("%w: %s is set but %s is empty", kerrors.ErrConfig, KeyServerRoot, KeyServerURL)
		}
		return nil
	}

	u, err := parseServerURL(KeyServerURL, serverURL)
	if err != nil {
		return err
	}
	c.ServerURL = strings.TrimRight(u.String(), "/")

	if m := organizationPath.FindStringSubmatch(u.Path); m != nil {
		c.Organization = m[1]
	}

	if serverRoot == "" {
		root := *u
		root.Path = organizationPath.ReplaceAllString(u.Path, "")
		root.RawPath = ""
		c.ServerRoot = strings.TrimRight(root.String(), "/")
		return nil
	}

	r, err := parseServerURL(KeyServerRoot, serverRoot)
	if err != nil {
		return err
	}
	c.ServerRoot = strings.TrimRight(r.String(), "/")
	return nil
}

func parseServerURL(key, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q is not a valid URL: %w", kerrors.ErrConfig, key, raw, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: %s %q must be an absolute URL", kerrors.ErrConfig, key, raw)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("%w: %s %q must use http or https", kerrors.ErrConfig, key, raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("%w: %s %q must not carry a query or fragment", kerrors.ErrConfig, key, raw)
	}
	return u, nil
}

// ValidateForSync checks the options a sync run depends on.
func (c *ClientConfig) ValidateForSync() error {
	var missing []string
	if c.ServerURL == "" {
		missing = append(missing, KeyServerURL)
	}
	if c.PrivateKeyPath == "" {
		missing = append(missing, KeyClientKey)
	}
	if len(c.CookbookPaths) == 0 {
		missing = append(missing, KeyCookbookPath)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: sync requires %s", kerrors.ErrConfig, strings.Join(missing, ", "))
	}
	if c.Organization == "" {
		return fmt.Errorf("%w: %s %q must end in /organizations/<name>", kerrors.ErrConfig, KeyServerURL, c.ServerURL)
	}
	return nil
}
