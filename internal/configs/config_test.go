package configs

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	kerrors "github.com/PolarWolf314/pantry/internal/errors"
	logger "github.com/PolarWolf314/pantry/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleKnife = `log_level                :info
log_location             STDOUT
node_name                'your_user'
client_key               'your_user.pem'
validation_client_name   'chef-validator'
validation_key           '~/.chef/chef-validator.pem'
chef_server_url          'https://your.chef.server.com:443/organizations/your_org'
chef_server_root         'https://your.chef.server.com:443'
syntax_check_cache_path  'syntax_check_cache'
knife[:editor] = 'C:/Windows/System32/notepad.exe'
current_dir = File.dirname(__FILE__)
cookbook_path [
  'D:/ProjectsGit/your-chef-repo/cookbooks'
]
knife[:vault_mode] = 'client'
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadSampleKnifeConfig(t *testing.T) {
	path := writeConfig(t, "knife.rb", sampleKnife)
	dir := filepath.Dir(path)
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg, err := Load(path, LoadOptions{RequireSync: true})
	require.NoError(t, err)

	assert.Equal(t, path, cfg.SourcePath)
	assert.Equal(t, "your_user", cfg.ClientIdentity)
	assert.Equal(t, filepath.Join(dir, "your_user.pem"), cfg.PrivateKeyPath)
	assert.Equal(t, "chef-validator", cfg.ValidationIdentity)
	assert.Equal(t, filepath.Join(home, ".chef", "chef-validator.pem"), cfg.ValidationKeyPath)
	assert.Equal(t, "https://your.chef.server.com:443/organizations/your_org", cfg.ServerURL)
	assert.Equal(t, "https://your.chef.server.com:443", cfg.ServerRoot)
	assert.Equal(t, "your_org", cfg.Organization)
	assert.Equal(t, filepath.Join(dir, "syntax_check_cache"), cfg.CachePath)
	assert.Equal(t, []string{drivePath("D:/ProjectsGit/your-chef-repo/cookbooks")}, cfg.CookbookPaths)
	assert.Equal(t, drivePath("C:/Windows/System32/notepad.exe"), cfg.EditorPath)
	for _, p := range cfg.CookbookPaths {
		assert.True(t, filepath.IsAbs(p))
	}
	assert.Equal(t, VaultModeClient, cfg.VaultMode)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "STDOUT", cfg.LogLocation)
	assert.Empty(t, cfg.Extensions)
}

// drivePath is where a drive-letter path from a Windows workstation lands on
// this platform.
func drivePath(p string) string {
	if runtime.GOOS == "windows" {
		return filepath.Clean(p)
	}
	return filepath.Join("/", p)
}

func TestEndpoints(t *testing.T) {
	path := writeConfig(t, "knife.rb", sampleKnife)
	cfg, err := Load(path, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "https://your.chef.server.com:443/organizations/your_org/cookbooks", cfg.CatalogURL())
	assert.Equal(t, "https://your.chef.server.com:443/organizations/your_org/cookbooks/apache2/1.2.0", cfg.CookbookURL("apache2", "1.2.0"))
	assert.Equal(t, "https://your.chef.server.com:443/organizations/your_org/clients", cfg.ClientsURL())
}

func TestEndpointsAreOrganizationScoped(t *testing.T) {
	path := writeConfig(t, "knife.rb", `chef_server_url 'https://chef.example.com'
client_key 'me.pem'
cookbook_path ['cookbooks']
`)
	cfg, err := Load(path, LoadOptions{})
	require.NoError(t, err)
	assert.Empty(t, cfg.Organization)

	err = cfg.ValidateForSync()
	require.Error(t, err)
	assert.ErrorIs(t, err, kerrors.ErrConfig)
	assert.Contains(t, err.Error(), "/organizations/")

	scoped := &ClientConfig{
		ServerURL:    "https://chef.example.com/organizations/acme",
		ServerRoot:   "https://chef.example.com",
		Organization: "acme",
	}
	assert.Equal(t, "https://chef.example.com/organizations/acme/cookbooks", scoped.CatalogURL())
	assert.Equal(t, "https://chef.example.com/organizations/acme/clients", scoped.ClientsURL())
}

func TestLoadDerivesServerRoot(t *testing.T) {
	path := writeConfig(t, "knife.rb", `chef_server_url 'https://chef.example.com/organizations/acme/'
client_key 'me.pem'
cookbook_path ['cookbooks']
`)
	cfg, err := Load(path, LoadOptions{RequireSync: true})
	require.NoError(t, err)

	assert.Equal(t, "https://chef.example.com/organizations/acme", cfg.ServerURL)
	assert.Equal(t, "https://chef.example.com", cfg.ServerRoot)
	assert.Equal(t, "acme", cfg.Organization)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "knife.rb", "")
	cfg, err := Load(path, LoadOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.ClientIdentity)
	assert.Equal(t, filepath.Join(filepath.Dir(path), DefaultCacheDir), cfg.CachePath)
	assert.Equal(t, VaultModeClient, cfg.VaultMode)
	assert.Equal(t, "STDOUT", cfg.LogLocation)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
}

func TestCachePathPreferredOverLegacyKey(t *testing.T) {
	path := writeConfig(t, "knife.rb", `syntax_check_cache_path 'legacy'
cache_path '/var/cache/pantry'
`)
	cfg, err := Load(path, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/var/cache/pantry"), cfg.CachePath)
}

func TestUnknownKeysArePreserved(t *testing.T) {
	path := writeConfig(t, "knife.rb", `node_name 'me'
ssl_verify_mode :verify_none
knife[:ssh_user] = 'ubuntu'
knife[:supported_os] = %w(linux)
`)
	cfg, err := Load(path, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"ssl_verify_mode":    ":verify_none",
		"knife.ssh_user":     "'ubuntu'",
		"knife.supported_os": "%w(linux)",
	}, cfg.Extensions)
	assert.Equal(t, []string{"knife.ssh_user", "knife.supported_os", "ssl_verify_mode"}, cfg.ExtensionKeys())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		opts    LoadOptions
	}{
		{"RelativeServerURL", "chef_server_url 'chef.example.com/organizations/x'", LoadOptions{}},
		{"UnsupportedScheme", "chef_server_url 'ftp://chef.example.com'", LoadOptions{}},
		{"MalformedServerURL", "chef_server_url 'https://chef example.com/%zz'", LoadOptions{}},
		{"RootWithoutURL", "chef_server_root 'https://chef.example.com'", LoadOptions{}},
		{"BadVaultMode", "knife[:vault_mode] = 'shared'", LoadOptions{}},
		{"BadLogLevel", "log_level :chatty", LoadOptions{}},
		{"RecognizedKeyUnevaluated", "client_key Chef::Config.platform_specific_path('x')", LoadOptions{}},
		{"UnterminatedString", "node_name 'oops", LoadOptions{}},
		{"EmptyCookbookPathForSync", "chef_server_url 'https://chef.example.com/organizations/x'\nclient_key 'a.pem'\ncookbook_path []", LoadOptions{RequireSync: true}},
		{"MissingServerForSync", "client_key 'a.pem'\ncookbook_path ['c']", LoadOptions{RequireSync: true}},
		{"MissingKeyForSync", "chef_server_url 'https://chef.example.com/organizations/x'\ncookbook_path ['c']", LoadOptions{RequireSync: true}},
		{"ServerURLWithoutOrganizationForSync", "chef_server_url 'https://chef.example.com'\nclient_key 'a.pem'\ncookbook_path ['c']", LoadOptions{RequireSync: true}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, "knife.rb", tc.content)
			_, err := Load(path, tc.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, kerrors.ErrConfig)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.rb"), LoadOptions{})
	assert.ErrorIs(t, err, kerrors.ErrConfig)
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "knife.toml", `log_level = "debug"
node_name = "builder"
client_key = "keys/builder.pem"
chef_server_url = "https://chef.example.com/organizations/acme"
cookbook_path = ["cookbooks", "/srv/site-cookbooks"]
region = "eu-west-1"

[knife]
vault_mode = "solo"
editor = "vim"
`)
	dir := filepath.Dir(path)

	cfg, err := Load(path, LoadOptions{RequireSync: true})
	require.NoError(t, err)

	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "builder", cfg.ClientIdentity)
	assert.Equal(t, filepath.Join(dir, "keys", "builder.pem"), cfg.PrivateKeyPath)
	assert.Equal(t, []string{filepath.Join(dir, "cookbooks"), filepath.Clean("/srv/site-cookbooks")}, cfg.CookbookPaths)
	assert.Equal(t, VaultModeSolo, cfg.VaultMode)
	assert.Equal(t, "vim", cfg.EditorPath)
	assert.Equal(t, `"eu-west-1"`, cfg.Extensions["region"])
}

func TestEncodeTOMLRoundTrip(t *testing.T) {
	path := writeConfig(t, "knife.rb", sampleKnife)
	cfg, err := Load(path, LoadOptions{})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "knife.toml")
	f, err := os.Create(out)
	require.NoError(t, err)
	require.NoError(t, EncodeTOML(f, cfg))
	require.NoError(t, f.Close())

	reloaded, err := Load(out, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, cfg.ServerURL, reloaded.ServerURL)
	assert.Equal(t, cfg.ServerRoot, reloaded.ServerRoot)
	assert.Equal(t, cfg.PrivateKeyPath, reloaded.PrivateKeyPath)
	assert.Equal(t, cfg.ValidationKeyPath, reloaded.ValidationKeyPath)
	assert.Equal(t, cfg.CachePath, reloaded.CachePath)
	assert.Equal(t, cfg.CookbookPaths, reloaded.CookbookPaths)
	assert.Equal(t, cfg.VaultMode, reloaded.VaultMode)
	assert.Equal(t, cfg.LogLevel, reloaded.LogLevel)
}

func TestDefaultConfigPathFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/pantry/knife.rb")
	got, err := DefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/etc/pantry/knife.rb", got)
}

func TestParseVaultMode(t *testing.T) {
	mode, err := ParseVaultMode(":solo")
	require.NoError(t, err)
	assert.Equal(t, VaultModeSolo, mode)

	mode, err = ParseVaultMode("")
	require.NoError(t, err)
	assert.Equal(t, VaultModeClient, mode)
}
