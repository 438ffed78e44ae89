package workflows

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PolarWolf314/pantry/internal/audit"
	"github.com/PolarWolf314/pantry/internal/cache"
	"github.com/PolarWolf314/pantry/internal/configs"
	"github.com/PolarWolf314/pantry/internal/credentials"
	kerrors "github.com/PolarWolf314/pantry/internal/errors"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce sync.Once
	rsaKey  *rsa.PrivateKey
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		rsaKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
	})
	return rsaKey
}

type workspace struct {
	dir    string
	config string
}

// newWorkspace writes a knife.rb for serverURL into a temporary chef repo.
// extra is appended verbatim.
func newWorkspace(t *testing.T, serverURL, extra string) workspace {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "cookbooks"), 0700))

	knife := fmt.Sprintf(`current_dir = File.dirname(__FILE__)
node_name       'web01'
client_key      "#{current_dir}/web01.pem"
chef_server_url '%s/organizations/acme'
cookbook_path   ["#{current_dir}/cookbooks"]
cache_path      File.join(current_dir, 'cache')
log_location    "#{current_dir}/pantry.log"
%s`, serverURL, extra)

	path := filepath.Join(dir, "knife.rb")
	require.NoError(t, os.WriteFile(path, []byte(knife), 0600))
	return workspace{dir: dir, config: path}
}

func (w workspace) writeKey(t *testing.T, name string, key *rsa.PrivateKey) string {
	t.Helper()
	path := filepath.Join(w.dir, name)
	require.NoError(t, os.WriteFile(path, credentials.EncodePrivateKey(key), 0600))
	return path
}

func (w workspace) options() ConfigOptions {
	return ConfigOptions{ConfigPath: w.config}
}

// chefServer serves a catalog of cookbooks whose content is "<name>@<version>".
func chefServer(t *testing.T, pub *rsa.PublicKey, cookbooks map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/organizations/acme/cookbooks", func(w http.ResponseWriter, r *http.Request) {
		if credentials.Verify(r, nil, pub, time.Now(), time.Minute) != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		catalog := map[string]any{}
		for name, version := range cookbooks {
			catalog[name] = map[string]any{"versions": []map[string]string{{
				"version":  version,
				"checksum": digest.FromString(name + "@" + version).String(),
			}}}
		}
		_ = json.NewEncoder(w).Encode(catalog)
	})
	mux.HandleFunc("/organizations/acme/cookbooks/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/organizations/acme/cookbooks/"), "/")
		if len(parts) != 2 || cookbooks[parts[0]] != parts[1] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, parts[0]+"@"+parts[1])
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSync(t *testing.T) {
	srv := chefServer(t, &testKey(t).PublicKey, map[string]string{"nginx": "1.0.0", "apt": "7.4.0"})
	ws := newWorkspace(t, srv.URL, "")
	ws.writeKey(t, "web01.pem", testKey(t))

	result, err := Sync(context.Background(), SyncOptions{ConfigOptions: ws.options(), Verbose: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Report.Fetched)
	assert.Empty(t, result.Report.Failed)
	assert.Equal(t, filepath.Join(ws.dir, "cache"), result.Config.CachePath)

	logData, err := os.ReadFile(filepath.Join(ws.dir, "pantry.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "Syncing "+srv.URL)

	result, err = Sync(context.Background(), SyncOptions{ConfigOptions: ws.options()})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Report.Fetched)
	assert.Equal(t, 2, result.Report.Skipped)
}

func TestSyncRequiresCookbookPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "knife.rb")
	require.NoError(t, os.WriteFile(path, []byte("chef_server_url 'https://chef.example.com/organizations/acme'\nclient_key 'web01.pem'\n"), 0600))

	_, err := Sync(context.Background(), SyncOptions{ConfigOptions: ConfigOptions{ConfigPath: path}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, kerrors.ErrConfig))
	assert.Equal(t, kerrors.ExitSyncFailure, kerrors.ExitCode(err))
}

func TestSyncUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	ws := newWorkspace(t, url, "")
	ws.writeKey(t, "web01.pem", testKey(t))

	_, err := Sync(context.Background(), SyncOptions{ConfigOptions: ws.options(), Deadline: 5 * time.Second})
	require.Error(t, err)
	assert.True(t, errors.Is(err, kerrors.ErrSync))
	assert.True(t, errors.Is(err, kerrors.ErrNetwork))
}

func TestAuthBootstrapsOnce(t *testing.T) {
	validator := testKey(t)
	issued, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	registrations := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.URL.Path != "/organizations/acme/clients" || credentials.Verify(r, body, &validator.PublicKey, time.Now(), time.Minute) != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		registrations++
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"private_key": string(credentials.EncodePrivateKey(issued))})
	}))
	t.Cleanup(srv.Close)

	ws := newWorkspace(t, srv.URL, "validation_client_name 'acme-validator'\nvalidation_key \"#{current_dir}/validator.pem\"\n")
	ws.writeKey(t, "validator.pem", validator)

	result, err := Auth(context.Background(), AuthOptions{ConfigOptions: ws.options()})
	require.NoError(t, err)
	assert.True(t, result.Bootstrapped)
	assert.Equal(t, "web01", result.Identity)
	assert.Equal(t, filepath.Join(ws.dir, "web01.pem"), result.KeyPath)

	result, err = Auth(context.Background(), AuthOptions{ConfigOptions: ws.options()})
	require.NoError(t, err)
	assert.False(t, result.Bootstrapped)
	assert.Equal(t, 1, registrations)

	entries, err := audit.ReadEntries(filepath.Join(ws.dir, "cache"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OpBootstrap, entries[0].Operation)
}

func TestAuthWithoutAnyKey(t *testing.T) {
	ws := newWorkspace(t, "https://chef.example.com", "")

	_, err := Auth(context.Background(), AuthOptions{ConfigOptions: ws.options()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, kerrors.ErrAuth))
}

func TestLoadConfigOverridesVaultMode(t *testing.T) {
	ws := newWorkspace(t, "https://chef.example.com", "knife[:vault_mode] = 'client'\n")

	cfg, err := LoadConfig(ConfigOptions{ConfigPath: ws.config, VaultMode: configs.VaultModeSolo}, configs.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, configs.VaultModeSolo, cfg.VaultMode)

	cfg, err = ShowConfig(context.Background(), ws.options())
	require.NoError(t, err)
	assert.Equal(t, configs.VaultModeClient, cfg.VaultMode)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	ws := newWorkspace(t, "https://chef.example.com", "")
	t.Setenv(configs.EnvConfigPath, ws.config)

	cfg, err := LoadConfig(ConfigOptions{}, configs.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, ws.config, cfg.SourcePath)
}

func TestCacheListVerify(t *testing.T) {
	ws := newWorkspace(t, "https://chef.example.com", "")
	store, err := cache.Open(filepath.Join(ws.dir, "cache"))
	require.NoError(t, err)
	_, err = store.Commit(context.Background(), "nginx", "1.0.0", []byte("nginx"))
	require.NoError(t, err)
	_, err = store.Commit(context.Background(), "apt", "7.4.0", []byte("apt"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.ContentPath("apt", "7.4.0"), []byte("changed"), 0600))

	result, err := CacheList(context.Background(), CacheOptions{ConfigOptions: ws.options()})
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "apt", result.Entries[0].Name)
	assert.Equal(t, 0, result.Corrupt)

	result, err = CacheList(context.Background(), CacheOptions{ConfigOptions: ws.options(), Verify: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Corrupt)
	assert.True(t, errors.Is(result.Entries[0].VerifyErr, kerrors.ErrIntegrity))
	assert.NoError(t, result.Entries[1].VerifyErr)
}

func TestLog(t *testing.T) {
	ws := newWorkspace(t, "https://chef.example.com", "")
	cacheDir := filepath.Join(ws.dir, "cache")

	audit.Log(cacheDir, audit.Entry{Timestamp: "2024-01-10T09:00:00.000000Z", Node: "web01", Operation: audit.OpBootstrap})
	audit.Log(cacheDir, audit.Entry{Timestamp: "2024-01-11T09:00:00.000000Z", Node: "web01", Operation: audit.OpSync, Fetched: 3})
	audit.Log(cacheDir, audit.Entry{Timestamp: "2024-01-12T09:00:00.000000Z", Node: "web02", Operation: audit.OpSync, Failed: []string{"apt"}})
	audit.Log(cacheDir, audit.Entry{Timestamp: "2024-01-13T09:00:00.000000Z", Node: "web01", Operation: audit.OpSync, Error: "sync failed"})

	tests := []struct {
		name string
		opts LogOptions
		want []string
	}{
		{"all", LogOptions{}, []string{"2024-01-10", "2024-01-11", "2024-01-12", "2024-01-13"}},
		{"node", LogOptions{Node: "WEB02"}, []string{"2024-01-12"}},
		{"operation", LogOptions{Operations: "bootstrap"}, []string{"2024-01-10"}},
		{"failed only", LogOptions{FailedOnly: true}, []string{"2024-01-12", "2024-01-13"}},
		{"since until", LogOptions{Since: "2024-01-11", Until: "2024-01-12"}, []string{"2024-01-11", "2024-01-12"}},
		{"limit", LogOptions{Limit: 2}, []string{"2024-01-12", "2024-01-13"}},
		{"reverse limit", LogOptions{Limit: 2, Reverse: true}, []string{"2024-01-13", "2024-01-12"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.ConfigOptions = ws.options()
			result, err := Log(context.Background(), tc.opts)
			require.NoError(t, err)
			assert.Equal(t, 4, result.TotalEntriesBeforeFilter)

			var got []string
			for _, e := range result.Entries {
				got = append(got, e.Timestamp[:10])
			}
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := Log(context.Background(), LogOptions{ConfigOptions: ws.options(), Since: "01/11/2024"})
	assert.True(t, errors.Is(err, kerrors.ErrInvalidDateFormat))
}

func TestLogWithoutHistory(t *testing.T) {
	ws := newWorkspace(t, "https://chef.example.com", "")

	_, err := Log(context.Background(), LogOptions{ConfigOptions: ws.options()})
	assert.True(t, errors.Is(err, kerrors.ErrNoHistory))
}

func TestFormatDetails(t *testing.T) {
	assert.Equal(t, "2 fetched, 1 skipped, 1 failed (apt), 1 conflicts",
		FormatDetails(audit.Entry{Operation: audit.OpSync, Fetched: 2, Skipped: 1, Failed: []string{"apt"}, Conflicts: 1}))
	assert.Equal(t, "error: boom", FormatDetails(audit.Entry{Operation: audit.OpSync, Error: "boom"}))
	assert.Equal(t, "registered with https://chef", FormatDetails(audit.Entry{Operation: audit.OpBootstrap, Server: "https://chef"}))
	assert.Equal(t, "2024-01-10 09:00:00", FormatDateTime("2024-01-10T09:00:00.000000Z"))
}

func TestDoctor(t *testing.T) {
	ws := newWorkspace(t, "https://chef.example.com", "")
	ws.writeKey(t, "web01.pem", testKey(t))

	result, err := Doctor(context.Background(), DoctorOptions{ConfigOptions: ws.options()})
	require.NoError(t, err)
	assert.Equal(t, ws.config, result.ConfigPath)
	assert.Equal(t, 0, result.Summary.Errors, "%+v", result.Checks)
	assert.Equal(t, 0, result.Summary.Warnings, "%+v", result.Checks)
	assert.Empty(t, result.Suggestions)
}

func TestDoctorReportsProblems(t *testing.T) {
	ws := newWorkspace(t, "https://chef.example.com", "")
	require.NoError(t, os.WriteFile(filepath.Join(ws.dir, "web01.pem"), []byte("not a key"), 0644))

	result, err := Doctor(context.Background(), DoctorOptions{ConfigOptions: ws.options()})
	require.NoError(t, err)

	statuses := map[string]CheckStatus{}
	for _, c := range result.Checks {
		statuses[c.Name] = c.Status
	}
	assert.Equal(t, CheckError, statuses["Client key"])
	assert.Equal(t, CheckPass, statuses["Configuration"])
	assert.NotEmpty(t, result.Suggestions)
}

func TestDoctorWithoutConfig(t *testing.T) {
	result, err := Doctor(context.Background(), DoctorOptions{ConfigOptions: ConfigOptions{ConfigPath: filepath.Join(t.TempDir(), "missing.rb")}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.Errors)
}
