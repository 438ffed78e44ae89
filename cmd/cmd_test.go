package cmd

import (
	"bytes"
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
	"testing"

	"github.com/PolarWolf314/pantry/internal/credentials"
	kerrors "github.com/PolarWolf314/pantry/internal/errors"
	"github.com/PolarWolf314/pantry/internal/reconciler"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput captures both stdout and stderr during fn.
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	originalStdout, originalStderr := os.Stdout, os.Stderr
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout, os.Stderr = w, w

	out := make(chan string, 1)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		out <- buf.String()
	}()

	runErr := fn()

	w.Close()
	os.Stdout, os.Stderr = originalStdout, originalStderr
	return <-out, runErr
}

// run executes the CLI with args and returns its output and exit code.
func run(t *testing.T, args ...string) (string, int) {
	t.Helper()
	ResetGlobalState()
	t.Setenv("NO_COLOR", "1")

	root := &cobra.Command{Use: "pantry", SilenceErrors: true, SilenceUsage: true}
	root.AddCommand(Commands()...)
	root.SetArgs(args)

	var code int
	output, _ := captureOutput(t, func() error {
		code = Exit(root.Execute())
		return nil
	})
	return output, code
}

// chefRepo writes a knife.rb and client key pointing at serverURL.
func chefRepo(t *testing.T, serverURL string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "cookbooks"), 0700))

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "web01.pem"), credentials.EncodePrivateKey(key), 0600))

	knife := fmt.Sprintf(`current_dir = File.dirname(__FILE__)
node_name       'web01'
client_key      "#{current_dir}/web01.pem"
chef_server_url '%s/organizations/acme'
cookbook_path   ["#{current_dir}/cookbooks"]
cache_path      "#{current_dir}/cache"
log_location    "#{current_dir}/pantry.log"
knife[:vault_mode] = 'solo'
`, serverURL)
	path := filepath.Join(dir, "knife.rb")
	require.NoError(t, os.WriteFile(path, []byte(knife), 0600))
	return path
}

// catalogServer serves cookbooks whose content is "<name>@<version>". Names
// in missing are listed but cannot be downloaded.
func catalogServer(t *testing.T, cookbooks map[string]string, missing ...string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/organizations/acme/cookbooks", func(w http.ResponseWriter, r *http.Request) {
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
		for _, m := range missing {
			if parts[0] == m {
				w.WriteHeader(http.StatusNotFound)
				return
			}
		}
		_, _ = io.WriteString(w, parts[0]+"@"+parts[1])
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSyncCommand(t *testing.T) {
	srv := catalogServer(t, map[string]string{"nginx": "1.0.0", "apt": "7.4.0"})
	config := chefRepo(t, srv.URL)

	output, code := run(t, "sync", "--config", config)
	assert.Equal(t, kerrors.ExitOK, code, output)
	assert.Contains(t, output, "Cookbooks synced")
	assert.Contains(t, output, "2 fetched, 0 up to date, 0 failed")

	output, code = run(t, "sync", "--config", config)
	assert.Equal(t, kerrors.ExitOK, code, output)
	assert.Contains(t, output, "0 fetched, 2 up to date, 0 failed")
}

func TestSyncCommandPartialFailure(t *testing.T) {
	srv := catalogServer(t, map[string]string{"nginx": "1.0.0", "apt": "7.4.0"}, "apt")
	config := chefRepo(t, srv.URL)

	output, code := run(t, "sync", "--config", config, "--workers", "1")
	assert.Equal(t, kerrors.ExitPartial, code, output)
	assert.Contains(t, output, "Sync finished with 1 failure")
	assert.Contains(t, output, "'apt'@7.4.0")
}

func TestSyncCommandUnreachable(t *testing.T) {
	srv := catalogServer(t, nil)
	config := chefRepo(t, srv.URL)
	srv.Close()

	output, code := run(t, "sync", "--config", config)
	assert.Equal(t, kerrors.ExitSyncFailure, code, output)
	assert.Contains(t, output, "Sync failed")
	assert.Contains(t, output, "chef_server_url")
}

func TestSyncCommandMissingConfig(t *testing.T) {
	output, code := run(t, "sync", "--config", filepath.Join(t.TempDir(), "knife.rb"))
	assert.Equal(t, kerrors.ExitSyncFailure, code)
	assert.Contains(t, output, "--config")
}

func TestCacheAndLogAfterSync(t *testing.T) {
	srv := catalogServer(t, map[string]string{"nginx": "1.0.0"})
	config := chefRepo(t, srv.URL)

	_, code := run(t, "sync", "--config", config)
	require.Equal(t, kerrors.ExitOK, code)

	output, code := run(t, "cache", "list", "--config", config, "--verify")
	assert.Equal(t, kerrors.ExitOK, code, output)
	assert.Contains(t, output, "COOKBOOK")
	assert.Contains(t, output, "nginx")
	assert.Contains(t, output, "ok")

	output, code = run(t, "cache", "list", "--config", config, "--json")
	assert.Equal(t, kerrors.ExitOK, code, output)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "1.0.0", entries[0]["version"])

	output, code = run(t, "log", "--config", config)
	assert.Equal(t, kerrors.ExitOK, code, output)
	assert.Contains(t, output, "web01")
	assert.Contains(t, output, "sync")

	output, code = run(t, "log", "--config", config, "--since", "yesterday")
	assert.Equal(t, kerrors.ExitOK, code)
	assert.Contains(t, output, "✗")
}

func TestLogCommandWithoutHistory(t *testing.T) {
	srv := catalogServer(t, nil)
	config := chefRepo(t, srv.URL)

	output, code := run(t, "log", "--config", config)
	assert.Equal(t, kerrors.ExitOK, code)
	assert.Contains(t, output, "No sync history found")
}

func TestConfigShowCommand(t *testing.T) {
	config := chefRepo(t, "https://chef.example.com")

	output, code := run(t, "config", "show", "--config", config, "--json")
	require.Equal(t, kerrors.ExitOK, code, output)
	var shown map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &shown))
	assert.Equal(t, "acme", shown["organization"])
	assert.Equal(t, "solo", shown["vault_mode"])

	output, code = run(t, "config", "show", "--config", config, "--json", "--vault-mode", "client")
	require.Equal(t, kerrors.ExitOK, code, output)
	require.NoError(t, json.Unmarshal([]byte(output), &shown))
	assert.Equal(t, "client", shown["vault_mode"])

	_, code = run(t, "config", "show", "--config", config, "--vault-mode", "chef-zero")
	assert.Equal(t, kerrors.ExitSyncFailure, code)
}

func TestDoctorCommand(t *testing.T) {
	output, code := run(t, "doctor", "--config", filepath.Join(t.TempDir(), "knife.rb"))
	assert.Equal(t, kerrors.ExitSyncFailure, code, output)
	assert.Contains(t, output, "Health checks completed with errors")

	config := chefRepo(t, "https://chef.example.com")
	output, code = run(t, "doctor", "--config", config, "--json")
	assert.NotEqual(t, kerrors.ExitSyncFailure, code, output)
	assert.Contains(t, output, `"checks"`)
}

func TestVaultModeFlag(t *testing.T) {
	var v vaultModeFlag
	require.NoError(t, v.Set("solo"))
	assert.Equal(t, "solo", v.String())
	assert.Error(t, v.Set("zero"))
	assert.Equal(t, "solo", v.String())
}

func TestExit(t *testing.T) {
	ResetGlobalState()
	t.Cleanup(ResetGlobalState)

	output, err := captureOutput(t, func() error {
		assert.Equal(t, kerrors.ExitOK, Exit(nil))
		assert.Equal(t, kerrors.ExitSyncFailure, Exit(shownError{kerrors.ErrAuth}))
		assert.Equal(t, kerrors.ExitSyncFailure, Exit(errors.New("unknown command")))
		exitCode = kerrors.ExitPartial
		assert.Equal(t, kerrors.ExitPartial, Exit(nil))
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, output, "unknown command")
	assert.NotContains(t, output, kerrors.ErrAuth.Error())
}

func TestFormatReport(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	report := &reconciler.Report{
		Fetched: 3,
		Skipped: 1,
		Failed: []reconciler.Failure{
			{Name: "apt", Version: "7.4.0", Err: kerrors.ErrNotFound},
		},
		Conflicts: []reconciler.Conflict{
			{Name: "nginx", LocalVersion: "0.9.0", ServerVersion: "1.0.0", Path: "/repo/cookbooks/nginx"},
		},
		LocalOnly: []string{"mine"},
	}

	got := formatReport(report)
	assert.Contains(t, got, "3 fetched, 1 up to date, 1 failed")
	assert.Contains(t, got, "'apt'@7.4.0: "+kerrors.ErrNotFound.Error())
	assert.Contains(t, got, "is @0.9.0, server has @1.0.0")
	assert.Contains(t, got, "Only in cookbook_path: mine")
}

func TestShortHash(t *testing.T) {
	full := digest.FromString("x").String()
	assert.Equal(t, full[:len("sha256:")+12], shortHash(full))
	assert.Equal(t, "", shortHash(""))
	assert.Equal(t, "sha256:abc", shortHash("sha256:abc"))
}
