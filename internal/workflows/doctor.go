package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/PolarWolf314/pantry/internal/cache"
	"github.com/PolarWolf314/pantry/internal/configs"
	"github.com/PolarWolf314/pantry/internal/credentials"
)

// CheckStatus represents the result status of a health check.
type CheckStatus int

const (
	// CheckPass means the check passed.
	CheckPass CheckStatus = iota
	// CheckWarning means the check found a non-critical issue.
	CheckWarning
	// CheckError means the check found a critical issue.
	CheckError
)

// String returns a string representation of CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarning:
		return "warning"
	case CheckError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler for CheckStatus.
func (s CheckStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// CheckResult holds the result of a single health check.
type CheckResult struct {
	Name       string      `json:"name"`
	Status     CheckStatus `json:"status"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
}

// DoctorResult holds the complete result of the doctor workflow.
type DoctorResult struct {
	ConfigPath  string        `json:"config_path,omitempty"`
	Checks      []CheckResult `json:"checks"`
	Summary     DoctorSummary `json:"summary"`
	Suggestions []string      `json:"suggestions,omitempty"`
}

// DoctorSummary holds counts of checks by status.
type DoctorSummary struct {
	Passed   int `json:"passed"`
	Warnings int `json:"warnings"`
	Errors   int `json:"errors"`
}

// DoctorOptions configures the doctor workflow.
type DoctorOptions struct {
	ConfigOptions
}

// Doctor runs health checks on the local setup without contacting the server.
//
// The doctor workflow checks:
//   - Configuration validity for a sync
//   - Client key presence, format and permissions
//   - Validation key availability when a bootstrap is pending
//   - Cookbook paths
//   - Integrity cache readability and content hashes
func Doctor(ctx context.Context, opts DoctorOptions) (*DoctorResult, error) {
	result := &DoctorResult{}

	cfg, err := LoadConfig(opts.ConfigOptions, configs.LoadOptions{})
	if err != nil {
		result.Checks = append(result.Checks, CheckResult{
			Name:       "Configuration",
			Status:     CheckError,
			Message:    err.Error(),
			Suggestion: "Pass --config or set PANTRY_CONFIG to a valid knife.rb",
		})
	} else {
		result.ConfigPath = cfg.SourcePath
		checks := []func(*configs.ClientConfig) CheckResult{
			checkConfig,
			checkClientKey,
			checkClientKeyPermissions,
			checkCookbookPaths,
			checkCache,
		}
		for _, check := range checks {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			result.Checks = append(result.Checks, check(cfg))
		}
	}

	result.Summary = calculateDoctorSummary(result.Checks)

	// Collect suggestions (deduplicated).
	seen := make(map[string]bool)
	for _, check := range result.Checks {
		if check.Suggestion != "" && check.Status != CheckPass && !seen[check.Suggestion] {
			result.Suggestions = append(result.Suggestions, check.Suggestion)
			seen[check.Suggestion] = true
		}
	}

	return result, nil
}

// checkConfig checks the options a sync depends on.
func checkConfig(cfg *configs.ClientConfig) CheckResult {
	if err := cfg.ValidateForSync(); err != nil {
		return CheckResult{
			Name:       "Configuration",
			Status:     CheckError,
			Message:    err.Error(),
			Suggestion: fmt.Sprintf("Set the missing options in %s", cfg.SourcePath),
		}
	}
	return CheckResult{
		Name:    "Configuration",
		Status:  CheckPass,
		Message: fmt.Sprintf("Configuration valid for %s", cfg.ServerURL),
	}
}

// checkClientKey checks the client key parses, or that a bootstrap can issue one.
func checkClientKey(cfg *configs.ClientConfig) CheckResult {
	if cfg.PrivateKeyPath == "" {
		return CheckResult{
			Name:       "Client key",
			Status:     CheckError,
			Message:    "client_key is not configured",
			Suggestion: fmt.Sprintf("Set client_key in %s", cfg.SourcePath),
		}
	}

	_, err := credentials.LoadPrivateKey(cfg.PrivateKeyPath)
	switch {
	case err == nil:
		return CheckResult{
			Name:    "Client key",
			Status:  CheckPass,
			Message: fmt.Sprintf("Client key for %s is valid", cfg.ClientIdentity),
		}
	case errors.Is(err, os.ErrNotExist):
		if cfg.ValidationKeyPath == "" || cfg.ValidationIdentity == "" {
			return CheckResult{
				Name:       "Client key",
				Status:     CheckError,
				Message:    "Client key not found and no validation key is configured",
				Suggestion: "Copy the client key to " + cfg.PrivateKeyPath + " or configure validation_key",
			}
		}
		if _, err := credentials.LoadPrivateKey(cfg.ValidationKeyPath); err != nil {
			return CheckResult{
				Name:       "Client key",
				Status:     CheckError,
				Message:    fmt.Sprintf("Client key not found and validation key is unusable: %v", err),
				Suggestion: "Check the validation_key file",
			}
		}
		return CheckResult{
			Name:       "Client key",
			Status:     CheckWarning,
			Message:    "Client key not found; it will be issued using " + cfg.ValidationIdentity,
			Suggestion: "Run 'pantry auth' to register this client",
		}
	default:
		return CheckResult{
			Name:       "Client key",
			Status:     CheckError,
			Message:    fmt.Sprintf("Client key is unusable: %v", err),
			Suggestion: "Replace " + cfg.PrivateKeyPath + " with a PEM or OpenSSH RSA key",
		}
	}
}

// checkClientKeyPermissions checks the client key is not readable by others.
func checkClientKeyPermissions(cfg *configs.ClientConfig) CheckResult {
	info, err := os.Stat(cfg.PrivateKeyPath)
	if cfg.PrivateKeyPath == "" || os.IsNotExist(err) {
		return CheckResult{
			Name:    "Client key permissions",
			Status:  CheckPass,
			Message: "No client key yet (skipping permissions check)",
		}
	}
	if err != nil {
		return CheckResult{
			Name:       "Client key permissions",
			Status:     CheckError,
			Message:    fmt.Sprintf("Failed to stat client key: %v", err),
			Suggestion: "Check that the client key file is accessible",
		}
	}

	// Windows does not report POSIX permission bits.
	if runtime.GOOS == "windows" {
		return CheckResult{
			Name:    "Client key permissions",
			Status:  CheckPass,
			Message: "Permissions not checked on Windows",
		}
	}

	// Check permissions (should be 0600).
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return CheckResult{
			Name:       "Client key permissions",
			Status:     CheckWarning,
			Message:    fmt.Sprintf("Client key has insecure permissions (%04o)", mode),
			Suggestion: fmt.Sprintf("Run 'chmod 600 %s' to fix permissions", cfg.PrivateKeyPath),
		}
	}

	return CheckResult{
		Name:    "Client key permissions",
		Status:  CheckPass,
		Message: fmt.Sprintf("Client key has correct permissions (%04o)", mode),
	}
}

// checkCookbookPaths checks each cookbook path is a directory.
func checkCookbookPaths(cfg *configs.ClientConfig) CheckResult {
	var missing []string
	for _, p := range cfg.CookbookPaths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			missing = append(missing, p)
		}
	}

	if len(missing) > 0 {
		return CheckResult{
			Name:       "Cookbook paths",
			Status:     CheckWarning,
			Message:    fmt.Sprintf("%d of %d cookbook paths do not exist", len(missing), len(cfg.CookbookPaths)),
			Suggestion: "Create or remove missing cookbook_path entries",
		}
	}
	return CheckResult{
		Name:    "Cookbook paths",
		Status:  CheckPass,
		Message: fmt.Sprintf("%d cookbook paths found", len(cfg.CookbookPaths)),
	}
}

// checkCache opens the cache and verifies every stored artifact.
func checkCache(cfg *configs.ClientConfig) CheckResult {
	store, err := cache.Open(cfg.CachePath)
	if err != nil {
		return CheckResult{
			Name:       "Integrity cache",
			Status:     CheckError,
			Message:    err.Error(),
			Suggestion: "Check permissions on " + cfg.CachePath,
		}
	}

	records := store.Records()
	corrupt := 0
	for _, rec := range records {
		if store.Verify(rec) != nil {
			corrupt++
		}
	}

	if corrupt > 0 {
		return CheckResult{
			Name:       "Integrity cache",
			Status:     CheckWarning,
			Message:    fmt.Sprintf("%d of %d cached cookbooks fail verification", corrupt, len(records)),
			Suggestion: "Run 'pantry sync --verify' to refetch them",
		}
	}

	return CheckResult{
		Name:    "Integrity cache",
		Status:  CheckPass,
		Message: fmt.Sprintf("%d cached cookbooks verified", len(records)),
	}
}

// calculateDoctorSummary calculates the counts of checks by status.
func calculateDoctorSummary(results []CheckResult) DoctorSummary {
	var summary DoctorSummary
	for _, result := range results {
		switch result.Status {
		case CheckPass:
			summary.Passed++
		case CheckWarning:
			summary.Warnings++
		case CheckError:
			summary.Errors++
		}
	}
	return summary
}
