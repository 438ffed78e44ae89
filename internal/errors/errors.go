package errors

import (
	"errors"
	"fmt"
)

// Fatal errors abort the whole run.
var (
	// ErrConfig indicates the configuration is missing, unreadable or invalid.
	ErrConfig = errors.New("invalid configuration")

	// ErrAuth indicates a credential could not be loaded or the server rejected it.
	ErrAuth = errors.New("authentication failed")

	// ErrSync indicates the sync could not authenticate or reach the server at all.
	ErrSync = errors.New("sync failed")
)

// Per-artifact errors are captured in the sync report rather than propagated.
var (
	// ErrNetwork indicates a transient failure that persisted past the retry budget.
	ErrNetwork = errors.New("network error")

	// ErrNotFound indicates the server does not have the requested artifact.
	ErrNotFound = errors.New("not found")

	// ErrIntegrity indicates fetched content does not hash to the advertised checksum.
	ErrIntegrity = errors.New("content checksum mismatch")
)

// Input errors are reported to the user without a stack of context.
var (
	// ErrNoHistory indicates no sync has been recorded in the cache directory yet.
	ErrNoHistory = errors.New("no sync history found")

	// ErrInvalidDateFormat indicates a date flag is not in YYYY-MM-DD form.
	ErrInvalidDateFormat = errors.New("invalid date format")
)

// Exit codes reported by the CLI.
const (
	ExitOK          = 0
	ExitPartial     = 1
	ExitSyncFailure = 2
)

// Wrap annotates err with the sentinel kind unless err already matches it.
func Wrap(kind error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// ExitCode maps a fatal error onto a process exit code. A nil error is success.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	return ExitSyncFailure
}
