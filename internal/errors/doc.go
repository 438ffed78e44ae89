// Package errors provides typed error values for pantry.
//
// Using sentinel errors allows callers to handle specific error conditions
// programmatically with errors.Is() rather than string matching.
//
// # Error Categories
//
//   - ErrConfig: bad configuration input. Fatal, never retried.
//   - ErrAuth: credential loading or bootstrap registration failed. Fatal for the run.
//   - ErrNetwork: transient transport failure that outlived the retry budget.
//   - ErrNotFound: the server permanently refused an artifact. Never retried.
//   - ErrIntegrity: fetched bytes did not match the advertised checksum.
//   - ErrSync: the sync could not start at all (aggregate, total failure).
//   - ErrNoHistory, ErrInvalidDateFormat: user input problems in history queries.
//
// # Usage
//
// Wrap errors with additional context:
//
//	return fmt.Errorf("reading client key %s: %w", path, errors.ErrAuth)
//
// Map the outcome of a run onto a process exit code in the CLI layer:
//
//	os.Exit(errors.ExitCode(err))
package errors
