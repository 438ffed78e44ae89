// Package workflows provides high-level orchestration for pantry commands.
//
// Workflows coordinate multiple operations across packages (configs,
// credentials, server, cache, reconciler) to implement complete user-facing
// features. Each workflow handles a single command's business logic,
// independent of CLI concerns like flag parsing, spinners, and output
// formatting.
//
// # Design Philosophy
//
// The cmd/ package should be a thin layer that:
//   - Parses command-line flags and arguments
//   - Calls the appropriate workflow function
//   - Formats the result for display
//
// Workflows handle everything else:
//   - Locating and loading the knife configuration
//   - Building a logger from log_level and log_location
//   - Performing the core operation
//
// # Available Workflows
//
//   - Sync: reconciles the integrity cache with the server catalog
//   - Auth: loads the client credential, bootstrapping it if needed
//   - ShowConfig: loads and resolves the configuration
//   - CacheList: lists cached cookbooks, optionally verifying content
//   - Log: reads and filters the sync history
//   - Doctor: runs health checks on the local setup
//
// # Error Handling
//
// Workflows return typed errors from the internal/errors package, allowing
// the CLI layer to provide appropriate user-facing messages without string
// matching. Use errors.Is() to check for specific error conditions:
//
//	result, err := workflows.Sync(ctx, opts)
//	if errors.Is(err, kerrors.ErrAuth) {
//	    // Show a hint about client_key and validation_key
//	}
package workflows
