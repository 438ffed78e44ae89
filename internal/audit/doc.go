// Package audit keeps a history of sync runs.
//
// Every run of the reconciler appends one entry to a log stored next to the
// integrity cache. This lets operators see when a node last synced, what it
// fetched, and what failed without rerunning anything.
//
// # Log Format
//
// The history is stored as JSON Lines (one JSON object per line) at:
//
//	<cache_path>/history.jsonl
//
// Each entry contains:
//   - Timestamp (RFC3339 with microseconds, UTC)
//   - Node name and run id
//   - Operation name
//   - Counts of fetched, skipped and failed artifacts
//   - Names of failed artifacts
//
// # Failure Handling
//
// History logging is best-effort. If logging fails (permissions, disk full,
// etc.), the run's result is unaffected.
//
// # Reading Logs
//
// Use ReadEntries() to parse the history for display. Malformed entries are
// silently skipped to handle partial writes.
package audit
