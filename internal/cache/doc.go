// Package cache records what has been synced from the server.
//
// The cache lives under the configured cache path:
//
//	integrity.jsonl          one JSON record per line, last line per name wins
//	cookbooks/<name>/<ver>   artifact content as downloaded, both parts path-escaped
//
// Records are appended as they change and the log is compacted when it grows
// to more than twice the number of live records. Lines that fail to parse are
// skipped, so a torn final line after a crash only loses that one update.
//
// A Store is safe for concurrent use: lookups proceed in parallel and updates
// are serialized.
package cache
