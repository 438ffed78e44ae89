// Package server is the HTTP client for the cookbook server API.
//
// Every request is signed with the caller's credential and sent through a
// retrying transport: transport errors, per-attempt timeouts and 5xx
// responses are retried with exponential backoff (200ms, doubling, at most
// three retries) while 4xx responses fail immediately. Each retry is signed
// again so its timestamp stays fresh.
//
// Errors are classified with the sentinels from internal/errors:
//
//   - 401 and 403 responses: ErrAuth
//   - any other 4xx response: ErrNotFound
//   - transient failures that outlast the retry budget: ErrNetwork
package server
