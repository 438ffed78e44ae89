// Package reconciler brings the local integrity cache in line with the
// server's cookbook catalog.
//
// A sync authenticates, lists the catalog, and plans which cookbooks are stale
// before fetching them through a bounded worker pool. Individual fetch failures
// are collected in the Report instead of aborting the run; only a failure to
// authenticate or to list the catalog fails Sync itself.
//
// When the context passed to Sync is done, fetches still in flight are
// abandoned and their results are never written to the cache.
package reconciler
