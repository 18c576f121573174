// Package sync runs one catalog synchronization: fetch the remote catalog,
// parse it into a feed and reconcile the feed into the package store.
//
// # Core Interfaces
//
//   - Manager: runs the fetch, parse and reconcile pipeline once
//   - Parser: the boundary to the catalog format (see sources/opds)
//
// # Coordinator Package
//
// The sync/coordinator subpackage serializes sync jobs. It admits one job at
// a time in submission order, exposes the latest job for observation, stamps
// the last sync time and runs the periodic background refresh.
//
// # Result Types
//
//   - Result: the outcome of a successful run (update flag, counts, hash)
//   - Error: a failed run, classified by Kind (retrieval, parse, process,
//     unclassified, canceled); errors.Is matches the Err* sentinels
//
// # Progress
//
// A run reports advisory progress on a ten unit budget. The network fetch
// accounts for the first eight units, parsing for the ninth and the store
// commit for the last.
package sync
