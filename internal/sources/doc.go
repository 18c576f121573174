// Package sources retrieves the raw OPDS catalog document that a sync
// parses and reconciles.
//
// Current implementations:
//   - apiSource: fetches the catalog over HTTP through httpclient, with the
//     response cache built by NewCache (memory, redis, memcached or none)
//   - fileSource: reads the catalog from the local filesystem, useful for
//     offline bootstrap and tests
//
// NewSourceFactory picks the implementation from the catalog configuration.
// The opds subpackage turns the fetched bytes into a library.Feed.
package sources
