// Package cache holds the per-filesystem state that sits between path
// resolution and the hub API: the existence cache remembering which
// (type, repo, revision) triples were probed, the directory cache keyed by
// unresolved paths, and the scratch area where write buffers spill to disk
// before upload. None of the caches lock internally; a FileSystem owns one
// instance of each and is used by a single caller at a time.
package cache
