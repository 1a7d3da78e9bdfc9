// Package server hosts the Fiber HTTP gateway: the request middleware chain,
// the hub registry that maps Host headers to per-hub file systems, and the
// constructors the CLI reuses to build a hub client and file system from
// configuration. Keep exports narrow and accept explicit dependencies.
package server
