// Package vfs resolves slash-separated paths against a remote content store.
//
// A Client owns the root folder of a remote.Store and caches node metadata
// for a fixed TTL. Paths are walked one segment at a time: the current node
// is refreshed if its metadata is stale, and the next segment is matched
// against the folder's visible children. When several siblings share a name,
// the one created last is the only one visible.
//
// Resolution never fails for a missing path; it returns an Info whose
// queries report non-existence. Operations that need a particular kind of
// node (listing, opening) return a *PathError instead.
//
// Concurrency: nothing in this package locks nodes. Two goroutines touching
// the same stale node may both reload it. Callers that share a Client across
// goroutines and need causal consistency must serialize access themselves.
package vfs
