// Package kv is a small persistent key/value store for conversation thread
// state. It behaves like a minimal Redis substitute (set with expiry, get
// with optional sliding expiry, background eviction) without a server.
//
// Three backends satisfy the [Store] interface:
//
//   - [MemoryStore]: a mutex-guarded map. Fast, invisible to other processes.
//   - [FileStore]: one JSON file per key under a directory, guarded by
//     advisory file locks. Visible to every process sharing the directory.
//   - [SQLiteStore]: one SQLite database in WAL mode shared by processes.
//
// [Open] builds the backend named by a [Config]. Unknown backend names fall
// back to [BackendFile], since losing cross-process persistence silently is
// worse than ignoring a typo.
//
// Values are opaque strings; callers serialize structured data before
// storing it.
package kv
