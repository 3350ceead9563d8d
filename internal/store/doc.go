// Package store provides the SQLite-backed build cache.
//
// The cache records:
//   - Builds: one row per compilation, keyed by a UUIDv7 build id and
//     ordered by a logical sequence number
//   - Build functions: per-function outcome (compiled or excluded, with the
//     reason) of each build
//   - Artifacts: content-addressed payloads, the refcounted IR of each
//     function keyed by its fingerprint and the emitted C keyed by the source
//     fingerprint, compressed with lz4
//
// Builds can be exported to and imported from xz-compressed JSON bundles.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
