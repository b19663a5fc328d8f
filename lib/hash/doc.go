// Package hash defines the interface for hash engines with field-level
// expiry and versioning, together with the shared vocabulary all
// implementations use: write options, the versioned mutation contract,
// the error taxonomy, role handling and the replication contract for
// expiry-caused deletions.
//
// A HashDB hosts several namespaces (logical databases). Within a
// namespace a key names a collection of fields; every field carries its
// own value, an optional absolute expiry timestamp in milliseconds and a
// monotonic version counter for optimistic concurrency control.
//
// The package contains no engine logic itself; see
// lib/hash/engines/cedar for the engine and lib/hash/index for the
// expiry index strategies.
package hash
