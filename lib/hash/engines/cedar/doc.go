// Package cedar implements a hash store with per-field expiration and
// versioning. It provides a complete implementation of the hash.HashDB
// interface: every field of a hash-typed key carries its own value, an
// optional absolute expiry timestamp in milliseconds and a monotonic
// version counter for optimistic concurrency control.
//
// The package focuses on:
//   - Finding "what expires next" without scanning every field of every
//     key, via a two-level expiry index
//   - A bounded background sweep that reaps expired fields proactively
//     without stop-the-world pauses
//   - Deterministic replication of time-dependent deletions
//   - Optimistic concurrency through the versioned write contract
//
// Key Components:
//
//   - cedarImpl: The central engine structure implementing hash.HashDB.
//     It hosts a fixed number of namespaces (logical databases), owns the
//     background sweep and provides the public API. All mutation runs
//     under one engine mutex, giving the cooperative single-writer model
//     described below.
//
//   - Namespace: One logical database. Holds the key table (an
//     xsync.MapOf with a seeded hasher) and the namespace expiry index,
//     which orders keys by their soonest-expiring field. The cumulative
//     active/passive expiry counters live here too, so a namespace swap
//     exchanges data, index and statistics as one unit.
//
//   - HashObject: One hash-typed key: its field table and the local
//     expiry index ordering the key's own fields by expiry time. The
//     object knows its key name because namespace index entries refer to
//     keys by name and must be relocated on rename and move.
//
//   - Expiry Index: Both index levels share the pluggable index.Index
//     interface with three strategies (precise sorted, approximate
//     bucketed, none). See lib/hash/index.
//
// Internal Mechanisms:
//
//   - Index Invariants: A field appears in its key's local index iff it
//     carries a nonzero expiry; a key appears in its namespace index iff
//     its local index is non-empty, keyed by the local minimum. Every
//     mutation that touches a TTL reconciles both levels before
//     returning. A namespace index entry pointing at a missing key
//     object indicates corruption and panics rather than being papered
//     over.
//
//   - Expiry Sentinels: Timestamp 0 means "no TTL"; requests for
//     immediate expiry are stored as timestamp 1 so the sentinel stays
//     unambiguous.
//
//   - Versioned Writes: A write can demand an exact version match (0 =
//     no check), a strictly greater version, or force an absolute value.
//     Accepted writes advance the version to stored+1 or to the forced
//     value; rejected writes leave the field, its value, its expiry and
//     both index levels untouched and surface a conflict error.
//
//   - Passive Expiration: Every field operation first reaps up to a
//     small budget of due fields of the touched key (primary only). The
//     check walks the local index from its minimum; with the bucketed
//     strategy the index floor can be earlier than the actual expiry, so
//     the field's own timestamp is always re-checked before reaping.
//
//   - Active Expiration: A timer-driven sweep visits up to a configured
//     number of namespaces per tick, starting at a rotating cursor and
//     skipping empty namespaces without consuming budget. Within a
//     namespace it follows the namespace index from its minimum, reaping
//     every due field of up to the per-tick key budget. Tick durations
//     feed last/max statistics and a rolling average recomputed every 10
//     ticks. With the "none" index strategy the sweep samples the key
//     table directly instead.
//
//   - Replication of Expiry: Reaping a field calls the configured
//     hash.Replicator while still holding the engine lock, turning every
//     time-dependent deletion into an explicit event. A replica-role
//     engine never reaps on its own: its reads filter due fields, and
//     storage changes only when the primary's explicit deletion command
//     is applied. This keeps replicas byte-identical regardless of clock
//     skew.
//
//   - Concurrency Model: One mutex serializes all mutation, including
//     sweep ticks, so no two mutating operations ever interleave below
//     operation granularity and neither index level needs its own
//     locking. Scheduler arming is idempotent (atomic CAS) and disabling
//     is observed at the next tick boundary.
//
//   - Persistence Format: Snapshots use a compact little-endian binary
//     format with a magic number and format version, storing per field
//     its name, version, expiry timestamp and value. Loading reinserts
//     every expiring field into both index levels. ExportRewrite emits
//     live fields with absolute expiry and absolute version for
//     change-log compaction, skipping fields already due, so replay
//     does not depend on the clock at replay time.
//
//   - Consistency Digest: Digest XORs per-field hashes of name and value
//     only. Version and expiry are excluded on purpose: replicas with
//     identical logical contents but different in-flight TTL state must
//     still compare equal.
//
// The cedar package is designed to back caches, session stores and
// metadata stores that need field-granular TTLs with optimistic
// concurrency, either standalone (lib/store/lstore) or replicated via
// raft (lib/store/dstore).
package cedar
