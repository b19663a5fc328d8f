// Package index provides the ordered expiry index used by the hash
// engine at two levels: per key (ordering a key's fields by their expiry
// timestamp) and per namespace (ordering keys by their soonest-expiring
// field).
//
// Three interchangeable strategies implement the same Index interface:
//
//   - sorted: a binary heap combined with a member map. Precise ordering,
//     O(log n) insert/update/delete, O(1) member lookup and minimum.
//   - bucket: expiry timestamps quantized into fixed-width time buckets.
//     Amortized O(1) maintenance; ordering within a bucket is undefined
//     and Min reports the bucket floor, so consumers must re-check the
//     actual timestamps before acting.
//   - none: a no-op baseline. The engine falls back to sampling its field
//     store directly during expiration sweeps.
//
// The strategy is selected at engine construction time and must be
// identical for both index levels.
//
// Thread-safety: indexes are NOT thread-safe. The engine serializes all
// access to them.
package index
