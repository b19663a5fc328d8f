// Package lstore implements a local, in-memory, single-node hash store
// based on the store.IStore interface. It provides a thin wrapper around
// any hash.HashDB implementation. Data is stored entirely in memory and
// is only persisted through explicit snapshots of the underlying engine.
//
// Key Features:
//   - Pure in-memory storage with field-granular TTLs and versioning
//   - Direct integration with hash.HashDB implementations
//   - Feature detection to handle unsupported operations gracefully
//   - Thread-safe operations for concurrent access
//
// Implementation Details:
//
//   - Expiry Handling: The injected engine runs in primary role, so its
//     own background sweep and passive checks reap expired fields. No
//     external coordination is needed on a single node.
//
//   - Feature Detection: Before executing operations, the store checks
//     whether the underlying hash.HashDB implementation supports the
//     requested feature through the SupportsFeature method. Unsupported
//     operations return appropriate error codes rather than failing
//     silently or producing undefined behavior.
//
//   - Composition Architecture: The store follows a composition pattern
//     where the store.DBFactory factory function injects the underlying
//     hash.HashDB implementation. This allows the store to work with any
//     compatible engine without modification.
//
// Thread Safety:
//
//	All operations in the local store are thread-safe. The underlying
//	hash.HashDB implementation provides the actual serialization
//	guarantees for storage operations.
//
// Usage Example:
//
//	// Create a store with a cedar engine backend
//	factory := func() hash.HashDB { return cedar.NewCedarDB(nil) }
//	store := lstore.NewLocalStore(factory)
//
//	// Store a session field with a 5-minute TTL
//	created, err := store.Set(0, "session:123", "token", tokenData,
//	    hash.SetOptions{TTL: 5 * time.Minute})
//
//	// Retrieve the field
//	value, version, exists, err := store.Get(0, "session:123", "token")
//
// Suitable Use Cases:
//
//	The local store is ideal for:
//	- Ephemeral data that doesn't need to survive process restarts
//	- Single-node applications where distributed consensus is not required
//	- Testing and development environments
//	- Runtime caching and session storage within a single process
//
// For distributed scenarios requiring consensus across multiple nodes,
// consider using the dstore package instead, which provides a RAFT-based
// implementation of the same interface with strong consistency
// guarantees.
package lstore
