// Package store provides a high-level interface for hash storage
// operations with per-field expiration, versioning and unified error
// handling. It serves as an abstraction layer over the lower-level
// hash.HashDB engines, adding expiry-timestamp normalization and
// standardized error reporting.
//
// The package focuses on:
//   - A unified interface (IStore) for hash-field operations across different backends
//   - Pluggable storage backend architecture through the DBFactory pattern
//
// Key Components:
//
//   - IStore Interface: The core abstraction defining operations for
//     interacting with a hash store. All implementations share this common
//     interface, allowing applications to switch between different storage
//     backends without code changes. The interface methods return errors
//     carrying the hash.RetCode taxonomy, so applications can distinguish
//     version conflicts from bounds violations, type mismatches and
//     transport failures.
//
//   - DBFactory: A function type that abstracts the creation of the
//     underlying hash.HashDB instances, providing dependency injection and
//     flexible configuration of storage backends.
//
// Implementations:
//
//	The package includes two implementations of the IStore interface:
//
//	- Local Store (lstore): A simple, non-distributed implementation that
//	  directly utilizes a hash.HashDB instance. The engine runs in primary
//	  role with its own background sweep, so expired fields disappear
//	  without any external coordination. This implementation is suitable
//	  for single-node applications where distributed consensus is not
//	  required. Available in the "github.com/ValentinKolb/hKV/lib/store/lstore" package.
//
//	- Distributed Store (dstore): An implementation built on the Dragonboat
//	  RAFT consensus library. It distributes storage operations across
//	  multiple nodes with strong consistency guarantees, turning every
//	  time-dependent deletion into a replicated command so all nodes
//	  converge on identical state. This implementation is appropriate for
//	  multi-node deployments requiring fault tolerance and high
//	  availability. Available in the "github.com/ValentinKolb/hKV/lib/store/dstore" package.
//
// This interface-driven approach allows applications to:
//   - Switch between local and distributed storage depending on deployment requirements
//   - Handle errors in a consistent and type-safe manner across implementations
//   - Abstract storage implementation details from application logic
package store
