// Package internal provides the communication protocol structures and serialization
// logic for the dstore package. It defines the wire format used to transmit operations
// between the store client and the distributed state machine.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
// The package consists of two main components:
//
//   - Command System: Defines write operations (Set, IncrBy, ExpireAt, Sweep, etc.)
//     that modify the state of the engine. Commands are serialized and proposed to
//     the RAFT cluster, executed on the state machine, and produce results that are
//     returned to the client. The Command structure includes efficient binary
//     serialization.
//
//   - Query System: Defines read operations (Get, Exists, TTL, etc.) that retrieve
//     data from the engine without modifying its state. Queries are executed locally
//     on the state machine and therefore do not require serialization.
//
// Protocol Design:
//
//	The Command serialization format is optimized for:
//
//	- Minimal Size: Commands use a compact binary encoding that minimizes the amount
//	  of data transmitted over the network and stored in the RAFT log.
//
//	- Efficient Parsing: The format is designed for fast serialization and deserialization
//	  with minimal allocations.
//
//	- Determinism: Commands carry absolute expiry timestamps only. Relative TTLs are
//	  resolved by the proposing client, so applying a command never consults a clock
//	  and every node reaches the identical state.
//
// Command Format:
//
//	Commands are serialized into a binary format with the following structure:
//
//	- 1 byte: Command type
//	- 4 bytes: Namespace (uint32, big endian)
//	- 1 byte: Flags (NX/XX, KeepTTL, bound presence)
//	- 1 byte: Version mode
//	- 8 bytes: Version value (uint64, big endian)
//	- 8 bytes: Absolute expiry timestamp (uint64, big endian)
//	- 8 bytes: Aux value (delta, destination namespace or sweep budget)
//	- 4 bytes: Key length plus N bytes key data
//	- 4 bytes: Field length plus N bytes field data
//	- M bytes: Value data (optional; carries packed bounds for increments)
//
//	This format ensures efficient storage in the RAFT log while providing all
//	necessary information for the operation.
//
// Query Format:
//
//	Queries use a simpler structure as they are not persisted in the RAFT log:
//
//	- Type: The query operation to perform (Get, Exists, TTL, ...)
//	- NS, Key, Field: The target of the query (partially empty for some queries)
//
// Type Mapping:
//
//	The package provides bidirectional mapping between:
//	- Command types and hash.Feature flags for feature detection
//	- String representations for logging and debugging
//	- Command flags and the hash package's option structs (SetOptions,
//	  IncrOptions, IncrFloatOptions, VerOp)
//
// Thread Safety:
//
//	The types in this package are not thread-safe and should not be shared
//	across goroutines without external synchronization. However, this is not
//	typically an issue as the RAFT protocol ensures sequential processing of
//	commands on the state machine.
package internal
