package store

import (
	"github.com/ValentinKolb/hKV/lib/hash"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new hash engine used by the
// store. This is used to abstract the creation of the engine from the
// store implementation.
type DBFactory func() hash.HashDB

// IStore is the generic interface for interacting with a hash store. A
// key addresses a collection of fields inside a numbered namespace; every
// field carries its own value, optional expiry and version counter.
//
// Absent keys or fields are reported through ok booleans. Errors carry
// the hash.RetCode taxonomy: version conflicts, bounds violations, type
// mismatches, unsupported and invalid operations, and internal transport
// failures.
//
// Relative TTLs in SetOptions are resolved against the clock of the node
// the call is issued on. Distributed implementations translate them into
// absolute timestamps before replication, so all replicas agree on the
// expiry regardless of clock skew.
type IStore interface {
	// Set inserts or updates a field. Returns true if the field was
	// created. Writes blocked by the NX/XX flags return (false, nil).
	Set(ns int, key, field string, value []byte, opts hash.SetOptions) (created bool, err error)

	// SetMultiple inserts or updates several fields of one key with the
	// same options. The first field that fails stops the batch; fields
	// written before it remain written.
	SetMultiple(ns int, key string, fields map[string][]byte, opts hash.SetOptions) error

	// IncrBy adds delta to the integer value of a field, creating it at 0
	// first if absent, and returns the new value.
	IncrBy(ns int, key, field string, delta int64, opts hash.IncrOptions) (int64, error)

	// IncrByFloat is the float counterpart of IncrBy.
	IncrByFloat(ns int, key, field string, delta float64, opts hash.IncrFloatOptions) (float64, error)

	// Delete removes fields and returns how many existed.
	Delete(ns int, key string, fields ...string) (deleted int, err error)

	// DeleteWithVersion removes a field only if the given version matches
	// the stored one (0 = no check).
	DeleteWithVersion(ns int, key, field string, version uint64) (deleted bool, err error)

	// ExpireAt sets a field's expiry to an absolute ms timestamp, guarded
	// by the given version op.
	ExpireAt(ns int, key, field string, at uint64, ver hash.VerOp) (ok bool, err error)

	// Persist removes a field's TTL without touching value or version.
	Persist(ns int, key, field string) (ok bool, err error)

	// Get retrieves value and version of a field. Expired fields are
	// absent.
	Get(ns int, key, field string) (value []byte, version uint64, ok bool, err error)

	// GetMultiple retrieves several fields in one pass, one view per
	// requested field in request order.
	GetMultiple(ns int, key string, fields ...string) ([]hash.FieldView, error)

	// Exists reports whether a field exists (and is not expired).
	Exists(ns int, key, field string) (ok bool, err error)

	// TTL returns the remaining lifetime of a field in ms, or one of the
	// sentinels hash.TTLNone, hash.TTLNoKey, hash.TTLNoField.
	TTL(ns int, key, field string) (ttl int64, err error)

	// Len returns the number of live fields of a key.
	Len(ns int, key string) (n int, err error)

	// Fields returns the field names of a key, expired fields excluded.
	Fields(ns int, key string) ([]string, error)

	// GetAll returns all live fields and values of a key.
	GetAll(ns int, key string) (map[string][]byte, error)

	// Scan iterates the live fields of a key in cursor batches (see
	// hash.HashDB.Scan for the cursor and match contract).
	Scan(ns int, key string, cursor uint64, match string, count int, noValues bool) (fields []string, values [][]byte, next uint64, err error)

	// Digest returns the consistency digest of a key, 0 if absent.
	Digest(ns int, key string) (uint64, error)

	// DeleteKey removes a key and all its fields.
	DeleteKey(ns int, key string) error

	// RenameKey renames a key within its namespace, replacing any
	// existing destination.
	RenameKey(ns int, oldKey, newKey string) error

	// MoveKey relocates a key into another namespace.
	MoveKey(srcNS, dstNS int, key string) error

	// FlushNamespace drops all keys of one namespace.
	FlushNamespace(ns int) error

	// FlushAll drops all keys of all namespaces.
	FlushAll() error

	// SwapNamespaces exchanges the complete contents of two namespaces.
	SwapNamespaces(a, b int) error

	// GetDBInfo returns metadata about the engine underlying the store.
	// It is not guaranteed that all fields are filled in or that the
	// information is up-to-date!
	GetDBInfo() (info hash.DatabaseInfo, err error)
}
