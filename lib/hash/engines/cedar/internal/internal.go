package internal

import (
	"github.com/ValentinKolb/hKV/lib/hash/index"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// FieldEntry Type (field value with metadata)
// --------------------------------------------------------------------------

// FieldEntry stores one field of a hash key with its metadata.
type FieldEntry struct {
	Value    []byte // field value
	Version  uint64 // optimistic concurrency counter, 0 only before the first write
	ExpireAt uint64 // absolute expiry in ms, 0 = no TTL
}

// Expired reports whether the entry is due at the given time. ExpireAt 0
// never expires; the zero-delay sentinel 1 is always due.
func (e *FieldEntry) Expired(now uint64) bool {
	return e.ExpireAt != 0 && now >= e.ExpireAt
}

// --------------------------------------------------------------------------
// HashObject Type (one hash-typed key)
// --------------------------------------------------------------------------

// HashObject is the storage of one hash-typed key: its field table and
// the local expiry index over the fields that carry a TTL.
//
// Name holds the owning key name. Index entries at the namespace level
// reference the key by this name, so renames and moves must rewrite it.
type HashObject struct {
	Name    string
	Fields  map[string]*FieldEntry
	Expires index.Index
}

// NewHashObject creates an empty hash object for the given key name.
func NewHashObject(name string, mode index.Mode) *HashObject {
	return &HashObject{
		Name:    name,
		Fields:  make(map[string]*FieldEntry),
		Expires: index.New(mode),
	}
}

// --------------------------------------------------------------------------
// Namespace Type (one logical database)
// --------------------------------------------------------------------------

// Namespace is one logical database: a key table plus the namespace
// expiry index ordering keys by their soonest-expiring field, and the
// cumulative expiry counters that swap together with the index.
type Namespace struct {
	Keys    *xsync.MapOf[string, *HashObject]
	Expires index.Index

	ActiveExpired  uint64 // fields removed by the background sweep
	PassiveExpired uint64 // fields removed on access
}

// NewNamespace creates an empty namespace with the provided hasher for
// the key table.
func NewNamespace(mode index.Mode, hasher func(string, uint64) uint64) *Namespace {
	return &Namespace{
		Keys:    xsync.NewMapOfWithHasher[string, *HashObject](hasher),
		Expires: index.New(mode),
	}
}
