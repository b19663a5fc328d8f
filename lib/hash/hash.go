package hash

import (
	"io"
	"time"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplCedar Implementation = "cedar"
)

// Feature represents engine features as bit flags
type Feature uint64

const (
	FeatureSet          Feature = 1 << iota // Support for field writes
	FeatureIncr                             // Support for numeric increments
	FeatureExpire                           // Support for per-field TTLs
	FeatureVersioning                       // Support for the versioned write contract
	FeatureActiveExpire                     // Support for the background expiry sweep
	FeatureKeyspace                         // Support for rename/move/flush/swap coordination
	FeatureSave                             // Support for snapshotting
	FeatureLoad                             // Support for snapshot recovery
	FeatureRewrite                          // Support for change-log rewrite export
	FeatureDigest                           // Support for consistency digests
)

func (f Feature) String() string {
	switch f {
	case FeatureSet:
		return "Set"
	case FeatureIncr:
		return "Incr"
	case FeatureExpire:
		return "Expire"
	case FeatureVersioning:
		return "Versioning"
	case FeatureActiveExpire:
		return "ActiveExpire"
	case FeatureKeyspace:
		return "Keyspace"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	case FeatureRewrite:
		return "Rewrite"
	case FeatureDigest:
		return "Digest"
	default:
		return "Unknown"
	}
}

// Role determines whether an engine instance is allowed to delete expired
// fields on its own. A replica reports expired fields as absent but keeps
// them in storage until the primary's explicit deletion arrives.
type Role uint8

const (
	RolePrimary Role = iota
	RoleReplica
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "Primary"
	case RoleReplica:
		return "Replica"
	default:
		return "Unknown"
	}
}

// TTL query sentinels, in milliseconds.
const (
	TTLNone    int64 = -1 // field exists but carries no TTL
	TTLNoKey   int64 = -2 // key does not exist
	TTLNoField int64 = -3 // key exists but the field does not
)

// ExpireImmediately is the absolute timestamp used for zero-delay expiry
// requests. Timestamp 0 is reserved to mean "no TTL", so an immediate
// expiry is stored as 1ms past the epoch instead.
const ExpireImmediately uint64 = 1

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	IndexMode         string         `json:"index_mode"`
	Namespaces        int            `json:"namespaces"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// ActiveExpireStats is the read-only view of the background sweep.
type ActiveExpireStats struct {
	Enabled           bool          `json:"enabled"`
	Period            time.Duration `json:"period"`
	NamespacesPerTick int           `json:"namespaces_per_tick"`
	KeysPerTick       int           `json:"keys_per_tick"`
	LastTick          time.Duration `json:"last_tick"`
	MaxTick           time.Duration `json:"max_tick"`
	AvgTick           time.Duration `json:"avg_tick"`
	ActiveExpired     []uint64      `json:"active_expired"`  // per namespace
	PassiveExpired    []uint64      `json:"passive_expired"` // per namespace
}

// FieldView is one field of a batch read. Ok is false when the field is
// absent or expired; Value is nil and Version 0 in that case.
type FieldView struct {
	Value   []byte
	Version uint64
	Ok      bool
}

// RewriteEntry is one field emitted by a change-log rewrite. Expiry is
// absolute and the version is meant to be replayed as an absolute value,
// so replay is independent of the clock at replay time.
type RewriteEntry struct {
	Key      string
	Field    string
	Value    []byte
	Version  uint64
	ExpireAt uint64 // 0 = no TTL
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// HashDB is the interface for hash engines whose fields carry independent
// expiry timestamps and version counters. A key addresses a collection of
// fields inside one of several namespaces; every operation names its
// namespace explicitly.
//
// Absent keys or fields are reported through ok booleans, never through
// errors. Errors carry a RetCode and are reserved for the taxonomy in
// errors.go: version conflicts, bounds violations, type mismatches and
// invalid operations.
//
// Namespace arguments must be in [0, Namespaces()); violating that is a
// programming error and panics.
type HashDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates a field. The returned bool is true if the
	// field was created. Writes blocked by the NX/XX flags return
	// (false, nil) and leave the field untouched; version conflicts
	// return a conflict error and also leave the field untouched.
	Set(ns int, key, field string, value []byte, opts SetOptions) (created bool, err error)

	// SetMultiple inserts or updates several fields of one key in a
	// single locked pass, applying the same options to every field in
	// lexical field order. The first field that fails stops the pass;
	// fields written before it remain written.
	SetMultiple(ns int, key string, fields map[string][]byte, opts SetOptions) error

	// SetVersion forces the stored version of a field to an absolute
	// value. Returns false if the key or field does not exist.
	SetVersion(ns int, key, field string, version uint64) (ok bool)

	// IncrBy adds delta to the integer value of a field, creating it at 0
	// first if absent. Fails with a bounds error on int64 overflow or when
	// the result leaves the configured [min, max] window, and with a
	// type-mismatch error if the stored value is not an integer.
	IncrBy(ns int, key, field string, delta int64, opts IncrOptions) (int64, error)

	// IncrByFloat is the float counterpart of IncrBy. Fails with a bounds
	// error when the result is not finite or leaves [min, max], and with a
	// type-mismatch error if the stored value is not a number.
	IncrByFloat(ns int, key, field string, delta float64, opts IncrFloatOptions) (float64, error)

	// Delete removes fields and returns how many existed. The key object
	// itself is removed once its last field is gone.
	Delete(ns int, key string, fields ...string) (deleted int)

	// DeleteWithVersion removes a field only if the given version matches
	// the stored one (0 = no check). A mismatch is a conflict error.
	DeleteWithVersion(ns int, key, field string, version uint64) (deleted bool, err error)

	// ExpireAt sets a field's expiry to an absolute ms timestamp, guarded
	// by the given version op. Timestamps not later than now expire the
	// field on its next access or sweep. Returns false if the key or
	// field does not exist.
	ExpireAt(ns int, key, field string, at uint64, ver VerOp) (ok bool, err error)

	// Expire is the relative variant of ExpireAt.
	Expire(ns int, key, field string, ttl time.Duration, ver VerOp) (ok bool, err error)

	// Persist removes a field's TTL without touching value or version.
	// Returns true if a TTL was removed.
	Persist(ns int, key, field string) (ok bool)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value of a field. Expired fields are absent.
	Get(ns int, key, field string) (value []byte, ok bool)

	// GetWithVersion retrieves value and version of a field.
	GetWithVersion(ns int, key, field string) (value []byte, version uint64, ok bool)

	// GetMultiple retrieves several fields in one pass. The result has
	// one entry per requested field, in request order, nil when the
	// field is absent.
	GetMultiple(ns int, key string, fields ...string) [][]byte

	// GetMultipleWithVersion is GetMultiple with version information.
	GetMultipleWithVersion(ns int, key string, fields ...string) []FieldView

	// Exists reports whether a field exists (and is not expired).
	Exists(ns int, key, field string) (ok bool)

	// StrLen returns the byte length of a field's value, 0 if absent.
	StrLen(ns int, key, field string) (length int)

	// TTL returns the remaining lifetime of a field in ms, or one of the
	// sentinels TTLNone, TTLNoKey, TTLNoField.
	TTL(ns int, key, field string) (ttl int64)

	// Version returns the stored version of a field.
	Version(ns int, key, field string) (version uint64, ok bool)

	// Len returns the number of fields of a key. With skipExpired the
	// count excludes fields that are due but not yet reaped; without it
	// the raw table size is returned (cheaper).
	Len(ns int, key string, skipExpired bool) (n int)

	// Fields returns the field names of a key, expired fields excluded.
	Fields(ns int, key string) []string

	// Values returns the field values of a key, expired fields excluded.
	// The order is unspecified but matches no particular Fields call.
	Values(ns int, key string) [][]byte

	// GetAll returns all live fields and values of a key.
	GetAll(ns int, key string) map[string][]byte

	// Scan iterates the live fields of a key in batches. Cursor 0 starts
	// a new iteration; the returned cursor resumes it and is 0 once the
	// iteration is complete. match filters field names with path.Match
	// globbing ("" matches all), count bounds the batch size (values
	// <= 0 select a default). With noValues only field names are
	// returned and values is nil. Concurrent writes between batches may
	// cause fields to be skipped or seen twice.
	Scan(ns int, key string, cursor uint64, match string, count int, noValues bool) (fields []string, values [][]byte, next uint64)

	// Digest returns a consistency digest over the field names and values
	// of a key. Version and expiry metadata are deliberately excluded so
	// replicas with in-flight TTL state still compare equal. Returns 0
	// for an absent key.
	Digest(ns int, key string) uint64

	// --------------------------------------------------------------------------
	// Keyspace Coordination
	// --------------------------------------------------------------------------

	// DeleteKey removes a key and all its fields. Returns true if the key
	// existed.
	DeleteKey(ns int, key string) (ok bool)

	// RenameKey renames a key within its namespace, replacing any
	// existing destination. The expiry index entries follow the key.
	RenameKey(ns int, oldKey, newKey string) error

	// MoveKey relocates a key into another namespace, replacing any
	// existing destination key there.
	MoveKey(srcNS, dstNS int, key string) error

	// FlushNamespace drops all keys of one namespace.
	FlushNamespace(ns int)

	// FlushAll drops all keys of all namespaces.
	FlushAll()

	// SwapNamespaces exchanges the complete contents of two namespaces,
	// including their expiry indexes and statistics counters.
	SwapNamespaces(a, b int)

	// --------------------------------------------------------------------------
	// Expiration Control
	// --------------------------------------------------------------------------

	// StartActiveExpire arms the background sweep. Arming an armed
	// scheduler is a no-op.
	StartActiveExpire()

	// StopActiveExpire disarms the background sweep. The stop takes
	// effect at the next tick boundary.
	StopActiveExpire()

	// ActiveExpireStats returns the current sweep statistics.
	ActiveExpireStats() ActiveExpireStats

	// SetRole switches the engine between primary and replica behavior.
	SetRole(role Role)

	// Role returns the current role.
	Role() Role

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the engine to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the engine state from an io.Reader. Fields with a
	// nonzero expiry are reinserted into both index levels.
	Load(r io.Reader) (err error)

	// ExportRewrite emits one entry per live field of the namespace, with
	// absolute expiry timestamps and absolute versions, skipping fields
	// already expired at call time.
	ExportRewrite(ns int, emit func(e RewriteEntry))

	// --------------------------------------------------------------------------
	// Introspection
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the engine supports the given feature.
	// Multiple features can be checked at once using bitwise OR.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the engine.
	GetInfo() (info DatabaseInfo)

	// Namespaces returns the number of namespaces the engine hosts.
	Namespaces() int

	// Close stops the scheduler and releases resources.
	Close() (err error)
}

// MetricsWriter is implemented by engines that expose their metrics in
// Prometheus text format. Callers type-assert since not every engine
// carries instrumentation.
type MetricsWriter interface {
	WriteMetrics(w io.Writer)
}

// Sweeper is implemented by engines whose expiry pass can be driven
// externally with an explicit timestamp, regardless of role. Replicated
// stores use this to apply a sweep command so every node reaps the same
// fields at the same logical time instead of consulting its own clock.
// Callers type-assert since not every engine supports it.
type Sweeper interface {
	// SweepAt reaps due fields in every namespace as of the supplied
	// millisecond timestamp, visiting at most keysPerNamespace keys per
	// namespace. Returns the number of keys fields were reaped from.
	SweepAt(now uint64, keysPerNamespace int) (reaped int)
}
