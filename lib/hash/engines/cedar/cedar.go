package cedar

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/hKV/lib/hash"
	"github.com/ValentinKolb/hKV/lib/hash/engines/cedar/internal"
	"github.com/ValentinKolb/hKV/lib/hash/index"
	"github.com/ValentinKolb/hKV/lib/hash/util"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for engine behavior and structure
const (
	magicNum     = "CEDARDB\x00" // File format identifier
	cedarVersion = 1             // Snapshot format version

	defaultNamespaces    = 16              // Logical databases per engine
	defaultActivePeriod  = 1 * time.Second // Interval between sweep ticks
	defaultNSPerTick     = 16              // Namespaces visited per tick
	defaultKeysPerTick   = 1000            // Keys swept per namespace per tick
	defaultPassiveBudget = 3               // Fields checked per passive pass
	avgTickWindow        = 10              // Ticks per average recomputation
)

// --------------------------------------------------------------------------
// Core Cedar engine structure
// --------------------------------------------------------------------------

// cedarImpl implements hash.HashDB: a set of namespaces, each holding
// hash-typed keys whose fields carry independent expiry timestamps and
// version counters, plus the background sweep that reaps expired fields.
type cedarImpl struct {
	cfg    Config
	seed   uint64 // seed for the key table hashers
	hasher func(string, uint64) uint64
	nss    []*internal.Namespace
	repl   hash.Replicator
	role   hash.Role

	// mu serializes every mutation, including sweep ticks, so the field
	// tables and both index levels never see interleaved writes.
	mu sync.Mutex

	// background sweep
	sweepEnabled atomic.Bool
	sweepArmed   atomic.Bool
	cursor       int // rotating namespace cursor

	// tick statistics, guarded by mu
	lastTick  time.Duration
	maxTick   time.Duration
	avgTick   time.Duration
	tickCount uint64
	tickSum   time.Duration

	metrics *engineMetrics
}

// Config configures the cedar engine during initialization.
type Config struct {
	Namespaces        int             // Number of logical databases (0 = default: 16)
	IndexMode         index.Mode      // Expiry index strategy ("" = default: sorted)
	ActivePeriod      time.Duration   // Interval between sweep ticks (0 = default: 1s)
	NamespacesPerTick int             // Namespaces visited per tick (0 = default: 16)
	KeysPerTick       int             // Keys swept per namespace per tick (0 = default: 1000)
	PassiveBudget     int             // Fields checked per passive pass (0 = default: 3)
	Now               func() uint64   // Millisecond clock (nil = wall clock)
	Replicator        hash.Replicator // Sink for expiry-caused deletions (nil = drop)
}

// DefaultConfig returns the default cedar configuration.
func DefaultConfig() *Config {
	return &Config{
		Namespaces:        defaultNamespaces,
		IndexMode:         index.ModeSorted,
		ActivePeriod:      defaultActivePeriod,
		NamespacesPerTick: defaultNSPerTick,
		KeysPerTick:       defaultKeysPerTick,
		PassiveBudget:     defaultPassiveBudget,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewCedarDB creates a new cedar engine with the specified config
// (optional) and arms the background sweep.
//
// Thread-safety: This function is not thread-safe and should only be
// called once per engine during initialization.
func NewCedarDB(cfg *Config) hash.HashDB {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg

	if c.Namespaces <= 0 {
		c.Namespaces = defaultNamespaces
	}
	if c.IndexMode == "" {
		c.IndexMode = index.ModeSorted
	}
	if c.ActivePeriod <= 0 {
		c.ActivePeriod = defaultActivePeriod
	}
	if c.NamespacesPerTick <= 0 {
		c.NamespacesPerTick = defaultNSPerTick
	}
	if c.KeysPerTick <= 0 {
		c.KeysPerTick = defaultKeysPerTick
	}
	if c.PassiveBudget <= 0 {
		c.PassiveBudget = defaultPassiveBudget
	}
	if c.Now == nil {
		c.Now = func() uint64 { return uint64(time.Now().UnixMilli()) }
	}
	if c.Replicator == nil {
		c.Replicator = hash.NopReplicator{}
	}

	seed := util.GenerateSeed()
	hasher := createKeyHasher(seed)

	nss := make([]*internal.Namespace, c.Namespaces)
	for i := range nss {
		nss[i] = internal.NewNamespace(c.IndexMode, hasher)
	}

	engine := &cedarImpl{
		cfg:     c,
		seed:    seed,
		hasher:  hasher,
		nss:     nss,
		repl:    c.Replicator,
		role:    hash.RolePrimary,
		metrics: newEngineMetrics(c.Namespaces),
	}

	engine.StartActiveExpire()

	return engine
}

// createKeyHasher creates the hash function for the key tables, mixing
// the engine seed into every digest.
func createKeyHasher(seed uint64) func(string, uint64) uint64 {
	return func(key string, mapSeed uint64) uint64 {
		return util.HashString(key, seed) ^ mapSeed
	}
}

// namespace resolves a namespace argument. An out-of-range namespace is a
// programming error and panics rather than corrupting another namespace.
func (c *cedarImpl) namespace(ns int) *internal.Namespace {
	if ns < 0 || ns >= len(c.nss) {
		panic(fmt.Sprintf("cedar: namespace %d out of range [0,%d)", ns, len(c.nss)))
	}
	return c.nss[ns]
}

// --------------------------------------------------------------------------
// Core HashDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates a field (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Set(ns int, key, field string, value []byte, opts hash.SetOptions) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	return c.setLocked(ns, nsp, key, field, value, opts, now)
}

// setLocked is the write core shared by Set and SetMultiple. Caller
// holds c.mu.
func (c *cedarImpl) setLocked(ns int, nsp *internal.Namespace, key, field string, value []byte, opts hash.SetOptions, now uint64) (bool, error) {
	obj, objLoaded := nsp.Keys.Load(key)

	var entry, dead *internal.FieldEntry
	if objLoaded {
		entry, dead = c.writeTarget(ns, nsp, obj, field, now)
	}

	// existence gates are not errors, the write is simply skipped
	if entry != nil && opts.Exist == hash.ExistNX {
		return false, nil
	}
	if entry == nil && opts.Exist == hash.ExistXX {
		if objLoaded {
			c.dropIfEmpty(nsp, obj)
		}
		return false, nil
	}

	// a write that creates the field never fails its version check, the
	// counter chain starts over
	var stored uint64
	if entry != nil {
		stored = entry.Version
		if !opts.Version.Check(stored) {
			return false, hash.NewError(hash.RetCVersionConflict,
				fmt.Sprintf("update version is stale for field %q", field))
		}
	}

	at, keep := opts.AbsoluteExpiry(now)

	if !objLoaded {
		obj = internal.NewHashObject(key, c.cfg.IndexMode)
		nsp.Keys.Store(key, obj)
	}

	created := entry == nil
	if created {
		if dead != nil {
			// replica: the stale entry is overwritten in place
			entry = dead
		} else {
			entry = &internal.FieldEntry{}
			obj.Fields[field] = entry
		}
	}

	oldAt := entry.ExpireAt
	entry.Value = append([]byte(nil), value...)
	entry.Version = opts.Version.Next(stored)
	if !keep {
		entry.ExpireAt = at
	} else if created {
		// a field created by this write has no TTL to keep
		entry.ExpireAt = 0
	}

	c.applyExpiryChange(nsp, obj, field, oldAt, entry.ExpireAt)
	return created, nil
}

// SetVersion forces the stored version of a field (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) SetVersion(ns int, key, field string, version uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	entry := c.liveField(nsp, key, field, now)
	if entry == nil {
		return false
	}
	entry.Version = version
	return true
}

// IncrBy adds delta to the integer value of a field (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) IncrBy(ns int, key, field string, delta int64, opts hash.IncrOptions) (int64, error) {
	if opts.Min != nil && opts.Max != nil && *opts.Min > *opts.Max {
		return 0, hash.NewError(hash.RetCOutOfBounds, "min value is bigger than max value")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	obj, objLoaded := nsp.Keys.Load(key)

	var (
		entry, dead *internal.FieldEntry
		cur         int64
	)
	if objLoaded {
		entry, dead = c.writeTarget(ns, nsp, obj, field, now)
	}
	if entry != nil {
		parsed, err := strconv.ParseInt(string(entry.Value), 10, 64)
		if err != nil {
			return 0, hash.NewError(hash.RetCTypeMismatch, "value is not an integer")
		}
		cur = parsed
	}

	// a write that creates the field never fails its version check
	var stored uint64
	if entry != nil {
		stored = entry.Version
		if !opts.Version.Check(stored) {
			return 0, hash.NewError(hash.RetCVersionConflict,
				fmt.Sprintf("update version is stale for field %q", field))
		}
	}

	// exact overflow check, no float detour
	if (delta > 0 && cur > math.MaxInt64-delta) || (delta < 0 && cur < math.MinInt64-delta) {
		return 0, hash.NewError(hash.RetCOutOfBounds, "increment or decrement would overflow")
	}
	result := cur + delta
	if (opts.Min != nil && result < *opts.Min) || (opts.Max != nil && result > *opts.Max) {
		if objLoaded {
			c.dropIfEmpty(nsp, obj)
		}
		return 0, hash.NewError(hash.RetCOutOfBounds, "increment or decrement would exceed the given bounds")
	}

	at, keep := opts.AbsoluteExpiry(now)

	if !objLoaded {
		obj = internal.NewHashObject(key, c.cfg.IndexMode)
		nsp.Keys.Store(key, obj)
	}
	created := entry == nil
	if created {
		if dead != nil {
			// replica: the stale entry is overwritten in place
			entry = dead
		} else {
			entry = &internal.FieldEntry{}
			obj.Fields[field] = entry
		}
	}

	oldAt := entry.ExpireAt
	entry.Value = []byte(strconv.FormatInt(result, 10))
	entry.Version = opts.Version.Next(stored)
	if !keep {
		entry.ExpireAt = at
	} else if created {
		// a field created by this write has no TTL to keep
		entry.ExpireAt = 0
	}

	c.applyExpiryChange(nsp, obj, field, oldAt, entry.ExpireAt)
	return result, nil
}

// IncrByFloat adds delta to the float value of a field (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) IncrByFloat(ns int, key, field string, delta float64, opts hash.IncrFloatOptions) (float64, error) {
	if opts.Min != nil && opts.Max != nil && *opts.Min > *opts.Max {
		return 0, hash.NewError(hash.RetCOutOfBounds, "min value is bigger than max value")
	}
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return 0, hash.NewError(hash.RetCOutOfBounds, "increment would produce NaN or Infinity")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	obj, objLoaded := nsp.Keys.Load(key)

	var (
		entry, dead *internal.FieldEntry
		cur         float64
	)
	if objLoaded {
		entry, dead = c.writeTarget(ns, nsp, obj, field, now)
	}
	if entry != nil {
		parsed, err := strconv.ParseFloat(string(entry.Value), 64)
		if err != nil {
			return 0, hash.NewError(hash.RetCTypeMismatch, "value is not a float")
		}
		cur = parsed
	}

	// a write that creates the field never fails its version check
	var stored uint64
	if entry != nil {
		stored = entry.Version
		if !opts.Version.Check(stored) {
			return 0, hash.NewError(hash.RetCVersionConflict,
				fmt.Sprintf("update version is stale for field %q", field))
		}
	}

	result := cur + delta
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, hash.NewError(hash.RetCOutOfBounds, "increment would produce NaN or Infinity")
	}
	if (opts.Min != nil && result < *opts.Min) || (opts.Max != nil && result > *opts.Max) {
		if objLoaded {
			c.dropIfEmpty(nsp, obj)
		}
		return 0, hash.NewError(hash.RetCOutOfBounds, "increment or decrement would exceed the given bounds")
	}

	at, keep := opts.AbsoluteExpiry(now)

	if !objLoaded {
		obj = internal.NewHashObject(key, c.cfg.IndexMode)
		nsp.Keys.Store(key, obj)
	}
	created := entry == nil
	if created {
		if dead != nil {
			// replica: the stale entry is overwritten in place
			entry = dead
		} else {
			entry = &internal.FieldEntry{}
			obj.Fields[field] = entry
		}
	}

	oldAt := entry.ExpireAt
	entry.Value = []byte(strconv.FormatFloat(result, 'f', -1, 64))
	entry.Version = opts.Version.Next(stored)
	if !keep {
		entry.ExpireAt = at
	} else if created {
		// a field created by this write has no TTL to keep
		entry.ExpireAt = 0
	}

	c.applyExpiryChange(nsp, obj, field, oldAt, entry.ExpireAt)
	return result, nil
}

// Delete removes fields (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Delete(ns int, key string, fields ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	obj, ok := nsp.Keys.Load(key)
	if !ok {
		return 0
	}

	deleted := 0
	for _, field := range fields {
		entry := obj.Fields[field]
		if entry == nil {
			continue
		}
		// a replica applies deletes to raw storage: a locally due field may
		// be exactly what the primary's replicated expiry delete targets
		if c.role == hash.RolePrimary && entry.Expired(now) {
			continue
		}
		c.removeField(nsp, obj, field, entry)
		deleted++
	}

	c.dropIfEmpty(nsp, obj)
	return deleted
}

// DeleteWithVersion removes a field guarded by a version check (docs see
// hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) DeleteWithVersion(ns int, key, field string, version uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	obj, ok := nsp.Keys.Load(key)
	if !ok {
		return false, nil
	}
	entry := obj.Fields[field]
	if entry == nil || (c.role == hash.RolePrimary && entry.Expired(now)) {
		return false, nil
	}
	if version != 0 && version != entry.Version {
		return false, hash.NewError(hash.RetCVersionConflict,
			fmt.Sprintf("update version is stale for field %q", field))
	}

	c.removeField(nsp, obj, field, entry)
	c.dropIfEmpty(nsp, obj)
	return true, nil
}

// ExpireAt sets a field's absolute expiry (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) ExpireAt(ns int, key, field string, at uint64, ver hash.VerOp) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	obj, ok := nsp.Keys.Load(key)
	if !ok {
		return false, nil
	}
	entry := obj.Fields[field]
	if entry == nil || entry.Expired(now) {
		return false, nil
	}
	if !ver.Check(entry.Version) {
		return false, hash.NewError(hash.RetCVersionConflict,
			fmt.Sprintf("update version is stale for field %q", field))
	}

	// 0 would collide with the "no TTL" sentinel
	if at == 0 {
		at = hash.ExpireImmediately
	}

	oldAt := entry.ExpireAt
	entry.ExpireAt = at
	c.applyExpiryChange(nsp, obj, field, oldAt, at)
	return true, nil
}

// Expire is the relative variant of ExpireAt (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Expire(ns int, key, field string, ttl time.Duration, ver hash.VerOp) (bool, error) {
	var at uint64
	if ms := ttl.Milliseconds(); ms > 0 {
		at = c.cfg.Now() + uint64(ms)
	} else {
		at = hash.ExpireImmediately
	}
	return c.ExpireAt(ns, key, field, at, ver)
}

// Persist clears a field's TTL (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Persist(ns int, key, field string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	obj, ok := nsp.Keys.Load(key)
	if !ok {
		return false
	}
	entry := obj.Fields[field]
	if entry == nil || entry.Expired(now) || entry.ExpireAt == 0 {
		return false
	}

	oldAt := entry.ExpireAt
	entry.ExpireAt = 0
	c.applyExpiryChange(nsp, obj, field, oldAt, 0)
	return true
}

// --------------------------------------------------------------------------
// Internal helpers shared by the write paths
// --------------------------------------------------------------------------

// writeTarget resolves the entry a write must treat as the field's
// current state. A due entry is logically absent and must not gate or
// version the write: a primary reaps it on the spot, before any other
// write logic runs; a replica leaves it in storage and reports it via
// dead so the write can overwrite it in place.
func (c *cedarImpl) writeTarget(ns int, nsp *internal.Namespace, obj *internal.HashObject, field string, now uint64) (entry, dead *internal.FieldEntry) {
	entry = obj.Fields[field]
	if entry == nil || !entry.Expired(now) {
		return entry, nil
	}
	if c.role == hash.RolePrimary {
		c.deleteAndPropagate(ns, nsp, obj, field, entry, false)
		return nil, nil
	}
	return nil, entry
}

// liveField returns the entry for a field if it exists and is not due.
func (c *cedarImpl) liveField(nsp *internal.Namespace, key, field string, now uint64) *internal.FieldEntry {
	obj, ok := nsp.Keys.Load(key)
	if !ok {
		return nil
	}
	entry := obj.Fields[field]
	if entry == nil || entry.Expired(now) {
		return nil
	}
	return entry
}

// removeField deletes a field from the table and its index entry. The
// namespace index entry of the owning key is resynced by the caller via
// dropIfEmpty or applyExpiryChange; removeField handles it directly.
func (c *cedarImpl) removeField(nsp *internal.Namespace, obj *internal.HashObject, field string, entry *internal.FieldEntry) {
	delete(obj.Fields, field)
	if entry.ExpireAt != 0 {
		c.expireDelete(nsp, obj, field, entry.ExpireAt)
	}
}

// dropIfEmpty destroys a key object once its field table is empty. The
// replica guard lives in the expiry entry points: a replica never reaps,
// so it only ever gets here while applying an explicit command.
func (c *cedarImpl) dropIfEmpty(nsp *internal.Namespace, obj *internal.HashObject) {
	if len(obj.Fields) > 0 {
		return
	}
	nsp.Keys.Delete(obj.Name)
	nsp.Expires.Delete(0, obj.Name)
}
