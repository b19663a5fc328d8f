package cedar

import (
	"github.com/ValentinKolb/hKV/lib/hash"
)

// --------------------------------------------------------------------------
// Core HashDB Interface Methods - Query Operations
//
// Reads on a primary reap due fields passively before answering; on a
// replica they only filter them out, leaving storage untouched.
// --------------------------------------------------------------------------

// Get retrieves the value of a field (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Get(ns int, key, field string) ([]byte, bool) {
	value, _, ok := c.GetWithVersion(ns, key, field)
	return value, ok
}

// GetWithVersion retrieves value and version of a field (docs see
// hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) GetWithVersion(ns int, key, field string) ([]byte, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	entry := c.liveField(nsp, key, field, now)
	if entry == nil {
		return nil, 0, false
	}

	// return a copy, callers must not be able to mutate stored state
	value := append([]byte(nil), entry.Value...)
	return value, entry.Version, true
}

// Exists reports whether a field exists (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Exists(ns int, key, field string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	return c.liveField(nsp, key, field, now) != nil
}

// StrLen returns the byte length of a field's value (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) StrLen(ns int, key, field string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	entry := c.liveField(nsp, key, field, now)
	if entry == nil {
		return 0
	}
	return len(entry.Value)
}

// TTL returns the remaining lifetime of a field in ms (docs see
// hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) TTL(ns int, key, field string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	obj, ok := nsp.Keys.Load(key)
	if !ok {
		return hash.TTLNoKey
	}
	entry := obj.Fields[field]
	if entry == nil || entry.Expired(now) {
		return hash.TTLNoField
	}
	if entry.ExpireAt == 0 {
		return hash.TTLNone
	}
	return int64(entry.ExpireAt - now)
}

// Version returns the stored version of a field (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Version(ns int, key, field string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	entry := c.liveField(nsp, key, field, now)
	if entry == nil {
		return 0, false
	}
	return entry.Version, true
}

// Len returns the number of fields of a key (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Len(ns int, key string, skipExpired bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	obj, ok := nsp.Keys.Load(key)
	if !ok {
		return 0
	}
	if !skipExpired {
		return len(obj.Fields)
	}

	n := 0
	for _, entry := range obj.Fields {
		if !entry.Expired(now) {
			n++
		}
	}
	return n
}

// Fields returns the live field names of a key (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Fields(ns int, key string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	obj, ok := nsp.Keys.Load(key)
	if !ok {
		return nil
	}

	fields := make([]string, 0, len(obj.Fields))
	for field, entry := range obj.Fields {
		if entry.Expired(now) {
			continue
		}
		fields = append(fields, field)
	}
	return fields
}

// Values returns the live values of a key (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Values(ns int, key string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	obj, ok := nsp.Keys.Load(key)
	if !ok {
		return nil
	}

	values := make([][]byte, 0, len(obj.Fields))
	for _, entry := range obj.Fields {
		if entry.Expired(now) {
			continue
		}
		values = append(values, append([]byte(nil), entry.Value...))
	}
	return values
}

// GetAll returns all live fields and values of a key (docs see
// hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) GetAll(ns int, key string) map[string][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	obj, ok := nsp.Keys.Load(key)
	if !ok {
		return nil
	}

	all := make(map[string][]byte, len(obj.Fields))
	for field, entry := range obj.Fields {
		if entry.Expired(now) {
			continue
		}
		all[field] = append([]byte(nil), entry.Value...)
	}
	return all
}
