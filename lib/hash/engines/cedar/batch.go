package cedar

import (
	"path"
	"sort"

	"github.com/ValentinKolb/hKV/lib/hash"
)

// --------------------------------------------------------------------------
// Core HashDB Interface Methods - Batch and Scan Operations
// --------------------------------------------------------------------------

// defaultScanCount bounds a Scan batch when the caller gives no count.
const defaultScanCount = 10

// SetMultiple inserts or updates several fields of one key (docs see
// hash/hash.go). The whole batch runs under one lock acquisition, so no
// other operation observes a partially applied batch.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) SetMultiple(ns int, key string, fields map[string][]byte, opts hash.SetOptions) error {
	// lexical order, map iteration is not deterministic
	names := make([]string, 0, len(fields))
	for field := range fields {
		names = append(names, field)
	}
	sort.Strings(names)

	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	for _, field := range names {
		if _, err := c.setLocked(ns, nsp, key, field, fields[field], opts, now); err != nil {
			return err
		}
	}
	return nil
}

// GetMultiple retrieves several fields in one pass (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) GetMultiple(ns int, key string, fields ...string) [][]byte {
	views := c.GetMultipleWithVersion(ns, key, fields...)
	values := make([][]byte, len(views))
	for i, view := range views {
		values[i] = view.Value
	}
	return values
}

// GetMultipleWithVersion retrieves several fields with their versions
// (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) GetMultipleWithVersion(ns int, key string, fields ...string) []hash.FieldView {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	views := make([]hash.FieldView, len(fields))
	for i, field := range fields {
		entry := c.liveField(nsp, key, field, now)
		if entry == nil {
			continue
		}
		views[i] = hash.FieldView{
			Value:   append([]byte(nil), entry.Value...),
			Version: entry.Version,
			Ok:      true,
		}
	}
	return views
}

// Scan iterates the live fields of a key in batches (docs see
// hash/hash.go). The cursor is an offset into the lexically sorted field
// names, so it stays valid across calls as long as the key is not
// written in between.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Scan(ns int, key string, cursor uint64, match string, count int, noValues bool) ([]string, [][]byte, uint64) {
	if count <= 0 {
		count = defaultScanCount
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()
	c.passiveExpire(ns, nsp, key, now)

	obj, ok := nsp.Keys.Load(key)
	if !ok {
		return nil, nil, 0
	}

	names := make([]string, 0, len(obj.Fields))
	for field := range obj.Fields {
		names = append(names, field)
	}
	sort.Strings(names)

	var (
		fields []string
		values [][]byte
	)
	i := int(cursor)
	for ; i < len(names) && len(fields) < count; i++ {
		field := names[i]
		entry := obj.Fields[field]
		if entry.Expired(now) {
			continue
		}
		if match != "" {
			// a malformed pattern matches nothing
			if ok, err := path.Match(match, field); err != nil || !ok {
				continue
			}
		}
		fields = append(fields, field)
		if !noValues {
			values = append(values, append([]byte(nil), entry.Value...))
		}
	}

	var next uint64
	if i < len(names) {
		next = uint64(i)
	}
	return fields, values, next
}
