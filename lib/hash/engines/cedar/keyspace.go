package cedar

import (
	"fmt"

	"github.com/ValentinKolb/hKV/lib/hash"
	"github.com/ValentinKolb/hKV/lib/hash/engines/cedar/internal"
)

// --------------------------------------------------------------------------
// Core HashDB Interface Methods - Keyspace Coordination
//
// The host keyspace notifies the engine of key-level events (delete,
// rename, move, flush, swap). Each of them must keep the namespace index
// invariant intact: an index entry exists iff the key has expiring fields.
// --------------------------------------------------------------------------

// DeleteKey removes a key and all its fields (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) DeleteKey(ns int, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	return c.deleteKeyLocked(nsp, key)
}

// deleteKeyLocked removes a key object and its index entries. Caller
// holds c.mu.
func (c *cedarImpl) deleteKeyLocked(nsp *internal.Namespace, key string) bool {
	_, ok := nsp.Keys.Load(key)
	if !ok {
		return false
	}
	nsp.Keys.Delete(key)
	nsp.Expires.Delete(0, key)
	return true
}

// RenameKey renames a key within its namespace (docs see hash/hash.go).
// The namespace index entry is rewritten in place: a rename changes the
// key's identity, never its expiry time.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) RenameKey(ns int, oldKey, newKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)

	obj, ok := nsp.Keys.Load(oldKey)
	if !ok {
		return hash.NewError(hash.RetCInvalidOperation, fmt.Sprintf("no such key %q", oldKey))
	}
	if oldKey == newKey {
		return nil
	}

	// rename replaces an existing destination
	c.deleteKeyLocked(nsp, newKey)

	nsp.Keys.Delete(oldKey)
	obj.Name = newKey
	nsp.Keys.Store(newKey, obj)

	if _, hasExpiring := obj.Expires.Min(); hasExpiring {
		nsp.Expires.Rename(0, oldKey, newKey)
	}
	return nil
}

// MoveKey relocates a key into another namespace (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) MoveKey(srcNS, dstNS int, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	src := c.namespace(srcNS)
	dst := c.namespace(dstNS)

	obj, ok := src.Keys.Load(key)
	if !ok {
		return hash.NewError(hash.RetCInvalidOperation, fmt.Sprintf("no such key %q", key))
	}
	if srcNS == dstNS {
		return nil
	}

	// move replaces an existing destination
	c.deleteKeyLocked(dst, key)

	src.Keys.Delete(key)
	src.Expires.Delete(0, key)

	dst.Keys.Store(key, obj)
	if min, hasExpiring := obj.Expires.Min(); hasExpiring {
		dst.Expires.Insert(min, key)
	}
	return nil
}

// FlushNamespace drops all keys of one namespace (docs see hash/hash.go).
// The namespace is replaced wholesale so an in-flight sweep can never
// observe a half-emptied index; the cumulative expiry counters survive.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) FlushNamespace(ns int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked(ns)
}

// FlushAll drops all keys of all namespaces (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) FlushAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ns := range c.nss {
		c.flushLocked(ns)
	}
}

// flushLocked replaces one namespace with an empty one. Caller holds c.mu.
func (c *cedarImpl) flushLocked(ns int) {
	old := c.namespace(ns)
	fresh := internal.NewNamespace(c.cfg.IndexMode, c.hasher)
	fresh.ActiveExpired = old.ActiveExpired
	fresh.PassiveExpired = old.PassiveExpired
	c.nss[ns] = fresh
}

// SwapNamespaces exchanges the contents of two namespaces (docs see
// hash/hash.go). Swapping the namespace structures swaps key tables,
// expiry indexes and statistics counters as one unit.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) SwapNamespaces(a, b int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a == b {
		return
	}
	nspA, nspB := c.namespace(a), c.namespace(b)
	c.nss[a], c.nss[b] = nspB, nspA
}
