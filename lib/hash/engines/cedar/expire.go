package cedar

import (
	"fmt"

	"github.com/ValentinKolb/hKV/lib/hash"
	"github.com/ValentinKolb/hKV/lib/hash/engines/cedar/internal"
	"github.com/ValentinKolb/hKV/lib/hash/index"
)

// --------------------------------------------------------------------------
// Index maintenance (the insert/update/delete legs of the expiry
// algorithm). All of these run under c.mu.
// --------------------------------------------------------------------------

// applyExpiryChange reconciles both index levels after a field's expiry
// timestamp changed from oldAt to newAt (0 = no TTL on either side).
func (c *cedarImpl) applyExpiryChange(nsp *internal.Namespace, obj *internal.HashObject, field string, oldAt, newAt uint64) {
	switch {
	case oldAt == newAt:
		return
	case oldAt == 0:
		obj.Expires.Insert(newAt, field)
	case newAt == 0:
		obj.Expires.Delete(oldAt, field)
	default:
		obj.Expires.Update(oldAt, newAt, field)
	}
	c.syncNamespaceEntry(nsp, obj)
}

// expireDelete removes a field's local index entry after the field lost
// its TTL or was deleted without expiry being the cause.
func (c *cedarImpl) expireDelete(nsp *internal.Namespace, obj *internal.HashObject, field string, at uint64) {
	obj.Expires.Delete(at, field)
	c.syncNamespaceEntry(nsp, obj)
}

// syncNamespaceEntry keeps the namespace index invariant: a key is
// present iff its local index is non-empty, keyed by the local minimum.
// Insert acts as an upsert, so repeated syncs are idempotent.
func (c *cedarImpl) syncNamespaceEntry(nsp *internal.Namespace, obj *internal.HashObject) {
	if min, ok := obj.Expires.Min(); ok {
		nsp.Expires.Insert(min, obj.Name)
	} else {
		nsp.Expires.Delete(0, obj.Name)
	}
}

// deleteAndPropagate removes a field because it expired. The deletion is
// handed to the replicator so downstream replicas converge on an explicit
// command instead of evaluating wall-clock time themselves.
func (c *cedarImpl) deleteAndPropagate(ns int, nsp *internal.Namespace, obj *internal.HashObject, field string, entry *internal.FieldEntry, fromTimer bool) {
	delete(obj.Fields, field)
	if entry.ExpireAt != 0 {
		obj.Expires.Delete(entry.ExpireAt, field)
	}
	c.syncNamespaceEntry(nsp, obj)

	if fromTimer {
		nsp.ActiveExpired++
		c.metrics.activeExpired[ns].Inc()
	} else {
		nsp.PassiveExpired++
		c.metrics.passiveExpired[ns].Inc()
	}

	c.repl.FieldExpired(ns, obj.Name, field, fromTimer)
}

// --------------------------------------------------------------------------
// Passive expiration
// --------------------------------------------------------------------------

// passiveExpire opportunistically reaps due fields of one key. It runs at
// the start of every field operation, bounded by the passive budget. A
// replica never reaps; its reads filter due fields instead.
func (c *cedarImpl) passiveExpire(ns int, nsp *internal.Namespace, key string, now uint64) {
	if c.role != hash.RolePrimary {
		return
	}
	obj, ok := nsp.Keys.Load(key)
	if !ok {
		return
	}

	if c.cfg.IndexMode == index.ModeNone {
		c.sampleFields(ns, nsp, obj, now, c.cfg.PassiveBudget, false)
		c.dropIfEmpty(nsp, obj)
		return
	}

	for i := 0; i < c.cfg.PassiveBudget; i++ {
		at, field, ok := obj.Expires.Peek()
		if !ok || at > now {
			break
		}
		entry := obj.Fields[field]
		if entry == nil {
			panic(fmt.Sprintf("cedar: index entry for %q/%q without field entry", obj.Name, field))
		}
		if !entry.Expired(now) {
			// quantized index floor, the field itself is not due yet
			break
		}
		c.deleteAndPropagate(ns, nsp, obj, field, entry, false)
	}

	c.dropIfEmpty(nsp, obj)
}

// --------------------------------------------------------------------------
// Active expiration
// --------------------------------------------------------------------------

// activeExpireNamespace sweeps one namespace, bounded by the given key
// budget. Returns the number of keys it reaped fields from.
func (c *cedarImpl) activeExpireNamespace(ns int, now uint64, budget int) int {
	nsp := c.nss[ns]

	if c.cfg.IndexMode == index.ModeNone {
		return c.activeExpireBySampling(ns, nsp, now, budget)
	}

	visited := 0
	for visited < budget {
		at, keyName, ok := nsp.Expires.Peek()
		if !ok || at > now {
			break
		}

		obj, ok := nsp.Keys.Load(keyName)
		if !ok {
			// the namespace index may never outlive the key object
			panic(fmt.Sprintf("cedar: namespace index entry for %q without key object", keyName))
		}

		reaped := c.expireDueFields(ns, nsp, obj, now)
		c.dropIfEmpty(nsp, obj)

		if reaped == 0 {
			// earliest index entry is a quantized floor that is not due
			// yet, nothing further can be due either
			break
		}
		visited++
	}
	return visited
}

// expireDueFields reaps every due field of one key, walking the local
// index from its minimum.
func (c *cedarImpl) expireDueFields(ns int, nsp *internal.Namespace, obj *internal.HashObject, now uint64) int {
	reaped := 0
	for {
		at, field, ok := obj.Expires.Peek()
		if !ok || at > now {
			break
		}
		entry := obj.Fields[field]
		if entry == nil {
			panic(fmt.Sprintf("cedar: index entry for %q/%q without field entry", obj.Name, field))
		}
		if !entry.Expired(now) {
			break
		}
		c.deleteAndPropagate(ns, nsp, obj, field, entry, true)
		reaped++
	}
	return reaped
}

// activeExpireBySampling is the baseline fallback: without an index the
// sweep walks the key table directly, still bounded by the key budget.
func (c *cedarImpl) activeExpireBySampling(ns int, nsp *internal.Namespace, now uint64, budget int) int {
	visited := 0
	reapedFrom := 0
	nsp.Keys.Range(func(_ string, obj *internal.HashObject) bool {
		if c.sampleFields(ns, nsp, obj, now, len(obj.Fields), true) > 0 {
			reapedFrom++
		}
		c.dropIfEmpty(nsp, obj)
		visited++
		return visited < budget
	})
	return reapedFrom
}

// sampleFields checks up to budget fields of one key for due expiry and
// reaps the ones found. Map iteration order serves as the random sample.
func (c *cedarImpl) sampleFields(ns int, nsp *internal.Namespace, obj *internal.HashObject, now uint64, budget int, fromTimer bool) int {
	reaped := 0
	checked := 0
	for field, entry := range obj.Fields {
		if checked >= budget {
			break
		}
		checked++
		if entry.Expired(now) {
			c.deleteAndPropagate(ns, nsp, obj, field, entry, fromTimer)
			reaped++
		}
	}
	return reaped
}
