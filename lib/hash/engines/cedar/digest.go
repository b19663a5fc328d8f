package cedar

import (
	"github.com/ValentinKolb/hKV/lib/hash/engines/cedar/internal"
	"github.com/cespare/xxhash/v2"
)

// Digest returns a consistency digest over a key (docs see hash/hash.go).
//
// Each live field contributes the hash of its name and value; the
// contributions are combined with XOR so the digest is independent of
// iteration order. Version and expiry metadata are deliberately left
// out: two replicas with the same logical contents but different
// in-flight TTL/version state must still compare equal. Returns 0 for
// an absent key or a key with no live fields.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Digest(ns int, key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()

	obj, ok := nsp.Keys.Load(key)
	if !ok {
		return 0
	}

	var acc uint64
	for field, entry := range obj.Fields {
		if entry.Expired(now) {
			continue
		}
		acc ^= fieldDigest(field, entry)
	}
	return acc
}

// fieldDigest hashes one field's name and value.
func fieldDigest(field string, entry *internal.FieldEntry) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(field)
	_, _ = d.Write(entry.Value)
	return d.Sum64()
}
