package cedar

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ValentinKolb/hKV/lib/hash"
	"github.com/ValentinKolb/hKV/lib/hash/engines/cedar/internal"
	"github.com/ValentinKolb/hKV/lib/hash/index"
)

// --------------------------------------------------------------------------
// Core HashDB Interface Methods - Persistence Operations
//
// Snapshot layout (little endian):
//
//	magic "CEDARDB\x00"
//	uint8  format version
//	uint32 namespace count
//	per namespace:
//	  uint64 key count
//	  per key:
//	    uint64 field count
//	    uint32 key length, key bytes
//	    per field:
//	      uint32 field length, field bytes
//	      uint64 version
//	      uint64 expiry timestamp (0 = no TTL)
//	      uint32 value length, value bytes
//
// Fields are written verbatim, including ones already due: whether a due
// field may be dropped is a role decision that belongs to the primary's
// sweep, not to whoever happens to snapshot.
// --------------------------------------------------------------------------

// Save persists the engine state to the writer (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Save(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 1 MB buffer for better performance
	bw := bufio.NewWriterSize(w, 1024*1024)

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(cedarVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(c.nss))); err != nil {
		return err
	}

	for _, nsp := range c.nss {
		if err := binary.Write(bw, binary.LittleEndian, uint64(nsp.Keys.Size())); err != nil {
			return err
		}

		var rangeErr error
		nsp.Keys.Range(func(key string, obj *internal.HashObject) bool {
			if rangeErr = writeKey(bw, key, obj); rangeErr != nil {
				return false
			}
			return true
		})
		if rangeErr != nil {
			return rangeErr
		}
	}

	return bw.Flush()
}

// writeKey serializes one key with all its fields.
func writeKey(bw *bufio.Writer, key string, obj *internal.HashObject) error {
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(obj.Fields))); err != nil {
		return err
	}
	if err := writeBlob(bw, []byte(key)); err != nil {
		return err
	}
	for field, entry := range obj.Fields {
		if err := writeBlob(bw, []byte(field)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, entry.Version); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, entry.ExpireAt); err != nil {
			return err
		}
		if err := writeBlob(bw, entry.Value); err != nil {
			return err
		}
	}
	return nil
}

// writeBlob writes a length-prefixed byte string.
func writeBlob(bw *bufio.Writer, b []byte) error {
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := bw.Write(b)
	return err
}

// Load restores the engine state from the reader (docs see hash/hash.go).
// Every field with a nonzero expiry timestamp is reinserted into the
// local index of its key and the key into the namespace index, so the
// expiry machinery resumes exactly where the snapshot left off.
//
// Thread-safety: This method is thread-safe, but must not run
// concurrently with other operations on the same engine.
func (c *cedarImpl) Load(r io.Reader) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 1 MB buffer for better performance
	br := bufio.NewReaderSize(r, 1024*1024)

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != cedarVersion {
		return fmt.Errorf("unsupported snapshot version %d (want %d)", version, cedarVersion)
	}

	var nsCount uint32
	if err := binary.Read(br, binary.LittleEndian, &nsCount); err != nil {
		return err
	}
	if int(nsCount) > len(c.nss) {
		return fmt.Errorf("snapshot holds %d namespaces, engine only hosts %d", nsCount, len(c.nss))
	}

	// rebuild from scratch, a load replaces all prior state
	nss := make([]*internal.Namespace, len(c.nss))
	for i := range nss {
		nss[i] = internal.NewNamespace(c.cfg.IndexMode, c.hasher)
	}

	for ns := 0; ns < int(nsCount); ns++ {
		var keyCount uint64
		if err := binary.Read(br, binary.LittleEndian, &keyCount); err != nil {
			return err
		}

		for k := uint64(0); k < keyCount; k++ {
			if err := readKey(br, nss[ns], c.cfg.IndexMode); err != nil {
				return err
			}
		}
	}

	c.nss = nss
	return nil
}

// readKey deserializes one key with all its fields and reinserts its
// expiring fields into both index levels.
func readKey(br *bufio.Reader, nsp *internal.Namespace, mode index.Mode) error {
	var fieldCount uint64
	if err := binary.Read(br, binary.LittleEndian, &fieldCount); err != nil {
		return err
	}
	keyBytes, err := readBlob(br)
	if err != nil {
		return err
	}
	key := string(keyBytes)

	obj := internal.NewHashObject(key, mode)
	for f := uint64(0); f < fieldCount; f++ {
		fieldBytes, err := readBlob(br)
		if err != nil {
			return err
		}
		entry := &internal.FieldEntry{}
		if err := binary.Read(br, binary.LittleEndian, &entry.Version); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &entry.ExpireAt); err != nil {
			return err
		}
		if entry.Value, err = readBlob(br); err != nil {
			return err
		}

		field := string(fieldBytes)
		obj.Fields[field] = entry
		if entry.ExpireAt != 0 {
			obj.Expires.Insert(entry.ExpireAt, field)
		}
	}

	nsp.Keys.Store(key, obj)
	if min, ok := obj.Expires.Min(); ok {
		nsp.Expires.Insert(min, key)
	}
	return nil
}

// readBlob reads a length-prefixed byte string.
func readBlob(br *bufio.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(br, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ExportRewrite emits the namespace's live fields for change-log
// compaction (docs see hash/hash.go). Expiry is emitted as the stored
// absolute timestamp and the version as an absolute value, so replaying
// the emitted entries is independent of the replay clock; fields already
// due at call time are omitted.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) ExportRewrite(ns int, emit func(e hash.RewriteEntry)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nsp := c.namespace(ns)
	now := c.cfg.Now()

	nsp.Keys.Range(func(key string, obj *internal.HashObject) bool {
		for field, entry := range obj.Fields {
			if entry.Expired(now) {
				continue
			}
			emit(hash.RewriteEntry{
				Key:      key,
				Field:    field,
				Value:    append([]byte(nil), entry.Value...),
				Version:  entry.Version,
				ExpireAt: entry.ExpireAt,
			})
		}
		return true
	})
}
