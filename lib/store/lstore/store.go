package lstore

import (
	"github.com/ValentinKolb/hKV/lib/hash"
	"github.com/ValentinKolb/hKV/lib/store"
)

type storeImpl struct {
	db hash.HashDB
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// This works by using a hash engine from the hash package directly: the
// engine runs in primary role, so its own sweep reaps expired fields.
func NewLocalStore(factory store.DBFactory) store.IStore {
	return &storeImpl{
		db: factory(),
	}
}

// unsupported builds the error for an operation the engine cannot serve.
func unsupported(op string) error {
	return hash.NewError(hash.RetCUnsupportedOperation, op+" operation is not supported")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(ns int, key, field string, value []byte, opts hash.SetOptions) (bool, error) {
	if !s.db.SupportsFeature(hash.FeatureSet) {
		return false, unsupported("Set")
	}
	return s.db.Set(ns, key, field, value, opts)
}

func (s *storeImpl) SetMultiple(ns int, key string, fields map[string][]byte, opts hash.SetOptions) error {
	if !s.db.SupportsFeature(hash.FeatureSet) {
		return unsupported("SetMultiple")
	}
	return s.db.SetMultiple(ns, key, fields, opts)
}

func (s *storeImpl) IncrBy(ns int, key, field string, delta int64, opts hash.IncrOptions) (int64, error) {
	if !s.db.SupportsFeature(hash.FeatureIncr) {
		return 0, unsupported("IncrBy")
	}
	return s.db.IncrBy(ns, key, field, delta, opts)
}

func (s *storeImpl) IncrByFloat(ns int, key, field string, delta float64, opts hash.IncrFloatOptions) (float64, error) {
	if !s.db.SupportsFeature(hash.FeatureIncr) {
		return 0, unsupported("IncrByFloat")
	}
	return s.db.IncrByFloat(ns, key, field, delta, opts)
}

func (s *storeImpl) Delete(ns int, key string, fields ...string) (int, error) {
	if !s.db.SupportsFeature(hash.FeatureSet) {
		return 0, unsupported("Delete")
	}
	return s.db.Delete(ns, key, fields...), nil
}

func (s *storeImpl) DeleteWithVersion(ns int, key, field string, version uint64) (bool, error) {
	if !s.db.SupportsFeature(hash.FeatureVersioning) {
		return false, unsupported("DeleteWithVersion")
	}
	return s.db.DeleteWithVersion(ns, key, field, version)
}

func (s *storeImpl) ExpireAt(ns int, key, field string, at uint64, ver hash.VerOp) (bool, error) {
	if !s.db.SupportsFeature(hash.FeatureExpire) {
		return false, unsupported("ExpireAt")
	}
	return s.db.ExpireAt(ns, key, field, at, ver)
}

func (s *storeImpl) Persist(ns int, key, field string) (bool, error) {
	if !s.db.SupportsFeature(hash.FeatureExpire) {
		return false, unsupported("Persist")
	}
	return s.db.Persist(ns, key, field), nil
}

func (s *storeImpl) Get(ns int, key, field string) ([]byte, uint64, bool, error) {
	val, version, ok := s.db.GetWithVersion(ns, key, field)
	return val, version, ok, nil
}

func (s *storeImpl) GetMultiple(ns int, key string, fields ...string) ([]hash.FieldView, error) {
	return s.db.GetMultipleWithVersion(ns, key, fields...), nil
}

func (s *storeImpl) Exists(ns int, key, field string) (bool, error) {
	return s.db.Exists(ns, key, field), nil
}

func (s *storeImpl) TTL(ns int, key, field string) (int64, error) {
	if !s.db.SupportsFeature(hash.FeatureExpire) {
		return 0, unsupported("TTL")
	}
	return s.db.TTL(ns, key, field), nil
}

func (s *storeImpl) Len(ns int, key string) (int, error) {
	return s.db.Len(ns, key, true), nil
}

func (s *storeImpl) Fields(ns int, key string) ([]string, error) {
	return s.db.Fields(ns, key), nil
}

func (s *storeImpl) GetAll(ns int, key string) (map[string][]byte, error) {
	return s.db.GetAll(ns, key), nil
}

func (s *storeImpl) Scan(ns int, key string, cursor uint64, match string, count int, noValues bool) ([]string, [][]byte, uint64, error) {
	fields, values, next := s.db.Scan(ns, key, cursor, match, count, noValues)
	return fields, values, next, nil
}

func (s *storeImpl) Digest(ns int, key string) (uint64, error) {
	if !s.db.SupportsFeature(hash.FeatureDigest) {
		return 0, unsupported("Digest")
	}
	return s.db.Digest(ns, key), nil
}

func (s *storeImpl) DeleteKey(ns int, key string) error {
	if !s.db.SupportsFeature(hash.FeatureKeyspace) {
		return unsupported("DeleteKey")
	}
	s.db.DeleteKey(ns, key)
	return nil
}

func (s *storeImpl) RenameKey(ns int, oldKey, newKey string) error {
	if !s.db.SupportsFeature(hash.FeatureKeyspace) {
		return unsupported("RenameKey")
	}
	return s.db.RenameKey(ns, oldKey, newKey)
}

func (s *storeImpl) MoveKey(srcNS, dstNS int, key string) error {
	if !s.db.SupportsFeature(hash.FeatureKeyspace) {
		return unsupported("MoveKey")
	}
	return s.db.MoveKey(srcNS, dstNS, key)
}

func (s *storeImpl) FlushNamespace(ns int) error {
	if !s.db.SupportsFeature(hash.FeatureKeyspace) {
		return unsupported("FlushNamespace")
	}
	s.db.FlushNamespace(ns)
	return nil
}

func (s *storeImpl) FlushAll() error {
	if !s.db.SupportsFeature(hash.FeatureKeyspace) {
		return unsupported("FlushAll")
	}
	s.db.FlushAll()
	return nil
}

func (s *storeImpl) SwapNamespaces(a, b int) error {
	if !s.db.SupportsFeature(hash.FeatureKeyspace) {
		return unsupported("SwapNamespaces")
	}
	s.db.SwapNamespaces(a, b)
	return nil
}

func (s *storeImpl) GetDBInfo() (hash.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}
