package dstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/ValentinKolb/hKV/lib/hash"
	"github.com/ValentinKolb/hKV/lib/store"
	"github.com/ValentinKolb/hKV/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4/logger"

	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl is the concrete implementation of the distributed store.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// NewDistributedStore creates a new distributed store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) store.IStore {
	cs := nh.GetNoOPSession(shardID)
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
	}
}

// nowMS is the propose-time clock used to resolve relative TTLs into
// absolute timestamps before replication.
func nowMS() uint64 {
	return uint64(time.Now().UnixMilli())
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write serializes a Command and sends it via SyncPropose. It returns the
// result payload of the applied command, or an error carrying the
// RetCode the state machine reported.
func (s *storeImpl) write(cmd internal.Command) ([]byte, error) {
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)

		res, err := s.nh.SyncPropose(ctx, s.cs, cmd.Serialize())
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return nil, hash.NewError(hash.RetCInternalError, err.Error())
		}
		if res.Value != uint64(hash.RetCSuccess) {
			return nil, hash.NewError(hash.RetCode(res.Value), string(res.Data))
		}
		return res.Data, nil
	}
	return nil, hash.NewError(hash.RetCInternalError, "timeout")
}

// writeBool runs a command whose result payload is a bool.
func (s *storeImpl) writeBool(cmd internal.Command) (bool, error) {
	data, err := s.write(cmd)
	if err != nil {
		return false, err
	}
	ok, err := strconv.ParseBool(string(data))
	if err != nil {
		return false, hash.NewError(hash.RetCInternalError, err.Error())
	}
	return ok, nil
}

// read is a generic helper function that queries the state machine
// and attempts to convert the response into the expected type R.
//
// This function uses the SyncRead function (dragonboat) by default to query the state machine.
// If linearizability is not required, the stale parameter can be set to true to use the faster StaleRead function.
//
// If the read operation fails due to a system busy error, the function retries up to 5 times.
//
// It returns the response of type R and an error (nil on success).
func read[R any](r *storeImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {

		var res interface{}
		var err error

		// Query the state machine, use StaleRead if stale is set otherwise use SyncRead (default)
		if stale {
			res, err = r.nh.StaleRead(r.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			res, err = r.nh.SyncRead(ctx, r.shardID, q)
			cancel()
		}

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(r.timeout / 10)
			continue
		}

		if err != nil {
			var he *hash.Error
			if errors.As(err, &he) {
				return zero, he
			}
			return zero, hash.NewError(hash.RetCInternalError, err.Error())
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, hash.NewError(hash.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, hash.NewError(hash.RetCInternalError, "timeout")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(ns int, key, field string, value []byte, opts hash.SetOptions) (bool, error) {
	// relative TTLs are resolved here, the wire carries absolute time only
	at, keep := opts.AbsoluteExpiry(nowMS())

	var flags uint8
	switch opts.Exist {
	case hash.ExistNX:
		flags |= internal.FlagNX
	case hash.ExistXX:
		flags |= internal.FlagXX
	}
	if keep {
		flags |= internal.FlagKeepTTL
	}

	return s.writeBool(internal.Command{
		Type:     internal.CommandTSet,
		NS:       uint32(ns),
		Flags:    flags,
		VerMode:  uint8(opts.Version.Mode),
		Version:  opts.Version.Value,
		ExpireAt: at,
		Key:      key,
		Field:    field,
		Value:    value,
	})
}

func (s *storeImpl) SetMultiple(ns int, key string, fields map[string][]byte, opts hash.SetOptions) error {
	// one command per field in lexical order, mirroring Delete; the raft
	// log has no batch entry format
	names := make([]string, 0, len(fields))
	for field := range fields {
		names = append(names, field)
	}
	sort.Strings(names)

	for _, field := range names {
		if _, err := s.Set(ns, key, field, fields[field], opts); err != nil {
			return err
		}
	}
	return nil
}

func (s *storeImpl) IncrBy(ns int, key, field string, delta int64, opts hash.IncrOptions) (int64, error) {
	at, keep := opts.AbsoluteExpiry(nowMS())

	var flags uint8
	var bounds []byte
	if keep {
		flags |= internal.FlagKeepTTL
	}
	if opts.Min != nil {
		flags |= internal.FlagHasMin
		bounds = binary.BigEndian.AppendUint64(bounds, uint64(*opts.Min))
	}
	if opts.Max != nil {
		flags |= internal.FlagHasMax
		bounds = binary.BigEndian.AppendUint64(bounds, uint64(*opts.Max))
	}

	data, err := s.write(internal.Command{
		Type:     internal.CommandTIncrBy,
		NS:       uint32(ns),
		Flags:    flags,
		VerMode:  uint8(opts.Version.Mode),
		Version:  opts.Version.Value,
		ExpireAt: at,
		Aux:      uint64(delta),
		Key:      key,
		Field:    field,
		Value:    bounds,
	})
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(data), 10, 64)
}

func (s *storeImpl) IncrByFloat(ns int, key, field string, delta float64, opts hash.IncrFloatOptions) (float64, error) {
	at, keep := opts.AbsoluteExpiry(nowMS())

	var flags uint8
	var bounds []byte
	if keep {
		flags |= internal.FlagKeepTTL
	}
	if opts.Min != nil {
		flags |= internal.FlagHasMin
		bounds = binary.BigEndian.AppendUint64(bounds, math.Float64bits(*opts.Min))
	}
	if opts.Max != nil {
		flags |= internal.FlagHasMax
		bounds = binary.BigEndian.AppendUint64(bounds, math.Float64bits(*opts.Max))
	}

	data, err := s.write(internal.Command{
		Type:     internal.CommandTIncrByFloat,
		NS:       uint32(ns),
		Flags:    flags,
		VerMode:  uint8(opts.Version.Mode),
		Version:  opts.Version.Value,
		ExpireAt: at,
		Aux:      math.Float64bits(delta),
		Key:      key,
		Field:    field,
		Value:    bounds,
	})
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(string(data), 64)
}

func (s *storeImpl) Delete(ns int, key string, fields ...string) (int, error) {
	deleted := 0
	for _, field := range fields {
		data, err := s.write(internal.Command{
			Type:  internal.CommandTDelete,
			NS:    uint32(ns),
			Key:   key,
			Field: field,
		})
		if err != nil {
			return deleted, err
		}
		n, err := strconv.Atoi(string(data))
		if err != nil {
			return deleted, hash.NewError(hash.RetCInternalError, err.Error())
		}
		deleted += n
	}
	return deleted, nil
}

func (s *storeImpl) DeleteWithVersion(ns int, key, field string, version uint64) (bool, error) {
	return s.writeBool(internal.Command{
		Type:    internal.CommandTDeleteWithVersion,
		NS:      uint32(ns),
		Version: version,
		Key:     key,
		Field:   field,
	})
}

func (s *storeImpl) ExpireAt(ns int, key, field string, at uint64, ver hash.VerOp) (bool, error) {
	return s.writeBool(internal.Command{
		Type:     internal.CommandTExpireAt,
		NS:       uint32(ns),
		VerMode:  uint8(ver.Mode),
		Version:  ver.Value,
		ExpireAt: at,
		Key:      key,
		Field:    field,
	})
}

func (s *storeImpl) Persist(ns int, key, field string) (bool, error) {
	return s.writeBool(internal.Command{
		Type:  internal.CommandTPersist,
		NS:    uint32(ns),
		Key:   key,
		Field: field,
	})
}

func (s *storeImpl) Get(ns int, key, field string) ([]byte, uint64, bool, error) {
	res, err := read[internal.QueryResult](s, internal.Query{
		Type:  internal.QueryTGet,
		NS:    ns,
		Key:   key,
		Field: field,
	}, false)
	if err != nil {
		return nil, 0, false, err
	}
	return res.Value, res.Version, res.Ok, nil
}

func (s *storeImpl) GetMultiple(ns int, key string, fields ...string) ([]hash.FieldView, error) {
	return read[[]hash.FieldView](s, internal.Query{
		Type:   internal.QueryTGetMultiple,
		NS:     ns,
		Key:    key,
		Fields: fields,
	}, false)
}

func (s *storeImpl) Exists(ns int, key, field string) (bool, error) {
	return read[bool](s, internal.Query{
		Type:  internal.QueryTExists,
		NS:    ns,
		Key:   key,
		Field: field,
	}, false)
}

func (s *storeImpl) TTL(ns int, key, field string) (int64, error) {
	return read[int64](s, internal.Query{
		Type:  internal.QueryTTTL,
		NS:    ns,
		Key:   key,
		Field: field,
	}, false)
}

func (s *storeImpl) Len(ns int, key string) (int, error) {
	return read[int](s, internal.Query{
		Type: internal.QueryTLen,
		NS:   ns,
		Key:  key,
	}, false)
}

func (s *storeImpl) Fields(ns int, key string) ([]string, error) {
	return read[[]string](s, internal.Query{
		Type: internal.QueryTFields,
		NS:   ns,
		Key:  key,
	}, false)
}

func (s *storeImpl) GetAll(ns int, key string) (map[string][]byte, error) {
	return read[map[string][]byte](s, internal.Query{
		Type: internal.QueryTGetAll,
		NS:   ns,
		Key:  key,
	}, false)
}

func (s *storeImpl) Scan(ns int, key string, cursor uint64, match string, count int, noValues bool) ([]string, [][]byte, uint64, error) {
	res, err := read[internal.ScanResult](s, internal.Query{
		Type:     internal.QueryTScan,
		NS:       ns,
		Key:      key,
		Cursor:   cursor,
		Match:    match,
		Count:    count,
		NoValues: noValues,
	}, false)
	if err != nil {
		return nil, nil, 0, err
	}
	return res.Fields, res.Values, res.Next, nil
}

func (s *storeImpl) Digest(ns int, key string) (uint64, error) {
	return read[uint64](s, internal.Query{
		Type: internal.QueryTDigest,
		NS:   ns,
		Key:  key,
	}, false)
}

func (s *storeImpl) DeleteKey(ns int, key string) error {
	_, err := s.write(internal.Command{
		Type: internal.CommandTDeleteKey,
		NS:   uint32(ns),
		Key:  key,
	})
	return err
}

func (s *storeImpl) RenameKey(ns int, oldKey, newKey string) error {
	_, err := s.write(internal.Command{
		Type:  internal.CommandTRenameKey,
		NS:    uint32(ns),
		Key:   oldKey,
		Field: newKey, // Field carries the destination key name
	})
	return err
}

func (s *storeImpl) MoveKey(srcNS, dstNS int, key string) error {
	_, err := s.write(internal.Command{
		Type: internal.CommandTMoveKey,
		NS:   uint32(srcNS),
		Aux:  uint64(dstNS),
		Key:  key,
	})
	return err
}

func (s *storeImpl) FlushNamespace(ns int) error {
	_, err := s.write(internal.Command{
		Type: internal.CommandTFlushNamespace,
		NS:   uint32(ns),
	})
	return err
}

func (s *storeImpl) FlushAll() error {
	_, err := s.write(internal.Command{
		Type: internal.CommandTFlushAll,
	})
	return err
}

func (s *storeImpl) SwapNamespaces(a, b int) error {
	_, err := s.write(internal.Command{
		Type: internal.CommandTSwapNamespaces,
		NS:   uint32(a),
		Aux:  uint64(b),
	})
	return err
}

func (s *storeImpl) GetDBInfo() (hash.DatabaseInfo, error) {
	return read[hash.DatabaseInfo](
		s,
		internal.Query{
			Type: internal.QueryTGetDBInfo,
		},
		true, // Note: allow for stale reads
	)
}
