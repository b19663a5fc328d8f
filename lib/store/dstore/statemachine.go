package dstore

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/ValentinKolb/hKV/lib/hash"
	"github.com/ValentinKolb/hKV/lib/store"
	"github.com/ValentinKolb/hKV/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// HashStateMachine is a state machine implementation for Dragonboat RAFT
type HashStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  hash.HashDB // the actual dataStorage
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
// The factory pattern is used to enable the caller to pass an interchangeable dbFactory
func CreateStateMachineFactory(dbFactory store.DBFactory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		database := dbFactory()

		// The engine must never mutate on its own clock: reads filter due
		// fields locally, but deletion happens only through replicated
		// commands so every node reaps the same fields. Replica role plus
		// a disabled sweep guarantees that; the replicated Sweep command
		// drives expiry instead.
		database.SetRole(hash.RoleReplica)
		database.StopActiveExpire()

		return &HashStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  database,
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding HashDB method.
func (fsm *HashStateMachine) Lookup(itf interface{}) (interface{}, error) {

	// try to parse Query into Query struct
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, hash.NewError(hash.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	// Handle different Query types
	switch q.Type {
	case internal.QueryTGet:
		val, version, ok := fsm.database.GetWithVersion(q.NS, q.Key, q.Field)
		return internal.QueryResult{
			Value:   val,
			Version: version,
			Ok:      ok,
		}, nil
	case internal.QueryTGetMultiple:
		return fsm.database.GetMultipleWithVersion(q.NS, q.Key, q.Fields...), nil
	case internal.QueryTExists:
		return fsm.database.Exists(q.NS, q.Key, q.Field), nil
	case internal.QueryTTTL:
		if !fsm.database.SupportsFeature(hash.FeatureExpire) {
			return nil, hash.NewError(hash.RetCUnsupportedOperation, "TTL operation is not supported")
		}
		return fsm.database.TTL(q.NS, q.Key, q.Field), nil
	case internal.QueryTLen:
		return fsm.database.Len(q.NS, q.Key, true), nil
	case internal.QueryTFields:
		return fsm.database.Fields(q.NS, q.Key), nil
	case internal.QueryTGetAll:
		return fsm.database.GetAll(q.NS, q.Key), nil
	case internal.QueryTScan:
		fields, values, next := fsm.database.Scan(q.NS, q.Key, q.Cursor, q.Match, q.Count, q.NoValues)
		return internal.ScanResult{Fields: fields, Values: values, Next: next}, nil
	case internal.QueryTDigest:
		if !fsm.database.SupportsFeature(hash.FeatureDigest) {
			return nil, hash.NewError(hash.RetCUnsupportedOperation, "Digest operation is not supported")
		}
		return fsm.database.Digest(q.NS, q.Key), nil
	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil
	default:
		return nil, hash.NewError(hash.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// cmdResult builds the raft entry result for an applied command. Errors
// travel as their RetCode plus message so the client can rebuild them.
func cmdResult(err error, data string) sm.Result {
	if err != nil {
		return sm.Result{Value: uint64(hash.CodeOf(err)), Data: []byte(err.Error())}
	}
	return sm.Result{Value: uint64(hash.RetCSuccess), Data: []byte(data)}
}

// Update handles write commands on the HashDB instance
// All write operations are serialized into []byte and are accessible via the entries struct
func (fsm *HashStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	// Stats
	start := time.Now()

	for idx, e := range entries {
		// Handle each entry
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(hash.RetCInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}
		// Deserialize the command
		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{Value: uint64(hash.RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
			continue
		}

		// Check if the engine supports the operation
		feat, err := cmd.Type.ToFeature()
		if err != nil {
			entries[idx].Result = sm.Result{
				Value: uint64(hash.RetCInvalidOperation),
				Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
			}
			continue
		}
		if !fsm.database.SupportsFeature(feat) {
			entries[idx].Result = sm.Result{
				Value: uint64(hash.RetCUnsupportedOperation),
				Data:  []byte(fmt.Sprintf("%s operation is not supported", cmd.Type)),
			}
			continue
		}

		entries[idx].Result = fsm.apply(&cmd)
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms:", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// apply executes one deserialized command against the engine.
func (fsm *HashStateMachine) apply(cmd *internal.Command) sm.Result {
	ns := int(cmd.NS)

	switch cmd.Type {
	case internal.CommandTSet:
		created, err := fsm.database.Set(ns, cmd.Key, cmd.Field, cmd.Value, cmd.SetOptions())
		return cmdResult(err, strconv.FormatBool(created))

	case internal.CommandTIncrBy:
		opts, err := cmd.IncrOptions()
		if err != nil {
			return cmdResult(hash.NewError(hash.RetCInvalidOperation, err.Error()), "")
		}
		result, err := fsm.database.IncrBy(ns, cmd.Key, cmd.Field, int64(cmd.Aux), opts)
		return cmdResult(err, strconv.FormatInt(result, 10))

	case internal.CommandTIncrByFloat:
		opts, err := cmd.IncrFloatOptions()
		if err != nil {
			return cmdResult(hash.NewError(hash.RetCInvalidOperation, err.Error()), "")
		}
		result, err := fsm.database.IncrByFloat(ns, cmd.Key, cmd.Field, math.Float64frombits(cmd.Aux), opts)
		return cmdResult(err, strconv.FormatFloat(result, 'f', -1, 64))

	case internal.CommandTDelete:
		deleted := fsm.database.Delete(ns, cmd.Key, cmd.Field)
		return cmdResult(nil, strconv.Itoa(deleted))

	case internal.CommandTDeleteWithVersion:
		deleted, err := fsm.database.DeleteWithVersion(ns, cmd.Key, cmd.Field, cmd.Version)
		return cmdResult(err, strconv.FormatBool(deleted))

	case internal.CommandTExpireAt:
		ok, err := fsm.database.ExpireAt(ns, cmd.Key, cmd.Field, cmd.ExpireAt, cmd.VerOp())
		return cmdResult(err, strconv.FormatBool(ok))

	case internal.CommandTPersist:
		ok := fsm.database.Persist(ns, cmd.Key, cmd.Field)
		return cmdResult(nil, strconv.FormatBool(ok))

	case internal.CommandTDeleteKey:
		ok := fsm.database.DeleteKey(ns, cmd.Key)
		return cmdResult(nil, strconv.FormatBool(ok))

	case internal.CommandTRenameKey:
		// Field carries the destination key name
		return cmdResult(fsm.database.RenameKey(ns, cmd.Key, cmd.Field), "")

	case internal.CommandTMoveKey:
		return cmdResult(fsm.database.MoveKey(ns, int(cmd.Aux), cmd.Key), "")

	case internal.CommandTFlushNamespace:
		fsm.database.FlushNamespace(ns)
		return cmdResult(nil, "")

	case internal.CommandTFlushAll:
		fsm.database.FlushAll()
		return cmdResult(nil, "")

	case internal.CommandTSwapNamespaces:
		fsm.database.SwapNamespaces(ns, int(cmd.Aux))
		return cmdResult(nil, "")

	case internal.CommandTSweep:
		sweeper, ok := fsm.database.(hash.Sweeper)
		if !ok {
			return cmdResult(hash.NewError(hash.RetCUnsupportedOperation,
				"the used HashDB implementation does not support externally driven sweeps"), "")
		}
		// the proposer's timestamp travels in ExpireAt, so every node
		// reaps exactly the same fields
		reaped := sweeper.SweepAt(cmd.ExpireAt, int(cmd.Aux))
		return cmdResult(nil, strconv.Itoa(reaped))

	default:
		return sm.Result{
			Value: uint64(hash.RetCInvalidOperation),
			Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
		}
	}
}

// PrepareSnapshot is not used. We don't need to prepare anything since we use fuzzy snapshotting
func (fsm *HashStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a fuzzy engine snapshot to the writer
func (fsm *HashStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(hash.FeatureSave) {
		return fmt.Errorf("the used HashDB implementation does not support Save() operations")
	}
	return fsm.database.Save(writer)
}

// RecoverFromSnapshot delegates snapshot recovery to the engine layer.
func (fsm *HashStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(hash.FeatureLoad) {
		return fmt.Errorf("the used HashDB implementation does not support Load() operations")
	}
	return fsm.database.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *HashStateMachine) Close() error {
	return fsm.database.Close()
}
