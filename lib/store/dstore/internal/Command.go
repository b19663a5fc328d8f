package internal

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ValentinKolb/hKV/lib/hash"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTSet               CommandType = iota // Insert or update a field.
	CommandTIncrBy                               // Add an integer delta to a field.
	CommandTIncrByFloat                          // Add a float delta to a field.
	CommandTDelete                               // Delete a single field.
	CommandTDeleteWithVersion                    // Delete a field guarded by a version check.
	CommandTExpireAt                             // Set a field's absolute expiry timestamp.
	CommandTPersist                              // Remove a field's TTL.
	CommandTDeleteKey                            // Delete a key and all its fields.
	CommandTRenameKey                            // Rename a key within its namespace.
	CommandTMoveKey                              // Move a key into another namespace.
	CommandTFlushNamespace                       // Drop all keys of one namespace.
	CommandTFlushAll                             // Drop all keys of all namespaces.
	CommandTSwapNamespaces                       // Exchange the contents of two namespaces.
	CommandTSweep                                // Reap fields due at the embedded timestamp.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTSet:
		return "Set"
	case CommandTIncrBy:
		return "IncrBy"
	case CommandTIncrByFloat:
		return "IncrByFloat"
	case CommandTDelete:
		return "Delete"
	case CommandTDeleteWithVersion:
		return "DeleteWithVersion"
	case CommandTExpireAt:
		return "ExpireAt"
	case CommandTPersist:
		return "Persist"
	case CommandTDeleteKey:
		return "DeleteKey"
	case CommandTRenameKey:
		return "RenameKey"
	case CommandTMoveKey:
		return "MoveKey"
	case CommandTFlushNamespace:
		return "FlushNamespace"
	case CommandTFlushAll:
		return "FlushAll"
	case CommandTSwapNamespaces:
		return "SwapNamespaces"
	case CommandTSweep:
		return "Sweep"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// ToFeature converts a CommandType to the corresponding hash.Feature.
// This can be used for checking if the engine supports a certain operation.
func (ct CommandType) ToFeature() (hash.Feature, error) {
	switch ct {
	case CommandTSet, CommandTDelete:
		return hash.FeatureSet, nil
	case CommandTIncrBy, CommandTIncrByFloat:
		return hash.FeatureIncr, nil
	case CommandTDeleteWithVersion:
		return hash.FeatureVersioning, nil
	case CommandTExpireAt, CommandTPersist, CommandTSweep:
		return hash.FeatureExpire, nil
	case CommandTDeleteKey, CommandTRenameKey, CommandTMoveKey,
		CommandTFlushNamespace, CommandTFlushAll, CommandTSwapNamespaces:
		return hash.FeatureKeyspace, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", ct)
	}
}

// Flag bits carried by a Command.
const (
	FlagNX      uint8 = 1 << iota // only create, no-op if the field exists
	FlagXX                        // only update, no-op if the field is absent
	FlagKeepTTL                   // keep the field's current TTL
	FlagHasMin                    // the first 8 bytes of Value bound the result from below
	FlagHasMax                    // the following 8 bytes of Value bound the result from above
)

// Command represents a command to be executed by the state machine (a
// single entry in the raft log). Expiry timestamps are always absolute:
// relative TTLs are resolved by the proposing client, so applying a
// command never consults a clock.
//
// Aux is command-specific: the delta for increments (int64 two's
// complement or float64 bits), the destination namespace for MoveKey, the
// partner namespace for SwapNamespaces and the per-namespace key budget
// for Sweep. For Sweep, ExpireAt carries the proposer's timestamp.
type Command struct {
	Type     CommandType
	NS       uint32
	Flags    uint8
	VerMode  uint8
	Version  uint64
	ExpireAt uint64
	Aux      uint64
	Key      string
	Field    string
	Value    []byte
}

// headerSize is the fixed prefix before the key: Type + NS + Flags +
// VerMode + Version + ExpireAt + Aux.
const headerSize = 1 + 4 + 1 + 1 + 8 + 8 + 8

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	size := headerSize + 4 + len(command.Key) + 4 + len(command.Field)
	if command.Value != nil {
		size += len(command.Value)
	}
	return size
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 4 bytes for the namespace (big endian),
// 1 byte for flags,
// 1 byte for the version mode,
// 8 bytes for the version value,
// 8 bytes for the absolute expiry timestamp,
// 8 bytes for the aux value,
// 4 bytes for key length plus N bytes for key data,
// 4 bytes for field length plus N bytes for field data,
// N bytes for value data (optional)
func (command *Command) Serialize() []byte {
	// Use SizeBytes to calculate the total size needed
	totalSize := command.SizeBytes()

	result := make([]byte, totalSize)

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint32(result[1:5], command.NS)
	result[5] = command.Flags
	result[6] = command.VerMode
	binary.BigEndian.PutUint64(result[7:15], command.Version)
	binary.BigEndian.PutUint64(result[15:23], command.ExpireAt)
	binary.BigEndian.PutUint64(result[23:31], command.Aux)

	// key and field, each length-prefixed
	offset := headerSize
	binary.BigEndian.PutUint32(result[offset:offset+4], uint32(len(command.Key)))
	offset += 4
	copy(result[offset:], command.Key)
	offset += len(command.Key)

	binary.BigEndian.PutUint32(result[offset:offset+4], uint32(len(command.Field)))
	offset += 4
	copy(result[offset:], command.Field)
	offset += len(command.Field)

	// the value occupies the rest, no length prefix needed
	if command.Value != nil {
		copy(result[offset:], command.Value)
	}

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize+8 {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.NS = binary.BigEndian.Uint32(data[1:5])
	command.Flags = data[5]
	command.VerMode = data[6]
	command.Version = binary.BigEndian.Uint64(data[7:15])
	command.ExpireAt = binary.BigEndian.Uint64(data[15:23])
	command.Aux = binary.BigEndian.Uint64(data[23:31])

	offset := headerSize
	keyLen := binary.BigEndian.Uint32(data[offset : offset+4])
	offset += 4
	if len(data) < offset+int(keyLen)+4 {
		return fmt.Errorf("data too short for key of length %d", keyLen)
	}
	command.Key = string(data[offset : offset+int(keyLen)])
	offset += int(keyLen)

	fieldLen := binary.BigEndian.Uint32(data[offset : offset+4])
	offset += 4
	if len(data) < offset+int(fieldLen) {
		return fmt.Errorf("data too short for field of length %d", fieldLen)
	}
	command.Field = string(data[offset : offset+int(fieldLen)])
	offset += int(fieldLen)

	// Extract value if present
	if len(data) > offset {
		valueLen := len(data) - offset
		// Reuse existing buffer if possible to reduce allocations
		if command.Value == nil || cap(command.Value) < valueLen {
			command.Value = make([]byte, valueLen)
		} else {
			command.Value = command.Value[:valueLen]
		}
		copy(command.Value, data[offset:])
	} else {
		command.Value = nil
	}

	return nil
}

// --------------------------------------------------------------------------
// Option translation
// --------------------------------------------------------------------------

// VerOp reconstructs the version constraint carried by the command.
func (command *Command) VerOp() hash.VerOp {
	return hash.VerOp{Mode: hash.VerMode(command.VerMode), Value: command.Version}
}

// SetOptions reconstructs the write options of a Set command. The expiry
// is already absolute, so the options never consult a clock when applied.
func (command *Command) SetOptions() hash.SetOptions {
	opts := hash.SetOptions{Version: command.VerOp()}
	switch {
	case command.Flags&FlagNX != 0:
		opts.Exist = hash.ExistNX
	case command.Flags&FlagXX != 0:
		opts.Exist = hash.ExistXX
	}
	if command.Flags&FlagKeepTTL != 0 {
		opts.KeepTTL = true
	} else {
		opts.ExpireAt = command.ExpireAt
	}
	return opts
}

// IncrOptions reconstructs the options of an IncrBy command, including
// the optional bounds packed into the value payload.
func (command *Command) IncrOptions() (hash.IncrOptions, error) {
	opts := hash.IncrOptions{Version: command.VerOp()}
	if command.Flags&FlagKeepTTL == 0 {
		opts.ExpireAt = command.ExpireAt
	}

	bounds, err := command.boundsPayload()
	if err != nil {
		return opts, err
	}
	if command.Flags&FlagHasMin != 0 {
		min := int64(binary.BigEndian.Uint64(bounds[:8]))
		opts.Min = &min
	}
	if command.Flags&FlagHasMax != 0 {
		max := int64(binary.BigEndian.Uint64(bounds[len(bounds)-8:]))
		opts.Max = &max
	}
	return opts, nil
}

// IncrFloatOptions is the float counterpart of IncrOptions.
func (command *Command) IncrFloatOptions() (hash.IncrFloatOptions, error) {
	opts := hash.IncrFloatOptions{Version: command.VerOp()}
	if command.Flags&FlagKeepTTL == 0 {
		opts.ExpireAt = command.ExpireAt
	}

	bounds, err := command.boundsPayload()
	if err != nil {
		return opts, err
	}
	if command.Flags&FlagHasMin != 0 {
		min := math.Float64frombits(binary.BigEndian.Uint64(bounds[:8]))
		opts.Min = &min
	}
	if command.Flags&FlagHasMax != 0 {
		max := math.Float64frombits(binary.BigEndian.Uint64(bounds[len(bounds)-8:]))
		opts.Max = &max
	}
	return opts, nil
}

// boundsPayload validates that the value payload matches the bound flags:
// 8 bytes per flagged bound, min first.
func (command *Command) boundsPayload() ([]byte, error) {
	want := 0
	if command.Flags&FlagHasMin != 0 {
		want += 8
	}
	if command.Flags&FlagHasMax != 0 {
		want += 8
	}
	if len(command.Value) != want {
		return nil, fmt.Errorf("bounds payload is %d bytes, flags demand %d", len(command.Value), want)
	}
	return command.Value, nil
}
