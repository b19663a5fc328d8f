package internal

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/ValentinKolb/hKV/lib/hash"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name: "Command with key, field and value",
			command: Command{
				Type:     CommandTSet,
				NS:       3,
				Key:      "testkey",
				Field:    "field",
				ExpireAt: 100,
				Value:    []byte("testvalue"),
			},
			expected: headerSize + 4 + 7 + 4 + 5 + 9, // header + KeyLen + Key + FieldLen + Field + Value
		},
		{
			name: "Command with empty key and field",
			command: Command{
				Type:  CommandTFlushAll,
				Key:   "",
				Field: "",
				Value: nil,
			},
			expected: headerSize + 4 + 0 + 4 + 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.command.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Standard command with value",
			command: Command{
				Type:     CommandTSet,
				NS:       5,
				Flags:    FlagNX | FlagKeepTTL,
				VerMode:  uint8(hash.VerEq),
				Version:  42,
				ExpireAt: 100,
				Key:      "testkey",
				Field:    "testfield",
				Value:    []byte("testvalue"),
			},
		},
		{
			name: "Command without value",
			command: Command{
				Type:  CommandTDelete,
				NS:    1,
				Key:   "testkey",
				Field: "testfield",
				Value: nil,
			},
		},
		{
			name: "Command with empty key and field",
			command: Command{
				Type:  CommandTSweep,
				NS:    0,
				Aux:   1000,
				Value: nil,
			},
		},
		{
			name: "Command with empty value",
			command: Command{
				Type:  CommandTSet,
				Key:   "testkey",
				Field: "f",
				Value: []byte{},
			},
		},
		{
			name: "Command with max values",
			command: Command{
				Type:     CommandTExpireAt,
				NS:       math.MaxUint32,
				Version:  math.MaxUint64,
				ExpireAt: math.MaxUint64,
				Aux:      math.MaxUint64,
				Key:      "testkey",
				Field:    "f",
			},
		},
		{
			name: "Command with binary value",
			command: Command{
				Type:  CommandTSet,
				Key:   "binary",
				Field: "blob",
				Value: []byte{0, 1, 2, 3, 254, 255},
			},
		},
		{
			name: "Command with Unicode key",
			command: Command{
				Type:  CommandTSet,
				Key:   "你好世界", // Hello World in Chinese
				Field: "字段",
				Value: []byte("unicode test"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Serialize
			data := tt.command.Serialize()

			// Deserialize into a new command
			var newCommand Command
			err := newCommand.Deserialize(data)
			if err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			// Compare original and deserialized command
			if newCommand.Type != tt.command.Type {
				t.Errorf("Type mismatch: got %v, want %v", newCommand.Type, tt.command.Type)
			}
			if newCommand.NS != tt.command.NS {
				t.Errorf("NS mismatch: got %v, want %v", newCommand.NS, tt.command.NS)
			}
			if newCommand.Flags != tt.command.Flags {
				t.Errorf("Flags mismatch: got %v, want %v", newCommand.Flags, tt.command.Flags)
			}
			if newCommand.VerMode != tt.command.VerMode {
				t.Errorf("VerMode mismatch: got %v, want %v", newCommand.VerMode, tt.command.VerMode)
			}
			if newCommand.Version != tt.command.Version {
				t.Errorf("Version mismatch: got %v, want %v", newCommand.Version, tt.command.Version)
			}
			if newCommand.ExpireAt != tt.command.ExpireAt {
				t.Errorf("ExpireAt mismatch: got %v, want %v", newCommand.ExpireAt, tt.command.ExpireAt)
			}
			if newCommand.Aux != tt.command.Aux {
				t.Errorf("Aux mismatch: got %v, want %v", newCommand.Aux, tt.command.Aux)
			}
			if newCommand.Key != tt.command.Key {
				t.Errorf("Key mismatch: got %q, want %q", newCommand.Key, tt.command.Key)
			}
			if newCommand.Field != tt.command.Field {
				t.Errorf("Field mismatch: got %q, want %q", newCommand.Field, tt.command.Field)
			}

			// Value comparison handling nil case
			if tt.command.Value == nil {
				if newCommand.Value != nil && len(newCommand.Value) != 0 {
					t.Errorf("Value should be nil or empty, got %v", newCommand.Value)
				}
			} else if !bytes.Equal(newCommand.Value, tt.command.Value) {
				t.Errorf("Value mismatch: got %v, want %v", newCommand.Value, tt.command.Value)
			}

			// Verify that SizeBytes matches the serialized data length
			if tt.command.SizeBytes() != len(data) {
				t.Errorf("SizeBytes() = %d, but serialized data length = %d",
					tt.command.SizeBytes(), len(data))
			}
		})
	}
}

// TestDeserializeErrors tests error cases in Deserialize
func TestDeserializeErrors(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expectedErr string
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectedErr: "data too short for command",
		},
		{
			name:        "Data too short (less than header)",
			data:        []byte{1, 2, 3, 4, 5},
			expectedErr: "data too short for command",
		},
		{
			name: "Invalid key length",
			data: func() []byte {
				data := make([]byte, headerSize+8) // header plus both length prefixes
				data[0] = byte(CommandTSet)
				// Set key length to a large value that exceeds the data
				binary.BigEndian.PutUint32(data[headerSize:headerSize+4], 1000)
				return data
			}(),
			expectedErr: "data too short for key of length 1000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			err := cmd.Deserialize(tt.data)

			// Check if we got the expected error
			if err == nil {
				t.Fatalf("Expected error but got nil")
			}
			if err.Error() != tt.expectedErr {
				t.Errorf("Expected error %q, got %q", tt.expectedErr, err.Error())
			}
		})
	}
}

// TestOptionTranslation tests the mapping from command flags back to the
// hash package's option structs
func TestOptionTranslation(t *testing.T) {
	t.Run("SetOptions", func(t *testing.T) {
		cmd := Command{
			Type:     CommandTSet,
			Flags:    FlagXX,
			VerMode:  uint8(hash.VerGt),
			Version:  7,
			ExpireAt: 5000,
		}
		opts := cmd.SetOptions()
		if opts.Exist != hash.ExistXX {
			t.Errorf("Exist mode mismatch: got %v", opts.Exist)
		}
		if opts.KeepTTL || opts.ExpireAt != 5000 {
			t.Errorf("Expiry mismatch: keep=%v at=%d", opts.KeepTTL, opts.ExpireAt)
		}
		if opts.Version.Mode != hash.VerGt || opts.Version.Value != 7 {
			t.Errorf("Version op mismatch: %+v", opts.Version)
		}
	})

	t.Run("SetOptionsKeepTTL", func(t *testing.T) {
		cmd := Command{Type: CommandTSet, Flags: FlagKeepTTL, ExpireAt: 5000}
		opts := cmd.SetOptions()
		if !opts.KeepTTL || opts.ExpireAt != 0 {
			t.Errorf("KeepTTL must win over the timestamp: keep=%v at=%d", opts.KeepTTL, opts.ExpireAt)
		}
	})

	t.Run("IncrOptionsBounds", func(t *testing.T) {
		bounds := make([]byte, 16)
		minBound := int64(-10)
		binary.BigEndian.PutUint64(bounds[:8], uint64(minBound))
		binary.BigEndian.PutUint64(bounds[8:], 100)

		cmd := Command{
			Type:  CommandTIncrBy,
			Flags: FlagHasMin | FlagHasMax | FlagKeepTTL,
			Value: bounds,
		}
		opts, err := cmd.IncrOptions()
		if err != nil {
			t.Fatalf("IncrOptions failed: %v", err)
		}
		if opts.Min == nil || *opts.Min != -10 {
			t.Errorf("Min mismatch: %v", opts.Min)
		}
		if opts.Max == nil || *opts.Max != 100 {
			t.Errorf("Max mismatch: %v", opts.Max)
		}
	})

	t.Run("IncrOptionsMaxOnly", func(t *testing.T) {
		bounds := make([]byte, 8)
		binary.BigEndian.PutUint64(bounds, 50)

		cmd := Command{Type: CommandTIncrBy, Flags: FlagHasMax | FlagKeepTTL, Value: bounds}
		opts, err := cmd.IncrOptions()
		if err != nil {
			t.Fatalf("IncrOptions failed: %v", err)
		}
		if opts.Min != nil || opts.Max == nil || *opts.Max != 50 {
			t.Errorf("Bounds mismatch: min=%v max=%v", opts.Min, opts.Max)
		}
	})

	t.Run("IncrOptionsBadPayload", func(t *testing.T) {
		cmd := Command{Type: CommandTIncrBy, Flags: FlagHasMin, Value: []byte{1, 2}}
		if _, err := cmd.IncrOptions(); err == nil {
			t.Error("Truncated bounds payload should fail")
		}
	})

	t.Run("IncrFloatOptionsBounds", func(t *testing.T) {
		bounds := make([]byte, 16)
		binary.BigEndian.PutUint64(bounds[:8], math.Float64bits(-1.5))
		binary.BigEndian.PutUint64(bounds[8:], math.Float64bits(2.5))

		cmd := Command{
			Type:  CommandTIncrByFloat,
			Flags: FlagHasMin | FlagHasMax | FlagKeepTTL,
			Value: bounds,
		}
		opts, err := cmd.IncrFloatOptions()
		if err != nil {
			t.Fatalf("IncrFloatOptions failed: %v", err)
		}
		if opts.Min == nil || *opts.Min != -1.5 || opts.Max == nil || *opts.Max != 2.5 {
			t.Errorf("Bounds mismatch: min=%v max=%v", opts.Min, opts.Max)
		}
	})
}

// TestToFeature tests the command-to-feature mapping used for support checks
func TestToFeature(t *testing.T) {
	cases := map[CommandType]hash.Feature{
		CommandTSet:            hash.FeatureSet,
		CommandTIncrBy:         hash.FeatureIncr,
		CommandTSweep:          hash.FeatureExpire,
		CommandTSwapNamespaces: hash.FeatureKeyspace,
	}
	for ct, want := range cases {
		got, err := ct.ToFeature()
		if err != nil || got != want {
			t.Errorf("ToFeature(%s) = %v, %v; want %v", ct, got, err, want)
		}
	}
	if _, err := CommandType(200).ToFeature(); err == nil {
		t.Error("Unknown command type should fail")
	}
}

// TestBufferReuse tests that the Deserialize method reuses buffers when possible
func TestBufferReuse(t *testing.T) {
	// Create a command with a value
	cmd := Command{
		Type:  CommandTSet,
		Key:   "key",
		Field: "f",
		Value: []byte("original value"),
	}

	// Get the current value buffer address
	originalBuffer := cmd.Value

	// Create a new serialized command with a different value but same length
	cmd2 := Command{
		Type:  CommandTSet,
		Key:   "key",
		Field: "f",
		Value: []byte("changed value"),
	}
	serialized2 := cmd2.Serialize()

	// Deserialize the new command into the original
	err := cmd.Deserialize(serialized2)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}

	// Check if the buffer was reused (same capacity, same address)
	if cap(cmd.Value) != cap(originalBuffer) {
		t.Logf("Buffer capacity changed from %d to %d", cap(originalBuffer), cap(cmd.Value))
	}

	// Ensure the value was correctly deserialized
	if !bytes.Equal(cmd.Value, []byte("changed value")) {
		t.Errorf("Value not correctly deserialized: got %q, want %q",
			string(cmd.Value), "changed value")
	}

	// Now test with a larger value to ensure capacity increases
	cmd3 := Command{
		Type:  CommandTSet,
		Key:   "key",
		Field: "f",
		Value: []byte("this is a much longer value that won't fit in the original buffer"),
	}
	serialized3 := cmd3.Serialize()

	// Get buffer info before deserialization
	beforeCap := cap(cmd.Value)

	// Deserialize
	err = cmd.Deserialize(serialized3)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}

	// Check if buffer capacity increased
	if cap(cmd.Value) <= beforeCap {
		t.Errorf("Buffer capacity did not increase for larger value: still %d", cap(cmd.Value))
	}

	// Ensure the value was correctly deserialized
	if !bytes.Equal(cmd.Value, cmd3.Value) {
		t.Errorf("Value not correctly deserialized")
	}
}
