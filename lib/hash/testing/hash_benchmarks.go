package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/hKV/lib/hash"
)

// RunHashDBBenchmarks runs all benchmarks for a hash database implementation
func RunHashDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Set", func(b *testing.B) {
		benchmarkSet(b, factory())
	})

	b.Run("SetExisting", func(b *testing.B) {
		benchmarkSetExisting(b, factory())
	})

	b.Run("SetWithExpiry", func(b *testing.B) {
		benchmarkSetWithExpiry(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("IncrBy", func(b *testing.B) {
		benchmarkIncrBy(b, factory())
	})

	b.Run("Delete", func(b *testing.B) {
		benchmarkDelete(b, factory())
	})

	b.Run("Digest", func(b *testing.B) {
		benchmarkDigest(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Set operation on new fields
func benchmarkSet(b *testing.B, db hash.HashDB) {

	b.Cleanup(func() {
		db.Close()
	})

	requireFeature(b, db, hash.FeatureSet)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("bench-key-%d", counter%1024)
			field := fmt.Sprintf("bench-field-%d", counter)
			value := []byte(fmt.Sprintf("bench-value-%d", counter))
			db.Set(0, key, field, value, hash.SetOptions{})
			counter++
		}
	})
}

// Benchmark for Set operation overwriting existing fields
func benchmarkSetExisting(b *testing.B, db hash.HashDB) {

	b.Cleanup(func() {
		db.Close()
	})

	requireFeature(b, db, hash.FeatureSet)

	// Prepare data
	numFields := 10000
	for i := 0; i < numFields; i++ {
		field := fmt.Sprintf("bench-field-%d", i)
		db.Set(0, "bench-key", field, []byte("initial"), hash.SetOptions{})
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			field := fmt.Sprintf("bench-field-%d", counter%numFields)
			value := []byte(fmt.Sprintf("bench-value-%d", counter))
			db.Set(0, "bench-key", field, value, hash.SetOptions{})
			counter++
		}
	})
}

// Benchmark for Set operation with a TTL, exercising the expiry indexes
func benchmarkSetWithExpiry(b *testing.B, db hash.HashDB) {

	b.Cleanup(func() {
		db.Close()
	})

	requireFeature(b, db, hash.FeatureSet)
	requireFeature(b, db, hash.FeatureExpire)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("bench-key-%d", counter%1024)
			field := fmt.Sprintf("bench-field-%d", counter)
			value := []byte(fmt.Sprintf("bench-value-%d", counter))
			ttl := time.Duration(1+counter%120) * time.Second
			db.Set(0, key, field, value, hash.SetOptions{TTL: ttl})
			counter++
		}
	})
}

// Parallel benchmarking for Get operation
func benchmarkGet(b *testing.B, db hash.HashDB) {

	b.Cleanup(func() {
		db.Close()
	})

	requireFeature(b, db, hash.FeatureSet)

	// Prepare data
	numFields := 10000
	for i := 0; i < numFields; i++ {
		field := fmt.Sprintf("bench-field-%d", i)
		value := []byte(fmt.Sprintf("bench-value-%d", i))
		db.Set(0, "bench-key", field, value, hash.SetOptions{})
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			field := fmt.Sprintf("bench-field-%d", counter%numFields)
			db.Get(0, "bench-key", field)
			counter++
		}
	})
}

// Parallel benchmarking for IncrBy operation
func benchmarkIncrBy(b *testing.B, db hash.HashDB) {

	b.Cleanup(func() {
		db.Close()
	})

	requireFeature(b, db, hash.FeatureIncr)

	numFields := 1024

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			field := fmt.Sprintf("bench-counter-%d", counter%numFields)
			db.IncrBy(0, "bench-key", field, 1, hash.IncrOptions{})
			counter++
		}
	})
}

// Parallel benchmarking for Delete operation
func benchmarkDelete(b *testing.B, db hash.HashDB) {

	b.Cleanup(func() {
		db.Close()
	})

	requireFeature(b, db, hash.FeatureSet)

	numFields := 100000
	if b.N < numFields {
		numFields = b.N
	}

	// Prepare data
	fields := make([]string, numFields)
	for i := 0; i < numFields; i++ {
		fields[i] = fmt.Sprintf("bench-field-%d", i)
		db.Set(0, "bench-key", fields[i], []byte("v"), hash.SetOptions{})
	}

	// Counter for atomic access
	var counter int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			idx := int(atomic.AddInt64(&counter, 1)-1) % numFields
			db.Delete(0, "bench-key", fields[idx])
		}
	})
}

// Benchmark for the consistency digest over keys of various sizes
func benchmarkDigest(b *testing.B, db hash.HashDB) {

	b.Cleanup(func() {
		db.Close()
	})

	requireFeature(b, db, hash.FeatureDigest)

	for i := 0; i < 1000; i++ {
		field := fmt.Sprintf("bench-field-%d", i)
		value := []byte(fmt.Sprintf("bench-value-%d", i))
		db.Set(0, "bench-key", field, value, hash.SetOptions{})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		db.Digest(0, "bench-key")
	}
}

// Benchmark for Save and Load operations
// For these operations, parallelization is not meaningful as they lock
// the entire engine
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {

	db := factory()

	b.Cleanup(func() {
		db.Close()
	})

	requireFeature(b, db, hash.FeatureSet)
	requireFeature(b, db, hash.FeatureSave)
	requireFeature(b, db, hash.FeatureLoad)

	// Create an engine with some data
	numKeys := 100
	fieldsPerKey := 100
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("bench-key-%d", i)
		for j := 0; j < fieldsPerKey; j++ {
			field := fmt.Sprintf("bench-field-%d", j)
			value := []byte(fmt.Sprintf("bench-value-%d-%d", i, j))
			db.Set(0, key, field, value, hash.SetOptions{})
		}
	}

	b.Run("Save", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			db.Save(&buf)
		}
	})

	// Prepare a data buffer for Load benchmark
	var loadBuf bytes.Buffer
	db.Save(&loadBuf)
	data := loadBuf.Bytes()

	b.Run("Load", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			loadDB := factory()
			defer loadDB.Close()
			loadDB.Load(bytes.NewReader(data))
		}
	})
}

// Benchmark for mixed usage patterns
func benchmarkMixedUsage(b *testing.B, db hash.HashDB) {
	b.Cleanup(func() {
		db.Close()
	})

	requireFeature(b, db, hash.FeatureSet)
	requireFeature(b, db, hash.FeatureExpire)

	// Prepare some initial data
	numFields := 50_000

	for i := 0; i < numFields; i++ {
		field := fmt.Sprintf("bench-field-%d", i)
		value := []byte(fmt.Sprintf("bench-value-%d", i))
		ttl := time.Duration(1+i%2000) * time.Second
		db.Set(0, "bench-key", field, value, hash.SetOptions{TTL: ttl})
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

		for pb.Next() {
			field := fmt.Sprintf("bench-field-%d", counter%numFields)

			switch {
			case rnd.Float32() < .6:
				// Get operation
				db.Get(0, "bench-key", field)
			case rnd.Float32() < .8:
				// Set operation with TTL
				value := []byte(fmt.Sprintf("bench-updated-value-%d", counter))
				ttl := time.Duration(1+rnd.Intn(1000)) * time.Second
				db.Set(0, "bench-key", field, value, hash.SetOptions{TTL: ttl})
			default:
				// Existence check
				db.Exists(0, "bench-key", field)
			}

			counter++
		}
	})
}
