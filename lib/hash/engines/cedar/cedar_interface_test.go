package cedar

import (
	"testing"

	"github.com/ValentinKolb/hKV/lib/hash"
	"github.com/ValentinKolb/hKV/lib/hash/index"
	hashtesting "github.com/ValentinKolb/hKV/lib/hash/testing"
)

func factoryFor(mode index.Mode) hashtesting.DBFactory {
	return func() hash.HashDB {
		cfg := DefaultConfig()
		cfg.IndexMode = mode
		return NewCedarDB(cfg)
	}
}

func Test(t *testing.T) {
	hashtesting.RunHashDBTests(t, "CedarDB(sorted)", factoryFor(index.ModeSorted))
	hashtesting.RunHashDBTests(t, "CedarDB(bucket)", factoryFor(index.ModeBucket))
	hashtesting.RunHashDBTests(t, "CedarDB(none)", factoryFor(index.ModeNone))
}

func Benchmark(b *testing.B) {
	hashtesting.RunHashDBBenchmarks(b, "CedarDB", factoryFor(index.ModeSorted))
}
