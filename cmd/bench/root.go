package bench

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/hKV/cmd/util"
	"github.com/ValentinKolb/hKV/lib/hash"
	"github.com/ValentinKolb/hKV/lib/hash/engines/cedar"
	"github.com/ValentinKolb/hKV/lib/store/lstore"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// BenchCmd runs the engine benchmark suite against a local store
	BenchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Benchmark the engine through the local store",
		Long:    "Runs a series of timed workloads against an in-process engine and reports latency percentiles per operation.",
		RunE:    run,
		PreRunE: processBenchConfig,
	}

	benchKeyPrefix = "__bench"
	benchThreads   = 10
	benchKeySpread = 100
	benchFields    = 16
	benchValueSize = 64
	benchOps       = 100000
	benchSkip      = make([]string, 0)
)

func init() {
	// add flags
	key := "threads"
	BenchCmd.PersistentFlags().Int(key, 10, util.WrapString("Number of goroutines driving the workloads"))
	key = "keys"
	BenchCmd.PersistentFlags().Int(key, 100, util.WrapString("How many different keys to use for the workloads"))
	key = "fields"
	BenchCmd.PersistentFlags().Int(key, 16, util.WrapString("How many fields each key holds"))
	key = "value-size"
	BenchCmd.PersistentFlags().Int(key, 64, util.WrapString("Value size in bytes"))
	key = "ops"
	BenchCmd.PersistentFlags().Int(key, 100000, util.WrapString("Operations per workload"))
	key = "skip"
	BenchCmd.PersistentFlags().String(key, "", util.WrapString("Workloads to skip (comma separated - e.g. set,get)"))
	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))

	util.SetupEngineFlags(BenchCmd)
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	benchThreads = viper.GetInt("threads")
	benchKeySpread = viper.GetInt("keys")
	benchFields = viper.GetInt("fields")
	benchValueSize = viper.GetInt("value-size")
	benchOps = viper.GetInt("ops")
	benchSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func run(_ *cobra.Command, _ []string) error {

	mode, err := util.GetIndexMode()
	if err != nil {
		return err
	}

	cfg := cedar.DefaultConfig()
	cfg.IndexMode = mode
	if n := viper.GetInt("namespaces"); n > 0 {
		cfg.Namespaces = n
	}
	if p := viper.GetDuration("active-period"); p > 0 {
		cfg.ActivePeriod = p
	}
	if k := viper.GetInt("keys-per-tick"); k > 0 {
		cfg.KeysPerTick = k
	}

	s := lstore.NewLocalStore(func() hash.HashDB { return cedar.NewCedarDB(cfg) })

	// Print configuration
	fmt.Println("Engine benchmark")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Index:   %s\n", mode)
	fmt.Printf("Threads: %d\n", benchThreads)
	fmt.Printf("Keys:    %d x %d fields, %d byte values\n", benchKeySpread, benchFields, benchValueSize)
	fmt.Printf("Ops:     %d per workload\n", benchOps)
	fmt.Println()

	value := make([]byte, benchValueSize)
	results := make(map[string]metrics.Timer)

	record := func(name string, fn func(i int) error) {
		timer := metrics.NewTimer()
		results[name] = timer
		if shouldSkip(name) {
			printTimer(name, timer)
			return
		}
		runWorkload(timer, fn)
		printTimer(name, timer)
	}

	record("set", func(i int) error {
		_, err := s.Set(0, benchKey(i), benchField(i), value, hash.SetOptions{})
		return err
	})

	record("set-ttl", func(i int) error {
		_, err := s.Set(0, benchKey(i), benchField(i), value, hash.SetOptions{TTL: time.Minute})
		return err
	})

	record("get", func(i int) error {
		_, _, _, err := s.Get(0, benchKey(i), benchField(i))
		return err
	})

	record("get-miss", func(i int) error {
		_, _, _, err := s.Get(0, benchKey(i), "missing")
		return err
	})

	record("incr", func(i int) error {
		_, err := s.IncrBy(0, benchKey(i), "counter", 1, hash.IncrOptions{})
		return err
	})

	record("digest", func(i int) error {
		_, err := s.Digest(0, benchKey(i))
		return err
	})

	record("mixed", func(i int) error {
		switch i % 4 {
		case 0:
			_, err := s.Set(0, benchKey(i), benchField(i), value, hash.SetOptions{})
			return err
		case 1:
			_, _, _, err := s.Get(0, benchKey(i), benchField(i))
			return err
		case 2:
			_, err := s.Exists(0, benchKey(i), benchField(i))
			return err
		default:
			_, err := s.IncrBy(0, benchKey(i), "counter", 1, hash.IncrOptions{})
			return err
		}
	})

	record("delete", func(i int) error {
		_, err := s.Delete(0, benchKey(i), benchField(i))
		return err
	})

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range benchSkip {
		if test == skip {
			return true
		}
	}
	return false
}

func benchKey(i int) string {
	return fmt.Sprintf("%s-%d", benchKeyPrefix, i%benchKeySpread)
}

func benchField(i int) string {
	return fmt.Sprintf("f%d", i%benchFields)
}

// runWorkload drives fn from benchThreads goroutines until benchOps
// calls have been timed
func runWorkload(timer metrics.Timer, fn func(i int) error) {
	var (
		wg     sync.WaitGroup
		next   atomic.Int64
		errors atomic.Int64
	)

	for t := 0; t < benchThreads; t++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				i := int(next.Add(1))
				if i > benchOps {
					return
				}
				// spread goroutines across the keyspace
				i += rng.Intn(benchKeySpread)
				timer.Time(func() {
					if err := fn(i); err != nil {
						errors.Add(1)
					}
				})
			}
		}(int64(t))
	}
	wg.Wait()

	if n := errors.Load(); n > 0 {
		fmt.Printf("warning: %d operations returned an error\n", n)
	}
}

// printTimer prints one line per workload with throughput and latency percentiles
func printTimer(test string, timer metrics.Timer) {
	if timer.Count() == 0 {
		fmt.Printf("%-10sskipped\n", test)
		return
	}

	ps := timer.Percentiles([]float64{0.5, 0.95, 0.99})
	fmt.Printf("%-10s%8d ops\t%10.0f ops/sec\tp50 %-10s p95 %-10s p99 %-10s max %s\n",
		test,
		timer.Count(),
		timer.RateMean(),
		time.Duration(ps[0]),
		time.Duration(ps[1]),
		time.Duration(ps[2]),
		time.Duration(timer.Max()),
	)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]metrics.Timer) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "Ops", "OpsPerSec", "P50Ns", "P95Ns", "P99Ns", "MaxNs", "Skipped",
		"Index", "Threads", "Keys", "Fields", "ValueSize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, timer := range results {
		skipped := "false"
		if timer.Count() == 0 {
			skipped = "true"
		}
		ps := timer.Percentiles([]float64{0.5, 0.95, 0.99})

		row := []string{
			test,
			strconv.FormatInt(timer.Count(), 10),
			fmt.Sprintf("%.0f", timer.RateMean()),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			strconv.FormatInt(timer.Max(), 10),
			skipped,
			viper.GetString("index"),
			strconv.Itoa(benchThreads),
			strconv.Itoa(benchKeySpread),
			strconv.Itoa(benchFields),
			strconv.Itoa(benchValueSize),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
