package perf

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/refmap/cmd/util"
	"github.com/ValentinKolb/refmap/lib/common"
	"github.com/ValentinKolb/refmap/lib/refmap"
	"github.com/ValentinKolb/refmap/lib/refmap/engines/hybrid"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger("perf")

var (
	// PerfCmd represents the perf command
	PerfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the cache",
		Long:    "Runs benchmarks against an in-process cache configured with the cache flags",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfConfig     *common.CacheConfig
	perfValueSize  = 128
	perfNumThreads = 10
	perfKeySpread  = 1000
	perfSkip       = make([]string, 0)
)

// benchmark is one named perf test against a fresh cache
type benchmark struct {
	name string
	fn   func(b *testing.B, cache refmap.RefMap[string, []byte], timer gometrics.Timer)
}

// result of one benchmark: the testing result and the latency timer
type result struct {
	bench testing.BenchmarkResult
	timer gometrics.Timer
}

func init() {
	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "value-size"
	PerfCmd.Flags().Int(key, 128, util.WrapString("Size of the stored values (in bytes)"))
	key = "keys"
	PerfCmd.Flags().Int(key, 1000, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfConfig = util.GetCacheConfig()
	perfValueSize = viper.GetInt("value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfKeySpread <= 0 {
		return fmt.Errorf("invalid number of keys %d: must be positive", perfKeySpread)
	}
	if perfValueSize < 0 {
		return fmt.Errorf("invalid value size %d: must not be negative", perfValueSize)
	}
	if _, err := perfConfig.ToOptions(); err != nil {
		return err
	}

	return common.InitLoggers(perfConfig.LogLevel)
}

func run(_ *cobra.Command, _ []string) error {
	opts, err := perfConfig.ToOptions()
	if err != nil {
		return err
	}

	fmt.Println("Performance testing tool for the cache")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(perfConfig.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	registry := gometrics.NewRegistry()
	results := make(map[string]result)

	for _, bm := range benchmarks() {
		if shouldSkip(bm.name) {
			printResult(bm.name, result{})
			continue
		}

		timer := gometrics.NewTimer()
		if err := registry.Register(bm.name, timer); err != nil {
			return fmt.Errorf("failed to register timer for %s: %w", bm.name, err)
		}

		bench := testing.Benchmark(func(b *testing.B) {
			cache := hybrid.NewHybridMap[string, []byte](opts)
			b.Cleanup(func() {
				cache.Close()
			})
			b.SetParallelism(perfNumThreads)
			bm.fn(b, cache, timer)
		})

		results[bm.name] = result{bench: bench, timer: timer}
		printResult(bm.name, results[bm.name])
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %w", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

func benchmarks() []benchmark {
	return []benchmark{
		{name: "put", fn: benchPut},
		{name: "get", fn: benchGet},
		{name: "remove", fn: benchRemove},
		{name: "reclaim", fn: benchReclaim},
		{name: "mixed", fn: benchMixed},
	}
}

func benchPut(b *testing.B, cache refmap.RefMap[string, []byte], timer gometrics.Timer) {
	getKey := getKeys("put")
	value := make([]byte, perfValueSize)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			timer.Time(func() {
				if _, _, err := cache.Put(getKey(counter), value); err != nil {
					Logger.Errorf("(put) - error storing key: %v", err)
				}
			})
			counter++
		}
	})
}

func benchGet(b *testing.B, cache refmap.RefMap[string, []byte], timer gometrics.Timer) {
	getKey := getKeys("get")
	fill(cache, getKey)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			timer.Time(func() {
				cache.Get(getKey(counter))
			})
			counter++
		}
	})
}

func benchRemove(b *testing.B, cache refmap.RefMap[string, []byte], timer gometrics.Timer) {
	getKey := getKeys("remove")
	value := make([]byte, perfValueSize)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := getKey(counter)
			_, _, _ = cache.Put(key, value)
			timer.Time(func() {
				cache.Remove(key)
			})
			counter++
		}
	})
}

func benchReclaim(b *testing.B, cache refmap.RefMap[string, []byte], timer gometrics.Timer) {
	getKey := getKeys("reclaim")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		fill(cache, getKey)
		b.StartTimer()

		timer.Time(func() {
			cache.SignalPressure()
			cache.Size() // purges
		})
	}
}

func benchMixed(b *testing.B, cache refmap.RefMap[string, []byte], timer gometrics.Timer) {
	getKey := getKeys("mixed")
	fill(cache, getKey)
	value := make([]byte, perfValueSize)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := getKey(r.Intn(perfKeySpread))
			op := r.Intn(100)
			timer.Time(func() {
				switch {
				case op < 70:
					cache.Get(key)
				case op < 90:
					_, _, _ = cache.Put(key, value)
				case op < 99:
					cache.Remove(key)
				default:
					cache.Reclaim()
				}
			})
		}
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// getKeys creates the test keys of a benchmark and returns a function to get a key
// by index (with wraparound)
func getKeys(prefix string) func(int) string {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("__perf-%s-%d", prefix, i)
	}
	return func(i int) string {
		return keys[i%perfKeySpread]
	}
}

// fill stores a value under every test key
func fill(cache refmap.RefMap[string, []byte], getKey func(int) string) {
	value := make([]byte, perfValueSize)
	for i := 0; i < perfKeySpread; i++ {
		if _, _, err := cache.Put(getKey(i), value); err != nil {
			Logger.Errorf("error filling cache: %v", err)
		}
	}
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, res result) {
	if res.bench.NsPerOp() == 0 {
		fmt.Printf("%-12sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(res.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	ps := res.timer.Percentiles([]float64{0.5, 0.99})

	fmt.Printf("%-12s%.0fns/op (%s/op)\t%.0f ops/sec\tp50 %s\tp99 %s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec,
		time.Duration(ps[0]), time.Duration(ps[1]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]result) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50Ns", "P99Ns", "Count",
		"Policy", "RetentionSize", "WeakTierSize", "SoftBudgetBytes",
		"Threads", "ValueSize", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	tests := make([]string, 0, len(results))
	for test := range results {
		tests = append(tests, test)
	}
	sort.Strings(tests)

	for _, test := range tests {
		res := results[test]
		nsPerOp := math.Max(float64(res.bench.NsPerOp()), 1)
		ps := res.timer.Percentiles([]float64{0.5, 0.99})

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", 1.0/(nsPerOp/1e9)),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			strconv.FormatInt(res.timer.Count(), 10),
			perfConfig.Policy,
			strconv.Itoa(perfConfig.RetentionSize),
			strconv.Itoa(perfConfig.WeakTierSize),
			strconv.FormatInt(perfConfig.SoftBudgetBytes, 10),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfValueSize),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %w", test, err)
		}
	}

	return nil
}
