package testing

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/refmap/lib/refmap"
)

// Number of distinct keys used by the benchmarks on existing entries
const benchKeySpace = 10_000

// RunRefMapBenchmarks runs all benchmarks for a RefMap implementation
func RunRefMapBenchmarks(b *testing.B, name string, factory MapFactory) {

	b.Run("Put", func(b *testing.B) {
		benchmarkPut(b, factory(refmap.PolicyWeak, 100))
	})

	b.Run("PutExisting", func(b *testing.B) {
		benchmarkPutExisting(b, factory(refmap.PolicyWeak, 100))
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory(refmap.PolicySoft, 100))
	})

	b.Run("Get(miss)", func(b *testing.B) {
		benchmarkGetMiss(b, factory(refmap.PolicySoft, 100))
	})

	b.Run("Remove", func(b *testing.B) {
		benchmarkRemove(b, factory(refmap.PolicyWeak, 100))
	})

	b.Run("ReclaimAndPurge", func(b *testing.B) {
		benchmarkReclaimAndPurge(b, factory(refmap.PolicyWeak, 100))
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory(refmap.PolicyWeak, 100))
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func fill(m refmap.RefMap[string, int], n int) {
	for i := 0; i < n; i++ {
		_, _, _ = m.Put(fmt.Sprintf("key-%d", i), i)
	}
}

// Benchmark for Put with new keys
func benchmarkPut(b *testing.B, m refmap.RefMap[string, int]) {
	b.Cleanup(func() {
		m.Close()
	})

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			_, _, _ = m.Put(fmt.Sprintf("key-%d", i), int(i))
		}
	})
}

// Benchmark for Put replacing existing keys
func benchmarkPutExisting(b *testing.B, m refmap.RefMap[string, int]) {
	b.Cleanup(func() {
		m.Close()
	})
	fill(m, benchKeySpace)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			i := r.Intn(benchKeySpace)
			_, _, _ = m.Put(fmt.Sprintf("key-%d", i), i)
		}
	})
}

// Benchmark for Get on present keys
func benchmarkGet(b *testing.B, m refmap.RefMap[string, int]) {
	b.Cleanup(func() {
		m.Close()
	})
	fill(m, benchKeySpace)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			m.Get(fmt.Sprintf("key-%d", r.Intn(benchKeySpace)))
		}
	})
}

// Benchmark for Get on absent keys (no touch)
func benchmarkGetMiss(b *testing.B, m refmap.RefMap[string, int]) {
	b.Cleanup(func() {
		m.Close()
	})
	fill(m, benchKeySpace)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			m.Get(fmt.Sprintf("missing-%d", r.Intn(benchKeySpace)))
		}
	})
}

// Benchmark for Put followed by Remove
func benchmarkRemove(b *testing.B, m refmap.RefMap[string, int]) {
	b.Cleanup(func() {
		m.Close()
	})

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := fmt.Sprintf("key-%d", counter.Add(1))
			_, _, _ = m.Put(key, 0)
			m.Remove(key)
		}
	})
}

// Benchmark for a reclaim cycle over a filled map and the drain that purges it
func benchmarkReclaimAndPurge(b *testing.B, m refmap.RefMap[string, int]) {
	b.Cleanup(func() {
		m.Close()
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		fill(m, 1000)
		b.StartTimer()

		m.Reclaim()
		m.Size()
	}
}

// Benchmark for a read-heavy mix with occasional writes, removes and reclaim cycles
func benchmarkMixedUsage(b *testing.B, m refmap.RefMap[string, int]) {
	b.Cleanup(func() {
		m.Close()
	})
	fill(m, benchKeySpace)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := fmt.Sprintf("key-%d", r.Intn(benchKeySpace))
			switch op := r.Intn(100); {
			case op < 70:
				m.Get(key)
			case op < 90:
				_, _, _ = m.Put(key, op)
			case op < 99:
				m.Remove(key)
			default:
				m.Reclaim()
			}
		}
	})
}
