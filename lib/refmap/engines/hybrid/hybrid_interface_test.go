package hybrid

import (
	"testing"

	"github.com/ValentinKolb/refmap/lib/refmap"
	refmaptesting "github.com/ValentinKolb/refmap/lib/refmap/testing"
)

func newTestMap(policy refmap.Policy, retentionSize int) refmap.RefMap[string, int] {
	opts := DefaultOptions()
	opts.Policy = policy
	opts.RetentionSize = retentionSize
	return NewHybridMap[string, int](opts)
}

func Test(t *testing.T) {
	refmaptesting.RunRefMapTests(t, "HybridMap", newTestMap)
}

func TestWithWeakTier(t *testing.T) {
	// a tier larger than any test population must not change the contract
	refmaptesting.RunRefMapTests(t, "HybridMap(weak tier)", func(policy refmap.Policy, retentionSize int) refmap.RefMap[string, int] {
		opts := DefaultOptions()
		opts.Policy = policy
		opts.RetentionSize = retentionSize
		opts.WeakTierSize = 100_000
		return NewHybridMap[string, int](opts)
	})
}

func Benchmark(b *testing.B) {
	refmaptesting.RunRefMapBenchmarks(b, "HybridMap", newTestMap)
}
