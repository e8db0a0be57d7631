package hybrid

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// mapMetrics holds the Prometheus metrics of one map in its own metrics.Set,
// so several maps in one process never collide on metric names
type mapMetrics struct {
	set *metrics.Set

	hits    *metrics.Counter
	misses  *metrics.Counter
	puts    *metrics.Counter
	removes *metrics.Counter

	purgedDrain  *metrics.Counter
	purgedLookup *metrics.Counter

	reclaimed map[Trigger]*metrics.Counter
}

// newMapMetrics creates all counters of a map. entries and retained back the gauges.
func newMapMetrics(name string, entries, retained func() float64) *mapMetrics {
	s := metrics.NewSet()
	label := func(metric string, extra ...string) string {
		labels := fmt.Sprintf("cache=%q", name)
		for i := 0; i+1 < len(extra); i += 2 {
			labels += fmt.Sprintf(",%s=%q", extra[i], extra[i+1])
		}
		return fmt.Sprintf("%s{%s}", metric, labels)
	}

	m := &mapMetrics{
		set:          s,
		hits:         s.NewCounter(label("refmap_hits_total")),
		misses:       s.NewCounter(label("refmap_misses_total")),
		puts:         s.NewCounter(label("refmap_puts_total")),
		removes:      s.NewCounter(label("refmap_removes_total")),
		purgedDrain:  s.NewCounter(label("refmap_purged_total", "path", "drain")),
		purgedLookup: s.NewCounter(label("refmap_purged_total", "path", "lookup")),
		reclaimed:    make(map[Trigger]*metrics.Counter),
	}

	for _, t := range []Trigger{TriggerCycle, TriggerPressure, TriggerBudget, TriggerWeakTier} {
		m.reclaimed[t] = s.NewCounter(label("refmap_reclaimed_total", "trigger", t.String()))
	}

	s.NewGauge(label("refmap_entries"), entries)
	s.NewGauge(label("refmap_retained"), retained)

	return m
}

// recordReclaim is the onReclaim hook of the reclaimer
func (m *mapMetrics) recordReclaim(trigger Trigger, n int) {
	if c, ok := m.reclaimed[trigger]; ok {
		c.Add(n)
	}
}

// reclaimedTotal sums the reclaimed counters over all triggers
func (m *mapMetrics) reclaimedTotal() uint64 {
	var total uint64
	for _, c := range m.reclaimed {
		total += c.Get()
	}
	return total
}

func (m *mapMetrics) purgedTotal() uint64 {
	return m.purgedDrain.Get() + m.purgedLookup.Get()
}

func (m *mapMetrics) writePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
