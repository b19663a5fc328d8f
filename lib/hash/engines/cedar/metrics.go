package cedar

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// engineMetrics holds the per-engine metric set. A dedicated set (rather
// than the process-global one) keeps multiple engines in one process, and
// engines created by tests, from colliding on metric names.
type engineMetrics struct {
	set            *metrics.Set
	activeExpired  []*metrics.Counter // per namespace
	passiveExpired []*metrics.Counter // per namespace
	tickDuration   *metrics.Summary
}

func newEngineMetrics(namespaces int) *engineMetrics {
	set := metrics.NewSet()

	m := &engineMetrics{
		set:            set,
		activeExpired:  make([]*metrics.Counter, namespaces),
		passiveExpired: make([]*metrics.Counter, namespaces),
		tickDuration:   set.NewSummary("cedar_active_expire_tick_duration_seconds"),
	}
	for ns := 0; ns < namespaces; ns++ {
		m.activeExpired[ns] = set.NewCounter(
			fmt.Sprintf(`cedar_expired_fields_total{mode="active",db="%d"}`, ns))
		m.passiveExpired[ns] = set.NewCounter(
			fmt.Sprintf(`cedar_expired_fields_total{mode="passive",db="%d"}`, ns))
	}
	return m
}

// WriteMetrics writes the engine metrics in Prometheus text exposition
// format.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) WriteMetrics(w io.Writer) {
	c.metrics.set.WritePrometheus(w)
}
