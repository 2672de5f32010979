package admission

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const (
	promNamespace = "devicegate"
	promSubsystem = "admission"

	resultUnconstrained = "unconstrained"
	resultAdmitted      = "admitted"
	resultBlocked       = "blocked"
)

var (
	decisions = prom.NewCounterVec(prom.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "decisions_total",
		Help:      "admission decisions by result",
	}, []string{"result"})
	scanSeconds = prom.NewHistogram(prom.HistogramOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "seconds",
		Help:      "time spent scanning pending and running items for a device conflict",
		Buckets:   []float64{.00001, .0001, .001, .01, .1},
	})
)

func init() {
	prom.MustRegister(decisions)
	prom.MustRegister(scanSeconds)
}

type timer struct{ start time.Time }

func newTimer() timer { return timer{start: time.Now()} }

func (t timer) observe() { scanSeconds.Observe(time.Since(t.start).Seconds()) }
