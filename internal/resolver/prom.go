package resolver

import (
	prom "github.com/prometheus/client_golang/prometheus"
)

var resolveFailures = prom.NewCounter(prom.CounterOpts{
	Namespace: "devicegate",
	Subsystem: "resolver",
	Name:      "failures_total",
	Help:      "device templates that could not be expanded",
})

func init() {
	prom.MustRegister(resolveFailures)
}
