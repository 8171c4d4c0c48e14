/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

package core

import (
	"github.com/edgelesssys/dextmanager/coordinator/state"
	"github.com/edgelesssys/dextmanager/coordinator/sysext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CoreMetrics are the Prometheus metrics of the Core.
// A CoreMetrics created from a nil factory records nothing.
type CoreMetrics struct {
	activationState prometheus.Gauge
	events          *prometheus.CounterVec
	requests        *prometheus.CounterVec
}

// NewCoreMetrics creates the Core's metrics and registers them using the given factory.
func NewCoreMetrics(factory *promauto.Factory, namespace string, subsystem string) *CoreMetrics {
	if factory == nil {
		return &CoreMetrics{}
	}
	return &CoreMetrics{
		activationState: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "state",
				Help:      "State of the driver extension activation.",
			}),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_total",
				Help:      "Number of activation events applied to the activation state.",
			},
			[]string{"event"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Number of requests submitted to the extension-management service.",
			},
			[]string{"kind", "outcome"},
		),
	}
}

func (m *CoreMetrics) observeEvent(ev state.Event, next state.State) {
	if m.events == nil {
		return
	}
	m.events.WithLabelValues(ev.String()).Inc()
	m.setState(next)
}

func (m *CoreMetrics) setState(s state.State) {
	if m.activationState == nil {
		return
	}
	m.activationState.Set(float64(s))
}

func (m *CoreMetrics) observeRequest(kind sysext.Kind, err error) {
	if m.requests == nil {
		return
	}
	outcome := "submitted"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(kind.String(), outcome).Inc()
}
