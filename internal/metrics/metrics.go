// Copyright 2015 The Delix Project Authors. See the AUTHORS file at the top level directory.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package metrics exposes a node's counters and gauges in the
// Prometheus exposition format and keeps a bounded in-memory log of
// recent mesh events.
package metrics

import (
	"net/http"

	"github.com/VictoriaMetrics/metrics"
)

// Metrics is a node's metrics surface: connection and service counts,
// request outcomes, and an HTTP handler that renders them.
type Metrics struct {
	set *metrics.Set

	connections *metrics.Counter
	services    *metrics.Counter
	requests    *metrics.Counter
	requestsOK  *metrics.Counter
	requestsErr *metrics.Counter
	timeouts    *metrics.Counter

	Events *EventRing
}

// New creates a Metrics instance with its own metric set, isolated
// from the global VictoriaMetrics registry so multiple nodes in one
// process never collide.
func New(eventCapacity int) *Metrics {
	set := metrics.NewSet()
	return &Metrics{
		set:         set,
		connections: set.NewCounter("delix_connections_total"),
		services:    set.NewCounter("delix_services_total"),
		requests:    set.NewCounter("delix_requests_total"),
		requestsOK:  set.NewCounter("delix_requests_ok_total"),
		requestsErr: set.NewCounter("delix_requests_error_total"),
		timeouts:    set.NewCounter("delix_request_timeouts_total"),
		Events:      NewEventRing(eventCapacity),
	}
}

// ConnectionsGauge adapts Metrics to conn.Gauge, tracking the current
// number of open peer connections as a counter that moves in both
// directions.
func (m *Metrics) ConnectionsGauge() connectionsGauge { return connectionsGauge{m} }

type connectionsGauge struct{ m *Metrics }

func (g connectionsGauge) Inc() { g.m.connections.Inc() }
func (g connectionsGauge) Dec() { g.m.connections.Dec() }

// ServiceRegistered records a local service registration.
func (m *Metrics) ServiceRegistered() { m.services.Inc() }

// ServiceDeregistered records a local service withdrawal.
func (m *Metrics) ServiceDeregistered() { m.services.Dec() }

// RequestOutcome records a completed Request call: every call
// increments the total, and exactly one of ok/timeout/error is
// additionally incremented based on how it finished.
func (m *Metrics) RequestOutcome(err error, timedOut bool) {
	m.requests.Inc()
	switch {
	case timedOut:
		m.timeouts.Inc()
	case err != nil:
		m.requestsErr.Inc()
	default:
		m.requestsOK.Inc()
	}
}

// Handler renders the metric set in the Prometheus text exposition
// format.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.set.WritePrometheus(w)
	})
}
