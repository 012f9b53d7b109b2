/*
 * metrics.go, part of goemle.
 *
 *
 * Copyright 2026 The goemle Authors
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const MetricPrefix = "emle_"

// Metrics are the Prometheus metrics of a session. Each Metrics has its own
// registry, so several sessions can live in one process.
type Metrics struct {
	Registry *prometheus.Registry
	Jobs     *prometheus.CounterVec
	Duration prometheus.Histogram
	Step     prometheus.Gauge
	Lambda   prometheus.Gauge
}

func NewMetrics() *Metrics {
	M := &Metrics{
		Registry: prometheus.NewRegistry(),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrefix + "jobs_total",
			Help: "Jobs processed, by outcome (ok or the error kind)",
		}, []string{"status"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricPrefix + "job_duration_seconds",
			Help:    "Wall time of successful jobs",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
		}),
		Step: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricPrefix + "step",
			Help: "Index of the next step",
		}),
		Lambda: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricPrefix + "lambda",
			Help: "Current interpolation parameter",
		}),
	}
	M.Registry.MustRegister(M.Jobs, M.Duration, M.Step, M.Lambda)
	return M
}

// Handler serves the metrics in the Prometheus text format.
func (M *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(M.Registry, promhttp.HandlerOpts{})
}
