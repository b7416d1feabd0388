/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pledge

import (
	"time"

	"github.com/blnkfinance/pledge/internal/apierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProposalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pledge_proposals_total",
			Help: "Unsigned transaction proposals by operation and outcome",
		},
		[]string{"operation", "result"},
	)

	ReconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pledge_reconciliations_total",
			Help: "Reconciliation runs by kind and outcome",
		},
		[]string{"kind", "result"},
	)

	ReconciliationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pledge_reconciliation_duration_seconds",
			Help:    "Time spent reconciling a mirror entity, receipt wait included",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"kind"},
	)
)

// outcome labels an error by its code, "ok" when err is nil.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apierror.CodeOf(err))
}

func recordProposal(operation string, err error) {
	ProposalsTotal.WithLabelValues(operation, outcome(err)).Inc()
}

func recordReconciliation(kind string, started time.Time, err error) {
	ReconciliationsTotal.WithLabelValues(kind, outcome(err)).Inc()
	ReconciliationDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}
