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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Admission
	AdmissionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "namecard_admission_decisions_total",
			Help: "Admission decisions by check and outcome",
		},
		[]string{"check", "outcome"}, // check: quota, abuse, block, batch; outcome: allowed, denied, degraded
	)

	TenantCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "namecard_tenant_cache_lookups_total",
			Help: "Tenant resolver lookups by result",
		},
		[]string{"result"}, // hit, negative_hit, miss, error, default
	)

	// Store
	StoreFailovers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "namecard_store_failovers_total",
			Help: "Store operations served by the in-memory fallback",
		},
		[]string{"operation"},
	)

	StoreBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "namecard_store_breaker_state",
			Help: "Store circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Recognition and persistence
	RecognitionResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "namecard_recognition_results_total",
			Help: "Recognizer results by kind",
		},
		[]string{"kind"},
	)

	// Uploads
	UploadTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "namecard_upload_tasks_total",
			Help: "Upload task outcomes by backend",
		},
		[]string{"backend", "outcome"}, // submitted, succeeded, retried, failed, replayed
	)

	UploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "namecard_upload_duration_seconds",
			Help:    "Duration of a single upload attempt",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	FailedLedgerWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "namecard_upload_failed_ledger_writes_total",
			Help: "Upload tasks parked in the failure ledger",
		},
	)
)
