// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session registry metrics
var (
	SessionsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "menuflow_sessions_live",
			Help: "Number of sessions held by the registry.",
		},
	)

	SessionsStarted = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "menuflow_sessions_started",
			Help: "Number of sessions with a running sync loop.",
		},
	)
)

// Bootstrap metrics
var (
	BootstrapAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuflow_bootstrap_attempts_total",
			Help: "Connection bootstrap attempts by outcome.",
		},
		[]string{"outcome"}, // outcome: "started", "retry", "invalid_credential", "identity_mismatch", "exhausted"
	)

	AccountsDisabledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuflow_accounts_disabled_total",
			Help: "Accounts disabled after a terminal bootstrap failure.",
		},
		[]string{"reason"},
	)
)

// Sync and reconcile metrics
var (
	SyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuflow_sync_total",
			Help: "Completed /sync requests by result.",
		},
		[]string{"result"}, // result: "success", "error"
	)

	ReconcileIntegrityErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "menuflow_reconcile_integrity_errors_total",
			Help: "Invited rooms dropped because the payload lacked the account's own membership event.",
		},
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "menuflow_reconcile_duration_seconds",
			Help:    "Time spent classifying one sync payload.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
	)

	EventsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuflow_events_dispatched_total",
			Help: "Events handed to the conversation engine by kind.",
		},
		[]string{"kind"}, // kind: "message", "invite"
	)
)

// Outcome labels for BootstrapAttemptsTotal.
const (
	OutcomeStarted           = "started"
	OutcomeRetry             = "retry"
	OutcomeInvalidCredential = "invalid_credential"
	OutcomeIdentityMismatch  = "identity_mismatch"
	OutcomeExhausted         = "exhausted"
)
