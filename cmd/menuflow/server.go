// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bureau-foundation/menuflow/session"
)

func newHTTPServer(address string, registry *session.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /healthz", healthHandler(registry))
	return &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type healthReport struct {
	Sessions    int `json:"sessions"`
	Started     int `json:"started"`
	SyncHealthy int `json:"sync_healthy"`
	Disabled    int `json:"disabled"`
}

// healthHandler reports session counts. The daemon is healthy when
// every started session's last sync succeeded.
func healthHandler(registry *session.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var report healthReport
		for _, live := range registry.Sessions() {
			report.Sessions++
			if live.Started() {
				report.Started++
				if live.SyncHealthy() {
					report.SyncHealthy++
				}
			}
			if !live.Account().Enabled {
				report.Disabled++
			}
		}

		status := http.StatusOK
		if report.SyncHealthy < report.Started {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(report)
	})
}
