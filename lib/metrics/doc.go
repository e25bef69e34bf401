// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics declares menuflow's Prometheus collectors. They are
// registered on the default registry at package init through promauto
// and served by the daemon's /metrics endpoint.
package metrics
