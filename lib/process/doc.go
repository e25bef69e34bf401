// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers used by menuflow's
// main package for failures that happen before the structured logger
// exists (configuration load, flag parsing) or after it is torn down.
package process
