// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the menuflow
// daemon.
//
// Configuration is loaded from a single file named either by the
// MENUFLOW_CONFIG environment variable (via [Load]) or by the --config
// flag (via [LoadFile]). There is no search path and no fallback
// file: a daemon without a config file runs on [Default] only when
// the caller asks for it explicitly.
//
// The file may carry development, staging, and production sections
// that override base values when [Config].Environment matches.
// Production without an explicit section switches logging to JSON.
//
// ${VAR} and ${VAR:-default} are expanded in path fields after
// loading. No other environment variables override config values.
package config
