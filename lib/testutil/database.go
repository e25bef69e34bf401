// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"path/filepath"
	"testing"
)

// TempDatabase returns a path for a SQLite database inside a directory
// that is removed when the test completes. The file itself does not
// exist yet.
func TempDatabase(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "menuflow.db")
}
