// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"
)

func TestFatal(t *testing.T) {
	var buffer bytes.Buffer
	var code int
	stderr = &buffer
	exit = func(c int) { code = c }
	t.Cleanup(func() {
		stderr = io.Writer(os.Stderr)
		exit = os.Exit
	})

	Fatal(errors.New("loading config: no such file"))

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if got, want := buffer.String(), "menuflow: loading config: no such file\n"; got != want {
		t.Errorf("stderr = %q, want %q", got, want)
	}
}
