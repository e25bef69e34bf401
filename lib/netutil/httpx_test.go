// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestReadResponse(t *testing.T) {
	data, err := ReadResponse(strings.NewReader(`{"next_batch":"s1"}`))
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if !bytes.Equal(data, []byte(`{"next_batch":"s1"}`)) {
		t.Errorf("ReadResponse = %q", data)
	}

	if _, err := ReadResponse(failingReader{}); err == nil {
		t.Error("expected error from failing reader")
	}
}

func TestErrorBody(t *testing.T) {
	if got := ErrorBody(strings.NewReader("bad gateway")); got != "bad gateway" {
		t.Errorf("ErrorBody = %q", got)
	}
	if got := ErrorBody(failingReader{}); got != "" {
		t.Errorf("ErrorBody on failure = %q, want empty", got)
	}
}
