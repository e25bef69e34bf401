// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

var (
	stderr io.Writer = os.Stderr
	exit             = os.Exit
)

// Fatal writes "menuflow: err" to stderr and exits with code 1. Use it
// in main() for errors returned by run().
func Fatal(err error) {
	fmt.Fprintf(stderr, "menuflow: %v\n", err)
	exit(1)
}
