// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// exitCoder is implemented by errors that carry their own exit status
// and have already written their output (see cli.ExitError).
type exitCoder interface {
	ExitCode() int
}

// Fatal reports err and exits. Errors implementing ExitCode() exit
// with that code silently; everything else prints "error: err" to
// stderr and exits 1.
func Fatal(err error) {
	os.Exit(report(os.Stderr, err))
}

// report writes the message for err (if any) and returns the exit
// code Fatal would use.
func report(w io.Writer, err error) int {
	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}
