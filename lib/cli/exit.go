// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "strconv"

// ExitError is returned by a command that has already reported its
// outcome, such as "config check" listing validation failures. main
// exits with Code and prints nothing further.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return "dropship: exit status " + strconv.Itoa(e.Code)
}

// ExitCode satisfies the interface process.Fatal checks for.
func (e *ExitError) ExitCode() int {
	return e.Code
}
