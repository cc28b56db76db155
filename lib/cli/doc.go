// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework behind the dropship operator
// CLI.
//
// A [Command] is a named node with either a Run function or nested
// Subcommands, plus an optional pflag FlagSet factory. [Command.Execute]
// routes arguments down the tree, parses flags, and prints help. Unknown
// commands and flags get a "did you mean" suggestion when a known name
// is within edit distance 3.
//
// Output helpers: [JSONOutput] adds a --json flag, [RenderTable] draws
// lipgloss tables, and [Truncate] shortens cells by display width.
// [ExitError] carries an exit code for commands that already printed
// their own diagnostics.
package cli
