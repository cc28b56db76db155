// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is one node of the dropship command tree. A node is either a
// group (Subcommands set) or a leaf (Run set), never both.
type Command struct {
	// Name is what the operator types, e.g. "packages".
	Name string

	// Summary is the one-line description in the parent's listing.
	Summary string

	// Description heads the command's own help. Summary is used when
	// it is empty.
	Description string

	// Usage replaces the synthesized usage line.
	Usage string

	Examples []Example

	// Flags builds a fresh FlagSet for a leaf. Nil means no flags.
	Flags func() *pflag.FlagSet

	Subcommands []*Command

	// Run receives the positional arguments left after flag parsing.
	Run func(ctx context.Context, args []string) error

	parent *Command
}

// Example is one annotated invocation in help output.
type Example struct {
	Description string
	Command     string
}

// Execute dispatches args through the tree and runs the selected leaf.
func (c *Command) Execute(ctx context.Context, args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(os.Stderr)
		return nil
	}
	if len(c.Subcommands) > 0 {
		return c.dispatch(ctx, args)
	}
	if c.Run == nil {
		c.PrintHelp(os.Stderr)
		return fmt.Errorf("no action defined for %q", c.fullName())
	}
	positional, err := c.parseFlags(args)
	if err != nil {
		return err
	}
	return c.Run(ctx, positional)
}

// dispatch hands args[1:] to the subcommand named by args[0].
func (c *Command) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		c.PrintHelp(os.Stderr)
		return fmt.Errorf("subcommand required")
	}
	name := args[0]
	if strings.HasPrefix(name, "-") {
		c.PrintHelp(os.Stderr)
		return fmt.Errorf("subcommand required (got flag %q)", name)
	}
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			sub.parent = c
			return sub.Execute(ctx, args[1:])
		}
	}
	message := fmt.Sprintf("unknown command %q", name)
	if suggestion := suggestCommand(name, c.Subcommands); suggestion != "" {
		message += fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	return c.usageError(message)
}

// parseFlags applies the leaf's flags and returns what remains.
func (c *Command) parseFlags(args []string) ([]string, error) {
	if c.Flags == nil {
		return args, nil
	}
	flagSet := c.Flags()
	flagSet.SetOutput(io.Discard)
	err := flagSet.Parse(args)
	if err == nil {
		return flagSet.Args(), nil
	}
	message := err.Error()
	if strings.Contains(message, "unknown flag") || strings.Contains(message, "unknown shorthand flag") {
		if suggestion := suggestFlag(args, c.Flags()); suggestion != "" {
			message += fmt.Sprintf(" (did you mean %s?)", suggestion)
		}
	}
	return nil, c.usageError(message)
}

func (c *Command) usageError(message string) error {
	return fmt.Errorf("%s\n\nRun '%s --help' for usage.", message, c.fullName())
}

// PrintHelp writes the command's help to w.
func (c *Command) PrintHelp(w io.Writer) {
	name := c.fullName()
	group := len(c.Subcommands) > 0

	if heading := c.Description; heading != "" || c.Summary != "" {
		if heading == "" {
			heading = c.Summary
		}
		fmt.Fprintf(w, "%s\n\n", heading)
	}

	usage := c.Usage
	if usage == "" {
		usage = name + " [flags]"
		if group {
			usage = name + " <command> [flags]"
		}
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", usage)

	if group {
		fmt.Fprintf(w, "\nCommands:\n")
		table := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(table, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		table.Flush()
	}

	if c.Flags != nil {
		if usages := c.Flags().FlagUsages(); usages != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", usages)
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nExamples:\n")
		for _, example := range c.Examples {
			writeExample(w, example)
		}
	}

	if group {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", name)
	}
}

func writeExample(w io.Writer, example Example) {
	if example.Description == "" {
		fmt.Fprintf(w, "  %s\n", example.Command)
		return
	}
	fmt.Fprintf(w, "  # %s\n  %s\n\n", example.Description, example.Command)
}

// fullName is the space-separated path from the root, e.g.
// "dropship package show".
func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}
