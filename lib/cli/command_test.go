// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesNestedSubcommands(t *testing.T) {
	var called string
	var received []string
	root := &Command{
		Name: "dropship",
		Subcommands: []*Command{
			{Name: "status", Run: func(ctx context.Context, args []string) error {
				called = "status"
				return nil
			}},
			{Name: "package", Subcommands: []*Command{
				{Name: "show", Run: func(ctx context.Context, args []string) error {
					called = "package show"
					received = args
					return nil
				}},
			}},
		},
	}

	if err := root.Execute(context.Background(), []string{"package", "show", "Proj/Main:2015@3"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "package show" {
		t.Errorf("dispatched to %q, want package show", called)
	}
	if len(received) != 1 || received[0] != "Proj/Main:2015@3" {
		t.Errorf("args = %v", received)
	}
}

func TestExecutePassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "cycle")
	var got any
	command := &Command{Name: "run-once", Run: func(ctx context.Context, args []string) error {
		got = ctx.Value(key{})
		return nil
	}}
	if err := command.Execute(ctx, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "cycle" {
		t.Errorf("context value = %v", got)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var project string
	var deployed bool
	var positional []string
	command := &Command{
		Name: "packages",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("packages", pflag.ContinueOnError)
			flagSet.StringVar(&project, "project", "", "project filter")
			flagSet.BoolVar(&deployed, "deployed", false, "deployed only")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			positional = args
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"--project", "Proj", "--deployed", "extra"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if project != "Proj" || !deployed {
		t.Errorf("project = %q deployed = %v", project, deployed)
	}
	if len(positional) != 1 || positional[0] != "extra" {
		t.Errorf("args = %v", positional)
	}
}

func TestExecuteSuggestsFlag(t *testing.T) {
	command := &Command{
		Name: "packages",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("packages", pflag.ContinueOnError)
			flagSet.Bool("deployed", false, "deployed only")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--deplyed"})
	if err == nil {
		t.Fatal("Execute with unknown flag succeeded")
	}
	for _, want := range []string{"deplyed", "did you mean --deployed", "--help"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}

	err = command.Execute(context.Background(), []string{"--zzzzzzzz"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %v, want no suggestion", err)
	}
}

func TestExecuteSuggestsSubcommand(t *testing.T) {
	root := &Command{
		Name:        "dropship",
		Subcommands: []*Command{{Name: "status"}, {Name: "packages"}, {Name: "manifest"}},
	}

	err := root.Execute(context.Background(), []string{"pakages"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "packages"`) {
		t.Errorf("error = %v, want suggestion for packages", err)
	}
	err = root.Execute(context.Background(), []string{"zzzzzzz"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %v, want no suggestion", err)
	}
}

func TestExecuteHelpAndMissingSubcommand(t *testing.T) {
	root := &Command{
		Name:        "dropship",
		Subcommands: []*Command{{Name: "status", Summary: "Show store statistics"}},
	}
	for _, arg := range []string{"-h", "--help", "help"} {
		if err := root.Execute(context.Background(), []string{arg}); err != nil {
			t.Errorf("Execute(%q): %v", arg, err)
		}
	}
	err := root.Execute(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %v, want subcommand required", err)
	}
}

func TestPrintHelp(t *testing.T) {
	command := &Command{
		Name:        "dropship",
		Description: "Operate a dropship installation.",
		Subcommands: []*Command{
			{Name: "status", Summary: "Show store statistics"},
			{Name: "packages", Summary: "List recorded packages"},
		},
		Examples: []Example{
			{Description: "List deployed packages of one branch", Command: "dropship packages --branch Main --deployed"},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()
	for _, want := range []string{
		"Operate a dropship installation.",
		"dropship <command> [flags]",
		"Commands:",
		"List recorded packages",
		"Examples:",
		"# List deployed packages of one branch",
		"Run 'dropship <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help missing %q:\n%s", want, output)
		}
	}
}

func TestPrintHelpListsFlags(t *testing.T) {
	command := &Command{
		Name:  "packages",
		Usage: "dropship packages [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("packages", pflag.ContinueOnError)
			flagSet.String("branch", "", "branch filter")
			return flagSet
		},
	}
	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	if !strings.Contains(buffer.String(), "Flags:") || !strings.Contains(buffer.String(), "--branch") {
		t.Errorf("help = %q", buffer.String())
	}
}

func TestFullName(t *testing.T) {
	root := &Command{Name: "dropship"}
	pkg := &Command{Name: "package", parent: root}
	show := &Command{Name: "show", parent: pkg}
	if got := show.fullName(); got != "dropship package show" {
		t.Errorf("fullName = %q", got)
	}
}

func TestExecuteGroupRejectsFlagsAndLeafNeedsRun(t *testing.T) {
	ran := false
	root := &Command{
		Name: "dropship",
		Subcommands: []*Command{
			{Name: "status", Run: func(ctx context.Context, args []string) error {
				ran = true
				return nil
			}},
			{Name: "manifest"},
		},
	}

	err := root.Execute(context.Background(), []string{"--json", "status"})
	if err == nil || !strings.Contains(err.Error(), `subcommand required (got flag "--json")`) {
		t.Errorf("error = %v, want subcommand required for flag", err)
	}
	if ran {
		t.Error("group dispatched past a leading flag")
	}

	err = root.Execute(context.Background(), []string{"manifest"})
	if err == nil || !strings.Contains(err.Error(), `no action defined for "dropship manifest"`) {
		t.Errorf("error = %v, want no action defined", err)
	}
}

func TestExecuteNestedUsageErrorNamesFullPath(t *testing.T) {
	root := &Command{
		Name: "dropship",
		Subcommands: []*Command{{
			Name: "package",
			Subcommands: []*Command{{
				Name: "show",
				Flags: func() *pflag.FlagSet {
					return pflag.NewFlagSet("show", pflag.ContinueOnError)
				},
				Run: func(ctx context.Context, args []string) error { return nil },
			}},
		}},
	}
	err := root.Execute(context.Background(), []string{"package", "show", "--diag"})
	if err == nil || !strings.Contains(err.Error(), "Run 'dropship package show --help'") {
		t.Errorf("error = %v, want usage hint with full command path", err)
	}
}

func TestExitError(t *testing.T) {
	var err error = &ExitError{Code: 2}
	var coded interface{ ExitCode() int }
	if !errors.As(err, &coded) || coded.ExitCode() != 2 {
		t.Fatalf("ExitError does not expose code 2: %v", err)
	}
	if !strings.Contains(err.Error(), "2") {
		t.Errorf("Error() = %q", err.Error())
	}
}
