// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dropship/lib/cli"
	"github.com/bureau-foundation/dropship/lib/codec"
	"github.com/bureau-foundation/dropship/lib/config"
	"github.com/bureau-foundation/dropship/lib/manifest"
)

func (a *app) manifestCommand() *cli.Command {
	var (
		output     cli.JSONOutput
		diagnostic bool
	)
	return &cli.Command{
		Name:    "manifest",
		Summary: "Inspect staged version manifests",
		Subcommands: []*cli.Command{{
			Name:    "show",
			Summary: "Decode a manifest.cbor file or version directory",
			Usage:   "dropship manifest show PATH [--diag]",
			Flags: func() *pflag.FlagSet {
				flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
				output.AddFlag(flagSet)
				flagSet.BoolVar(&diagnostic, "diag", false, "print CBOR diagnostic notation instead of the decoded manifest")
				return flagSet
			},
			Run: func(ctx context.Context, args []string) error {
				if len(args) != 1 {
					return fmt.Errorf("expected one manifest path, got %d arguments", len(args))
				}
				path := args[0]
				if diagnostic {
					if info, err := os.Stat(path); err == nil && info.IsDir() {
						path = filepath.Join(path, manifest.FileName)
					}
					data, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					notation, err := codec.Diagnose(data)
					if err != nil {
						return fmt.Errorf("diagnosing %s: %w", path, err)
					}
					fmt.Fprintln(a.stdout, notation)
					return nil
				}

				m, err := manifest.Read(path)
				if err != nil {
					return err
				}
				if done, err := output.EmitJSON(a.stdout, m); done {
					return err
				}
				fmt.Fprintf(a.stdout, "package:  %s/%s:%s@%s\n", m.Project, m.Branch, m.SubBranch, m.Version)
				fmt.Fprintf(a.stdout, "staged:   %s (%d of %d artifacts)\n", formatTime(m.StagedAt), m.StagedCount(), len(m.Artifacts))
				for _, build := range m.Builds {
					fmt.Fprintf(a.stdout, "build:    %s %s (completed %s)\n", build.Definition, build.BuildNumber, formatTime(build.Completed))
				}
				if len(m.Artifacts) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(m.Artifacts))
				for _, file := range m.Artifacts {
					rows = append(rows, []string{
						file.Name,
						strconv.FormatInt(file.Size, 10),
						file.BuildNumber,
						yesNo(file.Staged),
					})
				}
				fmt.Fprintln(a.stdout)
				fmt.Fprintln(a.stdout, cli.RenderTable([]string{"FILE", "SIZE", "BUILD", "STAGED"}, rows))
				return nil
			},
		}},
	}
}

func (a *app) configCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Summary: "Work with the configuration file",
		Subcommands: []*cli.Command{{
			Name:    "check",
			Summary: "Load and validate the configuration",
			Description: "Loads the configuration the way the service does, including env_file " +
				"expansion and sealed credentials, and reports every validation error.",
			Flags: func() *pflag.FlagSet {
				flagSet := pflag.NewFlagSet("check", pflag.ContinueOnError)
				a.addConfigFlags(flagSet)
				return flagSet
			},
			Run: func(ctx context.Context, args []string) error {
				var cfg *config.Config
				var err error
				if a.configPath != "" {
					cfg, err = config.LoadFile(a.configPath)
				} else {
					cfg, err = config.Load()
				}
				if err != nil {
					return err
				}
				if err := cfg.Validate(); err != nil {
					fmt.Fprintln(a.stdout, "configuration is invalid:")
					for _, problem := range unjoin(err) {
						fmt.Fprintf(a.stdout, "  - %s\n", problem)
					}
					return &cli.ExitError{Code: 1}
				}

				toggles := cfg.Toggles
				fmt.Fprintln(a.stdout, "configuration is valid")
				fmt.Fprintf(a.stdout, "  environment:   %s\n", cfg.Environment)
				fmt.Fprintf(a.stdout, "  staging root:  %s\n", cfg.StagingRoot)
				fmt.Fprintf(a.stdout, "  state dir:     %s\n", cfg.StateDir)
				fmt.Fprintf(a.stdout, "  poll interval: %s\n", cfg.PollInterval)
				fmt.Fprintf(a.stdout, "  watched:       %d branches\n", len(cfg.Watch))
				fmt.Fprintf(a.stdout, "  build update:  %s\n", yesNo(toggles.BuildUpdate))
				fmt.Fprintf(a.stdout, "  mirrors:       %d (copy %s)\n", len(cfg.Mirrors), yesNo(toggles.MirrorCopy))
				fmt.Fprintf(a.stdout, "  ftp:           %d (upload %s)\n", len(cfg.FTP), yesNo(toggles.FTPUpload))
				fmt.Fprintf(a.stdout, "  http shares:   %d (mirror %s)\n", len(cfg.HTTPShares), yesNo(toggles.HTTPMirror))
				fmt.Fprintf(a.stdout, "  object stores: %d (upload %s)\n", len(cfg.ObjectStores), yesNo(toggles.ObjectUpload))
				return nil
			},
		}},
	}
}

// unjoin flattens an errors.Join tree into its leaves.
func unjoin(err error) []error {
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		return []error{err}
	}
	var leaves []error
	for _, inner := range joined.Unwrap() {
		leaves = append(leaves, unjoin(inner)...)
	}
	return leaves
}
