// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dropship/lib/cli"
	"github.com/bureau-foundation/dropship/lib/config"
	"github.com/bureau-foundation/dropship/lib/trackstore"
)

// sourcePathWidth bounds the source path column of "package show".
const sourcePathWidth = 60

type statusResult struct {
	Stats  trackstore.Stats     `json:"stats"`
	Latest []trackstore.Package `json:"latest"`
}

func (a *app) statusCommand() *cli.Command {
	var output cli.JSONOutput
	return &cli.Command{
		Name:    "status",
		Summary: "Show store statistics and the newest package per branch",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			a.addConfigFlags(flagSet)
			output.AddFlag(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			return a.withStore(func(_ *config.Config, store *trackstore.Store) error {
				stats, err := store.Stats(ctx)
				if err != nil {
					return err
				}
				latest, err := store.LatestPerBranch(ctx)
				if err != nil {
					return err
				}
				if done, err := output.EmitJSON(a.stdout, statusResult{Stats: stats, Latest: latest}); done {
					return err
				}

				fmt.Fprintf(a.stdout, "packages:    %d (%d deployed)\n", stats.Packages, stats.Deployed)
				fmt.Fprintf(a.stdout, "artifacts:   %d (%d checksummed)\n", stats.Artifacts, stats.Checksummed)
				fmt.Fprintf(a.stdout, "last record: %s\n", formatTime(stats.LastRecord))
				if len(latest) == 0 {
					return nil
				}
				fmt.Fprintln(a.stdout)
				fmt.Fprintln(a.stdout, packageTable(latest))
				return nil
			})
		},
	}
}

func (a *app) packagesCommand() *cli.Command {
	var (
		output    cli.JSONOutput
		filter    trackstore.Filter
		deployed  bool
		isChanged func(string) bool
	)
	return &cli.Command{
		Name:    "packages",
		Summary: "List recorded packages, newest first",
		Usage:   "dropship packages [--project P] [--branch B] [--sub-branch S] [--deployed[=false]] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("packages", pflag.ContinueOnError)
			a.addConfigFlags(flagSet)
			output.AddFlag(flagSet)
			flagSet.StringVar(&filter.Project, "project", "", "only this project")
			flagSet.StringVar(&filter.Branch, "branch", "", "only this watched branch")
			flagSet.StringVar(&filter.SubBranch, "sub-branch", "", "only this sub-branch")
			flagSet.BoolVar(&deployed, "deployed", false, "only deployed packages; --deployed=false lists removed ones")
			flagSet.IntVar(&filter.Limit, "limit", 50, "maximum packages listed, 0 for all")
			isChanged = flagSet.Changed
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if isChanged != nil && isChanged("deployed") {
				filter.Deployed = &deployed
			}
			return a.withStore(func(_ *config.Config, store *trackstore.Store) error {
				packages, err := store.List(ctx, filter)
				if err != nil {
					return err
				}
				if done, err := output.EmitJSON(a.stdout, packages); done {
					return err
				}
				if len(packages) == 0 {
					fmt.Fprintln(a.stdout, "no packages recorded")
					return nil
				}
				fmt.Fprintln(a.stdout, packageTable(packages))
				return nil
			})
		},
	}
}

func packageTable(packages []trackstore.Package) string {
	rows := make([][]string, 0, len(packages))
	for _, pkg := range packages {
		rows = append(rows, []string{
			pkg.Key.String(),
			yesNo(pkg.Deployed),
			strconv.Itoa(pkg.ArtifactCount),
			formatTime(pkg.BuildCompletion),
			formatTime(pkg.RecordTime),
		})
	}
	return cli.RenderTable([]string{"PACKAGE", "DEPLOYED", "ARTIFACTS", "BUILT", "RECORDED"}, rows)
}

func (a *app) packageCommand() *cli.Command {
	var output cli.JSONOutput
	return &cli.Command{
		Name:    "package",
		Summary: "Inspect one recorded package",
		Subcommands: []*cli.Command{{
			Name:    "show",
			Summary: "Show a package and its artifacts with checksums",
			Usage:   "dropship package show PROJECT/BRANCH:SUB_BRANCH[@VERSION] [flags]",
			Flags: func() *pflag.FlagSet {
				flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
				a.addConfigFlags(flagSet)
				output.AddFlag(flagSet)
				return flagSet
			},
			Examples: []cli.Example{
				{Description: "Version 3 of sub-branch 2015", Command: "dropship package show Proj/Main:2015@3"},
				{Description: "Earliest recorded version", Command: "dropship package show Proj/Main:2015"},
			},
			Run: func(ctx context.Context, args []string) error {
				if len(args) != 1 {
					return fmt.Errorf("expected one package key, got %d arguments", len(args))
				}
				key, err := trackstore.ParseKey(args[0])
				if err != nil {
					return err
				}
				return a.withStore(func(_ *config.Config, store *trackstore.Store) error {
					pkg, err := store.FindByKey(ctx, key)
					if err != nil {
						return err
					}
					if done, err := output.EmitJSON(a.stdout, pkg); done {
						return err
					}
					fmt.Fprintf(a.stdout, "package:   %s\n", pkg.Key)
					fmt.Fprintf(a.stdout, "deployed:  %s (since %s)\n", yesNo(pkg.Deployed), formatTime(pkg.DeployedDate))
					fmt.Fprintf(a.stdout, "built:     %s\n", formatTime(pkg.BuildCompletion))
					fmt.Fprintf(a.stdout, "recorded:  %s\n\n", formatTime(pkg.RecordTime))

					rows := make([][]string, 0, len(pkg.Artifacts))
					for _, artifact := range pkg.Artifacts {
						checksum := artifact.Checksum
						if checksum == "" {
							checksum = "-"
						}
						rows = append(rows, []string{
							artifact.FileName,
							strconv.FormatInt(artifact.Size, 10),
							artifact.BuildNumber,
							checksum,
							cli.Truncate(artifact.SourcePath, sourcePathWidth),
						})
					}
					fmt.Fprintln(a.stdout, cli.RenderTable([]string{"FILE", "SIZE", "BUILD", "CHECKSUM", "SOURCE"}, rows))
					return nil
				})
			},
		}},
	}
}
