// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dropship/lib/cli"
	"github.com/bureau-foundation/dropship/lib/clock"
	"github.com/bureau-foundation/dropship/lib/config"
	"github.com/bureau-foundation/dropship/lib/trackstore"
	"github.com/bureau-foundation/dropship/lib/upstream"
	"github.com/bureau-foundation/dropship/lib/version"
)

// app holds what every command shares. Tests replace the streams and
// the build server client.
type app struct {
	stdin  io.Reader
	stdout io.Writer

	clock  clock.Clock
	logger *slog.Logger

	configPath string
	verbose    bool

	newProvider func(cfg *config.Config) (upstream.Provider, error)
}

func newApp() *app {
	return &app{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		clock:  clock.Real(),
		newProvider: func(cfg *config.Config) (upstream.Provider, error) {
			return upstream.NewClient(upstream.ClientConfig{
				BaseURL: cfg.Upstream.URL,
				Timeout: cfg.Upstream.Timeout,
			})
		},
	}
}

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name:        "dropship",
		Description: "Inspect and operate a dropship installation.",
		Subcommands: []*cli.Command{
			a.statusCommand(),
			a.packagesCommand(),
			a.packageCommand(),
			a.manifestCommand(),
			a.configCommand(),
			a.sealCommand(),
			a.keygenCommand(),
			a.runOnceCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(ctx context.Context, args []string) error {
					fmt.Fprintf(a.stdout, "dropship %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{Description: "Show the newest package of every branch", Command: "dropship status --config /etc/dropship/dropship.yaml"},
			{Description: "List removed packages of one branch", Command: "dropship packages --branch Main --deployed=false"},
		},
	}
}

// addConfigFlags registers the flags every store-backed command takes.
func (a *app) addConfigFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&a.configPath, "config", "c", "", "configuration file (default: $DROPSHIP_CONFIG)")
	flagSet.BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")
}

func (a *app) log() *slog.Logger {
	if a.logger == nil {
		a.logger = cli.NewCommandLogger(a.verbose)
	}
	return a.logger
}

// loadConfig loads and validates the configuration.
func (a *app) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (a *app) openStore(cfg *config.Config) (*trackstore.Store, error) {
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	return trackstore.Open(trackstore.Config{
		Path:   cfg.DatabasePath(),
		Clock:  a.clock,
		Logger: a.log(),
	})
}

// withStore loads the configuration, opens the store, and closes it
// after fn.
func (a *app) withStore(fn func(*config.Config, *trackstore.Store) error) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	store, err := a.openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}
