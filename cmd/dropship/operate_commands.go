// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dropship/lib/cli"
	"github.com/bureau-foundation/dropship/lib/config"
	"github.com/bureau-foundation/dropship/lib/engine"
	"github.com/bureau-foundation/dropship/lib/sealed"
	"github.com/bureau-foundation/dropship/lib/trackstore"
)

func (a *app) sealCommand() *cli.Command {
	var recipients []string
	return &cli.Command{
		Name:    "seal",
		Summary: "Encrypt a credential for the configuration file",
		Description: "Reads a secret from stdin and prints a sealed value for ftp passwords " +
			"or object store secret keys. The service opens it with age_identity_file.",
		Usage: "dropship seal --recipient age1... < secret",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("seal", pflag.ContinueOnError)
			flagSet.StringSliceVarP(&recipients, "recipient", "r", nil, "age public key to seal to (repeatable)")
			return flagSet
		},
		Examples: []cli.Example{{
			Description: "Seal an FTP password",
			Command:     "printf '%s' \"$FTP_PASSWORD\" | dropship seal -r age1ql3z7hjy54pw3hyww5ayyfg7zqgvc7w3j2elw8zmrj2kg5sfn9aqmcac8p",
		}},
		Run: func(ctx context.Context, args []string) error {
			if len(recipients) == 0 {
				return errors.New("at least one --recipient is required")
			}
			input, err := io.ReadAll(a.stdin)
			if err != nil {
				return fmt.Errorf("reading secret: %w", err)
			}
			secret := strings.TrimRight(string(input), "\r\n")
			if secret == "" {
				return errors.New("secret on stdin is empty")
			}
			value, err := sealed.Seal([]byte(secret), recipients)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, value)
			return nil
		},
	}
}

func (a *app) keygenCommand() *cli.Command {
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an age keypair for sealed credentials",
		Description: "Prints a new identity. Store the secret key in the file named by " +
			"age_identity_file and seal credentials to the public key.",
		Run: func(ctx context.Context, args []string) error {
			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "# public key: %s\n", keypair.PublicKey)
			fmt.Fprintln(a.stdout, keypair.PrivateKey)
			return nil
		},
	}
}

func (a *app) runOnceCommand() *cli.Command {
	var output cli.JSONOutput
	return &cli.Command{
		Name:    "run-once",
		Summary: "Run a single poll cycle in the foreground",
		Description: "Pings the build server and runs one main cycle with the configured " +
			"toggles, then the external mirror cycle if one is configured. Do not run it " +
			"while the service is active against the same staging root.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run-once", pflag.ContinueOnError)
			a.addConfigFlags(flagSet)
			output.AddFlag(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			return a.withStore(func(cfg *config.Config, store *trackstore.Store) error {
				provider, err := a.newProvider(cfg)
				if err != nil {
					return err
				}
				eng, err := engine.New(engine.Config{
					Settings: cfg,
					Provider: provider,
					Store:    store,
					Clock:    a.clock,
					Logger:   a.log(),
				})
				if err != nil {
					return err
				}
				if err := eng.Ping(ctx); err != nil {
					return err
				}

				report, cycleErr := eng.Cycle(ctx)
				externalErr := eng.ExternalMirrorCycle(ctx)
				if done, err := output.EmitJSON(a.stdout, report); done {
					if err != nil {
						return err
					}
					return errors.Join(cycleErr, externalErr)
				}

				fmt.Fprintf(a.stdout, "cycle %s\n", report.ID)
				fmt.Fprintf(a.stdout, "  branches:  %d (%d matched)\n", report.Branches, report.Matched)
				fmt.Fprintf(a.stdout, "  staged:    %d\n", report.Staged)
				fmt.Fprintf(a.stdout, "  reaped:    %d\n", report.Reaped)
				fmt.Fprintf(a.stdout, "  transfers: %d (%d failed)\n", report.Transfers, report.Failed)
				return errors.Join(cycleErr, externalErr)
			})
		},
	}
}
