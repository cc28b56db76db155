// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// dropship is the operator CLI: it inspects the tracking store and
// manifests, checks configuration, seals credentials, and can run a
// single poll cycle in the foreground.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/dropship/lib/process"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp().root().Execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		process.Fatal(err)
	}
}
