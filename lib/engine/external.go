// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bureau-foundation/dropship/lib/metrics"
	"github.com/bureau-foundation/dropship/lib/mirror"
)

// ExternalMirrorCycle mirrors each configured external source to its
// file-share and FTP destinations. It returns nil without doing
// anything when no external mirror is configured.
func (e *Engine) ExternalMirrorCycle(ctx context.Context) (err error) {
	if !e.HasExternalMirror() {
		return nil
	}
	external := e.settings.ExternalMirror
	logger := e.logger.With("cycle_id", uuid.NewString(), "loop", metrics.LoopExternal)
	started := e.clock.Now()
	logger.Info("external mirror cycle started", "entries", len(external.Entries))
	defer func() {
		elapsed := e.clock.Now().Sub(started)
		e.metrics.CycleFinished(metrics.LoopExternal, elapsed, err)
		if err != nil {
			logger.Error("external mirror cycle finished", "elapsed", elapsed, "error", err)
			return
		}
		logger.Info("external mirror cycle finished", "elapsed", elapsed)
	}()

	var errs []error
	var assignments []mirror.Assignment
	for _, entry := range external.Entries {
		for _, destination := range entry.MirrorDestinations {
			transport, err := e.fileshare(destination)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			assignments = append(assignments, mirror.Assignment{
				Source:      entry.Source,
				Destination: mirror.ExternalDestination(destination, entry.Source, external.CreateSourceRoot),
				Transport:   transport,
			})
		}
		for _, destination := range entry.FTPDestinations {
			server, ok := e.settings.FTPByID(destination.FTPID)
			if !ok {
				logger.Error("unknown ftp destination", "ftp_id", destination.FTPID, "source", entry.Source)
				errs = append(errs, fmt.Errorf("engine: unknown ftp id %q", destination.FTPID))
				continue
			}
			directory := destination.Directory
			if directory == "" {
				directory = server.Directory
			}
			transport, err := e.ftp(server, directory)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			assignments = append(assignments, mirror.Assignment{
				Source:      entry.Source,
				Destination: mirror.ExternalDestination(directory, entry.Source, external.CreateSourceRoot),
				Transport:   transport,
			})
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, dispatchErr := e.dispatcher.Dispatch(context.WithoutCancel(ctx), assignments); dispatchErr != nil {
		errs = append(errs, dispatchErr)
	}
	return errors.Join(errs...)
}
