// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/dropship/lib/acquire"
	"github.com/bureau-foundation/dropship/lib/clock"
	"github.com/bureau-foundation/dropship/lib/config"
	"github.com/bureau-foundation/dropship/lib/matcher"
	"github.com/bureau-foundation/dropship/lib/metrics"
	"github.com/bureau-foundation/dropship/lib/mirror"
	"github.com/bureau-foundation/dropship/lib/reaper"
	"github.com/bureau-foundation/dropship/lib/trackstore"
	"github.com/bureau-foundation/dropship/lib/translog"
	"github.com/bureau-foundation/dropship/lib/transport/fileshare"
	"github.com/bureau-foundation/dropship/lib/transport/ftpsync"
	"github.com/bureau-foundation/dropship/lib/transport/httprepo"
	"github.com/bureau-foundation/dropship/lib/transport/objectstore"
	"github.com/bureau-foundation/dropship/lib/upstream"
	"github.com/bureau-foundation/dropship/lib/watch"
	"github.com/bureau-foundation/dropship/lib/workpool"
)

// Store is the tracking store as the engine uses it.
type Store interface {
	acquire.Store
	UpdateStatus(ctx context.Context, info trackstore.DeployedPackageInfo) error
}

var _ Store = (*trackstore.Store)(nil)

// Config configures an Engine.
type Config struct {
	// Settings is the validated daemon configuration.
	Settings *config.Config

	Provider upstream.Provider
	Store    Store

	Clock  clock.Clock
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Matcher replaces the naming-convention matcher.
	Matcher matcher.Matcher

	// FTPDial replaces the network dialer of every FTP transport.
	FTPDial ftpsync.Dialer

	// HTTPClient is used for HTTP share requests when set.
	HTTPClient *http.Client
}

// Engine runs poll cycles against one configuration.
type Engine struct {
	settings *config.Config
	provider upstream.Provider
	store    Store
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	ftpDial  ftpsync.Dialer

	specs      []watch.Spec
	resolver   *watch.Resolver
	matcher    matcher.Matcher
	pipeline   *acquire.Pipeline
	reaper     *reaper.Reaper
	dispatcher *mirror.Dispatcher
	httpSync   *mirror.HTTPSync
	transports []mirror.Transport
	log        *translog.Log

	acquirePool *workpool.Pool
}

// New builds every component a cycle needs from config. It opens the
// transfer log directory but makes no network requests.
func New(config Config) (*Engine, error) {
	var errs []error
	if config.Settings == nil {
		errs = append(errs, errors.New("engine: Settings is required"))
	}
	if config.Provider == nil {
		errs = append(errs, errors.New("engine: Provider is required"))
	}
	if config.Store == nil {
		errs = append(errs, errors.New("engine: Store is required"))
	}
	if config.Clock == nil {
		errs = append(errs, errors.New("engine: Clock is required"))
	}
	if config.Logger == nil {
		errs = append(errs, errors.New("engine: Logger is required"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	settings := config.Settings
	e := &Engine{
		settings: settings,
		provider: config.Provider,
		store:    config.Store,
		clock:    config.Clock,
		logger:   config.Logger.With("component", "engine"),
		metrics:  config.Metrics,
		ftpDial:  config.FTPDial,
	}
	for _, w := range settings.Watch {
		e.specs = append(e.specs, watch.Spec{
			Project:   w.Project,
			Branch:    w.Branch,
			Filters:   w.Filters,
			Retention: w.Retention,
		})
	}

	var err error
	newPool := func(name string, size int) *workpool.Pool {
		if err != nil {
			return nil
		}
		var pool *workpool.Pool
		pool, err = workpool.New(workpool.Config{Name: name, Size: size, Logger: config.Logger})
		return pool
	}
	e.acquirePool = newPool("acquire", settings.Concurrency.Acquire)
	copyPool := newPool("copy", settings.Concurrency.Acquire)
	transferPool := newPool("transfer", settings.Concurrency.Transfer)
	uploadPool := newPool("http-upload", settings.Concurrency.HTTPUpload)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e.resolver, err = watch.NewResolver(watch.ResolverConfig{Provider: config.Provider, Logger: config.Logger})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e.matcher = config.Matcher
	if e.matcher == nil {
		e.matcher, err = matcher.New(matcher.Config{
			Provider:         config.Provider,
			TargetBuilds:     settings.TargetBuilds,
			ManifestPrefixes: settings.ManifestPrefixes,
			MaxBuildAge:      settings.MaxBuildAge,
			Clock:            config.Clock,
			Logger:           config.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}

	e.pipeline, err = acquire.New(acquire.Config{
		StagingRoot:  settings.StagingRoot,
		Store:        config.Store,
		BranchPool:   e.acquirePool,
		ArtifactPool: copyPool,
		Checksums:    settings.Toggles.Checksum,
		Clock:        config.Clock,
		Logger:       config.Logger,
		Metrics:      config.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e.reaper, err = reaper.New(reaper.Config{
		StagingRoot: settings.StagingRoot,
		Logger:      config.Logger,
		Metrics:     config.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	compression, err := translog.ParseCompression(settings.LogCompression)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e.log, err = translog.Open(translog.Config{
		Directory:   settings.LogDir(),
		Compression: compression,
		Retention:   settings.LogRetention,
		Clock:       config.Clock,
		Logger:      config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e.dispatcher, err = mirror.NewDispatcher(mirror.DispatcherConfig{
		Pool:    transferPool,
		Clock:   config.Clock,
		Logger:  config.Logger,
		Log:     e.log,
		Metrics: config.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e.transports, err = e.buildTransports()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	if settings.Toggles.HTTPMirror && len(settings.HTTPShares) > 0 {
		var repositories []mirror.Repository
		for _, share := range settings.HTTPShares {
			client, err := httprepo.NewClient(httprepo.Config{
				BaseURL:    share,
				APIVersion: settings.HTTPAPIVersion,
				HTTPClient: config.HTTPClient,
			})
			if err != nil {
				return nil, fmt.Errorf("engine: %w", err)
			}
			repositories = append(repositories, client)
		}
		e.httpSync, err = mirror.NewHTTPSync(mirror.HTTPSyncConfig{
			StagingRoot:  settings.StagingRoot,
			Repositories: repositories,
			Pool:         uploadPool,
			Clock:        config.Clock,
			Logger:       config.Logger,
			Log:          e.log,
			Metrics:      config.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}

	return e, nil
}

// buildTransports constructs the main-loop mirror destinations the
// toggles enable.
func (e *Engine) buildTransports() ([]mirror.Transport, error) {
	settings := e.settings
	var transports []mirror.Transport
	if settings.Toggles.MirrorCopy {
		for _, root := range settings.Mirrors {
			transport, err := e.fileshare(root)
			if err != nil {
				return nil, err
			}
			transports = append(transports, transport)
		}
	}
	if settings.Toggles.FTPUpload {
		for _, server := range settings.FTP {
			transport, err := e.ftp(server, server.Directory)
			if err != nil {
				return nil, err
			}
			transports = append(transports, transport)
		}
	}
	if settings.Toggles.ObjectUpload {
		for _, store := range settings.ObjectStores {
			transport, err := objectstore.New(objectstore.Config{
				Endpoint:  store.Endpoint,
				Bucket:    store.Bucket,
				Prefix:    store.Prefix,
				AccessKey: store.AccessKey,
				SecretKey: store.SecretKey,
				Secure:    store.Secure,
				Logger:    e.logger,
			})
			if err != nil {
				return nil, err
			}
			transports = append(transports, transport)
		}
	}
	return transports, nil
}

func (e *Engine) fileshare(root string) (*fileshare.Mirror, error) {
	return fileshare.New(fileshare.Config{
		Root:    root,
		Retries: e.settings.MirrorRetry,
		Clock:   e.clock,
		Logger:  e.logger,
	})
}

func (e *Engine) ftp(server config.FTPConfig, directory string) (*ftpsync.Mirror, error) {
	return ftpsync.New(ftpsync.Config{
		ID:        server.ID,
		Address:   server.Address(),
		User:      server.User,
		Password:  server.Password,
		Directory: directory,
		Timeout:   server.Timeout,
		Logger:    e.logger,
		Dial:      e.ftpDial,
	})
}

// Ping checks that the build server answers. Service.Start treats a
// failure as fatal.
func (e *Engine) Ping(ctx context.Context) error {
	if _, err := e.provider.ListRootBranches(ctx); err != nil {
		return fmt.Errorf("engine: contacting build server: %w", err)
	}
	return nil
}

// Transports returns the main-loop mirror destinations.
func (e *Engine) Transports() []mirror.Transport {
	return e.transports
}

// HasExternalMirror reports whether an external mirror loop is
// configured.
func (e *Engine) HasExternalMirror() bool {
	return e.settings.ExternalMirror != nil && len(e.settings.ExternalMirror.Entries) > 0
}

// stagedDirectories returns the staging directory of each resolved
// branch that exists on disk, once per target.
func (e *Engine) stagedDirectories(branches []watch.ResolvedBranch) []string {
	seen := make(map[string]bool)
	var directories []string
	for _, branch := range branches {
		directory := filepath.Join(e.settings.StagingRoot, branch.Target())
		if seen[directory] {
			continue
		}
		seen[directory] = true
		info, err := os.Stat(directory)
		if err != nil || !info.IsDir() {
			continue
		}
		directories = append(directories, directory)
	}
	return directories
}
