// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ftpsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/bureau-foundation/dropship/lib/mirror"
)

// Conn is the subset of *ftp.ServerConn used by Mirror.
type Conn interface {
	List(path string) ([]*ftp.Entry, error)
	Stor(path string, r io.Reader) error
	Delete(path string) error
	RemoveDirRecur(path string) error
	MakeDir(path string) error
	Quit() error
}

// Dialer opens an authenticated connection.
type Dialer func(ctx context.Context) (Conn, error)

// Config configures a Mirror.
type Config struct {
	// ID names the server in logs and metrics.
	ID string

	// Address is host:port.
	Address  string
	User     string
	Password string

	// Directory is the remote root relative staging paths are joined
	// onto.
	Directory string

	// Timeout bounds dialing. Defaults to 30 seconds.
	Timeout time.Duration

	Logger *slog.Logger

	// Dial replaces the network dialer in tests.
	Dial Dialer
}

// Mirror is an FTP transport.
type Mirror struct {
	id        string
	directory string
	dial      Dialer
	logger    *slog.Logger
}

// New validates config and returns a Mirror.
func New(config Config) (*Mirror, error) {
	if config.ID == "" {
		return nil, fmt.Errorf("ftpsync: ID is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("ftpsync: Logger is required")
	}
	dial := config.Dial
	if dial == nil {
		if config.Address == "" {
			return nil, fmt.Errorf("ftpsync: Address is required")
		}
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		dial = networkDialer(config.Address, config.User, config.Password, timeout)
	}
	directory := config.Directory
	if directory == "" {
		directory = "/"
	}
	return &Mirror{
		id:        config.ID,
		directory: directory,
		dial:      dial,
		logger:    config.Logger.With("component", "ftpsync", "server", config.ID),
	}, nil
}

func networkDialer(address, user, password string, timeout time.Duration) Dialer {
	return func(ctx context.Context) (Conn, error) {
		conn, err := ftp.Dial(address,
			ftp.DialWithContext(ctx),
			ftp.DialWithTimeout(timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("dialing %s: %w", address, err)
		}
		if err := conn.Login(user, password); err != nil {
			conn.Quit()
			return nil, fmt.Errorf("login to %s as %s: %w", address, user, err)
		}
		return conn, nil
	}
}

// Name implements mirror.Transport.
func (m *Mirror) Name() string { return "ftp:" + m.id }

// Root implements mirror.Transport.
func (m *Mirror) Root() string { return m.directory }

// RemotePath joins a slash or OS separated relative path onto the
// remote root.
func (m *Mirror) RemotePath(relative string) string {
	return path.Join(m.directory, filepath.ToSlash(relative))
}

// Sync implements mirror.Transport. destination is a remote path.
func (m *Mirror) Sync(ctx context.Context, source, destination string) (mirror.SyncResult, error) {
	var result mirror.SyncResult
	destination = path.Clean(filepath.ToSlash(destination))

	info, err := os.Stat(source)
	if err != nil {
		return result, fmt.Errorf("ftpsync: source: %w", err)
	}
	if !info.IsDir() {
		return result, fmt.Errorf("ftpsync: source %s is not a directory", source)
	}

	conn, err := m.dial(ctx)
	if err != nil {
		return result, fmt.Errorf("ftpsync: %w", err)
	}
	defer conn.Quit()

	makeDirAll(conn, destination)

	var failures []error
	if err := m.syncDirectory(ctx, conn, source, destination, "", &result, &failures); err != nil {
		return result, fmt.Errorf("ftpsync: %w", err)
	}
	if len(failures) > 0 {
		return result, fmt.Errorf("ftpsync: %d operations failed: %w", len(failures), errors.Join(failures...))
	}
	return result, nil
}

// makeDirAll creates every missing segment of remote. Errors are
// ignored: the segment usually exists, and a real failure surfaces on
// the first List or Stor below it.
func makeDirAll(conn Conn, remote string) {
	current := ""
	for _, segment := range strings.Split(strings.Trim(remote, "/"), "/") {
		if segment == "" {
			continue
		}
		current += "/" + segment
		conn.MakeDir(current)
	}
}

func (m *Mirror) syncDirectory(ctx context.Context, conn Conn, local, remote, relative string, result *mirror.SyncResult, failures *[]error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	listing, err := conn.List(remote)
	if err != nil {
		return fmt.Errorf("listing %s: %w", remote, err)
	}
	remoteEntries := make(map[string]*ftp.Entry, len(listing))
	for _, entry := range listing {
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		remoteEntries[entry.Name] = entry
	}

	localEntries, err := os.ReadDir(local)
	if err != nil {
		return fmt.Errorf("reading %s: %w", local, err)
	}
	present := make(map[string]bool, len(localEntries))

	for _, localEntry := range localEntries {
		name := localEntry.Name()
		present[name] = true
		localPath := filepath.Join(local, name)
		remotePath := path.Join(remote, name)
		relativePath := path.Join(relative, name)
		remoteEntry := remoteEntries[name]

		if localEntry.IsDir() {
			if remoteEntry != nil && remoteEntry.Type != ftp.EntryTypeFolder {
				if err := conn.Delete(remotePath); err != nil {
					*failures = append(*failures, fmt.Errorf("replacing %s: %w", remotePath, err))
					continue
				}
				remoteEntry = nil
			}
			if remoteEntry == nil {
				if err := conn.MakeDir(remotePath); err != nil {
					*failures = append(*failures, fmt.Errorf("creating %s: %w", remotePath, err))
					continue
				}
			}
			if err := m.syncDirectory(ctx, conn, localPath, remotePath, relativePath, result, failures); err != nil {
				return err
			}
			continue
		}
		if !localEntry.Type().IsRegular() {
			continue
		}

		info, err := localEntry.Info()
		if err != nil {
			*failures = append(*failures, err)
			continue
		}
		if remoteEntry != nil && remoteEntry.Type == ftp.EntryTypeFile && remoteEntry.Size == uint64(info.Size()) {
			continue
		}
		if remoteEntry != nil && remoteEntry.Type == ftp.EntryTypeFolder {
			if err := conn.RemoveDirRecur(remotePath); err != nil {
				*failures = append(*failures, fmt.Errorf("replacing %s: %w", remotePath, err))
				continue
			}
		}
		if err := upload(conn, localPath, remotePath); err != nil {
			result.Failed++
			*failures = append(*failures, err)
			m.logger.Error("upload failed", "source", localPath, "destination", remotePath, "error", err)
			continue
		}
		result.Copied++
		result.Uploaded = append(result.Uploaded, relativePath)
	}

	for name, remoteEntry := range remoteEntries {
		if present[name] {
			continue
		}
		remotePath := path.Join(remote, name)
		var err error
		if remoteEntry.Type == ftp.EntryTypeFolder {
			err = conn.RemoveDirRecur(remotePath)
		} else {
			err = conn.Delete(remotePath)
		}
		if err != nil {
			*failures = append(*failures, fmt.Errorf("removing %s: %w", remotePath, err))
			continue
		}
		result.Removed++
		result.Deleted = append(result.Deleted, path.Join(relative, name))
	}
	return nil
}

func upload(conn Conn, localPath, remotePath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := conn.Stor(remotePath, file); err != nil {
		return fmt.Errorf("uploading %s: %w", remotePath, err)
	}
	return nil
}
