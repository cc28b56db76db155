// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ftpsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/jlaffaye/ftp"

	"github.com/bureau-foundation/dropship/lib/testutil"
)

// memoryServer is an in-memory FTP namespace. Directories are keys
// with a nil value.
type memoryServer struct {
	mu      sync.Mutex
	files   map[string][]byte
	failOn  string
	dials   int
	quits   int
	dialErr error
}

func newMemoryServer() *memoryServer {
	return &memoryServer{files: map[string][]byte{"/": nil}}
}

func (s *memoryServer) dial(ctx context.Context) (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dialErr != nil {
		return nil, s.dialErr
	}
	s.dials++
	return &memoryConn{server: s}, nil
}

func (s *memoryServer) put(name string, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for dir := path.Dir(name); dir != "/"; dir = path.Dir(dir) {
		s.files[dir] = nil
	}
	s.files[name] = []byte(content)
}

func (s *memoryServer) content(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	return string(data), ok
}

type memoryConn struct {
	server *memoryServer
}

func (c *memoryConn) List(dir string) ([]*ftp.Entry, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if data, ok := c.server.files[dir]; !ok || data != nil {
		return nil, fmt.Errorf("550 %s: no such directory", dir)
	}
	var entries []*ftp.Entry
	for name, data := range c.server.files {
		if name == dir || path.Dir(name) != dir {
			continue
		}
		entry := &ftp.Entry{Name: path.Base(name), Type: ftp.EntryTypeFile, Size: uint64(len(data))}
		if data == nil {
			entry.Type = ftp.EntryTypeFolder
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *memoryConn) Stor(name string, r io.Reader) error {
	if c.server.failOn != "" && strings.HasSuffix(name, c.server.failOn) {
		return errors.New("552 storage exceeded")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.files[name] = data
	return nil
}

func (c *memoryConn) Delete(name string) error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	delete(c.server.files, name)
	return nil
}

func (c *memoryConn) RemoveDirRecur(dir string) error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	for name := range c.server.files {
		if name == dir || strings.HasPrefix(name, dir+"/") {
			delete(c.server.files, name)
		}
	}
	return nil
}

func (c *memoryConn) MakeDir(dir string) error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if _, ok := c.server.files[dir]; ok {
		return errors.New("550 exists")
	}
	c.server.files[dir] = nil
	return nil
}

func (c *memoryConn) Quit() error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.quits++
	return nil
}

func newTestMirror(t *testing.T, server *memoryServer) *Mirror {
	t.Helper()
	mirror, err := New(Config{
		ID:        "ftp1",
		Directory: "/drops",
		Logger:    slog.New(slog.DiscardHandler),
		Dial:      server.dial,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return mirror
}

func TestSyncUploadsAndRemoves(t *testing.T) {
	server := newMemoryServer()
	server.put("/drops/2015/3/App.exe", "old")
	server.put("/drops/2015/3/Stale.exe", "stale")
	server.put("/drops/2015/2/App.exe", "v2")
	mirror := newTestMirror(t, server)

	source := t.TempDir()
	testutil.WriteTree(t, source, map[string]string{
		"3/App.exe":       "new build",
		"3/Tools.exe":     "tools",
		"3/sub/Extra.exe": "extra",
		"4/App.exe":       "v4",
	})

	result, err := mirror.Sync(context.Background(), source, mirror.RemotePath("2015"))
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	slices.Sort(result.Uploaded)
	wantUploaded := []string{"3/App.exe", "3/Tools.exe", "3/sub/Extra.exe", "4/App.exe"}
	if !slices.Equal(result.Uploaded, wantUploaded) {
		t.Errorf("Uploaded = %v, want %v", result.Uploaded, wantUploaded)
	}
	slices.Sort(result.Deleted)
	wantDeleted := []string{"2", "3/Stale.exe"}
	if !slices.Equal(result.Deleted, wantDeleted) {
		t.Errorf("Deleted = %v, want %v", result.Deleted, wantDeleted)
	}
	if result.Copied != 4 || result.Removed != 2 {
		t.Errorf("counts = %+v", result)
	}

	if content, _ := server.content("/drops/2015/3/App.exe"); content != "new build" {
		t.Errorf("App.exe = %q", content)
	}
	if _, ok := server.content("/drops/2015/2/App.exe"); ok {
		t.Error("extraneous version folder survived")
	}
	if server.quits != server.dials {
		t.Errorf("dials = %d, quits = %d", server.dials, server.quits)
	}

	// Same sizes everywhere: nothing to do.
	result, err = mirror.Sync(context.Background(), source, mirror.RemotePath("2015"))
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if result.Copied != 0 || result.Removed != 0 {
		t.Errorf("second sync = %+v, want no changes", result)
	}
}

func TestSyncCreatesRemoteRoot(t *testing.T) {
	server := newMemoryServer()
	mirror := newTestMirror(t, server)
	source := t.TempDir()
	testutil.WriteTree(t, source, map[string]string{"App.exe": "x"})

	if _, err := mirror.Sync(context.Background(), source, "/drops/Main/7"); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if content, ok := server.content("/drops/Main/7/App.exe"); !ok || content != "x" {
		t.Errorf("uploaded file = %q, %v", content, ok)
	}
}

func TestSyncReportsUploadFailures(t *testing.T) {
	server := newMemoryServer()
	server.failOn = "Broken.exe"
	mirror := newTestMirror(t, server)
	source := t.TempDir()
	testutil.WriteTree(t, source, map[string]string{"App.exe": "a", "Broken.exe": "b"})

	result, err := mirror.Sync(context.Background(), source, "/drops/x")
	if err == nil {
		t.Fatal("Sync succeeded despite a failed upload")
	}
	if result.Copied != 1 || result.Failed != 1 {
		t.Errorf("result = %+v, want 1 copied and 1 failed", result)
	}
}

func TestSyncDialFailure(t *testing.T) {
	server := newMemoryServer()
	server.dialErr = errors.New("connection refused")
	mirror := newTestMirror(t, server)
	if _, err := mirror.Sync(context.Background(), t.TempDir(), "/drops"); err == nil {
		t.Fatal("Sync succeeded without a connection")
	}
}

func TestNameAndPaths(t *testing.T) {
	mirror := newTestMirror(t, newMemoryServer())
	if mirror.Name() != "ftp:ftp1" {
		t.Errorf("Name = %q", mirror.Name())
	}
	if got := mirror.RemotePath("Main/3"); got != "/drops/Main/3" {
		t.Errorf("RemotePath = %q", got)
	}
}

func TestNewRequiresAddressWithoutDialer(t *testing.T) {
	_, err := New(Config{ID: "ftp1", Logger: slog.New(slog.DiscardHandler)})
	if err == nil {
		t.Fatal("New without Address or Dial succeeded")
	}
}
