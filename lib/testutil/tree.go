// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// T is the subset of testing.TB the helpers need.
type T interface {
	Helper()
	Fatalf(format string, args ...any)
}

// WriteTree creates the files and directories described by tree under
// root. Keys are slash-separated paths relative to root.
//
//	testutil.WriteTree(t, drop, map[string]string{
//		"bin/App_Main_1.0.exe": "payload",
//		"logs/":                "",
//	})
func WriteTree(t T, root string, tree map[string]string) {
	t.Helper()
	for relative, content := range tree {
		path := filepath.Join(root, filepath.FromSlash(relative))
		if strings.HasSuffix(relative, "/") {
			if err := os.MkdirAll(path, 0o755); err != nil {
				t.Fatalf("creating %s: %v", path, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating parent of %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
}

// ReadTree returns every regular file under root keyed by its
// slash-separated relative path. Empty directories are reported with a
// trailing "/" and empty content, so the result can be compared with
// the map given to WriteTree.
func ReadTree(t T, root string) map[string]string {
	t.Helper()
	tree := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		relative, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relative = filepath.ToSlash(relative)
		if entry.IsDir() {
			children, err := os.ReadDir(path)
			if err != nil {
				return err
			}
			if len(children) == 0 {
				tree[relative+"/"] = ""
			}
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		tree[relative] = string(content)
		return nil
	})
	if err != nil {
		t.Fatalf("reading tree %s: %v", root, err)
	}
	return tree
}

// SetModTime sets both access and modification time of path.
func SetModTime(t T, path string, modified time.Time) {
	t.Helper()
	if err := os.Chtimes(path, modified, modified); err != nil {
		t.Fatalf("setting mtime of %s: %v", path, err)
	}
}
