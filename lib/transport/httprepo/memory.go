// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httprepo

import (
	"encoding/json"
	"io"
	"net/http"
	"path"
	"slices"
	"strings"
	"sync"
)

// Memory is an in-memory repository implementing the server side of
// the protocol, for tests and local dry runs.
type Memory struct {
	mu           sync.Mutex
	directories  map[string]bool
	files        map[string][]byte
	contentTypes map[string]string

	// Legacy makes listings use the unquoted bracketed form.
	Legacy bool
}

// NewMemory returns an empty repository.
func NewMemory() *Memory {
	return &Memory{
		directories:  make(map[string]bool),
		files:        make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func cleanPath(p string) string {
	return strings.Trim(path.Clean("/"+p), "/")
}

// MakeDirectory creates p and its parents.
func (m *Memory) MakeDirectory(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.makeDirectoryLocked(cleanPath(p))
}

func (m *Memory) makeDirectoryLocked(p string) {
	for p != "" && p != "." {
		m.directories[p] = true
		p = path.Dir(p)
	}
}

// Directories returns every directory path, sorted.
func (m *Memory) Directories() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []string
	for directory := range m.directories {
		result = append(result, directory)
	}
	slices.Sort(result)
	return result
}

// File returns the content and uploaded Content-Type of p.
func (m *Memory) File(p string) (content []byte, contentType string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = cleanPath(p)
	content, ok = m.files[p]
	return content, m.contentTypes[p], ok
}

func (m *Memory) children(parent string) []string {
	var names []string
	for directory := range m.directories {
		dirParent := path.Dir(directory)
		if dirParent == "." {
			dirParent = ""
		}
		if dirParent == parent {
			names = append(names, path.Base(directory))
		}
	}
	slices.Sort(names)
	return names
}

// Handler serves the repository under /<apiVersion>/.
func (m *Memory) Handler(apiVersion string) http.Handler {
	prefix := "/" + strings.Trim(apiVersion, "/")
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+prefix+"/Directory", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		names := m.children("")
		m.mu.Unlock()
		m.writeList(w, names)
	})
	mux.HandleFunc("GET "+prefix+"/GetDirectoryNames", func(w http.ResponseWriter, r *http.Request) {
		p := cleanPath(r.URL.Query().Get("path"))
		m.mu.Lock()
		exists := m.directories[p]
		names := m.children(p)
		m.mu.Unlock()
		if !exists {
			http.Error(w, "no such directory", http.StatusNotFound)
			return
		}
		m.writeList(w, names)
	})
	mux.HandleFunc("PUT "+prefix+"/Directory", func(w http.ResponseWriter, r *http.Request) {
		m.MakeDirectory(r.URL.Query().Get("path"))
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("DELETE "+prefix+"/Directory", func(w http.ResponseWriter, r *http.Request) {
		p := cleanPath(r.URL.Query().Get("path"))
		m.mu.Lock()
		defer m.mu.Unlock()
		if p == "" || !m.directories[p] {
			http.Error(w, "no such directory", http.StatusNotFound)
			return
		}
		for directory := range m.directories {
			if directory == p || strings.HasPrefix(directory, p+"/") {
				delete(m.directories, directory)
			}
		}
		for file := range m.files {
			if strings.HasPrefix(file, p+"/") {
				delete(m.files, file)
				delete(m.contentTypes, file)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST "+prefix+"/Upload", func(w http.ResponseWriter, r *http.Request) {
		p := cleanPath(r.URL.Query().Get("path"))
		reader, err := r.MultipartReader()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if part.FileName() == "" {
				continue
			}
			data, err := io.ReadAll(part)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			name := path.Join(p, path.Base(part.FileName()))
			m.mu.Lock()
			m.makeDirectoryLocked(p)
			m.files[name] = data
			m.contentTypes[name] = part.Header.Get("Content-Type")
			m.mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (m *Memory) writeList(w http.ResponseWriter, names []string) {
	if m.Legacy {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "["+strings.Join(names, ", ")+"]")
		return
	}
	if names == nil {
		names = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(names)
}
