// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"encoding/json"
	"errors"
	"net/http"
)

// NewHandler serves the upstream protocol from provider.
func NewHandler(provider Provider) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /branches", func(w http.ResponseWriter, r *http.Request) {
		branches, err := provider.ListRootBranches(r.Context())
		respond(w, branches, err)
	})
	mux.HandleFunc("GET /projects/{project}/definitions", func(w http.ResponseWriter, r *http.Request) {
		definitions, err := provider.QueryDefinitions(r.Context(), r.PathValue("project"))
		respond(w, definitions, err)
	})
	mux.HandleFunc("GET /projects/{project}/definitions/{name}", func(w http.ResponseWriter, r *http.Request) {
		definition, err := provider.FindBuildDefinition(r.Context(), r.PathValue("project"), r.PathValue("name"))
		respond(w, definition, err)
	})
	mux.HandleFunc("GET /builds", func(w http.ResponseWriter, r *http.Request) {
		build, err := provider.GetBuild(r.Context(), r.URL.Query().Get("uri"))
		respond(w, build, err)
	})
	return mux
}

func respond(w http.ResponseWriter, value any, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(value)
}
