// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package upstream is the boundary to the build server that produces
// drops. The engine only sees the [Provider] interface: branch listing,
// build definition lookup and build detail retrieval.
//
// Two implementations are provided. [Client] speaks a small JSON over
// HTTP protocol; [Catalog] is an in-memory provider used by tests and
// by dry runs. [NewHandler] serves that same protocol from any
// Provider, so a Catalog can stand in for the build server behind a
// real listener.
//
// Protocol (all responses are JSON, paths relative to the base URL):
//
//	GET branches                              []Branch
//	GET projects/{project}/definitions        []Definition
//	GET projects/{project}/definitions/{name} Definition, 404 when absent
//	GET builds?uri={uri}                      Build, 404 when absent
package upstream
