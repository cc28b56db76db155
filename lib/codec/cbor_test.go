// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type sampleBuild struct {
	Definition string    `cbor:"definition"`
	Label      string    `cbor:"label"`
	Completed  time.Time `cbor:"completed"`
	Artifacts  []string  `cbor:"artifacts,omitempty"`
}

func TestMarshalDeterministic(t *testing.T) {
	build := sampleBuild{
		Definition: "2015 Packages",
		Label:      "App 2015 Packages_20150101.3",
		Completed:  time.Date(2015, 1, 1, 3, 4, 5, 600, time.UTC),
	}

	first, err := Marshal(build)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(build)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same value produced different encodings")
	}

	var decoded sampleBuild
	if err := Unmarshal(first, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.Completed.Equal(build.Completed) {
		t.Errorf("Completed = %v, want %v (nanoseconds must survive)", decoded.Completed, build.Completed)
	}
}

func TestMapKeysSorted(t *testing.T) {
	a, err := Marshal(map[string]int{"zeta": 1, "alpha": 2})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, err := Marshal(map[string]int{"alpha": 2, "zeta": 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("map encoding depends on insertion order")
	}
}

func TestDecodeAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(sampleBuild{Definition: "Main Classic"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	fields, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if fields["definition"] != "Main Classic" {
		t.Errorf("definition = %v", fields["definition"])
	}
}

func TestStreamAndDiagnose(t *testing.T) {
	var buffer bytes.Buffer
	if err := NewEncoder(&buffer).Encode(sampleBuild{Definition: "Hotfix Packages"}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	diagnostic, err := Diagnose(buffer.Bytes())
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, `"Hotfix Packages"`) {
		t.Errorf("diagnostic = %s", diagnostic)
	}

	var decoded sampleBuild
	if err := NewDecoder(&buffer).Decode(&decoded); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Definition != "Hotfix Packages" {
		t.Errorf("Definition = %q", decoded.Definition)
	}
}
