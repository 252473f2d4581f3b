// Package testutil provides shared helpers for package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// ReadFixture loads a file from the package's testdata directory, failing
// the test on error.
func ReadFixture(t *testing.T, name string) []byte {
	t.Helper()

	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read fixture %s: %v", path, err)
	}
	return data
}

// WriteExecutable drops a fake tool binary into dir and returns its path.
// Adapter tests use it so executable location succeeds without the real
// package manager installed.
func WriteExecutable(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
		t.Fatalf("Failed to write executable %s: %v", path, err)
	}
	return path
}
