package deps

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
}

func TestCheckMediaToolsReportsVersion(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	binDir := t.TempDir()
	ffmpeg := filepath.Join(binDir, "ffmpeg")
	script := []byte("#!/bin/sh\necho 'ffmpeg version 6.1.1 Copyright (c) 2000-2023'\necho 'built with gcc'\n")
	if err := os.WriteFile(ffmpeg, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	results := CheckMediaTools(context.Background(), ffmpeg, "clearly-not-present-ffprobe")
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Available {
		t.Fatalf("expected ffmpeg available, got %#v", results[0])
	}
	if results[0].Detail != "ffmpeg version 6.1.1 Copyright (c) 2000-2023" {
		t.Fatalf("unexpected version detail: %q", results[0].Detail)
	}
	if results[1].Available {
		t.Fatal("expected ffprobe to be unavailable")
	}
}

func TestToolVersionFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	binDir := t.TempDir()
	broken := filepath.Join(binDir, "ffmpeg")
	if err := os.WriteFile(broken, []byte("#!/bin/sh\nexit 3\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	if _, err := ToolVersion(context.Background(), broken); err == nil {
		t.Fatal("expected error from failing binary")
	}
	if _, err := ToolVersion(context.Background(), " "); err == nil {
		t.Fatal("expected error for blank command")
	}
}
