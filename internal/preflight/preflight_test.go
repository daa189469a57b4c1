package preflight

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"curvrank/internal/config"
	"curvrank/internal/services"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
	if result := CheckReadableFile("test", f); !result.Passed {
		t.Fatalf("expected readable file, got: %s", result.Detail)
	}
	if result := CheckReadableFile("test", filepath.Dir(f)); result.Passed {
		t.Fatal("expected failure for directory passed as file")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 0); !result.Passed {
		t.Fatalf("expected pass with zero threshold, got: %s", result.Detail)
	}
	if result := CheckFreeSpace("space", dir, 1<<40); result.Passed {
		t.Fatalf("expected failure for an exabyte threshold, got: %s", result.Detail)
	}
	if result := CheckFreeSpace("space", filepath.Join(dir, "missing"), 0); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestFreeMiB(t *testing.T) {
	st := unix.Statfs_t{Bavail: 2048, Bsize: 4096}
	if got := FreeMiB(st); got != 8 {
		t.Fatalf("FreeMiB = %d, want 8", got)
	}
}

func TestRunAllReportsMissingInputs(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkspaceDir = filepath.Join(base, "workspace")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.CatalogPath = filepath.Join(base, "catalog.csv")
	cfg.Paths.OutlineDir = filepath.Join(base, "outlines")
	cfg.Artifacts.MinFreeMiB = 0

	results := RunAll(&cfg)
	err := Err(results)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Catalog") || !strings.Contains(err.Error(), "Outline directory") {
		t.Fatalf("error does not name failed checks: %v", err)
	}

	if err := os.WriteFile(cfg.Paths.CatalogPath, []byte("path,individual,encounter\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(cfg.Paths.OutlineDir, 0o755); err != nil {
		t.Fatal(err)
	}
	results = RunAll(&cfg)
	if err := Err(results); err != nil {
		t.Fatalf("expected all checks to pass: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 checks without a mask directory, got %d", len(results))
	}
}
