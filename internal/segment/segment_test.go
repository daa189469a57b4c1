package segment

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"curvrank/internal/pipeline"
)

func TestLoaderBatch(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.mask"), []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "empty.mask"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	loader, err := NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader returned error: %v", err)
	}

	results, err := loader.Batch(context.Background(), []string{"a", "missing", "empty", ""})
	if err != nil {
		t.Fatalf("Batch returned error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	out, ok := results[0].Value()
	if !ok {
		t.Fatalf("expected success for a, got %q", results[0].Reason())
	}
	mask := out[pipeline.DefaultSubKey].(Mask)
	if mask.Item != "a" || len(mask.Data) != 3 {
		t.Fatalf("unexpected mask: %+v", mask)
	}
	if results[1].OK() || results[2].OK() {
		t.Fatalf("expected missing and empty masks to fail")
	}
	if !results[3].OK() {
		t.Fatalf("expected padding slot to succeed")
	}
}

func TestLoaderWithoutDirectory(t *testing.T) {
	loader, err := NewLoader("")
	if err != nil {
		t.Fatalf("NewLoader returned error: %v", err)
	}
	if loader.Enabled() {
		t.Fatal("expected loader without directory to be disabled")
	}
	mask, err := loader.Load("anything")
	if err != nil || mask.Item != "anything" || mask.Data != nil {
		t.Fatalf("Load = %+v, %v", mask, err)
	}
	if _, err := NewLoader(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestBatchHonoursCancellation(t *testing.T) {
	loader, _ := NewLoader("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := loader.Batch(ctx, []string{"a"}); err == nil {
		t.Fatal("expected cancellation error")
	}
}
