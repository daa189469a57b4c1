package logs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"curvrank/internal/logs"
)

const sample = `2026-03-01T10:00:00Z INFO workflow: run started run_id=r1
2026-03-01T10:00:01Z WARN scheduler/trailing_edge: item failed item=i0e1 reason="outline missing"
2026-03-01T10:00:02Z INFO scheduler/block_curvature: stage complete done=9
{"time":"2026-03-01T10:00:03Z","level":"WARN","msg":"item failed","stage":"trailing_edge","item":"i0e10"}
2026-03-01T10:00:04Z INFO workflow: run complete run_id=r1
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "curvrank.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")
	lines, offset, err := logs.Tail(path, 2, logs.Filter{})
	if err != nil {
		t.Fatalf("Tail returned error: %v", err)
	}
	if !slices.Equal(lines, []string{"b", "c"}) {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != 6 {
		t.Fatalf("offset = %d, want 6", offset)
	}
}

func TestTailFilters(t *testing.T) {
	path := writeLog(t, sample)

	lines, _, err := logs.Tail(path, 10, logs.Filter{Item: "i0e1"})
	if err != nil || len(lines) != 1 {
		t.Fatalf("item filter matched %d lines, %v", len(lines), err)
	}

	lines, _, err = logs.Tail(path, 10, logs.Filter{Stage: "trailing_edge"})
	if err != nil || len(lines) != 2 {
		t.Fatalf("stage filter matched %#v, %v", lines, err)
	}

	lines, _, err = logs.Tail(path, 1, logs.Filter{RunID: "r1"})
	if err != nil || len(lines) != 1 || !strings.HasSuffix(lines[0], "run complete run_id=r1") {
		t.Fatalf("run filter returned %#v, %v", lines, err)
	}
}

func TestTailMissingFile(t *testing.T) {
	lines, offset, err := logs.Tail(filepath.Join(t.TempDir(), "absent.log"), 5, logs.Filter{})
	if err != nil || lines != nil || offset != 0 {
		t.Fatalf("Tail on missing file = %v, %d, %v", lines, offset, err)
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := writeLog(t, "start\n")
	_, offset, err := logs.Tail(path, 1, logs.Filter{})
	if err != nil {
		t.Fatalf("Tail returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, logs.Filter{Item: "x"}, 10*time.Millisecond, func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
		})
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("skip item=y\nkeep item=x\npartial item=x"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Follow returned %v, want context.Canceled", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(got, []string{"keep item=x"}) {
		t.Fatalf("unexpected followed lines: %#v", got)
	}
}
