package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"curvrank/internal/config"
	"curvrank/internal/services"
	"curvrank/internal/testsupport"
)

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "curvrank.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func setupWorkspace(t *testing.T) string {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	images := append(testsupport.Dataset(3, 3),
		testsupport.Image{Item: "broken", Individual: "ind-1", Encounter: "enc-1-0", Broken: true})
	testsupport.WriteDataset(t, cfg, images)
	return writeTestConfig(t, cfg)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestRunStatusAndFailures(t *testing.T) {
	configPath := setupWorkspace(t)

	out, _, err := runCLI(t, []string{"run"}, configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "== Stages ==")
	requireContains(t, out, "Trailing Edge")
	requireContains(t, out, "== Method dtw ==")
	requireContains(t, out, "== Method descriptors ==")
	requireContains(t, out, "run-01")

	out, _, err = runCLI(t, []string{"status"}, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "run completed")
	requireContains(t, out, "[OK] free")
	requireContains(t, out, "Descriptor Identify")

	out, _, err = runCLI(t, []string{"failures", "list", "--stage", "trailing_edge"}, configPath)
	if err != nil {
		t.Fatalf("failures list: %v", err)
	}
	requireContains(t, out, "broken")

	out, _, err = runCLI(t, []string{"failures", "clear", "--stage", "trailing_edge"}, configPath)
	if err != nil {
		t.Fatalf("failures clear: %v", err)
	}
	requireContains(t, out, "Cleared 1 failure marker(s)")

	out, _, err = runCLI(t, []string{"failures", "list", "--stage", "trailing_edge"}, configPath)
	if err != nil {
		t.Fatalf("failures list after clear: %v", err)
	}
	requireContains(t, out, "No failures recorded")

	out, _, err = runCLI(t, []string{"evaluate"}, configPath)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	requireContains(t, out, "Reports:")
}

func TestCatalogStats(t *testing.T) {
	configPath := setupWorkspace(t)
	out, _, err := runCLI(t, []string{"catalog", "stats"}, configPath)
	if err != nil {
		t.Fatalf("catalog stats: %v", err)
	}
	requireContains(t, out, "Individuals")
	requireContains(t, out, "10")
}

func TestEvaluateBeforeRunFails(t *testing.T) {
	configPath := setupWorkspace(t)
	_, _, err := runCLI(t, []string{"evaluate"}, configPath)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting an existing file")
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, setupWorkspace(t))
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Fingerprint:")
}

func TestInvalidConfigIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[curvature]\nscales = []\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, err := runCLI(t, []string{"status"}, path)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if code := exitCode(err); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{context.Canceled, 130},
		{services.Wrap(services.ErrWorkspaceInUse, "session", "acquire lock", "busy", nil), 3},
		{services.Wrap(services.ErrConfigurationMismatch, "identify", "lookup", "k too large", nil), 2},
		{errors.New("boom"), 1},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Fatalf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestLogsCommandFiltersByItem(t *testing.T) {
	configPath := setupWorkspace(t)
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}
	content := "2026-03-01T10:00:00Z WARN scheduler/trailing_edge: item failed item=broken\n" +
		"2026-03-01T10:00:01Z INFO workflow: run complete\n"
	if err := os.WriteFile(filepath.Join(cfg.Paths.LogDir, "curvrank.log"), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "--item", "broken"}, configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "item=broken")
	if strings.Contains(out, "run complete") {
		t.Fatalf("unfiltered line in output: %q", out)
	}
}
