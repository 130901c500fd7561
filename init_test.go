package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/phpconsistent/internal/config"
)

// TestApplySectionCreate verifies that applySection on empty content wraps the
// section in sentinels with a trailing newline.
func TestApplySectionCreate(t *testing.T) {
	t.Parallel()
	section := sentinelStart + "\nbody\n" + sentinelEnd
	got := applySection("", section)
	if !strings.Contains(got, sentinelStart) || !strings.Contains(got, sentinelEnd) {
		t.Errorf("missing sentinels:\n%s", got)
	}
	if !strings.HasSuffix(got, sentinelEnd+"\n") {
		t.Errorf("missing trailing newline:\n%q", got)
	}
}

// TestApplySectionAppend verifies that existing content without a sentinel block
// is preserved and the section is appended.
func TestApplySectionAppend(t *testing.T) {
	t.Parallel()
	existing := "# My Project\n\nSome existing content."
	section := sentinelStart + "\nnew content\n" + sentinelEnd
	got := applySection(existing, section)

	if !strings.HasPrefix(got, existing+"\n\n") {
		t.Errorf("existing content should be preserved and separated:\n%s", got)
	}
	if !strings.Contains(got, "new content") {
		t.Error("new content missing")
	}
}

// TestApplySectionUpdate verifies that an existing sentinel block is replaced
// precisely, leaving surrounding content intact.
func TestApplySectionUpdate(t *testing.T) {
	t.Parallel()
	before := "# Project\n\n"
	after := "\n\n## Other Section\n"
	old := before + sentinelStart + "\nold content\n" + sentinelEnd + after

	got := applySection(old, sentinelStart+"\nnew content\n"+sentinelEnd)

	if !strings.HasPrefix(got, before) || !strings.HasSuffix(got, after) {
		t.Errorf("surrounding content should be preserved:\n%s", got)
	}
	if strings.Contains(got, "old content") {
		t.Error("old content should be replaced")
	}
}

// TestInitWritesConfig verifies that init writes a template that loads back
// as a valid configuration.
func TestInitWritesConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), ".phpconsistent.yml")

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"init", path}, &stdout, &stderr); err != nil {
		t.Fatalf("init: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("loading written config: %v", err)
	}
	if cfg.LogSink != config.SinkConsole {
		t.Errorf("LogSink = %q, want %q", cfg.LogSink, config.SinkConsole)
	}
	if len(cfg.IgnoredFilePatterns) != 1 || cfg.IgnoredFilePatterns[0] != "/vendor/" {
		t.Errorf("IgnoredFilePatterns = %v", cfg.IgnoredFilePatterns)
	}
}

// TestInitRefusesOverwrite verifies that an existing config survives unless
// --force is given.
func TestInitRefusesOverwrite(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), ".phpconsistent.yml")
	if err := os.WriteFile(path, []byte("depth: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"init", path}, &stdout, &stderr); err == nil {
		t.Fatal("expected error for existing file")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "depth: 3\n" {
		t.Errorf("existing config modified: %q", data)
	}

	if err := run(context.Background(), []string{"init", "--force", path}, &stdout, &stderr); err != nil {
		t.Fatalf("init --force: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != config.Template {
		t.Error("--force should write the template")
	}
}

// TestInitDryRun verifies that --dry-run prints the template and the agent
// section without creating either file.
func TestInitDryRun(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, ".phpconsistent.yml")
	doc := filepath.Join(dir, "CLAUDE.md")

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"init", "--dry-run", "--agent-doc", doc, path}, &stdout, &stderr); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, p := range []string{path, doc} {
		if _, err := os.Stat(p); err == nil {
			t.Errorf("--dry-run should not create %s", p)
		}
	}
	out := stdout.String()
	if !strings.Contains(out, "depth: 10") {
		t.Error("dry-run output missing config template")
	}
	if !strings.Contains(out, sentinelStart) {
		t.Error("dry-run output missing agent section")
	}
}

// TestInitAgentDocIdempotent verifies that running init twice leaves exactly
// one sentinel block in the agent document.
func TestInitAgentDocIdempotent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	doc := filepath.Join(dir, "CLAUDE.md")
	if err := os.WriteFile(doc, []byte("# Notes\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	for i := range 2 {
		var stdout, stderr bytes.Buffer
		args := []string{"init", "--force", "--agent-doc", doc, filepath.Join(dir, "cfg.yml")}
		if err := run(context.Background(), args, &stdout, &stderr); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	data, err := os.ReadFile(doc)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if n := strings.Count(content, sentinelStart); n != 1 {
		t.Errorf("found %d sentinel blocks, want 1", n)
	}
	if !strings.HasPrefix(content, "# Notes\n") {
		t.Error("existing content should be preserved")
	}
}
