package substitute

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/substantialcattle5/syv/internal/spec"
)

func TestDecodeDatasetYAML(t *testing.T) {
	v, err := DecodeDataset(strings.NewReader("name: desert-cache\ncount: 3\n"))
	if err != nil {
		t.Fatalf("DecodeDataset: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected a map, got %T", v)
	}
	if m["name"] != "desert-cache" {
		t.Fatalf("expected name=desert-cache, got %v", m["name"])
	}
}

func TestDecodeDatasetJSON(t *testing.T) {
	v, err := DecodeDataset(strings.NewReader(`{"name": "desert-cache"}`))
	if err != nil {
		t.Fatalf("DecodeDataset: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected a map, got %T", v)
	}
	if m["name"] != "desert-cache" {
		t.Fatalf("expected name=desert-cache, got %v", m["name"])
	}
}

// chdir switches to dir for the duration of the test, restoring the
// prior working directory on cleanup (spec.Parse requires relative
// destinations, so template specs are easiest to build from cwd).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(prev) })
}

func TestRunRendersTemplateToFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile("config.tmpl", []byte("name={{.name | upper}}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := spec.Parse("config.tmpl:config.out")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	dataset := map[string]any{"name": "desert-cache"}
	if err := Run(dataset, []spec.Spec{s}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "config.out"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "name=DESERT-CACHE\n" {
		t.Fatalf("unexpected rendered content: %q", content)
	}
}

func TestRunFailsOnMissingKey(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile("config.tmpl", []byte("name={{.missing}}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := spec.Parse("config.tmpl:config.out")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if err := Run(map[string]any{}, []spec.Spec{s}); err == nil {
		t.Fatal("expected an error for a missing template key")
	}
}

func TestRunRequiresAtLeastOneSpec(t *testing.T) {
	if err := Run(map[string]any{}, nil); err == nil {
		t.Fatal("expected an error for no specs")
	}
}
