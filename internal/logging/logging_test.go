package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInit_WritesCategorizedEntries(t *testing.T) {
	dir := t.TempDir()
	if err := Init(Options{Dir: dir, Level: "debug"}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Get(CategoryDispatch).Info("winner selected")
	Get(CategoryStore).Warn("slow query")
	if err := Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "cogmux.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"dispatch"`) {
		t.Errorf("expected dispatch category in log output, got %s", out)
	}
	if !strings.Contains(out, "winner selected") {
		t.Errorf("expected message in log output, got %s", out)
	}
	if !strings.Contains(out, `"WARN"`) {
		t.Errorf("expected capitalized level in log output, got %s", out)
	}
}

func TestInit_RejectsBadLevel(t *testing.T) {
	err := Init(Options{Dir: t.TempDir(), Level: "chatty"})
	if err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestInit_RequiresDir(t *testing.T) {
	if err := Init(Options{}); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestGet_CachesNamedLoggers(t *testing.T) {
	if err := Init(Options{Dir: t.TempDir()}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	a := Get(CategoryModes)
	b := Get(CategoryModes)
	if a != b {
		t.Error("expected the same logger instance per category")
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	if err := Init(Options{Dir: dir, Level: "warn"}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Get(CategoryUI).Info("hidden")
	Get(CategoryUI).Error("visible")
	if err := Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "cogmux.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Error("info entry should be filtered at warn level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("error entry should pass at warn level")
	}
}
