package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestInitWritesToFile(t *testing.T) {
	prev := L()
	t.Cleanup(func() { Set(prev) })

	path := filepath.Join(t.TempDir(), "tofuchat.log")
	if err := Init("info", false, path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Debug("hidden")
	Info("visible", zap.String("peer", "bob"))
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "visible") || !strings.Contains(out, `"peer":"bob"`) {
		t.Fatalf("log output missing entry: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug entry written at info level: %s", out)
	}
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	if err := Init("loud", false, ""); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
