package logs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mcpgateway/gatewayctl/internal/logger"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	logDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		t.Fatal(err)
	}
	m := NewManager(
		filepath.Join(logDir, "gateway.out.log"),
		filepath.Join(logDir, "gateway.err.log"),
		filepath.Join(dir, "backups"),
		logger.New(os.Stderr, logger.Options{Level: "error"}),
	)
	return m, dir
}

func TestPrepareForStartTruncatesDiagnosticsOnly(t *testing.T) {
	m, _ := newTestManager(t)
	if err := os.WriteFile(m.outputPath, []byte("old stdout\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(m.diagPath, []byte("old stderr failure\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	if err := m.PrepareForStart(); err != nil {
		t.Fatalf("PrepareForStart: %v", err)
	}
	diag, err := os.ReadFile(m.diagPath)
	if err != nil || len(diag) != 0 {
		t.Fatalf("diagnostics not truncated: %q err=%v", diag, err)
	}
	out, err := os.ReadFile(m.outputPath)
	if err != nil || string(out) != "old stdout\n" {
		t.Fatalf("output should be preserved: %q err=%v", out, err)
	}
}

func TestTailFewerLinesThanRequested(t *testing.T) {
	m, _ := newTestManager(t)
	if err := os.WriteFile(m.outputPath, []byte("a\nb\nc\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	lines, err := m.Tail(Output, 50)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(lines) != 3 || lines[0] != "a" || lines[2] != "c" {
		t.Fatalf("unexpected tail: %v", lines)
	}
}

func TestTailLastN(t *testing.T) {
	m, _ := newTestManager(t)
	if err := os.WriteFile(m.outputPath, []byte("1\n2\n3\n4\n5\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	lines, err := m.Tail(Output, 2)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(lines) != 2 || lines[0] != "4" || lines[1] != "5" {
		t.Fatalf("unexpected tail: %v", lines)
	}
}

func TestTailMissingFile(t *testing.T) {
	m, _ := newTestManager(t)
	lines, err := m.Tail(Diagnostics, 10)
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected no lines, got %v", lines)
	}
}

func TestScanForErrors(t *testing.T) {
	m, _ := newTestManager(t)
	if err := os.WriteFile(m.diagPath, []byte("INFO ready\nTraceback (most recent call last):\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	if !m.ScanForErrors(Diagnostics) {
		t.Fatal("expected traceback to be flagged")
	}
	if err := os.WriteFile(m.diagPath, []byte("INFO listening on :18082\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	if m.ScanForErrors(Diagnostics) {
		t.Fatal("benign line should not be flagged")
	}
}

func TestPruneDeletesOnlyAgedFiles(t *testing.T) {
	m, dir := newTestManager(t)
	backupDir := filepath.Join(dir, "backups", "config-20240101-000000")
	if err := os.MkdirAll(backupDir, 0o750); err != nil {
		t.Fatal(err)
	}
	oldLog := filepath.Join(filepath.Dir(m.outputPath), "gateway.out.log.1")
	oldBackup := filepath.Join(backupDir, "containers.yaml")
	for _, p := range []string{oldLog, oldBackup} {
		if err := os.WriteFile(p, []byte("x"), 0o640); err != nil {
			t.Fatal(err)
		}
		past := time.Now().Add(-48 * time.Hour)
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(m.outputPath, []byte("fresh"), 0o640); err != nil {
		t.Fatal(err)
	}

	m.Prune(24*time.Hour, 24*time.Hour)

	if _, err := os.Stat(oldLog); !os.IsNotExist(err) {
		t.Fatalf("aged log should be pruned: %v", err)
	}
	if _, err := os.Stat(oldBackup); !os.IsNotExist(err) {
		t.Fatalf("aged backup should be pruned: %v", err)
	}
	if _, err := os.Stat(m.outputPath); err != nil {
		t.Fatalf("fresh file should survive: %v", err)
	}
}

func TestFollowEmitsAppendedData(t *testing.T) {
	m, _ := newTestManager(t)
	if err := os.WriteFile(m.outputPath, []byte("before\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- m.Follow(ctx, Output, &buf) }()

	time.Sleep(700 * time.Millisecond)
	f, err := os.OpenFile(m.outputPath, os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("after\n"); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	time.Sleep(1200 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if strings.Contains(buf.String(), "before") {
		t.Fatalf("pre-existing content should be skipped: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "after") {
		t.Fatalf("appended content missing: %q", buf.String())
	}
}
