package logs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Stream identifies one of the gateway's two captured output streams.
type Stream string

const (
	// Output is the gateway's stdout; appended across restarts.
	Output Stream = "output"
	// Diagnostics is the gateway's stderr; truncated on every start so a
	// post-start scan never reports failures from a previous run.
	Diagnostics Stream = "diagnostics"
)

// failureKeywords flag diagnostics lines worth surfacing to the operator
// after an otherwise successful start.
var failureKeywords = []string{"error", "exception", "traceback", "fatal", "failed", "panic"}

// Manager owns the gateway's log sinks: routing, truncation, tailing and
// age-based retention. All pruning is best-effort.
type Manager struct {
	outputPath string
	diagPath   string
	logDir     string
	backupDir  string
	logger     *slog.Logger
}

func NewManager(outputPath, diagPath, backupDir string, logger *slog.Logger) *Manager {
	return &Manager{
		outputPath: outputPath,
		diagPath:   diagPath,
		logDir:     filepath.Dir(outputPath),
		backupDir:  backupDir,
		logger:     logger,
	}
}

func (m *Manager) path(s Stream) string {
	if s == Diagnostics {
		return m.diagPath
	}
	return m.outputPath
}

// PrepareForStart truncates the diagnostics stream. The output stream is
// left alone so history survives restarts.
func (m *Manager) PrepareForStart() error {
	if err := os.MkdirAll(m.logDir, 0o750); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(m.diagPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("truncate diagnostics: %w", err)
	}
	return f.Close()
}

// OpenSinks opens the two files the spawned gateway writes into. The
// caller closes them after the child has started; the child keeps its own
// descriptors. Plain files (not pipes) are required because the gateway
// outlives the supervisor invocation.
func (m *Manager) OpenSinks() (out, diag *os.File, err error) {
	if err := os.MkdirAll(m.logDir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	out, err = os.OpenFile(m.outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("open output sink: %w", err)
	}
	diag, err = os.OpenFile(m.diagPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		_ = out.Close()
		return nil, nil, fmt.Errorf("open diagnostics sink: %w", err)
	}
	return out, diag, nil
}

// Tail returns the last n lines of the stream. A missing file is not an
// error; it yields no lines.
func (m *Manager) Tail(s Stream, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	b, err := os.ReadFile(m.path(s))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s log: %w", s, err)
	}
	lines := splitLines(string(b))
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// ScanForErrors reports whether the stream contains any failure keyword,
// case-insensitively. Used to distinguish benign stderr chatter from real
// trouble after a start.
func (m *Manager) ScanForErrors(s Stream) bool {
	b, err := os.ReadFile(m.path(s))
	if err != nil {
		return false
	}
	content := strings.ToLower(string(b))
	for _, kw := range failureKeywords {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}

// Prune deletes files older than maxAgeLogs in the log directory and
// older than maxAgeBackups under the backup directory. Individual
// failures are logged and swallowed.
func (m *Manager) Prune(maxAgeLogs, maxAgeBackups time.Duration) {
	m.pruneDir(m.logDir, maxAgeLogs)
	m.pruneDir(m.backupDir, maxAgeBackups)
}

func (m *Manager) pruneDir(dir string, maxAge time.Duration) {
	if maxAge <= 0 {
		return
	}
	cutoff := time.Now().Add(-maxAge)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() || !info.ModTime().Before(cutoff) {
			return nil
		}
		if rmErr := os.Remove(path); rmErr != nil {
			m.logger.Warn("prune failed", "path", path, "error", rmErr)
		} else {
			m.logger.Debug("pruned", "path", path, "age", time.Since(info.ModTime()))
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		m.logger.Warn("prune walk failed", "dir", dir, "error", err)
	}
	// Drop now-empty timestamped backup directories.
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			sub := filepath.Join(dir, e.Name())
			if rest, err := os.ReadDir(sub); err == nil && len(rest) == 0 {
				_ = os.Remove(sub)
			}
		}
	}
}

// Follow streams appended lines of s to w until ctx is done. It polls the
// file so it keeps working across truncation and rotation.
func (m *Manager) Follow(ctx context.Context, s Stream, w io.Writer) error {
	path := m.path(s)
	var offset int64
	if fi, err := os.Stat(path); err == nil {
		offset = fi.Size()
	}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		if fi.Size() < offset {
			offset = 0 // truncated or rotated
		}
		if fi.Size() == offset {
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			continue
		}
		r := bufio.NewReader(f)
		n, err := io.Copy(w, r)
		_ = f.Close()
		offset += n
		if err != nil {
			return fmt.Errorf("follow %s log: %w", s, err)
		}
	}
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
