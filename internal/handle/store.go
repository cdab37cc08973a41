package handle

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

// ErrNotFound is returned by Resolve when no live gateway process can be
// located, neither via the pidfile nor the process table.
var ErrNotFound = errors.New("gateway process not found")

// Source records how a handle's pid was obtained.
type Source string

const (
	SourcePersisted  Source = "persisted"
	SourceDiscovered Source = "discovered-by-name"
)

// Handle identifies the currently supervised gateway process.
type Handle struct {
	PID    int
	Source Source
}

// Store persists the gateway's pid across one-shot invocations and
// reconciles it against the live process table. Resolve self-heals: a
// stale record is purged as a side effect.
type Store struct {
	path      string
	lockPath  string
	signature string // command-line substring identifying the gateway
	logger    *slog.Logger
}

func NewStore(path, lockPath, signature string, logger *slog.Logger) *Store {
	return &Store{path: path, lockPath: lockPath, signature: signature, logger: logger}
}

// Resolve returns a confirmed-live handle. The persisted pid is trusted
// only if the process exists and its command line still matches the
// gateway signature; pid reuse by an unrelated process counts as stale.
// Stale records are purged before falling back to process-table
// discovery.
func (s *Store) Resolve() (Handle, error) {
	b, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		pidLine, _, _ := strings.Cut(string(b), "\n")
		pid, perr := strconv.Atoi(strings.TrimSpace(pidLine))
		if perr != nil {
			s.logger.Warn("pidfile corrupt, purging", "path", s.path)
			_ = s.Clear()
			break
		}
		if PIDAlive(pid) && s.matchesSignature(pid) {
			return Handle{PID: pid, Source: SourcePersisted}, nil
		}
		s.logger.Debug("persisted pid stale, purging", "pid", pid)
		_ = s.Clear()
	case os.IsNotExist(err):
		// fall through to discovery
	default:
		return Handle{}, fmt.Errorf("read pidfile: %w", err)
	}

	if pid, ok := s.discover(); ok {
		return Handle{PID: pid, Source: SourceDiscovered}, nil
	}
	return Handle{}, ErrNotFound
}

// Persist overwrites the stored handle with pid.
func (s *Store) Persist(pid int) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create pidfile dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(strconv.Itoa(pid)+"\n"), 0o600); err != nil {
		return fmt.Errorf("write pidfile: %w", err)
	}
	return nil
}

// Clear removes the stored handle. Removing an absent record succeeds.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pidfile: %w", err)
	}
	return nil
}

// Lock takes an exclusive advisory flock guarding lifecycle commands
// against concurrent invocations. The returned func releases it.
func (s *Store) Lock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o750); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	return func() { _ = f.Close() }, nil
}

// discover scans the process table for a command line containing the
// gateway signature. Our own process is skipped.
func (s *Store) discover() (int, bool) {
	if s.signature == "" {
		return 0, false
	}
	procs, err := gopsproc.Processes()
	if err != nil {
		s.logger.Warn("process table scan failed", "error", err)
		return 0, false
	}
	self := os.Getpid()
	for _, p := range procs {
		if int(p.Pid) == self {
			continue
		}
		cmdline, err := p.Cmdline()
		if err != nil || cmdline == "" {
			continue
		}
		if strings.Contains(cmdline, s.signature) {
			s.logger.Debug("gateway found by command-line scan", "pid", p.Pid)
			return int(p.Pid), true
		}
	}
	return 0, false
}

func (s *Store) matchesSignature(pid int) bool {
	if s.signature == "" {
		return true
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	cmdline, err := p.Cmdline()
	if err != nil {
		return false
	}
	return strings.Contains(cmdline, s.signature)
}
