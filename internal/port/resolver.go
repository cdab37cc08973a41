package port

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	gopsnet "github.com/shirou/gopsutil/v4/net"
	gopsproc "github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

const (
	// graceInterval is how long each occupying process gets to exit after
	// SIGTERM before escalation.
	graceInterval = 1 * time.Second
	// settleInterval runs after all owners were signalled so lingering
	// sockets drain before the gateway tries to bind.
	settleInterval = 500 * time.Millisecond
	// releaseChecks x releasePollInterval bounds the post-reclaim wait for
	// the port to actually come free.
	releaseChecks       = 10
	releasePollInterval = 500 * time.Millisecond
)

// Owner is a process holding a listening socket on the resolved port.
type Owner struct {
	PID  int
	Name string
}

// Resolver inspects TCP listener occupancy and reclaims a port by
// terminating whoever holds it. Port state is never cached; every call
// recomputes it.
type Resolver struct {
	logger *slog.Logger

	// listeners is swappable in tests to avoid real socket inspection.
	listeners func(port int) ([]Owner, error)
	// kill is swappable in tests to exercise signalling failures.
	kill func(pid int, sig unix.Signal) error
}

func NewResolver(logger *slog.Logger) *Resolver {
	r := &Resolver{logger: logger}
	r.listeners = r.socketTableListeners
	r.kill = unix.Kill
	return r
}

// IsFree reports whether nothing is listening on port. When the socket
// table cannot be read it falls back to a bind probe; if that fails too
// for reasons other than address-in-use, it answers free with a warning
// rather than blocking a start on missing tooling.
func (r *Resolver) IsFree(port int) bool {
	owners, err := r.listeners(port)
	if err == nil {
		return len(owners) == 0
	}
	r.logger.Debug("socket table inspection unavailable, using bind probe", "error", err)

	ln, bindErr := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if bindErr == nil {
		_ = ln.Close()
		return true
	}
	if isAddrInUse(bindErr) {
		return false
	}
	r.logger.Warn("port state could not be determined, assuming free", "port", port, "error", bindErr)
	return true
}

// Owners returns the processes currently listening on port.
func (r *Resolver) Owners(port int) []Owner {
	owners, err := r.listeners(port)
	if err != nil {
		r.logger.Warn("cannot enumerate port owners", "port", port, "error", err)
		return nil
	}
	return owners
}

// Reclaim terminates every process bound to port: SIGTERM first, a
// bounded grace wait, then SIGKILL for survivors, and finally a settle
// delay plus a bounded re-probe until the port comes free. It never
// fails hard; missing tooling degrades to a warning.
func (r *Resolver) Reclaim(port int) bool {
	owners := r.Owners(port)
	if len(owners) == 0 {
		if r.IsFree(port) {
			return true
		}
		r.logger.Warn("port occupied but owners unknown, cannot reclaim",
			"port", port, "hint", fmt.Sprintf("try: kill -9 $(lsof -t -i:%d)", port))
		return false
	}

	for _, o := range owners {
		if o.PID <= 0 {
			r.logger.Warn("port owner pid unknown, cannot signal",
				"port", port, "hint", fmt.Sprintf("try: kill -9 $(lsof -t -i:%d)", port))
			continue
		}
		r.logger.Warn("terminating port owner", "port", port, "pid", o.PID, "process", o.Name)
		if err := r.kill(o.PID, unix.SIGTERM); err != nil {
			if err == unix.ESRCH {
				continue
			}
			if err == unix.EPERM {
				// Keep going; other owners may still be ours to clear.
				r.logger.Error("no permission to terminate port owner",
					"pid", o.PID, "hint", "re-run with sudo or clean up the process manually")
				continue
			}
			r.logger.Warn("sigterm failed", "pid", o.PID, "error", err)
		}
		if waitGone(o.PID, graceInterval) {
			continue
		}
		r.logger.Warn("escalating to sigkill", "pid", o.PID)
		_ = r.kill(o.PID, unix.SIGKILL)
		waitGone(o.PID, graceInterval)
	}

	time.Sleep(settleInterval)
	for i := 0; i < releaseChecks; i++ {
		if r.IsFree(port) {
			r.logger.Info("port reclaimed", "port", port)
			return true
		}
		time.Sleep(releasePollInterval)
	}
	r.logger.Error("port still occupied after reclamation", "port", port)
	return false
}

// socketTableListeners enumerates listening TCP sockets via the system
// socket table.
func (r *Resolver) socketTableListeners(port int) ([]Owner, error) {
	conns, err := gopsnet.Connections("tcp")
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool)
	var owners []Owner
	for _, c := range conns {
		if c.Status != "LISTEN" || int(c.Laddr.Port) != port {
			continue
		}
		pid := int(c.Pid)
		if seen[pid] {
			continue
		}
		seen[pid] = true
		if pid <= 0 {
			// Listener exists but its owner is not visible to us; it still
			// counts as occupancy.
			owners = append(owners, Owner{PID: 0, Name: "unknown"})
			continue
		}
		owners = append(owners, Owner{PID: pid, Name: processName(pid)})
	}
	return owners, nil
}

func processName(pid int) string {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return "unknown"
	}
	name, err := p.Name()
	if err != nil || name == "" {
		return "unknown"
	}
	return name
}

// waitGone polls until the pid disappears or the grace period lapses.
func waitGone(pid int, grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if err := unix.Kill(pid, 0); err == unix.ESRCH {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return unix.Kill(pid, 0) == unix.ESRCH
}

func isAddrInUse(err error) bool {
	return errors.Is(err, unix.EADDRINUSE)
}
