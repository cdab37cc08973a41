package lifecycle

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mcpgateway/gatewayctl/internal/config"
	"github.com/mcpgateway/gatewayctl/internal/handle"
	"github.com/mcpgateway/gatewayctl/internal/logs"
	"github.com/mcpgateway/gatewayctl/internal/port"
)

// State is the controller's view of the gateway lifecycle.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// ErrAlreadyRunning is returned by Start when a live gateway is resolved;
// the caller reports it without treating it as fatal.
var ErrAlreadyRunning = errors.New("gateway is already running")

// Status is a computed snapshot for the status command.
type Status struct {
	State     State
	PID       int
	Source    handle.Source
	PortBound bool
	Uptime    time.Duration
}

// handleStore is satisfied by *handle.Store.
type handleStore interface {
	Resolve() (handle.Handle, error)
	Persist(pid int) error
	Clear() error
	Lock() (func(), error)
}

// portResolver is satisfied by *port.Resolver.
type portResolver interface {
	IsFree(port int) bool
	Owners(port int) []port.Owner
	Reclaim(port int) bool
}

// Controller implements start, stop and restart as one-shot, idempotent
// operations composing the handle store, port resolver and log manager.
// Commands are synchronous and run to completion once destructive action
// has begun; an advisory lock on the handle store excludes concurrent
// invocations.
type Controller struct {
	cfg    *config.Config
	store  handleStore
	ports  portResolver
	logs   *logs.Manager
	logger *slog.Logger
	out    io.Writer

	settleWait   time.Duration // post-spawn wait before liveness confirmation
	stopRetries  int           // liveness polls after SIGTERM
	stopInterval time.Duration // spacing between polls
	restartPause time.Duration // gap between stop and start on restart
	tailLines    int           // lines surfaced after start
}

func NewController(cfg *config.Config, store handleStore, ports portResolver, lm *logs.Manager, logger *slog.Logger, out io.Writer) *Controller {
	return &Controller{
		cfg:          cfg,
		store:        store,
		ports:        ports,
		logs:         lm,
		logger:       logger,
		out:          out,
		settleWait:   2 * time.Second,
		stopRetries:  10,
		stopInterval: 1 * time.Second,
		restartPause: 1 * time.Second,
		tailLines:    10,
	}
}

// Start launches the gateway detached from this invocation. Starting an
// already-running gateway fails cleanly with its pid; it never spawns a
// second instance.
func (c *Controller) Start() error {
	unlock, err := c.store.Lock()
	if err != nil {
		return err
	}
	defer unlock()
	return c.start()
}

// Stop terminates the gateway with SIGTERM, escalating to SIGKILL after a
// bounded wait. Stopping a stopped gateway is a no-op success.
func (c *Controller) Stop() error {
	unlock, err := c.store.Lock()
	if err != nil {
		return err
	}
	defer unlock()
	return c.stop()
}

// Restart is stop (tolerating "not running") followed by a short pause
// and a fresh start. A stale handle does not short-circuit it.
func (c *Controller) Restart() error {
	unlock, err := c.store.Lock()
	if err != nil {
		return err
	}
	defer unlock()
	if err := c.stop(); err != nil {
		return fmt.Errorf("restart aborted: %w", err)
	}
	time.Sleep(c.restartPause)
	return c.start()
}

// Status reports the resolved lifecycle state; it never mutates beyond
// the store's own stale-record self-healing.
func (c *Controller) Status() Status {
	st := Status{State: StateStopped}
	st.PortBound = !c.ports.IsFree(c.cfg.Port)
	h, err := c.store.Resolve()
	if err != nil {
		return st
	}
	st.State = StateRunning
	st.PID = h.PID
	st.Source = h.Source
	if ts := handle.StartTime(h.PID); !ts.IsZero() {
		st.Uptime = time.Since(ts).Truncate(time.Second)
	}
	return st
}

func (c *Controller) start() error {
	if h, err := c.store.Resolve(); err == nil {
		return fmt.Errorf("%w (pid %d); use restart to recycle it", ErrAlreadyRunning, h.PID)
	} else if !errors.Is(err, handle.ErrNotFound) {
		return err
	}

	if !c.ports.IsFree(c.cfg.Port) {
		for _, o := range c.ports.Owners(c.cfg.Port) {
			c.logger.Warn("port occupied", "port", c.cfg.Port, "pid", o.PID, "process", o.Name)
		}
		if !c.ports.Reclaim(c.cfg.Port) {
			return fmt.Errorf("port %d is occupied and could not be reclaimed", c.cfg.Port)
		}
	}

	if err := c.logs.PrepareForStart(); err != nil {
		return err
	}
	c.snapshotConfig()

	outSink, diagSink, err := c.logs.OpenSinks()
	if err != nil {
		return err
	}
	cmd := buildCommand(c.cfg.Command)
	cmd.Env = c.cfg.Environ()
	cmd.Stdout = outSink
	cmd.Stderr = diagSink
	detach(cmd)

	c.logger.Info("starting gateway", "command", c.cfg.Command, "port", c.cfg.Port)
	startErr := cmd.Start()
	_ = outSink.Close()
	_ = diagSink.Close()
	if startErr != nil {
		return fmt.Errorf("spawn gateway: %w", startErr)
	}
	pid := cmd.Process.Pid
	// The gateway outlives this invocation; never wait on it.
	_ = cmd.Process.Release()

	if err := c.store.Persist(pid); err != nil {
		// A gateway nobody recorded cannot be stopped later; take it
		// down rather than leak it.
		c.logger.Error("cannot record gateway handle, terminating fresh instance", "pid", pid, "error", err)
		signalTree(pid, unix.SIGKILL)
		return fmt.Errorf("record gateway handle: %w", err)
	}

	time.Sleep(c.settleWait)
	h, err := c.store.Resolve()
	if err != nil {
		c.logger.Error("gateway exited during startup", "pid", pid)
		c.emitTail(logs.Diagnostics, "--- diagnostics ---")
		_ = c.store.Clear()
		return fmt.Errorf("gateway failed to start; see diagnostics above")
	}

	c.logger.Info("gateway running", "pid", h.PID, "url", fmt.Sprintf("http://%s:%d", c.cfg.ProbeHost(), c.cfg.Port))
	c.emitTail(logs.Output, "--- recent output ---")
	if c.logs.ScanForErrors(logs.Diagnostics) {
		c.logger.Warn("startup diagnostics contain failure keywords")
		c.emitTail(logs.Diagnostics, "--- diagnostics ---")
	}
	return nil
}

func (c *Controller) stop() error {
	h, err := c.store.Resolve()
	if errors.Is(err, handle.ErrNotFound) {
		c.logger.Info("gateway is not running")
		return nil
	}
	if err != nil {
		return err
	}

	c.logger.Info("stopping gateway", "pid", h.PID)
	signalTree(h.PID, unix.SIGTERM)
	alive := true
	for i := 0; i < c.stopRetries; i++ {
		if !handle.PIDAlive(h.PID) {
			alive = false
			break
		}
		time.Sleep(c.stopInterval)
	}
	if alive && handle.PIDAlive(h.PID) {
		c.logger.Warn("gateway ignored sigterm, escalating", "pid", h.PID)
		signalTree(h.PID, unix.SIGKILL)
		time.Sleep(500 * time.Millisecond)
		if handle.PIDAlive(h.PID) {
			return fmt.Errorf("gateway pid %d did not exit after sigkill", h.PID)
		}
	}

	if err := c.store.Clear(); err != nil {
		return err
	}
	// The process tree may have left orphaned listeners behind.
	c.ports.Reclaim(c.cfg.Port)
	c.logger.Info("gateway stopped")
	return nil
}

func (c *Controller) emitTail(s logs.Stream, header string) {
	lines, err := c.logs.Tail(s, c.tailLines)
	if err != nil || len(lines) == 0 {
		return
	}
	_, _ = fmt.Fprintln(c.out, header)
	for _, line := range lines {
		_, _ = fmt.Fprintln(c.out, line)
	}
}

// signalTree signals the process group when the pid leads one, falling
// back to the single process otherwise.
func signalTree(pid int, sig unix.Signal) {
	if err := unix.Kill(-pid, sig); err != nil {
		_ = unix.Kill(pid, sig)
	}
}
