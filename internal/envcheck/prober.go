package envcheck

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/docker/docker/client"
)

// DefaultDockerTimeout bounds the daemon ping so a wedged Docker socket
// cannot hang a lifecycle command.
const DefaultDockerTimeout = 5 * time.Second

// Prober verifies the external prerequisites of the gateway before any
// lifecycle operation runs: the gateway executable itself and the Docker
// daemon it orchestrates containers through.
type Prober struct {
	command       string
	dockerTimeout time.Duration
	logger        *slog.Logger

	// pingDocker is swappable in tests.
	pingDocker func(ctx context.Context) error
}

func NewProber(command string, logger *slog.Logger) *Prober {
	p := &Prober{command: command, dockerTimeout: DefaultDockerTimeout, logger: logger}
	p.pingDocker = dockerPing
	return p
}

// CheckCommand verifies the gateway executable is resolvable. Absolute
// and relative paths are accepted as-is by LookPath.
func (p *Prober) CheckCommand() error {
	fields := strings.Fields(p.command)
	if len(fields) == 0 {
		return fmt.Errorf("gateway command is empty")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return fmt.Errorf("gateway executable %q not found: %w (install it or set GATEWAY_CMD)", fields[0], err)
	}
	return nil
}

// CheckDocker pings the Docker daemon with a bounded timeout.
func (p *Prober) CheckDocker(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.dockerTimeout)
	defer cancel()
	if err := p.pingDocker(ctx); err != nil {
		return fmt.Errorf("docker daemon not reachable: %w (is dockerd running?)", err)
	}
	return nil
}

// Verify runs both checks; the first failure aborts, since lifecycle
// operations are pointless without the environment in place.
func (p *Prober) Verify(ctx context.Context) error {
	if err := p.CheckCommand(); err != nil {
		return err
	}
	if err := p.CheckDocker(ctx); err != nil {
		return err
	}
	p.logger.Debug("environment verified", "command", p.command)
	return nil
}

func dockerPing(ctx context.Context) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()
	_, err = cli.Ping(ctx)
	return err
}
