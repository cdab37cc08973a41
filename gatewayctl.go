package gatewayctl

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/mcpgateway/gatewayctl/internal/config"
	"github.com/mcpgateway/gatewayctl/internal/envcheck"
	"github.com/mcpgateway/gatewayctl/internal/handle"
	"github.com/mcpgateway/gatewayctl/internal/health"
	"github.com/mcpgateway/gatewayctl/internal/lifecycle"
	"github.com/mcpgateway/gatewayctl/internal/logs"
	"github.com/mcpgateway/gatewayctl/internal/port"
)

// Re-export core types for external consumers; aliases keep conversions
// zero-cost.

type Config = config.Config

type Status = lifecycle.Status

type HealthReport = health.Report

type Stream = logs.Stream

const (
	StreamOutput      = logs.Output
	StreamDiagnostics = logs.Diagnostics
)

// ErrAlreadyRunning is surfaced by Start when a live gateway exists.
var ErrAlreadyRunning = lifecycle.ErrAlreadyRunning

// Supervisor is a thin facade composing the lifecycle controller, health
// aggregator, log manager and environment prober for one gateway
// instance. It provides a stable API for the CLI and for embedding.
type Supervisor struct {
	cfg        *config.Config
	controller *lifecycle.Controller
	aggregator *health.Aggregator
	logManager *logs.Manager
	prober     *envcheck.Prober
}

// New wires a Supervisor from a resolved configuration. Lifecycle output
// (log tails after start) goes to out.
func New(cfg *config.Config, logger *slog.Logger, out io.Writer) (*Supervisor, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	store := handle.NewStore(cfg.PIDFile(), cfg.LockFile(), cfg.Signature(), logger)
	ports := port.NewResolver(logger)
	lm := logs.NewManager(cfg.OutputLog(), cfg.DiagnosticsLog(), cfg.BackupDir(), logger)
	prober := envcheck.NewProber(cfg.Command, logger)
	return &Supervisor{
		cfg:        cfg,
		controller: lifecycle.NewController(cfg, store, ports, lm, logger, out),
		aggregator: health.NewAggregator(store, ports, prober, cfg.HealthURL(), cfg.Port, logger),
		logManager: lm,
		prober:     prober,
	}, nil
}

func (s *Supervisor) VerifyEnvironment(ctx context.Context) error { return s.prober.Verify(ctx) }

func (s *Supervisor) Start() error   { return s.controller.Start() }
func (s *Supervisor) Stop() error    { return s.controller.Stop() }
func (s *Supervisor) Restart() error { return s.controller.Restart() }
func (s *Supervisor) Status() Status { return s.controller.Status() }

func (s *Supervisor) Health(ctx context.Context) HealthReport { return s.aggregator.Run(ctx) }

func (s *Supervisor) Tail(stream Stream, n int) ([]string, error) {
	return s.logManager.Tail(stream, n)
}

func (s *Supervisor) Follow(ctx context.Context, stream Stream, w io.Writer) error {
	return s.logManager.Follow(ctx, stream, w)
}

func (s *Supervisor) Prune(maxAgeLogs, maxAgeBackups time.Duration) {
	s.logManager.Prune(maxAgeLogs, maxAgeBackups)
}
