package envcheck

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mcpgateway/gatewayctl/internal/logger"
)

func newTestProber(command string) *Prober {
	return NewProber(command, logger.New(os.Stderr, logger.Options{Level: "error"}))
}

func TestCheckCommandFound(t *testing.T) {
	p := newTestProber("sh -c 'true'")
	if err := p.CheckCommand(); err != nil {
		t.Fatalf("sh should resolve: %v", err)
	}
}

func TestCheckCommandMissing(t *testing.T) {
	p := newTestProber("definitely-not-a-real-binary-xyz --flag")
	err := p.CheckCommand()
	if err == nil {
		t.Fatal("expected error for missing executable")
	}
	if !strings.Contains(err.Error(), "GATEWAY_CMD") {
		t.Fatalf("error should carry a remediation hint: %v", err)
	}
}

func TestCheckDockerFailure(t *testing.T) {
	p := newTestProber("sh")
	p.pingDocker = func(context.Context) error { return errors.New("connection refused") }
	err := p.CheckDocker(context.Background())
	if err == nil {
		t.Fatal("expected docker failure to propagate")
	}
	if !strings.Contains(err.Error(), "dockerd") {
		t.Fatalf("error should carry a remediation hint: %v", err)
	}
}

func TestCheckDockerTimeoutBounded(t *testing.T) {
	p := newTestProber("sh")
	p.dockerTimeout = 50 * time.Millisecond
	p.pingDocker = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	start := time.Now()
	if err := p.CheckDocker(context.Background()); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("ping not bounded by timeout: %v", time.Since(start))
	}
}

func TestVerifyStopsAtFirstFailure(t *testing.T) {
	p := newTestProber("definitely-not-a-real-binary-xyz")
	pinged := false
	p.pingDocker = func(context.Context) error { pinged = true; return nil }
	if err := p.Verify(context.Background()); err == nil {
		t.Fatal("expected command check failure")
	}
	if pinged {
		t.Fatal("docker should not be pinged after command check fails")
	}
}
