package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	gatewayctl "github.com/mcpgateway/gatewayctl"
	"github.com/mcpgateway/gatewayctl/internal/handle"
	"github.com/mcpgateway/gatewayctl/internal/health"
	"github.com/mcpgateway/gatewayctl/internal/lifecycle"
)

func TestBuildRootRegistersAllSubcommands(t *testing.T) {
	root := buildRoot()
	want := []string{"start", "stop", "restart", "status", "health", "logs", "logs-follow", "logs-startup", "clean"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestGlobalFlagDefaults(t *testing.T) {
	root := buildRoot()
	f := root.PersistentFlags().Lookup("env-file")
	if f == nil || f.DefValue != "gateway.env" {
		t.Fatalf("env-file default wrong: %+v", f)
	}
}

func TestCleanFlagDefaults(t *testing.T) {
	root := buildRoot()
	for _, c := range root.Commands() {
		if c.Name() != "clean" {
			continue
		}
		logsFlag := c.Flags().Lookup("max-age-logs")
		if logsFlag == nil {
			t.Fatal("max-age-logs flag missing")
		}
		d, err := time.ParseDuration(logsFlag.DefValue)
		if err != nil || d != 7*24*time.Hour {
			t.Fatalf("max-age-logs default wrong: %q", logsFlag.DefValue)
		}
		return
	}
	t.Fatal("clean command not found")
}

func TestPrintStatusStopped(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, gatewayctl.Status{State: lifecycle.StateStopped})
	if !strings.Contains(buf.String(), "stopped") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestPrintStatusRunning(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, gatewayctl.Status{
		State:     lifecycle.StateRunning,
		PID:       4242,
		Source:    handle.SourcePersisted,
		PortBound: true,
		Uptime:    90 * time.Second,
	})
	out := buf.String()
	for _, want := range []string{"running", "4242", "persisted", "1m30s", "port: bound"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestPrintHealthVerdicts(t *testing.T) {
	var buf bytes.Buffer
	printHealth(&buf, gatewayctl.HealthReport{Checks: []health.CheckResult{
		{Name: health.CheckProcess, Verdict: health.Pass, Detail: "pid 1 (persisted)"},
		{Name: health.CheckHTTP, Verdict: health.Fail, Detail: "connection refused"},
		{Name: health.CheckDocker, Verdict: health.Skipped, Detail: "daemon probe unavailable"},
	}})
	out := buf.String()
	for _, want := range []string{"ok", "FAIL", "skip", "connection refused"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}
