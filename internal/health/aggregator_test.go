package health

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/mcpgateway/gatewayctl/internal/handle"
	"github.com/mcpgateway/gatewayctl/internal/logger"
)

type fakeStore struct {
	h   handle.Handle
	err error
}

func (f fakeStore) Resolve() (handle.Handle, error) { return f.h, f.err }

type fakePorts struct{ free bool }

func (f fakePorts) IsFree(int) bool { return f.free }

type fakeDaemon struct{ err error }

func (f fakeDaemon) CheckDocker(context.Context) error { return f.err }

func get(r Report, name string) CheckResult {
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	return CheckResult{}
}

func newTestAggregator(store handleResolver, ports portProber, daemon daemonProber, healthURL string, port int) *Aggregator {
	return NewAggregator(store, ports, daemon, healthURL, port,
		logger.New(os.Stderr, logger.Options{Level: "error"}))
}

func TestAllChecksPass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())

	a := newTestAggregator(
		fakeStore{h: handle.Handle{PID: os.Getpid(), Source: handle.SourcePersisted}},
		fakePorts{free: false},
		fakeDaemon{},
		srv.URL, port,
	)
	r := a.Run(context.Background())
	if !r.Healthy() {
		t.Fatalf("expected healthy report: %+v", r)
	}
	for _, name := range []string{CheckProcess, CheckPort, CheckHTTP, CheckDocker} {
		if got := get(r, name).Verdict; got != Pass {
			t.Errorf("check %s: want pass, got %s", name, got)
		}
	}
}

func TestHTTPFailureDoesNotSuppressLiveness(t *testing.T) {
	a := newTestAggregator(
		fakeStore{h: handle.Handle{PID: os.Getpid(), Source: handle.SourcePersisted}},
		fakePorts{free: false},
		fakeDaemon{},
		"http://127.0.0.1:1/api/health", 1, // nothing listens there
	)
	r := a.Run(context.Background())
	if get(r, CheckHTTP).Verdict != Fail {
		t.Fatalf("expected http fail: %+v", r)
	}
	if get(r, CheckProcess).Verdict != Pass {
		t.Fatalf("liveness should be unaffected by http failure: %+v", r)
	}
	if !r.Healthy() {
		t.Fatal("advisory http failure must not flip the overall verdict")
	}
}

func TestDeadProcessFailsOverall(t *testing.T) {
	a := newTestAggregator(
		fakeStore{err: handle.ErrNotFound},
		fakePorts{free: true},
		fakeDaemon{},
		"http://127.0.0.1:1/api/health", 1,
	)
	r := a.Run(context.Background())
	if get(r, CheckProcess).Verdict != Fail {
		t.Fatalf("expected process fail: %+v", r)
	}
	if r.Healthy() {
		t.Fatal("dead process must fail the overall verdict")
	}
	if len(r.Checks) != 4 {
		t.Fatalf("all checks must still run: %+v", r)
	}
}

func TestNon2xxProbeFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := newTestAggregator(fakeStore{err: handle.ErrNotFound}, fakePorts{free: true}, fakeDaemon{}, srv.URL, 1)
	if got := get(a.Run(context.Background()), CheckHTTP).Verdict; got != Fail {
		t.Fatalf("503 should fail the probe, got %s", got)
	}
}

func TestDockerFailureIsAdvisory(t *testing.T) {
	a := newTestAggregator(
		fakeStore{h: handle.Handle{PID: os.Getpid(), Source: handle.SourceDiscovered}},
		fakePorts{free: false},
		fakeDaemon{err: errors.New("daemon down")},
		"http://127.0.0.1:1/api/health", 1,
	)
	r := a.Run(context.Background())
	if get(r, CheckDocker).Verdict != Fail {
		t.Fatalf("expected docker fail: %+v", r)
	}
	if !r.Healthy() {
		t.Fatal("docker failure is advisory and must not flip the overall verdict")
	}
}

func TestFailedChecksAreLogged(t *testing.T) {
	var buf bytes.Buffer
	a := NewAggregator(
		fakeStore{err: handle.ErrNotFound},
		fakePorts{free: true},
		fakeDaemon{err: errors.New("daemon down")},
		"http://127.0.0.1:1/api/health", 1,
		logger.New(&buf, logger.Options{Level: "debug"}),
	)
	a.Run(context.Background())

	out := buf.String()
	if !strings.Contains(out, "health check failed") || !strings.Contains(out, CheckProcess) {
		t.Fatalf("process failure should be logged at warn: %s", out)
	}
	for _, name := range []string{CheckPort, CheckDocker} {
		if !strings.Contains(out, name) {
			t.Errorf("advisory %s failure should be logged at debug: %s", name, out)
		}
	}
}

func TestMissingProbersAreSkipped(t *testing.T) {
	a := newTestAggregator(fakeStore{err: handle.ErrNotFound}, nil, nil, "http://127.0.0.1:1/x", 1)
	a.httpClient = nil
	r := a.Run(context.Background())
	if get(r, CheckPort).Verdict != Skipped || get(r, CheckHTTP).Verdict != Skipped || get(r, CheckDocker).Verdict != Skipped {
		t.Fatalf("missing capabilities should be skipped: %+v", r)
	}
}
