package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcpgateway/gatewayctl/internal/handle"
)

// Verdict is the outcome of a single health check.
type Verdict string

const (
	Pass    Verdict = "pass"
	Fail    Verdict = "fail"
	Skipped Verdict = "skipped"
)

// Check names, in report order.
const (
	CheckProcess = "process"
	CheckPort    = "port"
	CheckHTTP    = "http"
	CheckDocker  = "docker"
)

// CheckResult is one axis of the composite verdict.
type CheckResult struct {
	Name    string
	Verdict Verdict
	Detail  string
}

// Report is the ordered set of check results. There is no aggregation
// beyond per-check reporting; each axis stands on its own.
type Report struct {
	Checks []CheckResult
}

// Healthy reports the overall verdict. Only process liveness is a hard
// requirement; port, HTTP and Docker results are advisory. This is a
// deliberate design choice: a live gateway that is still warming up
// should not flip the exit code.
func (r Report) Healthy() bool {
	for _, c := range r.Checks {
		if c.Name == CheckProcess {
			return c.Verdict == Pass
		}
	}
	return false
}

type handleResolver interface {
	Resolve() (handle.Handle, error)
}

type portProber interface {
	IsFree(port int) bool
}

type daemonProber interface {
	CheckDocker(ctx context.Context) error
}

// Aggregator runs the four health checks independently; a failing check
// never suppresses the others.
type Aggregator struct {
	store      handleResolver
	ports      portProber
	daemon     daemonProber
	httpClient *http.Client
	healthURL  string
	port       int
	logger     *slog.Logger
}

func NewAggregator(store handleResolver, ports portProber, daemon daemonProber, healthURL string, port int, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:      store,
		ports:      ports,
		daemon:     daemon,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		healthURL:  healthURL,
		port:       port,
		logger:     logger,
	}
}

// Run executes all checks and returns the composite report.
func (a *Aggregator) Run(ctx context.Context) Report {
	report := Report{Checks: []CheckResult{
		a.checkProcess(),
		a.checkPort(),
		a.checkHTTP(ctx),
		a.checkDocker(ctx),
	}}
	for _, c := range report.Checks {
		if c.Verdict != Fail {
			continue
		}
		if c.Name == CheckProcess {
			a.logger.Warn("health check failed", "check", c.Name, "detail", c.Detail)
			continue
		}
		a.logger.Debug("advisory health check failed", "check", c.Name, "detail", c.Detail)
	}
	return report
}

func (a *Aggregator) checkProcess() CheckResult {
	h, err := a.store.Resolve()
	if err != nil {
		return CheckResult{Name: CheckProcess, Verdict: Fail, Detail: "no gateway process found"}
	}
	return CheckResult{Name: CheckProcess, Verdict: Pass, Detail: fmt.Sprintf("pid %d (%s)", h.PID, h.Source)}
}

func (a *Aggregator) checkPort() CheckResult {
	if a.ports == nil {
		return CheckResult{Name: CheckPort, Verdict: Skipped, Detail: "port inspection unavailable"}
	}
	if !a.ports.IsFree(a.port) {
		return CheckResult{Name: CheckPort, Verdict: Pass, Detail: fmt.Sprintf("listening on :%d", a.port)}
	}
	return CheckResult{Name: CheckPort, Verdict: Fail, Detail: fmt.Sprintf("nothing listening on :%d", a.port)}
}

func (a *Aggregator) checkHTTP(ctx context.Context) CheckResult {
	if a.httpClient == nil {
		return CheckResult{Name: CheckHTTP, Verdict: Skipped, Detail: "no http client"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.healthURL, nil)
	if err != nil {
		return CheckResult{Name: CheckHTTP, Verdict: Fail, Detail: err.Error()}
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return CheckResult{Name: CheckHTTP, Verdict: Fail, Detail: fmt.Sprintf("probe failed: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return CheckResult{Name: CheckHTTP, Verdict: Fail, Detail: fmt.Sprintf("%s returned %s", a.healthURL, resp.Status)}
	}
	return CheckResult{Name: CheckHTTP, Verdict: Pass, Detail: fmt.Sprintf("%s returned %s", a.healthURL, resp.Status)}
}

func (a *Aggregator) checkDocker(ctx context.Context) CheckResult {
	if a.daemon == nil {
		return CheckResult{Name: CheckDocker, Verdict: Skipped, Detail: "daemon probe unavailable"}
	}
	if err := a.daemon.CheckDocker(ctx); err != nil {
		return CheckResult{Name: CheckDocker, Verdict: Fail, Detail: err.Error()}
	}
	return CheckResult{Name: CheckDocker, Verdict: Pass, Detail: "daemon reachable"}
}
