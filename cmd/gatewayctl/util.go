package main

import (
	"fmt"
	"io"

	gatewayctl "github.com/mcpgateway/gatewayctl"
	"github.com/mcpgateway/gatewayctl/internal/health"
	"github.com/mcpgateway/gatewayctl/internal/lifecycle"
)

func printStatus(w io.Writer, st gatewayctl.Status) {
	if st.State != lifecycle.StateRunning {
		_, _ = fmt.Fprintf(w, "gateway: %s\n", st.State)
		if st.PortBound {
			_, _ = fmt.Fprintln(w, "warning: port is bound by another process")
		}
		return
	}
	_, _ = fmt.Fprintf(w, "gateway: %s (pid %d, %s)\n", st.State, st.PID, st.Source)
	if st.Uptime > 0 {
		_, _ = fmt.Fprintf(w, "uptime: %s\n", st.Uptime)
	}
	if st.PortBound {
		_, _ = fmt.Fprintln(w, "port: bound")
	} else {
		_, _ = fmt.Fprintln(w, "port: not bound (gateway may still be starting)")
	}
}

func printHealth(w io.Writer, r gatewayctl.HealthReport) {
	for _, c := range r.Checks {
		mark := "ok"
		switch c.Verdict {
		case health.Fail:
			mark = "FAIL"
		case health.Skipped:
			mark = "skip"
		}
		_, _ = fmt.Fprintf(w, "%-8s %-4s %s\n", c.Name, mark, c.Detail)
	}
}

func printTail(w io.Writer, sup *gatewayctl.Supervisor, stream gatewayctl.Stream, n int) error {
	lines, err := sup.Tail(stream, n)
	if err != nil {
		return err
	}
	for _, line := range lines {
		_, _ = fmt.Fprintln(w, line)
	}
	return nil
}
