package probe

import (
	"context"
	"net"
	"time"

	"statuspage/internal/config"
)

type TCPProbe struct {
	name    string
	address string
	timeout time.Duration
}

func NewTCPProbe(spec config.ProbeSpec) *TCPProbe {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &TCPProbe{name: spec.Name, address: spec.Address, timeout: timeout}
}

func (t *TCPProbe) Name() string { return t.name }

func (t *TCPProbe) Check(ctx context.Context) Result {
	dialer := &net.Dialer{Timeout: t.timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", t.address)
	elapsed := time.Since(start)
	if err != nil {
		return Result{Status: Unhealthy, Duration: elapsed, Err: err}
	}
	_ = conn.Close()
	return Result{Status: Healthy, Duration: elapsed}
}
