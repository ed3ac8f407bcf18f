package probe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"statuspage/internal/config"
	"statuspage/internal/docker"
	"statuspage/internal/models"
)

func TestToServiceStatus(t *testing.T) {
	cases := map[HealthStatus]models.ServiceStatus{
		Healthy:          models.StatusOperational,
		Degraded:         models.StatusDegraded,
		Unhealthy:        models.StatusDown,
		HealthStatus(42): models.StatusDown,
		HealthStatus(-1): models.StatusDown,
	}
	for in, want := range cases {
		if got := ToServiceStatus(in); got != want {
			t.Errorf("ToServiceStatus(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestCheckAllRunsConcurrentlyInOrder(t *testing.T) {
	var running, peak int32
	slow := func(name string, status HealthStatus) Probe {
		return Func{ProbeName: name, Fn: func(ctx context.Context) Result {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return Result{Status: status}
		}}
	}
	set := NewSet(slow("a", Healthy), slow("b", Degraded), slow("c", Unhealthy))
	results := set.CheckAll(context.Background(), nil)
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for i, want := range []string{"a", "b", "c"} {
		if results[i].Name != want {
			t.Fatalf("results[%d].Name = %q, want %q", i, results[i].Name, want)
		}
		if results[i].Duration < 50*time.Millisecond {
			t.Fatalf("results[%d].Duration = %s, want measured", i, results[i].Duration)
		}
	}
	if peak < 2 {
		t.Fatalf("peak concurrency = %d, want > 1", peak)
	}
}

func TestCheckAllFiltersAndRecoversPanics(t *testing.T) {
	called := false
	set := NewSet(
		Func{ProbeName: "boom", Fn: func(context.Context) Result { panic("kaput") }},
		Func{ProbeName: "skipped", Fn: func(context.Context) Result { called = true; return Result{Status: Healthy} }},
	)
	results := set.CheckAll(context.Background(), func(name string) bool { return name != "skipped" })
	if called {
		t.Fatal("filtered probe was invoked")
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	r := results[0]
	if r.Name != "boom" || r.Status != Unhealthy || r.Detail() != "probe panicked: kaput" {
		t.Fatalf("result = %+v", r)
	}
}

func TestCheckAllCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	set := NewSet(Func{ProbeName: "a", Fn: func(context.Context) Result { return Result{Status: Healthy} }})
	r := set.CheckAll(ctx, nil)[0]
	if r.Status != Unhealthy || !errors.Is(r.Err, context.Canceled) {
		t.Fatalf("result = %+v", r)
	}
}

func TestResultDetail(t *testing.T) {
	if d := (Result{Description: "slow", Err: errors.New("x")}).Detail(); d != "slow" {
		t.Fatalf("detail = %q", d)
	}
	if d := (Result{Err: errors.New("refused")}).Detail(); d != "refused" {
		t.Fatalf("detail = %q", d)
	}
	if d := (Result{}).Detail(); d != "" {
		t.Fatalf("detail = %q", d)
	}
}

func TestHTTPProbe(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			if r.Header.Get("X-Token") != "abc" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"status":"ok","checks":{"db":true},"queue":{"depth":3}}`))
		case "/slow":
			time.Sleep(30 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer ts.Close()

	cases := []struct {
		name string
		spec config.ProbeSpec
		want HealthStatus
	}{
		{"healthy with assertions", config.ProbeSpec{URL: ts.URL + "/ok", Headers: map[string]string{"X-Token": "abc"},
			JSONAssertions: []config.JSONAssertion{
				{Path: "status", Operator: "==", Value: "ok"},
				{Path: "checks.db", Value: true},
				{Path: "queue.depth", Operator: "<", Value: 10},
			}}, Healthy},
		{"failed assertion", config.ProbeSpec{URL: ts.URL + "/ok", Headers: map[string]string{"X-Token": "abc"},
			JSONAssertions: []config.JSONAssertion{{Path: "queue.depth", Operator: ">", Value: 5}}}, Unhealthy},
		{"missing path", config.ProbeSpec{URL: ts.URL + "/ok", Headers: map[string]string{"X-Token": "abc"},
			JSONAssertions: []config.JSONAssertion{{Path: "nope", Value: "x"}}}, Unhealthy},
		{"unexpected status", config.ProbeSpec{URL: ts.URL + "/down"}, Unhealthy},
		{"expected non-200", config.ProbeSpec{URL: ts.URL + "/down", ExpectedStatus: 503}, Healthy},
		{"slow is degraded", config.ProbeSpec{URL: ts.URL + "/slow", DegradedAfter: time.Millisecond}, Degraded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.spec.Name = "api"
			r := NewHTTPProbe(tc.spec).Check(context.Background())
			if r.Status != tc.want {
				t.Fatalf("status = %v (%s), want %v", r.Status, r.Detail(), tc.want)
			}
			if r.Duration <= 0 {
				t.Fatal("duration not measured")
			}
		})
	}
}

func TestHTTPProbeConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()
	r := NewHTTPProbe(config.ProbeSpec{Name: "gone", URL: url, Timeout: time.Second}).Check(context.Background())
	if r.Status != Unhealthy || r.Err == nil {
		t.Fatalf("result = %+v", r)
	}
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()
	p := NewTCPProbe(config.ProbeSpec{Name: "db", Address: addr, Timeout: time.Second})
	if r := p.Check(context.Background()); r.Status != Healthy {
		t.Fatalf("open port: %+v", r)
	}
	_ = ln.Close()
	if r := p.Check(context.Background()); r.Status != Unhealthy {
		t.Fatalf("closed port: %+v", r)
	}
}

type fakeInspector struct {
	info docker.ContainerInspect
	err  error
}

func (f fakeInspector) InspectContainer(context.Context, string) (docker.ContainerInspect, error) {
	return f.info, f.err
}

func inspect(status, health string) docker.ContainerInspect {
	var info docker.ContainerInspect
	info.State.Status = status
	if health != "" {
		info.State.Health = &docker.Health{Status: health}
	}
	return info
}

func TestDockerProbe(t *testing.T) {
	cases := []struct {
		info docker.ContainerInspect
		want HealthStatus
	}{
		{inspect("running", ""), Healthy},
		{inspect("running", "healthy"), Healthy},
		{inspect("running", "starting"), Degraded},
		{inspect("running", "unhealthy"), Unhealthy},
		{inspect("restarting", ""), Degraded},
		{inspect("paused", ""), Degraded},
		{inspect("exited", ""), Unhealthy},
		{inspect("dead", ""), Unhealthy},
	}
	for _, tc := range cases {
		p := NewDockerProbe(config.ProbeSpec{Name: "web", Container: "web"}, fakeInspector{info: tc.info})
		if r := p.Check(context.Background()); r.Status != tc.want {
			t.Errorf("%s/%v: status = %v, want %v", tc.info.State.Status, tc.info.State.Health, r.Status, tc.want)
		}
	}
	p := NewDockerProbe(config.ProbeSpec{Name: "web", Container: "web"}, fakeInspector{err: errors.New("no such container")})
	if r := p.Check(context.Background()); r.Status != Unhealthy || r.Detail() != "no such container" {
		t.Fatalf("inspect error: %+v", r)
	}
}

func TestHostProbeThresholds(t *testing.T) {
	cases := []struct {
		diskUsed, memUsed uint64
		want              HealthStatus
	}{
		{50, 50, Healthy},
		{90, 50, Degraded},
		{50, 95, Degraded},
		{96, 50, Unhealthy},
		{90, 99, Unhealthy},
	}
	for _, tc := range cases {
		p := NewHostProbe(config.ProbeSpec{Name: "host"})
		p.readDisk = func(string) (uint64, uint64, error) { return 100, tc.diskUsed, nil }
		p.readMem = func() (uint64, uint64, error) { return 100, 100 - tc.memUsed, nil }
		if r := p.Check(context.Background()); r.Status != tc.want {
			t.Errorf("disk=%d mem=%d: status = %v (%s), want %v", tc.diskUsed, tc.memUsed, r.Status, r.Description, tc.want)
		}
	}
	p := NewHostProbe(config.ProbeSpec{Name: "host"})
	p.readDisk = func(string) (uint64, uint64, error) { return 0, 0, errors.New("statfs failed") }
	if r := p.Check(context.Background()); r.Status != Unhealthy {
		t.Fatalf("disk error: %+v", r)
	}
}

func TestDiskFiguresMatchDF(t *testing.T) {
	// 200 blocks free, 50 of them reserved for root.
	total, used := diskFigures(1000, 200, 150, 4096)
	if used != 800*4096 {
		t.Fatalf("used = %d, want %d", used, 800*4096)
	}
	if total != 950*4096 {
		t.Fatalf("total = %d, want %d", total, 950*4096)
	}

	p := NewHostProbe(config.ProbeSpec{Name: "host"})
	p.readDisk = func(string) (uint64, uint64, error) { return total, used, nil }
	p.readMem = func() (uint64, uint64, error) { return 100, 90, nil }
	if r := p.Check(context.Background()); r.Status != Healthy {
		t.Fatalf("84%% disk: status = %v (%s), want healthy", r.Status, r.Description)
	}
}

func TestStaticProbeAndBuild(t *testing.T) {
	specs := []config.ProbeSpec{
		{Name: "maintenance", Type: "static", Status: "degraded", Description: "planned work"},
		{Name: "api", Type: "http", URL: "http://localhost"},
		{Name: "db", Type: "tcp", Address: "localhost:5432"},
		{Name: "host", Type: "host"},
	}
	probes, err := Build(specs, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(probes) != 4 {
		t.Fatalf("probes = %d", len(probes))
	}
	r := probes[0].Check(context.Background())
	if r.Status != Degraded || r.Description != "planned work" {
		t.Fatalf("static result = %+v", r)
	}
	if _, err := Build([]config.ProbeSpec{{Name: "web", Type: "docker", Container: "web"}}, nil); err == nil {
		t.Fatal("expected error for docker probe without client")
	}
	if _, err := Build([]config.ProbeSpec{{Name: "x", Type: "static", Status: "purple"}}, nil); err == nil {
		t.Fatal("expected error for unknown static status")
	}
}
