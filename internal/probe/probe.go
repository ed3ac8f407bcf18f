// Package probe runs the health checks whose results feed the status page.
package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"statuspage/internal/models"
)

// HealthStatus is the tri-state outcome of a single check.
type HealthStatus int

const (
	Unhealthy HealthStatus = iota
	Degraded
	Healthy
)

func (s HealthStatus) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unhealthy:
		return "unhealthy"
	}
	return fmt.Sprintf("HealthStatus(%d)", int(s))
}

// ToServiceStatus maps a check outcome onto the page vocabulary. Anything
// unrecognised counts as down.
func ToServiceStatus(s HealthStatus) models.ServiceStatus {
	switch s {
	case Healthy:
		return models.StatusOperational
	case Degraded:
		return models.StatusDegraded
	default:
		return models.StatusDown
	}
}

type Result struct {
	Name        string
	Status      HealthStatus
	Duration    time.Duration
	Description string
	Err         error
}

// Detail is the text stored with the snapshot: the description, else the
// error message.
func (r Result) Detail() string {
	if r.Description != "" {
		return r.Description
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return ""
}

type Probe interface {
	Name() string
	Check(ctx context.Context) Result
}

// Func adapts a plain function into a Probe.
type Func struct {
	ProbeName string
	Fn        func(ctx context.Context) Result
}

func (f Func) Name() string { return f.ProbeName }

func (f Func) Check(ctx context.Context) Result { return f.Fn(ctx) }

// Set is a fixed list of probes checked together each cycle.
type Set struct {
	probes []Probe
}

func NewSet(probes ...Probe) *Set {
	return &Set{probes: probes}
}

func (s *Set) Len() int { return len(s.probes) }

func (s *Set) Names() []string {
	out := make([]string, 0, len(s.probes))
	for _, p := range s.probes {
		out = append(out, p.Name())
	}
	return out
}

// CheckAll runs every probe admitted by include concurrently and returns
// their results in registration order. A nil include admits all probes.
// Durations are measured here; panics become Unhealthy results.
func (s *Set) CheckAll(ctx context.Context, include func(name string) bool) []Result {
	var selected []Probe
	for _, p := range s.probes {
		if include == nil || include(p.Name()) {
			selected = append(selected, p)
		}
	}
	results := make([]Result, len(selected))
	var wg sync.WaitGroup
	for i, p := range selected {
		wg.Add(1)
		go func(i int, p Probe) {
			defer wg.Done()
			results[i] = run(ctx, p)
		}(i, p)
	}
	wg.Wait()
	return results
}

func run(ctx context.Context, p Probe) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Result{Status: Unhealthy, Err: fmt.Errorf("probe panicked: %v", r)}
		}
		res.Name = p.Name()
		if res.Duration == 0 {
			res.Duration = time.Since(start)
		}
	}()
	if err := ctx.Err(); err != nil {
		return Result{Status: Unhealthy, Err: err}
	}
	return p.Check(ctx)
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
