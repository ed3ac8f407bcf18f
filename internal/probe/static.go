package probe

import (
	"context"
	"fmt"
	"strings"

	"statuspage/internal/config"
)

// StaticProbe always reports the configured status. It backs manual
// maintenance entries.
type StaticProbe struct {
	name   string
	result Result
}

func NewStaticProbe(spec config.ProbeSpec) (*StaticProbe, error) {
	status, err := ParseHealthStatus(spec.Status)
	if err != nil {
		return nil, fmt.Errorf("probe %q: %w", spec.Name, err)
	}
	return &StaticProbe{name: spec.Name, result: Result{Status: status, Description: spec.Description}}, nil
}

func (s *StaticProbe) Name() string { return s.name }

func (s *StaticProbe) Check(context.Context) Result { return s.result }

// ParseHealthStatus accepts the check vocabulary and the page vocabulary.
// An empty string means healthy.
func ParseHealthStatus(s string) (HealthStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "healthy", "operational", "up":
		return Healthy, nil
	case "degraded":
		return Degraded, nil
	case "unhealthy", "down":
		return Unhealthy, nil
	}
	return Unhealthy, fmt.Errorf("unknown status %q", s)
}
