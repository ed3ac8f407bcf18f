package probe

import (
	"fmt"

	"statuspage/internal/config"
	"statuspage/internal/docker"
)

// Build turns probe specs into probes. dc may be nil when no docker probe
// is configured.
func Build(specs []config.ProbeSpec, dc *docker.Client) ([]Probe, error) {
	out := make([]Probe, 0, len(specs))
	for _, spec := range specs {
		switch spec.Type {
		case "http":
			out = append(out, NewHTTPProbe(spec))
		case "tcp":
			out = append(out, NewTCPProbe(spec))
		case "docker":
			if dc == nil {
				return nil, fmt.Errorf("probe %q: docker client not configured", spec.Name)
			}
			out = append(out, NewDockerProbe(spec, dc))
		case "host":
			out = append(out, NewHostProbe(spec))
		case "static":
			p, err := NewStaticProbe(spec)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		default:
			return nil, fmt.Errorf("probe %q: unknown type %q", spec.Name, spec.Type)
		}
	}
	return out, nil
}
