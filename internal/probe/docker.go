package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"statuspage/internal/config"
	"statuspage/internal/docker"
)

// DiscoveryLabel marks containers that get a probe without a probes file entry.
const DiscoveryLabel = "statuspage.enable=true"

// Inspector is the part of the Docker client the probe needs.
type Inspector interface {
	InspectContainer(ctx context.Context, idOrName string) (docker.ContainerInspect, error)
}

type DockerProbe struct {
	name      string
	container string
	timeout   time.Duration
	dc        Inspector
}

func NewDockerProbe(spec config.ProbeSpec, dc Inspector) *DockerProbe {
	return &DockerProbe{name: spec.Name, container: spec.Container, timeout: spec.Timeout, dc: dc}
}

func (d *DockerProbe) Name() string { return d.name }

func (d *DockerProbe) Check(ctx context.Context) Result {
	ctx, cancel := withTimeout(ctx, d.timeout)
	defer cancel()
	info, err := d.dc.InspectContainer(ctx, d.container)
	if err != nil {
		return Result{Status: Unhealthy, Err: err}
	}
	return containerResult(info)
}

func containerResult(info docker.ContainerInspect) Result {
	state := strings.ToLower(info.State.Status)
	switch state {
	case "running":
		if info.State.Health == nil {
			return Result{Status: Healthy}
		}
		switch h := strings.ToLower(info.State.Health.Status); h {
		case "healthy", "none", "":
			return Result{Status: Healthy}
		case "starting":
			return Result{Status: Degraded, Description: "health check starting"}
		default:
			desc := "health check " + h
			if n := len(info.State.Health.Log); n > 0 {
				if out := strings.TrimSpace(info.State.Health.Log[n-1].Output); out != "" {
					desc += ": " + out
				}
			}
			return Result{Status: Unhealthy, Description: desc}
		}
	case "restarting", "paused":
		return Result{Status: Degraded, Description: fmt.Sprintf("container %s (restarts: %d)", state, info.RestartCount)}
	}
	desc := "container " + state
	if info.State.Error != "" {
		desc += ": " + info.State.Error
	} else if state == "exited" {
		desc += fmt.Sprintf(" with code %d", info.State.ExitCode)
	}
	return Result{Status: Unhealthy, Description: desc}
}

// Discover builds a docker probe for every container carrying
// DiscoveryLabel, named after its compose service.
func Discover(ctx context.Context, dc *docker.Client) ([]Probe, error) {
	containers, err := dc.ListContainers(ctx, DiscoveryLabel)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	seen := make(map[string]bool, len(containers))
	out := make([]Probe, 0, len(containers))
	for _, c := range containers {
		name := docker.ServiceName(c)
		if seen[name] {
			continue
		}
		seen[name] = true
		// names survive container re-creation, ids do not
		ref := c.ID
		if len(c.Names) > 0 {
			ref = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, NewDockerProbe(config.ProbeSpec{Name: name, Container: ref}, dc))
	}
	return out, nil
}
