package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the Docker Engine API over its unix socket.
type Client struct {
	http *http.Client
}

type ContainerSummary struct {
	ID     string            `json:"Id"`
	Names  []string          `json:"Names"`
	Image  string            `json:"Image"`
	State  string            `json:"State"`
	Status string            `json:"Status"`
	Labels map[string]string `json:"Labels"`
}

type ContainerInspect struct {
	ID           string `json:"Id"`
	Name         string `json:"Name"`
	RestartCount int    `json:"RestartCount"`
	State        struct {
		Status    string  `json:"Status"`
		StartedAt string  `json:"StartedAt"`
		ExitCode  int     `json:"ExitCode"`
		Error     string  `json:"Error"`
		Health    *Health `json:"Health"`
	} `json:"State"`
}

// Health is present only for containers with a HEALTHCHECK.
type Health struct {
	Status        string `json:"Status"`
	FailingStreak int    `json:"FailingStreak"`
	Log           []struct {
		ExitCode int    `json:"ExitCode"`
		Output   string `json:"Output"`
	} `json:"Log"`
}

func NewClient(socketPath string) *Client {
	dialer := &net.Dialer{Timeout: 3 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{http: &http.Client{Transport: transport, Timeout: 30 * time.Second}}
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "/_ping")
	return err
}

// ListContainers returns running and stopped containers carrying label
// (key or key=value). An empty label lists everything.
func (c *Client) ListContainers(ctx context.Context, label string) ([]ContainerSummary, error) {
	p := "/containers/json?all=1"
	if label != "" {
		filters, _ := json.Marshal(map[string][]string{"label": {label}})
		p += "&filters=" + url.QueryEscape(string(filters))
	}
	b, err := c.do(ctx, p)
	if err != nil {
		return nil, err
	}
	var out []ContainerSummary
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) InspectContainer(ctx context.Context, idOrName string) (ContainerInspect, error) {
	b, err := c.do(ctx, "/containers/"+url.PathEscape(idOrName)+"/json")
	if err != nil {
		return ContainerInspect{}, err
	}
	var out ContainerInspect
	if err := json.Unmarshal(b, &out); err != nil {
		return ContainerInspect{}, err
	}
	return out, nil
}

// ServiceName prefers the compose service label, then the container name,
// then the short id.
func ServiceName(c ContainerSummary) string {
	if v := c.Labels["com.docker.compose.service"]; v != "" {
		return v
	}
	if len(c.Names) > 0 {
		return strings.TrimPrefix(c.Names[0], "/")
	}
	if len(c.ID) >= 12 {
		return c.ID[:12]
	}
	return c.ID
}

func (c *Client) do(ctx context.Context, p string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix"+p, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 300 {
		msg := strings.TrimSpace(string(b))
		if msg == "" {
			msg = res.Status
		}
		return nil, fmt.Errorf("docker api GET %s failed: %s", p, msg)
	}
	return b, nil
}
