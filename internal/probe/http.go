package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"statuspage/internal/config"
)

const defaultTimeout = 10 * time.Second

// HTTPProbe requests a URL and checks the status code and, optionally,
// JSON assertions on the body. A response slower than DegradedAfter is
// reported as degraded.
type HTTPProbe struct {
	spec   config.ProbeSpec
	client *http.Client
}

func NewHTTPProbe(spec config.ProbeSpec) *HTTPProbe {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPProbe{
		spec: spec,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (h *HTTPProbe) Name() string { return h.spec.Name }

func (h *HTTPProbe) Check(ctx context.Context) Result {
	method := h.spec.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, h.spec.URL, nil)
	if err != nil {
		return Result{Status: Unhealthy, Err: fmt.Errorf("build request: %w", err)}
	}
	for k, v := range h.spec.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return Result{Status: Unhealthy, Duration: time.Since(start), Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	elapsed := time.Since(start)
	if err != nil {
		return Result{Status: Unhealthy, Duration: elapsed, Err: fmt.Errorf("read body: %w", err)}
	}

	expected := h.spec.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}
	if resp.StatusCode != expected {
		return Result{Status: Unhealthy, Duration: elapsed, Description: fmt.Sprintf("expected %d, got %d", expected, resp.StatusCode)}
	}
	if err := checkAssertions(string(body), h.spec.JSONAssertions); err != nil {
		return Result{Status: Unhealthy, Duration: elapsed, Err: err}
	}
	if h.spec.DegradedAfter > 0 && elapsed > h.spec.DegradedAfter {
		return Result{Status: Degraded, Duration: elapsed, Description: fmt.Sprintf("slow response: %dms", elapsed.Milliseconds())}
	}
	return Result{Status: Healthy, Duration: elapsed}
}

func checkAssertions(body string, assertions []config.JSONAssertion) error {
	for _, a := range assertions {
		value := gjson.Get(body, a.Path)
		if !value.Exists() {
			return fmt.Errorf("json path %q not found in response", a.Path)
		}
		if !compare(value, a.Value, a.Operator) {
			return fmt.Errorf("json assertion failed: %s %s %v, got %v", a.Path, a.Operator, a.Value, value.Value())
		}
	}
	return nil
}

func compare(actual gjson.Result, expected any, operator string) bool {
	switch strings.ToLower(operator) {
	case "", "==", "equals":
		return equals(actual, expected)
	case "!=", "not_equals":
		return !equals(actual, expected)
	case "contains":
		v, ok := expected.(string)
		return ok && strings.Contains(actual.String(), v)
	}
	want, ok := number(expected)
	if !ok {
		return false
	}
	switch operator {
	case ">":
		return actual.Float() > want
	case "<":
		return actual.Float() < want
	case ">=":
		return actual.Float() >= want
	case "<=":
		return actual.Float() <= want
	}
	return false
}

func equals(actual gjson.Result, expected any) bool {
	switch v := expected.(type) {
	case string:
		return actual.String() == v
	case bool:
		return actual.Bool() == v
	case nil:
		return actual.Type == gjson.Null
	}
	if n, ok := number(expected); ok {
		return actual.Float() == n
	}
	return false
}

// YAML decodes integers as int and decimals as float64.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
