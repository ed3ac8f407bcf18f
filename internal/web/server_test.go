package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"statuspage/internal/config"
	"statuspage/internal/models"
)

var day = time.Date(2026, 2, 21, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	resp models.StatusPageResponse
	err  error
}

func (f *fakeSource) GetStatus(context.Context) (models.StatusPageResponse, error) {
	return f.resp, f.err
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func sampleResponse() models.StatusPageResponse {
	lat := 42 * time.Millisecond
	desc := "HTTP 503 <oops>"
	return models.StatusPageResponse{
		Title:         "Acme <Status>",
		GlobalStatus:  models.StatusDegraded,
		OverallUptime: 99.5,
		LastUpdated:   day.Add(14*time.Hour + 5*time.Minute),
		Services: []models.ServiceSummary{{
			Name:             "API",
			CurrentStatus:    models.StatusDegraded,
			UptimePercentage: 99.5,
			LastLatency:      &lat,
			DailyHistory: []models.DayAggregate{
				{Date: day.AddDate(0, 0, -1)},
				{Date: day, TotalChecks: 4, HealthyChecks: 3, DegradedChecks: 1, Incidents: []models.IncidentEntry{
					{Status: models.StatusDegraded, Timestamp: day.Add(9 * time.Hour), Description: &desc},
				}},
			},
		}},
	}
}

func newTestServer(t *testing.T, src StatusSource, ping Pinger, base string, mutate func(*config.StatusPage)) *Server {
	t.Helper()
	opts := config.StatusPage{
		Title: "Acme", RetentionDays: 90, PollInterval: 50 * time.Millisecond,
		ShowLatency: true, Template: config.TemplateAxiom, ShowFooter: true,
		FooterText: "Powered by statuspage",
	}
	if mutate != nil {
		mutate(&opts)
	}
	if ping == nil {
		ping = pingFunc(func(context.Context) error { return nil })
	}
	return NewServer(src, ping, config.NewHolder(opts), base, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAPIReturnsStatusJSON(t *testing.T) {
	src := &fakeSource{resp: sampleResponse()}
	h := newTestServer(t, src, nil, "/status", nil).Routes()

	rec := get(t, h, "/status/api")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Fatalf("cache-control = %q", cc)
	}
	body := rec.Body.String()
	checks := map[string]string{
		"title":                                 "Acme <Status>",
		"globalStatus":                          "degraded",
		"services.0.name":                       "API",
		"services.0.lastLatency":                "00:00:00.0420000",
		"services.0.dailyHistory.1.date":        "2026-02-21",
		"services.0.dailyHistory.1.worstStatus": "degraded",
		"services.0.dailyHistory.0.worstStatus": "operational",
	}
	for path, want := range checks {
		if got := gjson.Get(body, path).String(); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
	if got := gjson.Get(body, "overallUptime").Float(); got != 99.5 {
		t.Errorf("overallUptime = %v", got)
	}
	if got := gjson.Get(body, "services.0.dailyHistory.0.uptimePercent").Float(); got != 100 {
		t.Errorf("empty day uptime = %v", got)
	}
}

func TestAPIUnavailableStore(t *testing.T) {
	src := &fakeSource{err: errors.New("database is locked")}
	rec := get(t, newTestServer(t, src, nil, "", nil).Routes(), "/api")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "locked") {
		t.Fatal("internal error leaked to client")
	}
}

func TestAPIRejectsPost(t *testing.T) {
	h := newTestServer(t, &fakeSource{}, nil, "", nil).Routes()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestIndexRendersPage(t *testing.T) {
	src := &fakeSource{resp: sampleResponse()}
	h := newTestServer(t, src, nil, "/status", func(o *config.StatusPage) {
		o.AutoRefresh = true
		o.FooterLinkText = "Docs"
		o.FooterLinkURL = "https://example.com/docs"
	}).Routes()

	rec := get(t, h, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`class="theme-axiom"`,
		"Acme &lt;Status&gt;",
		"Partial System Outage",
		`content="10"`,
		"Feb 21, 2026 2:05 PM UTC",
		"42ms",
		`class="bar nodata" title="Feb 20 · No data"`,
		`title="Feb 21 · 75.0%"`,
		"has-incidents",
		"09:00 UTC",
		"HTTP 503 &lt;oops&gt;",
		"99.50% uptime",
		"Powered by statuspage",
		`href="https://example.com/docs"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestIndexAcceptsTrailingSlash(t *testing.T) {
	h := newTestServer(t, &fakeSource{resp: sampleResponse()}, nil, "/status", nil).Routes()
	for _, path := range []string{"/status", "/status/"} {
		rec := get(t, h, path)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Partial System Outage") {
			t.Fatalf("%s: code = %d", path, rec.Code)
		}
	}
	if rec := get(t, h, "/status/other"); rec.Code != http.StatusNotFound {
		t.Fatalf("/status/other code = %d, want 404", rec.Code)
	}
}

func TestIndexHidesOptionalParts(t *testing.T) {
	src := &fakeSource{resp: sampleResponse()}
	h := newTestServer(t, src, nil, "", func(o *config.StatusPage) {
		o.ShowLatency = false
		o.ShowFooter = false
		o.Template = config.TemplateClassic
	}).Routes()

	body := get(t, h, "/").Body.String()
	for _, unwanted := range []string{"42ms", "Powered by", `http-equiv="refresh"`} {
		if strings.Contains(body, unwanted) {
			t.Errorf("page contains %q", unwanted)
		}
	}
	if rec := get(t, h, "/nope"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path code = %d", rec.Code)
	}
}

func TestIndexEmptyPage(t *testing.T) {
	src := &fakeSource{resp: models.StatusPageResponse{Title: "Empty", OverallUptime: 100, LastUpdated: day}}
	body := get(t, newTestServer(t, src, nil, "", nil).Routes(), "/").Body.String()
	if !strings.Contains(body, "All Systems Operational") || !strings.Contains(body, "No services are being monitored yet.") {
		t.Fatalf("body = %s", body)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	var down bool
	ping := pingFunc(func(context.Context) error {
		if down {
			return errors.New("unreachable")
		}
		return nil
	})
	h := newTestServer(t, &fakeSource{}, ping, "", nil).Routes()

	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := get(t, h, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}
	down = true
	if rec := get(t, h, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz while down = %d", rec.Code)
	}
	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz while store down = %d", rec.Code)
	}
}

func TestWebSocketPushesUpdates(t *testing.T) {
	src := &fakeSource{resp: sampleResponse()}
	srv := httptest.NewServer(newTestServer(t, src, nil, "/status", nil).Routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/status/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < 2; i++ {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if got := gjson.GetBytes(msg, "services.0.name").String(); got != "API" {
			t.Fatalf("message %d = %s", i, msg)
		}
	}
}
