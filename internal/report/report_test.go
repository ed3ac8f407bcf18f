package report

import (
	"strings"
	"testing"
	"time"

	"statuspage/internal/models"
)

func TestRenderServices(t *testing.T) {
	day := time.Date(2026, 2, 21, 0, 0, 0, 0, time.UTC)
	lat := 87 * time.Millisecond
	history := make([]models.DayAggregate, 40)
	for i := range history {
		history[i] = models.DayAggregate{Date: day.AddDate(0, 0, i-39)}
	}
	history[38] = models.DayAggregate{Date: day.AddDate(0, 0, -1), TotalChecks: 2, HealthyChecks: 1, DownChecks: 1}
	history[39] = models.DayAggregate{Date: day, TotalChecks: 1, HealthyChecks: 1}

	out := Render(models.StatusPageResponse{
		Title:         "Acme Status",
		GlobalStatus:  models.StatusDown,
		OverallUptime: 66.67,
		LastUpdated:   day.Add(9 * time.Hour),
		Services: []models.ServiceSummary{
			{Name: "API", CurrentStatus: models.StatusOperational, UptimePercentage: 66.67, LastLatency: &lat, DailyHistory: history},
			{Name: "Worker", CurrentStatus: models.StatusDown, UptimePercentage: 0},
		},
	})

	for _, want := range []string{
		"Acme Status",
		"Major System Outage",
		"66.67% uptime",
		"API",
		"87ms",
		"Worker",
		"✕ Down",
		"Feb 21, 2026 9:00 AM UTC",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if got := strings.Count(out, "█"); got != 2 {
		t.Errorf("filled cells = %d, want 2", got)
	}
	if got := strings.Count(out, "·"); got != Days-2 {
		t.Errorf("empty cells = %d, want %d", got, Days-2)
	}
}

func TestRenderEmpty(t *testing.T) {
	out := Render(models.StatusPageResponse{Title: "Empty", OverallUptime: 100})
	if !strings.Contains(out, "All Systems Operational") || !strings.Contains(out, "No services are being monitored yet.") {
		t.Fatalf("output = %s", out)
	}
}
