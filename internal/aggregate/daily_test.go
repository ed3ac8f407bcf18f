package aggregate

import (
	"testing"
	"time"

	"statuspage/internal/models"
)

func day(d int) time.Time { return time.Date(2026, 2, d, 0, 0, 0, 0, time.UTC) }

func snap(name string, status models.ServiceStatus, at time.Time, desc string) models.HealthSnapshot {
	s := models.HealthSnapshot{ServiceName: name, Status: status, Timestamp: at}
	if desc != "" {
		s.Description = &desc
	}
	return s
}

func TestDailySingleDayScenario(t *testing.T) {
	d := day(10)
	snaps := []models.HealthSnapshot{
		snap("API", models.StatusOperational, d, ""),
		snap("API", models.StatusOperational, d.Add(16*time.Hour), ""),
		snap("API", models.StatusDegraded, d.Add(8*time.Hour), "slow"),
	}

	got := Daily(snaps, d, d)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	a := got[0]
	if a.TotalChecks != 3 || a.HealthyChecks != 2 || a.DegradedChecks != 1 || a.DownChecks != 0 {
		t.Fatalf("unexpected counts: %+v", a)
	}
	if a.UptimePercent() != 66.67 {
		t.Fatalf("uptime = %v, want 66.67", a.UptimePercent())
	}
	if a.WorstStatus() != models.StatusDegraded {
		t.Fatalf("worst = %v, want degraded", a.WorstStatus())
	}
	if len(a.Incidents) != 1 {
		t.Fatalf("incidents = %d, want 1", len(a.Incidents))
	}
	inc := a.Incidents[0]
	if inc.Status != models.StatusDegraded || !inc.Timestamp.Equal(d.Add(8*time.Hour)) || inc.Description == nil || *inc.Description != "slow" {
		t.Fatalf("unexpected incident: %+v", inc)
	}
}

func TestDailyFillsGaps(t *testing.T) {
	snaps := []models.HealthSnapshot{
		snap("API", models.StatusDown, day(3).Add(time.Hour), "refused"),
		snap("API", models.StatusOperational, day(7).Add(time.Hour), ""),
	}
	got := Daily(snaps, day(1), day(9))
	if len(got) != 9 {
		t.Fatalf("len = %d, want 9", len(got))
	}
	seen := map[time.Time]bool{}
	for i, a := range got {
		if !a.Date.Equal(day(1 + i)) {
			t.Fatalf("entry %d date = %v, want %v", i, a.Date, day(1+i))
		}
		if seen[a.Date] {
			t.Fatalf("duplicate date %v", a.Date)
		}
		seen[a.Date] = true
		if a.HealthyChecks+a.DegradedChecks+a.DownChecks != a.TotalChecks {
			t.Fatalf("counts do not sum on %v: %+v", a.Date, a)
		}
		if a.TotalChecks == 0 && a.UptimePercent() != 100 {
			t.Fatalf("empty day uptime = %v", a.UptimePercent())
		}
	}
	if got[2].DownChecks != 1 || got[2].WorstStatus() != models.StatusDown {
		t.Fatalf("day 3 = %+v", got[2])
	}
	if got[6].HealthyChecks != 1 {
		t.Fatalf("day 7 = %+v", got[6])
	}
}

func TestDailyIgnoresOutOfRange(t *testing.T) {
	snaps := []models.HealthSnapshot{
		snap("API", models.StatusDown, day(1).Add(-time.Second), ""),
		snap("API", models.StatusDown, day(3), ""),
		snap("API", models.StatusOperational, day(2).Add(23*time.Hour+59*time.Minute), ""),
	}
	got := Daily(snaps, day(1), day(2))
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].TotalChecks != 0 || got[1].TotalChecks != 1 {
		t.Fatalf("unexpected aggregates: %+v", got)
	}
}

func TestDailyIncidentsChronological(t *testing.T) {
	d := day(5)
	snaps := []models.HealthSnapshot{
		snap("API", models.StatusDown, d.Add(20*time.Hour), "c"),
		snap("API", models.StatusDegraded, d.Add(2*time.Hour), "a"),
		snap("API", models.StatusOperational, d.Add(3*time.Hour), ""),
		snap("API", models.StatusDown, d.Add(9*time.Hour), "b"),
	}
	got := Daily(snaps, d, d)[0]
	if len(got.Incidents) != 3 {
		t.Fatalf("incidents = %d, want 3", len(got.Incidents))
	}
	for i, want := range []string{"a", "b", "c"} {
		if *got.Incidents[i].Description != want {
			t.Fatalf("incident %d = %q, want %q", i, *got.Incidents[i].Description, want)
		}
	}
	if got.WorstStatus() != models.StatusDown {
		t.Fatalf("worst = %v, want down", got.WorstStatus())
	}
}

func TestDailyEmptyAndInvertedRange(t *testing.T) {
	if got := Daily(nil, day(4), day(2)); len(got) != 0 {
		t.Fatalf("inverted range len = %d", len(got))
	}
	got := Daily(nil, day(1), day(28))
	if len(got) != 28 {
		t.Fatalf("len = %d, want 28", len(got))
	}
}

func TestDays(t *testing.T) {
	if n := Days(day(1), day(1)); n != 1 {
		t.Fatalf("Days same = %d", n)
	}
	if n := Days(day(1).Add(5*time.Hour), day(3)); n != 3 {
		t.Fatalf("Days = %d, want 3", n)
	}
}
