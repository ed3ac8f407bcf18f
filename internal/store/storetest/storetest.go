// Package storetest holds the behaviour every store.Repository backend must
// share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"statuspage/internal/models"
	"statuspage/internal/store"
)

// Factory returns an empty repository for one subtest.
type Factory func(t *testing.T) store.Repository

var base = time.Date(2026, 2, 21, 0, 0, 0, 0, time.UTC)

func Run(t *testing.T, newRepo Factory) {
	t.Run("EmptySaveIsNoop", func(t *testing.T) { testEmptySave(t, newRepo(t)) })
	t.Run("DailyAggregatesScenario", func(t *testing.T) { testScenario(t, newRepo(t)) })
	t.Run("DailyAggregatesGapFill", func(t *testing.T) { testGapFill(t, newRepo(t)) })
	t.Run("UnknownServiceStillFilled", func(t *testing.T) { testUnknownService(t, newRepo(t)) })
	t.Run("LatestSnapshots", func(t *testing.T) { testLatest(t, newRepo(t)) })
	t.Run("ServiceNamesSorted", func(t *testing.T) { testNames(t, newRepo(t)) })
	t.Run("PurgeIdempotent", func(t *testing.T) { testPurge(t, newRepo(t)) })
	t.Run("OptionalFieldsRoundTrip", func(t *testing.T) { testOptionalFields(t, newRepo(t)) })
	t.Run("ConcurrentSaveAndPurge", func(t *testing.T) { testConcurrent(t, newRepo(t)) })
}

func snap(name string, status models.ServiceStatus, at time.Time) models.HealthSnapshot {
	return models.HealthSnapshot{ServiceName: name, Status: status, Timestamp: at}
}

func save(t *testing.T, repo store.Repository, snaps ...models.HealthSnapshot) {
	t.Helper()
	if err := repo.SaveSnapshots(context.Background(), snaps); err != nil {
		t.Fatalf("save snapshots: %v", err)
	}
}

func testEmptySave(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	if err := repo.SaveSnapshots(ctx, nil); err != nil {
		t.Fatalf("save nil: %v", err)
	}
	names, err := repo.GetServiceNames(ctx)
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("names = %v, want none", names)
	}
	latest, err := repo.GetLatestSnapshots(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 0 {
		t.Fatalf("latest = %v, want none", latest)
	}
}

func testScenario(t *testing.T, repo store.Repository) {
	slow := "slow"
	degraded := snap("API", models.StatusDegraded, base.Add(8*time.Hour))
	degraded.Description = &slow
	save(t, repo,
		snap("API", models.StatusOperational, base),
		degraded,
		snap("API", models.StatusOperational, base.Add(16*time.Hour)),
		snap("Other", models.StatusDown, base.Add(time.Hour)),
	)

	got, err := repo.GetDailyAggregates(context.Background(), "API", base, base)
	if err != nil {
		t.Fatalf("daily aggregates: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	a := got[0]
	if !a.Date.Equal(base) {
		t.Fatalf("date = %v, want %v", a.Date, base)
	}
	if a.TotalChecks != 3 || a.HealthyChecks != 2 || a.DegradedChecks != 1 || a.DownChecks != 0 {
		t.Fatalf("unexpected counts: %+v", a)
	}
	if a.UptimePercent() != 66.67 || a.WorstStatus() != models.StatusDegraded {
		t.Fatalf("uptime=%v worst=%v", a.UptimePercent(), a.WorstStatus())
	}
	if len(a.Incidents) != 1 || a.Incidents[0].Description == nil || *a.Incidents[0].Description != "slow" ||
		!a.Incidents[0].Timestamp.Equal(base.Add(8*time.Hour)) || a.Incidents[0].Status != models.StatusDegraded {
		t.Fatalf("unexpected incidents: %+v", a.Incidents)
	}
}

func testGapFill(t *testing.T, repo store.Repository) {
	save(t, repo,
		snap("API", models.StatusDown, base.AddDate(0, 0, -3).Add(5*time.Hour)),
		snap("API", models.StatusOperational, base.Add(23*time.Hour+59*time.Minute)),
		snap("API", models.StatusOperational, base.AddDate(0, 0, 1)),
	)
	from, to := base.AddDate(0, 0, -6), base
	got, err := repo.GetDailyAggregates(context.Background(), "API", from, to)
	if err != nil {
		t.Fatalf("daily aggregates: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("len = %d, want 7", len(got))
	}
	for i, a := range got {
		if want := from.AddDate(0, 0, i); !a.Date.Equal(want) {
			t.Fatalf("entry %d date = %v, want %v", i, a.Date, want)
		}
		if a.HealthyChecks+a.DegradedChecks+a.DownChecks != a.TotalChecks {
			t.Fatalf("counts do not sum: %+v", a)
		}
	}
	if got[3].DownChecks != 1 {
		t.Fatalf("day -3 = %+v", got[3])
	}
	if got[6].TotalChecks != 1 {
		t.Fatalf("last day = %+v, want exactly the in-range snapshot", got[6])
	}
}

func testUnknownService(t *testing.T, repo store.Repository) {
	got, err := repo.GetDailyAggregates(context.Background(), "nobody", base.AddDate(0, 0, -2), base)
	if err != nil {
		t.Fatalf("daily aggregates: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for _, a := range got {
		if a.TotalChecks != 0 || a.UptimePercent() != 100 {
			t.Fatalf("unexpected aggregate: %+v", a)
		}
	}
}

func testLatest(t *testing.T, repo store.Repository) {
	save(t, repo,
		snap("A", models.StatusDown, base.Add(2*time.Hour)),
		snap("A", models.StatusOperational, base.Add(time.Hour)),
		snap("B", models.StatusOperational, base),
	)
	save(t, repo, snap("B", models.StatusDegraded, base.Add(30*time.Minute)))

	latest, err := repo.GetLatestSnapshots(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	byName := map[string]models.HealthSnapshot{}
	for _, s := range latest {
		if _, dup := byName[s.ServiceName]; dup {
			t.Fatalf("duplicate latest for %s", s.ServiceName)
		}
		byName[s.ServiceName] = s
	}
	if len(byName) != 2 {
		t.Fatalf("latest = %+v, want 2 services", latest)
	}
	if a := byName["A"]; a.Status != models.StatusDown || !a.Timestamp.Equal(base.Add(2*time.Hour)) {
		t.Fatalf("A latest = %+v", a)
	}
	if b := byName["B"]; b.Status != models.StatusDegraded {
		t.Fatalf("B latest = %+v", b)
	}
}

func testNames(t *testing.T, repo store.Repository) {
	save(t, repo,
		snap("zeta", models.StatusOperational, base),
		snap("alpha", models.StatusOperational, base),
		snap("mid", models.StatusOperational, base),
		snap("alpha", models.StatusDown, base.Add(time.Minute)),
	)
	names, err := repo.GetServiceNames(context.Background())
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
}

func testPurge(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	today := base
	save(t, repo,
		snap("API", models.StatusDown, today.AddDate(0, 0, -5).Add(12*time.Hour)),
		snap("API", models.StatusOperational, today.AddDate(0, 0, -2)),
		snap("API", models.StatusOperational, today.AddDate(0, 0, -1).Add(3*time.Hour)),
	)
	cutoff := today.AddDate(0, 0, -2)
	for i := 0; i < 2; i++ {
		if err := repo.PurgeOlderThan(ctx, cutoff); err != nil {
			t.Fatalf("purge %d: %v", i, err)
		}
		got, err := repo.GetDailyAggregates(ctx, "API", today.AddDate(0, 0, -6), today)
		if err != nil {
			t.Fatalf("daily aggregates: %v", err)
		}
		total := 0
		for _, a := range got {
			total += a.TotalChecks
		}
		if got[1].TotalChecks != 0 {
			t.Fatalf("purge %d left day -5: %+v", i, got[1])
		}
		if got[4].TotalChecks != 1 || got[5].TotalChecks != 1 || total != 2 {
			t.Fatalf("purge %d removed too much: %+v", i, got)
		}
	}
	names, err := repo.GetServiceNames(ctx)
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) != 1 || names[0] != "API" {
		t.Fatalf("names after purge = %v", names)
	}
}

func testOptionalFields(t *testing.T, repo store.Repository) {
	latency := 1234567 * time.Microsecond
	desc := "connection refused"
	s := snap("DB", models.StatusDown, base.Add(90*time.Second+500*time.Millisecond))
	s.Latency = &latency
	s.Description = &desc
	save(t, repo, s, snap("Cache", models.StatusOperational, base))

	latest, err := repo.GetLatestSnapshots(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	for _, got := range latest {
		switch got.ServiceName {
		case "DB":
			if got.Latency == nil || *got.Latency != latency {
				t.Fatalf("latency = %v, want %v", got.Latency, latency)
			}
			if got.Description == nil || *got.Description != desc {
				t.Fatalf("description = %v", got.Description)
			}
			if !got.Timestamp.Equal(s.Timestamp) {
				t.Fatalf("timestamp = %v, want %v", got.Timestamp, s.Timestamp)
			}
		case "Cache":
			if got.Latency != nil || got.Description != nil {
				t.Fatalf("optional fields should stay nil: %+v", got)
			}
		}
	}
}

func testConcurrent(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	recent := time.Now().UTC()
	old := recent.AddDate(0, 0, -30)
	save(t, repo, snap("svc", models.StatusOperational, old))

	const writers, perWriter = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				ts := recent.Add(-time.Duration(w*perWriter+i) * time.Second)
				if err := repo.SaveSnapshots(ctx, []models.HealthSnapshot{snap("svc", models.StatusOperational, ts)}); err != nil {
					t.Errorf("save: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			if err := repo.PurgeOlderThan(ctx, recent.AddDate(0, 0, -7)); err != nil {
				t.Errorf("purge: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	if err := repo.PurgeOlderThan(ctx, recent.AddDate(0, 0, -7)); err != nil {
		t.Fatalf("purge: %v", err)
	}
	got, err := repo.GetDailyAggregates(ctx, "svc", recent.AddDate(0, 0, -31), recent)
	if err != nil {
		t.Fatalf("daily aggregates: %v", err)
	}
	total := 0
	for _, a := range got {
		total += a.TotalChecks
	}
	if total != writers*perWriter {
		t.Fatalf("total = %d, want %d", total, writers*perWriter)
	}
}
