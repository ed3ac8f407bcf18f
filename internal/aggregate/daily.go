// Package aggregate turns raw health snapshots into a per-day series.
package aggregate

import (
	"sort"
	"time"

	"statuspage/internal/models"
)

// Daily groups snapshots by UTC calendar day and returns exactly one
// aggregate per day in [from, to], oldest first. Days without snapshots
// get a zero-count entry. Snapshots outside the range are ignored, so
// callers may pass an over-fetched set.
func Daily(snapshots []models.HealthSnapshot, from, to time.Time) []models.DayAggregate {
	from, to = models.DayOf(from), models.DayOf(to)
	if to.Before(from) {
		return []models.DayAggregate{}
	}

	byDay := make(map[time.Time]*models.DayAggregate)
	for _, s := range snapshots {
		day := models.DayOf(s.Timestamp)
		if day.Before(from) || day.After(to) {
			continue
		}
		agg, ok := byDay[day]
		if !ok {
			agg = &models.DayAggregate{Date: day}
			byDay[day] = agg
		}
		agg.TotalChecks++
		switch s.Status {
		case models.StatusOperational:
			agg.HealthyChecks++
		case models.StatusDegraded:
			agg.DegradedChecks++
		default:
			agg.DownChecks++
		}
		if s.Status != models.StatusOperational {
			agg.Incidents = append(agg.Incidents, models.IncidentEntry{
				Status:      normalize(s.Status),
				Timestamp:   s.Timestamp.UTC(),
				Description: s.Description,
			})
		}
	}

	out := make([]models.DayAggregate, 0, Days(from, to))
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		agg, ok := byDay[day]
		if !ok {
			out = append(out, models.DayAggregate{Date: day})
			continue
		}
		sort.SliceStable(agg.Incidents, func(i, j int) bool {
			return agg.Incidents[i].Timestamp.Before(agg.Incidents[j].Timestamp)
		})
		out = append(out, *agg)
	}
	return out
}

// Days is the number of calendar days in the inclusive range.
func Days(from, to time.Time) int {
	from, to = models.DayOf(from), models.DayOf(to)
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours()/24) + 1
}

// out-of-range values are counted as down, keep the incident consistent with that
func normalize(s models.ServiceStatus) models.ServiceStatus {
	if s == models.StatusDegraded {
		return s
	}
	return models.StatusDown
}
