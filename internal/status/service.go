// Package status rolls stored snapshots up into the status page response.
package status

import (
	"context"
	"fmt"
	"time"

	"statuspage/internal/config"
	"statuspage/internal/models"
	"statuspage/internal/store"
)

type Service struct {
	repo store.Repository
	opts *config.Holder
	now  func() time.Time
}

func NewService(repo store.Repository, opts *config.Holder) *Service {
	return &Service{repo: repo, opts: opts, now: time.Now}
}

// GetStatus builds a fresh response from the store. Read failures are
// returned as is; nothing is synthesised in their place.
//
// Uptime is count-weighted across the days of one service but a plain mean
// across services. Consumers depend on both rules.
func (s *Service) GetStatus(ctx context.Context) (models.StatusPageResponse, error) {
	opts := s.opts.Current()
	names, err := s.repo.GetServiceNames(ctx)
	if err != nil {
		return models.StatusPageResponse{}, fmt.Errorf("service names: %w", err)
	}
	latest, err := s.repo.GetLatestSnapshots(ctx)
	if err != nil {
		return models.StatusPageResponse{}, fmt.Errorf("latest snapshots: %w", err)
	}
	byName := make(map[string]models.HealthSnapshot, len(latest))
	for _, snap := range latest {
		byName[snap.ServiceName] = snap
	}

	now := s.now().UTC()
	to := models.DayOf(now)
	from := to.AddDate(0, 0, -opts.RetentionDays)

	resp := models.StatusPageResponse{
		Title:         opts.Title,
		GlobalStatus:  models.StatusOperational,
		OverallUptime: 100.0,
		LastUpdated:   now,
		Services:      make([]models.ServiceSummary, 0, len(names)),
	}
	var uptimeSum float64
	for _, name := range names {
		history, err := s.repo.GetDailyAggregates(ctx, name, from, to)
		if err != nil {
			return models.StatusPageResponse{}, fmt.Errorf("daily aggregates for %s: %w", name, err)
		}
		var total, healthy int
		for _, d := range history {
			total += d.TotalChecks
			healthy += d.HealthyChecks
		}
		summary := models.ServiceSummary{
			Name:             name,
			CurrentStatus:    models.StatusOperational,
			UptimePercentage: models.UptimePercent(healthy, total),
			DailyHistory:     history,
		}
		if snap, ok := byName[name]; ok {
			summary.CurrentStatus = snap.Status
			if opts.ShowLatency {
				summary.LastLatency = snap.Latency
			}
		}
		resp.GlobalStatus = models.Worst(resp.GlobalStatus, summary.CurrentStatus)
		uptimeSum += summary.UptimePercentage
		resp.Services = append(resp.Services, summary)
	}
	if len(resp.Services) > 0 {
		resp.OverallUptime = models.Round2(uptimeSum / float64(len(resp.Services)))
	}
	return resp, nil
}
