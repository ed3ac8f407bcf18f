package retention

import (
	"context"
	"log/slog"
	"time"

	"statuspage/internal/models"
	"statuspage/internal/store"
)

// Service purges snapshots that fell out of the retention window.
type Service struct {
	repo store.Repository
	log  *slog.Logger
	now  func() time.Time
}

// NewService uses now as its clock; nil means time.Now.
func NewService(repo store.Repository, logger *slog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, log: logger, now: now}
}

// Cutoff is the first UTC day kept for a window of days.
func Cutoff(now time.Time, days int) time.Time {
	return models.DayOf(now).AddDate(0, 0, -days)
}

// Run deletes snapshots dated before today minus days. Failures are logged
// and returned; they never stop later saves.
func (s *Service) Run(ctx context.Context, days int) error {
	cutoff := Cutoff(s.now(), days)
	if err := s.repo.PurgeOlderThan(ctx, cutoff); err != nil {
		s.log.Error("retention cleanup failed", "cutoff", cutoff.Format(models.DateLayout), "err", err)
		return err
	}
	s.log.Debug("retention cleanup completed", "cutoff", cutoff.Format(models.DateLayout))
	return nil
}
