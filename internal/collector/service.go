package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"statuspage/internal/config"
	"statuspage/internal/models"
	"statuspage/internal/probe"
	"statuspage/internal/retention"
	"statuspage/internal/store"
)

// Sink receives every batch after it has been saved.
type Sink interface {
	Publish(ctx context.Context, batch []models.HealthSnapshot) error
}

// Service is the background loop that polls probes and records snapshots.
// It is the only writer to the repository.
type Service struct {
	probes    *probe.Set
	repo      store.Repository
	retention *retention.Service
	opts      *config.Holder
	sink      Sink
	log       *slog.Logger
	now       func() time.Time
}

func NewService(probes *probe.Set, repo store.Repository, opts *config.Holder, logger *slog.Logger) *Service {
	s := &Service{probes: probes, repo: repo, opts: opts, log: logger, now: time.Now}
	s.retention = retention.NewService(repo, logger, func() time.Time { return s.now() })
	return s
}

// WithSink publishes saved batches to sink. Publish failures are logged only.
func (s *Service) WithSink(sink Sink) *Service {
	s.sink = sink
	return s
}

// Run collects immediately and then once per poll interval until ctx is
// done. The interval is re-read after every cycle.
func (s *Service) Run(ctx context.Context) {
	for {
		if err := s.Collect(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("collection cycle failed", "err", err)
		}
		timer := time.NewTimer(s.opts.Current().PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("collector stopped")
			return
		case <-timer.C:
		}
	}
}

// Collect runs one cycle: check probes, save their snapshots, publish them,
// then purge. A save failure does not skip the purge.
func (s *Service) Collect(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("collection panicked: %v", r)
		}
	}()
	opts := s.opts.Current()
	log := s.log.With("cycle", uuid.NewString())
	start := time.Now()

	results := s.probes.CheckAll(ctx, opts.Includes)
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := Snapshots(results, s.now())

	var saveErr error
	if len(batch) > 0 {
		saveErr = s.repo.SaveSnapshots(ctx, batch)
		if saveErr == nil && s.sink != nil {
			if err := s.sink.Publish(ctx, batch); err != nil {
				log.Warn("publish snapshots failed", "err", err)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	purgeErr := s.retention.Run(ctx, opts.RetentionDays)

	log.Info("collection cycle completed",
		"probes", len(results),
		"saved", saveErr == nil,
		"elapsed_ms", time.Since(start).Milliseconds())
	if saveErr != nil {
		saveErr = fmt.Errorf("save %d snapshots: %w", len(batch), saveErr)
	}
	return errors.Join(saveErr, purgeErr)
}

// Snapshots maps probe results onto snapshots stamped with at in UTC.
func Snapshots(results []probe.Result, at time.Time) []models.HealthSnapshot {
	at = at.UTC()
	out := make([]models.HealthSnapshot, 0, len(results))
	for _, r := range results {
		s := models.HealthSnapshot{
			ServiceName: r.Name,
			Status:      probe.ToServiceStatus(r.Status),
			Timestamp:   at,
		}
		if r.Duration > 0 {
			d := r.Duration
			s.Latency = &d
		}
		if detail := r.Detail(); detail != "" {
			s.Description = &detail
		}
		out = append(out, s)
	}
	return out
}
