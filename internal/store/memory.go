package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"statuspage/internal/aggregate"
	"statuspage/internal/models"
)

// Memory keeps append-only snapshot lists per service behind one lock
// shared by all services. Suitable for development and single-instance
// deployments; history is lost on restart.
type Memory struct {
	mu        sync.RWMutex
	snapshots map[string][]models.HealthSnapshot
}

func NewMemory() *Memory {
	return &Memory{snapshots: make(map[string][]models.HealthSnapshot)}
}

func (m *Memory) SaveSnapshots(ctx context.Context, snapshots []models.HealthSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(snapshots) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range snapshots {
		s.Timestamp = s.Timestamp.UTC()
		m.snapshots[s.ServiceName] = append(m.snapshots[s.ServiceName], s)
	}
	return nil
}

func (m *Memory) GetDailyAggregates(ctx context.Context, serviceName string, from, to time.Time) ([]models.DayAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	list := append([]models.HealthSnapshot(nil), m.snapshots[serviceName]...)
	m.mu.RUnlock()
	return aggregate.Daily(list, from, to), nil
}

func (m *Memory) GetLatestSnapshots(ctx context.Context) ([]models.HealthSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.HealthSnapshot, 0, len(m.snapshots))
	for _, name := range m.sortedNamesLocked() {
		list := m.snapshots[name]
		if len(list) == 0 {
			continue
		}
		latest := list[0]
		for _, s := range list[1:] {
			// later appends win ties
			if !s.Timestamp.Before(latest.Timestamp) {
				latest = s
			}
		}
		out = append(out, latest)
	}
	return out, nil
}

func (m *Memory) GetServiceNames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedNamesLocked(), nil
}

func (m *Memory) PurgeOlderThan(ctx context.Context, cutoff time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cutoff = models.DayOf(cutoff)
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, list := range m.snapshots {
		kept := list[:0]
		for _, s := range list {
			if !models.DayOf(s.Timestamp).Before(cutoff) {
				kept = append(kept, s)
			}
		}
		clear(list[len(kept):])
		m.snapshots[name] = kept
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close() error { return nil }

func (m *Memory) sortedNamesLocked() []string {
	names := make([]string, 0, len(m.snapshots))
	for name := range m.snapshots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
