// Package store defines the snapshot repository contract shared by every
// storage backend, plus the in-memory backend.
package store

import (
	"context"
	"errors"
	"time"

	"statuspage/internal/models"
)

// Repository is the seam where storage backends plug in. Dates passed to
// GetDailyAggregates and PurgeOlderThan are UTC calendar days; any time of
// day component is ignored.
type Repository interface {
	// SaveSnapshots persists a batch; an empty batch is a no-op.
	SaveSnapshots(ctx context.Context, snapshots []models.HealthSnapshot) error
	// GetDailyAggregates returns one entry per day in [from, to], oldest first.
	GetDailyAggregates(ctx context.Context, serviceName string, from, to time.Time) ([]models.DayAggregate, error)
	// GetLatestSnapshots returns the newest snapshot of every service.
	GetLatestSnapshots(ctx context.Context) ([]models.HealthSnapshot, error)
	// GetServiceNames returns every service name ever recorded, sorted.
	GetServiceNames(ctx context.Context) ([]string, error)
	// PurgeOlderThan deletes snapshots whose day is before cutoff.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) error
}

// Backend is a Repository that also owns a connection.
type Backend interface {
	Repository
	Ping(ctx context.Context) error
	Close() error
}

// ErrUnavailable matches any failure of the underlying storage engine.
var ErrUnavailable = errors.New("store unavailable")

// OpError wraps a storage engine failure. It matches ErrUnavailable via
// errors.Is and unwraps to the cause.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return "store " + e.Op + ": " + e.Err.Error() }

func (e *OpError) Unwrap() error { return e.Err }

func (e *OpError) Is(target error) bool { return target == ErrUnavailable }

// Fail wraps err for op, returning nil when err is nil.
func Fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}
