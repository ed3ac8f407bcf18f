package db

import (
	"context"
	"database/sql"
	"time"

	"statuspage/internal/aggregate"
	"statuspage/internal/models"
	"statuspage/internal/store"
)

// Repository stores snapshots in SQLite. Timestamps are kept as UTC unix
// nanoseconds next to a denormalised day column used for range queries
// and purges.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) Ping(ctx context.Context) error {
	return store.Fail("ping", r.db.PingContext(ctx))
}

func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) SaveSnapshots(ctx context.Context, snapshots []models.HealthSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	return store.Fail("save snapshots", r.saveSnapshots(ctx, snapshots))
}

func (r *Repository) saveSnapshots(ctx context.Context, snapshots []models.HealthSnapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	svcStmt, err := tx.PrepareContext(ctx, `INSERT INTO services (name,first_seen_at) VALUES (?,?) ON CONFLICT(name) DO NOTHING`)
	if err != nil {
		return err
	}
	defer svcStmt.Close()
	snapStmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshots (service_name,status,ts,day,latency_ns,description) VALUES (?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer snapStmt.Close()

	for _, s := range snapshots {
		ts := s.Timestamp.UTC()
		if _, err := svcStmt.ExecContext(ctx, s.ServiceName, ts.UnixNano()); err != nil {
			return err
		}
		var latency sql.NullInt64
		if s.Latency != nil {
			latency = sql.NullInt64{Int64: int64(*s.Latency), Valid: true}
		}
		var desc sql.NullString
		if s.Description != nil {
			desc = sql.NullString{String: *s.Description, Valid: true}
		}
		if _, err := snapStmt.ExecContext(ctx, s.ServiceName, s.Status.CSS(), ts.UnixNano(), ts.Format(models.DateLayout), latency, desc); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repository) GetDailyAggregates(ctx context.Context, serviceName string, from, to time.Time) ([]models.DayAggregate, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT service_name,status,ts,latency_ns,description FROM snapshots
		WHERE service_name = ? AND day >= ? AND day <= ? ORDER BY ts ASC, id ASC`,
		serviceName, models.DayOf(from).Format(models.DateLayout), models.DayOf(to).Format(models.DateLayout))
	if err != nil {
		return nil, store.Fail("daily aggregates", err)
	}
	snaps, err := scanSnapshots(rows)
	if err != nil {
		return nil, store.Fail("daily aggregates", err)
	}
	return aggregate.Daily(snaps, from, to), nil
}

func (r *Repository) GetLatestSnapshots(ctx context.Context) ([]models.HealthSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT s.service_name,s.status,s.ts,s.latency_ns,s.description
		FROM services sv
		JOIN snapshots s ON s.id = (
			SELECT id FROM snapshots WHERE service_name = sv.name ORDER BY ts DESC, id DESC LIMIT 1
		)
		ORDER BY sv.name`)
	if err != nil {
		return nil, store.Fail("latest snapshots", err)
	}
	snaps, err := scanSnapshots(rows)
	return snaps, store.Fail("latest snapshots", err)
}

func (r *Repository) GetServiceNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM services ORDER BY name`)
	if err != nil {
		return nil, store.Fail("service names", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, store.Fail("service names", err)
		}
		out = append(out, name)
	}
	return out, store.Fail("service names", rows.Err())
}

func (r *Repository) PurgeOlderThan(ctx context.Context, cutoff time.Time) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE day < ?`, models.DayOf(cutoff).Format(models.DateLayout))
	if err != nil {
		return store.Fail("purge", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		_, _ = r.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
		_, _ = r.db.ExecContext(ctx, `PRAGMA optimize`)
	}
	return nil
}

func scanSnapshots(rows *sql.Rows) ([]models.HealthSnapshot, error) {
	defer rows.Close()
	out := []models.HealthSnapshot{}
	for rows.Next() {
		var (
			s       models.HealthSnapshot
			status  string
			ts      int64
			latency sql.NullInt64
			desc    sql.NullString
		)
		if err := rows.Scan(&s.ServiceName, &status, &ts, &latency, &desc); err != nil {
			return nil, err
		}
		st, err := models.ParseServiceStatus(status)
		if err != nil {
			return nil, err
		}
		s.Status = st
		s.Timestamp = time.Unix(0, ts).UTC()
		if latency.Valid {
			d := time.Duration(latency.Int64)
			s.Latency = &d
		}
		if desc.Valid {
			d := desc.String
			s.Description = &d
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
