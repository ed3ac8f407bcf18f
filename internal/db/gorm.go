package db

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"statuspage/internal/aggregate"
	"statuspage/internal/models"
	"statuspage/internal/store"
)

type snapshotRecord struct {
	ID          int64   `gorm:"column:id;primaryKey;autoIncrement"`
	ServiceName string  `gorm:"column:service_name;size:256;not null;index:idx_gsnapshots_service_ts,priority:1"`
	Status      string  `gorm:"column:status;size:32;not null"`
	TS          int64   `gorm:"column:ts;not null;index:idx_gsnapshots_service_ts,priority:2"`
	Day         string  `gorm:"column:day;size:10;not null;index:idx_gsnapshots_day"`
	LatencyNS   *int64  `gorm:"column:latency_ns"`
	Description *string `gorm:"column:description;size:2048"`
}

func (snapshotRecord) TableName() string { return "snapshots" }

type serviceRecord struct {
	Name        string `gorm:"column:name;primaryKey;size:256"`
	FirstSeenAt int64  `gorm:"column:first_seen_at;not null"`
}

func (serviceRecord) TableName() string { return "services" }

// GormRepository stores snapshots through gorm, for Postgres deployments
// that share one history across restarts.
type GormRepository struct {
	db *gorm.DB
}

// OpenGorm connects with the named dialect ("postgres" or "sqlite") and
// migrates the schema.
func OpenGorm(dialect, dsn string) (*GormRepository, error) {
	var dial gorm.Dialector
	switch dialect {
	case "postgres":
		dial = postgres.Open(dsn)
	case "sqlite":
		dial = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm dialect: %s", dialect)
	}
	gdb, err := gorm.Open(dial, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if err := gdb.AutoMigrate(&serviceRecord{}, &snapshotRecord{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", dialect, err)
	}
	return &GormRepository{db: gdb}, nil
}

func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return store.Fail("ping", err)
	}
	return store.Fail("ping", sqlDB.PingContext(ctx))
}

func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *GormRepository) SaveSnapshots(ctx context.Context, snapshots []models.HealthSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	services := make([]serviceRecord, 0, len(snapshots))
	records := make([]snapshotRecord, 0, len(snapshots))
	for _, s := range snapshots {
		rec := toRecord(s)
		if !seen[s.ServiceName] {
			seen[s.ServiceName] = true
			services = append(services, serviceRecord{Name: s.ServiceName, FirstSeenAt: rec.TS})
		}
		records = append(records, rec)
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&services).Error; err != nil {
			return err
		}
		return tx.Create(&records).Error
	})
	return store.Fail("save snapshots", err)
}

func (r *GormRepository) GetDailyAggregates(ctx context.Context, serviceName string, from, to time.Time) ([]models.DayAggregate, error) {
	var recs []snapshotRecord
	err := r.db.WithContext(ctx).
		Where("service_name = ? AND day >= ? AND day <= ?", serviceName,
			models.DayOf(from).Format(models.DateLayout), models.DayOf(to).Format(models.DateLayout)).
		Order("ts ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, store.Fail("daily aggregates", err)
	}
	snaps, err := fromRecords(recs)
	if err != nil {
		return nil, store.Fail("daily aggregates", err)
	}
	return aggregate.Daily(snaps, from, to), nil
}

func (r *GormRepository) GetLatestSnapshots(ctx context.Context) ([]models.HealthSnapshot, error) {
	var recs []snapshotRecord
	err := r.db.WithContext(ctx).Raw(`SELECT s.* FROM services sv
		JOIN snapshots s ON s.id = (
			SELECT s2.id FROM snapshots s2 WHERE s2.service_name = sv.name ORDER BY s2.ts DESC, s2.id DESC LIMIT 1
		)
		ORDER BY sv.name`).Scan(&recs).Error
	if err != nil {
		return nil, store.Fail("latest snapshots", err)
	}
	snaps, err := fromRecords(recs)
	return snaps, store.Fail("latest snapshots", err)
}

func (r *GormRepository) GetServiceNames(ctx context.Context) ([]string, error) {
	names := []string{}
	if err := r.db.WithContext(ctx).Model(&serviceRecord{}).Pluck("name", &names).Error; err != nil {
		return nil, store.Fail("service names", err)
	}
	// byte order regardless of the database collation
	sort.Strings(names)
	return names, nil
}

func (r *GormRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) error {
	err := r.db.WithContext(ctx).
		Where("day < ?", models.DayOf(cutoff).Format(models.DateLayout)).
		Delete(&snapshotRecord{}).Error
	return store.Fail("purge", err)
}

func toRecord(s models.HealthSnapshot) snapshotRecord {
	ts := s.Timestamp.UTC()
	rec := snapshotRecord{
		ServiceName: s.ServiceName,
		Status:      s.Status.CSS(),
		TS:          ts.UnixNano(),
		Day:         ts.Format(models.DateLayout),
		Description: s.Description,
	}
	if s.Latency != nil {
		ns := int64(*s.Latency)
		rec.LatencyNS = &ns
	}
	return rec
}

func fromRecords(recs []snapshotRecord) ([]models.HealthSnapshot, error) {
	out := make([]models.HealthSnapshot, 0, len(recs))
	for _, rec := range recs {
		st, err := models.ParseServiceStatus(rec.Status)
		if err != nil {
			return nil, err
		}
		s := models.HealthSnapshot{
			ServiceName: rec.ServiceName,
			Status:      st,
			Timestamp:   time.Unix(0, rec.TS).UTC(),
			Description: rec.Description,
		}
		if rec.LatencyNS != nil {
			d := time.Duration(*rec.LatencyNS)
			s.Latency = &d
		}
		out = append(out, s)
	}
	return out, nil
}
