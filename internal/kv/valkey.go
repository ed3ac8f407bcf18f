// Package kv stores snapshots in Valkey so several status page instances can
// share one history.
//
// Each service gets a sorted set scored by unix microseconds. Members carry a
// zero-padded insertion sequence ahead of the JSON payload, so members with
// equal scores keep append order. A plain set tracks every service name ever
// recorded.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	valkey "github.com/valkey-io/valkey-go"

	"statuspage/internal/aggregate"
	"statuspage/internal/models"
	"statuspage/internal/store"
)

const DefaultPrefix = "statuspage"

type Repository struct {
	client valkey.Client
	prefix string
}

// New connects to a single Valkey node at addr.
func New(addr, prefix string) (*Repository, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, err
	}
	return NewWithClient(client, prefix), nil
}

func NewWithClient(client valkey.Client, prefix string) *Repository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Repository{client: client, prefix: prefix}
}

func (r *Repository) servicesKey() string { return r.prefix + ":services" }

func (r *Repository) seqKey() string { return r.prefix + ":seq" }

func (r *Repository) snapshotsKey(service string) string {
	return r.prefix + ":snapshots:" + service
}

func (r *Repository) Ping(ctx context.Context) error {
	return store.Fail("ping", r.client.Do(ctx, r.client.B().Ping().Build()).Error())
}

func (r *Repository) Close() error {
	r.client.Close()
	return nil
}

func (r *Repository) SaveSnapshots(ctx context.Context, snapshots []models.HealthSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	last, err := r.client.Do(ctx, r.client.B().Incrby().Key(r.seqKey()).Increment(int64(len(snapshots))).Build()).AsInt64()
	if err != nil {
		return store.Fail("save snapshots", err)
	}
	seq := last - int64(len(snapshots))

	var names []string
	byService := make(map[string][]valkey.Completed)
	cmds := make([]valkey.Completed, 0, len(snapshots)+1)
	for _, s := range snapshots {
		seq++
		member, err := encodeMember(seq, s)
		if err != nil {
			return store.Fail("save snapshots", err)
		}
		if _, ok := byService[s.ServiceName]; !ok {
			names = append(names, s.ServiceName)
		}
		cmd := r.client.B().Zadd().Key(r.snapshotsKey(s.ServiceName)).ScoreMember().
			ScoreMember(score(s.Timestamp), member).Build()
		byService[s.ServiceName] = append(byService[s.ServiceName], cmd)
	}
	cmds = append(cmds, r.client.B().Sadd().Key(r.servicesKey()).Member(names...).Build())
	for _, name := range names {
		cmds = append(cmds, byService[name]...)
	}
	for _, resp := range r.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return store.Fail("save snapshots", err)
		}
	}
	return nil
}

func (r *Repository) GetDailyAggregates(ctx context.Context, serviceName string, from, to time.Time) ([]models.DayAggregate, error) {
	lo, hi := dayBounds(from, to)
	cmd := r.client.B().Zrange().Key(r.snapshotsKey(serviceName)).Min(lo).Max(hi).Byscore().Build()
	members, err := r.client.Do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, store.Fail("daily aggregates", err)
	}
	snaps := make([]models.HealthSnapshot, 0, len(members))
	for _, m := range members {
		s, err := decodeMember(m)
		if err != nil {
			return nil, store.Fail("daily aggregates", err)
		}
		snaps = append(snaps, s)
	}
	return aggregate.Daily(snaps, from, to), nil
}

func (r *Repository) GetLatestSnapshots(ctx context.Context) ([]models.HealthSnapshot, error) {
	names, err := r.GetServiceNames(ctx)
	if err != nil {
		return nil, store.Fail("latest snapshots", err)
	}
	out := []models.HealthSnapshot{}
	if len(names) == 0 {
		return out, nil
	}
	cmds := make([]valkey.Completed, 0, len(names))
	for _, name := range names {
		cmds = append(cmds, r.client.B().Zrange().Key(r.snapshotsKey(name)).Min("-1").Max("-1").Build())
	}
	for _, resp := range r.client.DoMulti(ctx, cmds...) {
		members, err := resp.AsStrSlice()
		if err != nil {
			return nil, store.Fail("latest snapshots", err)
		}
		if len(members) == 0 {
			continue
		}
		s, err := decodeMember(members[0])
		if err != nil {
			return nil, store.Fail("latest snapshots", err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *Repository) GetServiceNames(ctx context.Context) ([]string, error) {
	names, err := r.client.Do(ctx, r.client.B().Smembers().Key(r.servicesKey()).Build()).AsStrSlice()
	if err != nil {
		return nil, store.Fail("service names", err)
	}
	if names == nil {
		names = []string{}
	}
	sort.Strings(names)
	return names, nil
}

func (r *Repository) PurgeOlderThan(ctx context.Context, cutoff time.Time) error {
	names, err := r.GetServiceNames(ctx)
	if err != nil {
		return store.Fail("purge", err)
	}
	if len(names) == 0 {
		return nil
	}
	upper := "(" + strconv.FormatInt(models.DayOf(cutoff).UnixMicro(), 10)
	cmds := make([]valkey.Completed, 0, len(names))
	for _, name := range names {
		cmds = append(cmds, r.client.B().Zremrangebyscore().Key(r.snapshotsKey(name)).Min("-inf").Max(upper).Build())
	}
	for _, resp := range r.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return store.Fail("purge", err)
		}
	}
	return nil
}

// Microseconds stay exact in a float64 score; nanoseconds would not.
func score(t time.Time) float64 {
	return float64(t.UTC().UnixMicro())
}

// dayBounds returns the inclusive-exclusive score range covering the UTC
// days from..to.
func dayBounds(from, to time.Time) (string, string) {
	lo := models.DayOf(from).UnixMicro()
	hi := models.DayOf(to).AddDate(0, 0, 1).UnixMicro()
	return strconv.FormatInt(lo, 10), "(" + strconv.FormatInt(hi, 10)
}

type record struct {
	Service     string  `json:"s"`
	Status      string  `json:"st"`
	TS          int64   `json:"ts"`
	LatencyNS   *int64  `json:"l,omitempty"`
	Description *string `json:"d,omitempty"`
}

func encodeMember(seq int64, s models.HealthSnapshot) (string, error) {
	rec := record{
		Service:     s.ServiceName,
		Status:      s.Status.CSS(),
		TS:          s.Timestamp.UTC().UnixNano(),
		Description: s.Description,
	}
	if s.Latency != nil {
		ns := int64(*s.Latency)
		rec.LatencyNS = &ns
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%019d|%s", seq, b), nil
}

func decodeMember(member string) (models.HealthSnapshot, error) {
	_, payload, ok := strings.Cut(member, "|")
	if !ok {
		return models.HealthSnapshot{}, fmt.Errorf("malformed member %q", member)
	}
	var rec record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return models.HealthSnapshot{}, fmt.Errorf("decode member: %w", err)
	}
	st, err := models.ParseServiceStatus(rec.Status)
	if err != nil {
		return models.HealthSnapshot{}, err
	}
	s := models.HealthSnapshot{
		ServiceName: rec.Service,
		Status:      st,
		Timestamp:   time.Unix(0, rec.TS).UTC(),
		Description: rec.Description,
	}
	if rec.LatencyNS != nil {
		d := time.Duration(*rec.LatencyNS)
		s.Latency = &d
	}
	return s, nil
}
