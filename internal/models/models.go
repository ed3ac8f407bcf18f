package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// ServiceStatus is ordered by severity: Operational < Degraded < Down.
type ServiceStatus int

const (
	StatusOperational ServiceStatus = iota
	StatusDegraded
	StatusDown
)

func (s ServiceStatus) Label() string {
	switch s {
	case StatusOperational:
		return "Operational"
	case StatusDegraded:
		return "Degraded"
	case StatusDown:
		return "Down"
	default:
		return "Unknown"
	}
}

// CSS is also the wire name of the status.
func (s ServiceStatus) CSS() string {
	switch s {
	case StatusDegraded:
		return "degraded"
	case StatusDown:
		return "down"
	default:
		return "operational"
	}
}

func (s ServiceStatus) Icon() string {
	switch s {
	case StatusOperational:
		return "✓"
	case StatusDegraded:
		return "!"
	case StatusDown:
		return "✕"
	default:
		return "?"
	}
}

func (s ServiceStatus) String() string { return s.Label() }

func (s ServiceStatus) MarshalText() ([]byte, error) {
	if s < StatusOperational || s > StatusDown {
		return nil, fmt.Errorf("invalid service status %d", int(s))
	}
	return []byte(s.CSS()), nil
}

func (s *ServiceStatus) UnmarshalText(b []byte) error {
	v, err := ParseServiceStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseServiceStatus(v string) (ServiceStatus, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "operational":
		return StatusOperational, nil
	case "degraded":
		return StatusDegraded, nil
	case "down":
		return StatusDown, nil
	}
	return StatusOperational, fmt.Errorf("unknown service status %q", v)
}

// Worst returns the more severe of two statuses.
func Worst(a, b ServiceStatus) ServiceStatus {
	if b > a {
		return b
	}
	return a
}

type HealthSnapshot struct {
	ServiceName string
	Status      ServiceStatus
	Timestamp   time.Time
	Latency     *time.Duration
	Description *string
}

func (h HealthSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ServiceName string        `json:"serviceName"`
		Status      ServiceStatus `json:"status"`
		Timestamp   string        `json:"timestamp"`
		Latency     *string       `json:"latency,omitempty"`
		Description *string       `json:"description,omitempty"`
	}{h.ServiceName, h.Status, FormatTimestamp(h.Timestamp), formatLatency(h.Latency), h.Description})
}

type IncidentEntry struct {
	Status      ServiceStatus
	Timestamp   time.Time
	Description *string
}

func (e IncidentEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status      ServiceStatus `json:"status"`
		Timestamp   string        `json:"timestamp"`
		Description *string       `json:"description,omitempty"`
	}{e.Status, FormatTimestamp(e.Timestamp), e.Description})
}

// DayAggregate is derived per request and never stored.
type DayAggregate struct {
	Date           time.Time
	TotalChecks    int
	HealthyChecks  int
	DegradedChecks int
	DownChecks     int
	Incidents      []IncidentEntry
}

// UptimePercent is 100 for a day without checks.
func (d DayAggregate) UptimePercent() float64 {
	return UptimePercent(d.HealthyChecks, d.TotalChecks)
}

func (d DayAggregate) WorstStatus() ServiceStatus {
	if d.DownChecks > 0 {
		return StatusDown
	}
	if d.DegradedChecks > 0 {
		return StatusDegraded
	}
	return StatusOperational
}

func (d DayAggregate) MarshalJSON() ([]byte, error) {
	incidents := d.Incidents
	if incidents == nil {
		incidents = []IncidentEntry{}
	}
	return json.Marshal(struct {
		Date           string          `json:"date"`
		TotalChecks    int             `json:"totalChecks"`
		HealthyChecks  int             `json:"healthyChecks"`
		DegradedChecks int             `json:"degradedChecks"`
		DownChecks     int             `json:"downChecks"`
		UptimePercent  float64         `json:"uptimePercent"`
		WorstStatus    ServiceStatus   `json:"worstStatus"`
		Incidents      []IncidentEntry `json:"incidents"`
	}{d.Date.Format(DateLayout), d.TotalChecks, d.HealthyChecks, d.DegradedChecks, d.DownChecks, d.UptimePercent(), d.WorstStatus(), incidents})
}

type ServiceSummary struct {
	Name             string
	CurrentStatus    ServiceStatus
	UptimePercentage float64
	DailyHistory     []DayAggregate
	LastLatency      *time.Duration
}

func (s ServiceSummary) MarshalJSON() ([]byte, error) {
	history := s.DailyHistory
	if history == nil {
		history = []DayAggregate{}
	}
	return json.Marshal(struct {
		Name             string         `json:"name"`
		CurrentStatus    ServiceStatus  `json:"currentStatus"`
		UptimePercentage float64        `json:"uptimePercentage"`
		DailyHistory     []DayAggregate `json:"dailyHistory"`
		LastLatency      *string        `json:"lastLatency,omitempty"`
	}{s.Name, s.CurrentStatus, s.UptimePercentage, history, formatLatency(s.LastLatency)})
}

type StatusPageResponse struct {
	Title         string
	GlobalStatus  ServiceStatus
	OverallUptime float64
	LastUpdated   time.Time
	Services      []ServiceSummary
}

func (r StatusPageResponse) GlobalStatusText() string {
	switch r.GlobalStatus {
	case StatusOperational:
		return "All Systems Operational"
	case StatusDegraded:
		return "Partial System Outage"
	case StatusDown:
		return "Major System Outage"
	default:
		return "Unknown"
	}
}

func (r StatusPageResponse) MarshalJSON() ([]byte, error) {
	services := r.Services
	if services == nil {
		services = []ServiceSummary{}
	}
	return json.Marshal(struct {
		Title            string           `json:"title"`
		GlobalStatus     ServiceStatus    `json:"globalStatus"`
		GlobalStatusText string           `json:"globalStatusText"`
		OverallUptime    float64          `json:"overallUptime"`
		LastUpdated      string           `json:"lastUpdated"`
		Services         []ServiceSummary `json:"services"`
	}{r.Title, r.GlobalStatus, r.GlobalStatusText(), r.OverallUptime, FormatTimestamp(r.LastUpdated), services})
}

// TimestampLayout is ISO 8601 with a numeric offset (+00:00, never Z) and
// at most seven fractional digits, trailing zeros dropped.
const TimestampLayout = "2006-01-02T15:04:05.9999999-07:00"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// DayOf truncates t to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// UptimePercent is healthy/total*100 rounded to two decimals, 100 when total is 0.
func UptimePercent(healthy, total int) float64 {
	if total == 0 {
		return 100.0
	}
	return Round2(float64(healthy) / float64(total) * 100)
}

// Round2 rounds half to even, matching the consumers of the JSON output.
func Round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// FormatTimeSpan renders d as [-][d.]hh:mm:ss[.fffffff].
func FormatTimeSpan(d time.Duration) string {
	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	ticks := int64(d / 100)
	const ticksPerSecond = int64(10_000_000)
	frac := ticks % ticksPerSecond
	secs := ticks / ticksPerSecond
	days := secs / 86400
	secs %= 86400
	if days > 0 {
		fmt.Fprintf(&b, "%d.", days)
	}
	fmt.Fprintf(&b, "%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
	if frac > 0 {
		fmt.Fprintf(&b, ".%07d", frac)
	}
	return b.String()
}

func formatLatency(d *time.Duration) *string {
	if d == nil {
		return nil
	}
	s := FormatTimeSpan(*d)
	return &s
}
