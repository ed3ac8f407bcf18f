package web

import (
	"fmt"
	"time"

	"statuspage/internal/config"
	"statuspage/internal/models"
)

const (
	barDateLayout      = "Jan 2"
	footerDateLayout   = "Jan 2"
	incidentTimeLayout = "15:04 UTC"
	updatedLayout      = "Jan 02, 2006 3:04 PM UTC"
)

type pageView struct {
	Opts        config.StatusPage
	Base        string
	Title       string
	GlobalCSS   string
	GlobalIcon  string
	GlobalText  string
	Overall     float64
	LastUpdated string
	Refresh     int
	Services    []serviceView
}

type serviceView struct {
	Index     int
	Name      string
	StatusCSS string
	Status    string
	Icon      string
	Uptime    float64
	Latency   string
	Bars      []barView
	First     string
	Last      string
}

type barView struct {
	CSS       string
	Tip       string
	Incidents []incidentView
}

type incidentView struct {
	CSS         string
	Label       string
	Time        string
	Description string
}

func newPageView(resp models.StatusPageResponse, opts config.StatusPage, base string) pageView {
	v := pageView{
		Opts:        opts,
		Base:        base,
		Title:       resp.Title,
		GlobalCSS:   resp.GlobalStatus.CSS(),
		GlobalIcon:  resp.GlobalStatus.Icon(),
		GlobalText:  resp.GlobalStatusText(),
		Overall:     resp.OverallUptime,
		LastUpdated: resp.LastUpdated.UTC().Format(updatedLayout),
	}
	if opts.AutoRefresh {
		v.Refresh = refreshSeconds(opts.PollInterval)
	}
	for i, s := range resp.Services {
		v.Services = append(v.Services, newServiceView(i, s, opts.ShowLatency))
	}
	return v
}

func newServiceView(i int, s models.ServiceSummary, showLatency bool) serviceView {
	sv := serviceView{
		Index:     i,
		Name:      s.Name,
		StatusCSS: s.CurrentStatus.CSS(),
		Status:    s.CurrentStatus.Label(),
		Icon:      s.CurrentStatus.Icon(),
		Uptime:    s.UptimePercentage,
	}
	if showLatency && s.LastLatency != nil {
		sv.Latency = fmt.Sprintf("%dms", s.LastLatency.Milliseconds())
	}
	if n := len(s.DailyHistory); n > 0 {
		sv.First = s.DailyHistory[0].Date.Format(footerDateLayout)
		sv.Last = s.DailyHistory[n-1].Date.Format(footerDateLayout)
	}
	for _, d := range s.DailyHistory {
		sv.Bars = append(sv.Bars, newBarView(d))
	}
	return sv
}

func newBarView(d models.DayAggregate) barView {
	date := d.Date.Format(barDateLayout)
	if d.TotalChecks == 0 {
		return barView{CSS: "nodata", Tip: date + " · No data"}
	}
	b := barView{
		CSS: d.WorstStatus().CSS(),
		Tip: fmt.Sprintf("%s · %.1f%%", date, d.UptimePercent()),
	}
	for _, inc := range d.Incidents {
		iv := incidentView{
			CSS:   inc.Status.CSS(),
			Label: inc.Status.Label(),
			Time:  inc.Timestamp.UTC().Format(incidentTimeLayout),
		}
		if inc.Description != nil {
			iv.Description = *inc.Description
		}
		b.Incidents = append(b.Incidents, iv)
	}
	return b
}

// refreshSeconds is clamped to at least 10s.
func refreshSeconds(d time.Duration) int {
	s := int(d / time.Second)
	if s < 10 {
		return 10
	}
	return s
}
