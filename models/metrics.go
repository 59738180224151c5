package models

import (
	"fmt"
	"strconv"
	"time"
)

// PerformanceRating grades the average response time.
type PerformanceRating string

const (
	RatingGreen  PerformanceRating = "green"
	RatingYellow PerformanceRating = "yellow"
	RatingRed    PerformanceRating = "red"
)

// BenchmarkBand is the industry range a conversion rate is compared with.
type BenchmarkBand struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// ConversionFunnel is the lead → response → booking funnel for a period.
type ConversionFunnel struct {
	TotalLeads          int           `json:"totalLeads"`
	RespondedLeads      int           `json:"respondedLeads"`
	BookedConsultations int           `json:"bookedConsultations"`
	ConversionRate      float64       `json:"conversionRate"`
	Benchmark           BenchmarkBand `json:"benchmark"`
}

// ResponseDistribution buckets measured response latencies.
type ResponseDistribution struct {
	Under5Min    int `json:"under5min"`
	From5To30Min int `json:"from5to30min"`
	Over30Min    int `json:"over30min"`
}

// Total returns the number of latencies in all buckets.
func (d ResponseDistribution) Total() int {
	return d.Under5Min + d.From5To30Min + d.Over30Min
}

// SpeedToLead describes how fast leads get their first outbound reply.
type SpeedToLead struct {
	TotalMeasured          int                  `json:"totalMeasured"`
	AutomatedResponses     int                  `json:"automatedResponses"`
	HumanResponses         int                  `json:"humanResponses"`
	AverageResponseMinutes float64              `json:"averageResponseMinutes"`
	MedianResponseMinutes  float64              `json:"medianResponseMinutes"`
	Distribution           ResponseDistribution `json:"distribution"`
	PerformanceRating      PerformanceRating    `json:"performanceRating"`
}

// MetricsBundle is what the CRM metrics endpoint returns and what snapshots store.
type MetricsBundle struct {
	ConversionFunnel ConversionFunnel `json:"conversionFunnel"`
	SpeedToLead      SpeedToLead      `json:"speedToLead"`
}

// MetricsSnapshot is one stored computation of a bundle. Snapshots are append-only;
// the newest one per (ClientID, Source) is the cached value.
type MetricsSnapshot struct {
	ID          string        `json:"id"`
	ClientID    string        `json:"clientId"`
	Source      string        `json:"source"`
	Bundle      MetricsBundle `json:"bundle"`
	PeriodStart time.Time     `json:"periodStart"`
	PeriodEnd   time.Time     `json:"periodEnd"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Period is a reporting window preset expressed in days.
type Period struct {
	Days int
}

// DefaultPeriod is used when a request does not name one.
var DefaultPeriod = Period{Days: 30}

// ParsePeriod accepts "7", "30", "90" (optionally suffixed with "d"). Empty means DefaultPeriod.
func ParsePeriod(raw string) (Period, error) {
	if raw == "" {
		return DefaultPeriod, nil
	}
	if raw[len(raw)-1] == 'd' {
		raw = raw[:len(raw)-1]
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q", raw)
	}
	switch days {
	case 7, 30, 90:
		return Period{Days: days}, nil
	default:
		return Period{}, fmt.Errorf("unsupported period %dd: use 7, 30 or 90", days)
	}
}

// Bounds returns [end - Days, end].
func (p Period) Bounds(end time.Time) (time.Time, time.Time) {
	return end.AddDate(0, 0, -p.Days), end
}

// SourceTag names the snapshot key for this period so each preset caches separately.
func (p Period) SourceTag(source string) string {
	return fmt.Sprintf("%s:%dd", source, p.Days)
}
