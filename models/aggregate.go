package models

import "time"

// TopKLimit is the number of entries kept in the top pages and top referrers lists.
const TopKLimit = 10

// RankedCount is one entry of a top-K list. Lists are stored as ordered arrays so the
// ranking survives serialization unchanged.
type RankedCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// DeviceBreakdown counts page views per device class.
type DeviceBreakdown struct {
	Desktop int64 `json:"desktop"`
	Mobile  int64 `json:"mobile"`
	Tablet  int64 `json:"tablet"`
}

// Add increments the counter for the given class.
func (d *DeviceBreakdown) Add(class DeviceClass, n int64) {
	switch class {
	case DeviceMobile:
		d.Mobile += n
	case DeviceTablet:
		d.Tablet += n
	default:
		d.Desktop += n
	}
}

// DailyAggregate is the rollup of one client's raw events for one UTC day.
// There is at most one row per (ClientID, Date).
type DailyAggregate struct {
	ClientID       string          `json:"clientId"`
	Date           time.Time       `json:"date"`
	PageViews      int64           `json:"pageViews"`
	UniqueVisitors int64           `json:"uniqueVisitors"`
	TopPages       []RankedCount   `json:"topPages"`
	TopReferrers   []RankedCount   `json:"topReferrers"`
	Devices        DeviceBreakdown `json:"devices"`
}

// TrafficSummary aggregates a range of daily rows.
type TrafficSummary struct {
	ClientID       string          `json:"clientId"`
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	Days           int             `json:"days"`
	PageViews      int64           `json:"pageViews"`
	UniqueVisitors int64           `json:"uniqueVisitors"`
	TopPages       []RankedCount   `json:"topPages"`
	TopReferrers   []RankedCount   `json:"topReferrers"`
	Devices        DeviceBreakdown `json:"devices"`
}

// MonthlyComparison puts a month's summary next to the previous month's.
// A nil change means the previous month had nothing to compare against.
type MonthlyComparison struct {
	Current              TrafficSummary `json:"current"`
	Previous             TrafficSummary `json:"previous"`
	PageViewsChange      *float64       `json:"pageViewsChangePct"`
	UniqueVisitorsChange *float64       `json:"uniqueVisitorsChangePct"`
}
