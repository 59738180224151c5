// Package report reads daily aggregates back out as ranges, summaries and month-over-month comparisons.
package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"clientpulse/api/models"
	"clientpulse/api/rollup"
	"clientpulse/api/utils"
)

// MaxRangeDays bounds a single range query.
const MaxRangeDays = 366

var ErrInvalidRange = errors.New("invalid date range")

type AggregateReader interface {
	ListDailyAggregates(ctx context.Context, clientID string, from, to time.Time) ([]models.DailyAggregate, error)
}

type Service struct {
	aggregates AggregateReader
}

func NewService(aggregates AggregateReader) *Service {
	return &Service{aggregates: aggregates}
}

// Daily returns the stored rows for [from, to], both ends inclusive, ordered by date.
func (s *Service) Daily(ctx context.Context, clientID string, from, to time.Time) ([]models.DailyAggregate, error) {
	from, to = utils.StartOfDay(from), utils.StartOfDay(to)
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	rows, err := s.aggregates.ListDailyAggregates(ctx, clientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list daily aggregates: %w", err)
	}
	return rows, nil
}

// Summary folds the rows of [from, to] into one TrafficSummary. Unique visitors are the sum
// of daily uniques; a visitor seen on two days counts twice.
func (s *Service) Summary(ctx context.Context, clientID string, from, to time.Time) (models.TrafficSummary, error) {
	rows, err := s.Daily(ctx, clientID, from, to)
	if err != nil {
		return models.TrafficSummary{}, err
	}
	return Summarize(clientID, utils.StartOfDay(from), utils.StartOfDay(to), rows), nil
}

// Summarize merges daily rows. rows must be in date order so ties in the merged top lists
// keep the value seen on the earliest day first.
func Summarize(clientID string, from, to time.Time, rows []models.DailyAggregate) models.TrafficSummary {
	pages := rollup.NewCounter()
	referrers := rollup.NewCounter()
	sum := models.TrafficSummary{ClientID: clientID, Start: from, End: to, Days: len(rows)}

	for _, r := range rows {
		sum.PageViews += r.PageViews
		sum.UniqueVisitors += r.UniqueVisitors
		sum.Devices.Desktop += r.Devices.Desktop
		sum.Devices.Mobile += r.Devices.Mobile
		sum.Devices.Tablet += r.Devices.Tablet
		for _, p := range r.TopPages {
			pages.Add(p.Value, p.Count)
		}
		for _, ref := range r.TopReferrers {
			referrers.Add(ref.Value, ref.Count)
		}
	}
	sum.TopPages = pages.Top(models.TopKLimit)
	sum.TopReferrers = referrers.Top(models.TopKLimit)
	return sum
}

// MonthOverMonth compares the calendar month containing month with the month before it.
func (s *Service) MonthOverMonth(ctx context.Context, clientID string, month time.Time) (models.MonthlyComparison, error) {
	month = utils.StartOfDay(month)
	curStart := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	prevStart := curStart.AddDate(0, -1, 0)

	current, err := s.Summary(ctx, clientID, curStart, curStart.AddDate(0, 1, -1))
	if err != nil {
		return models.MonthlyComparison{}, err
	}
	previous, err := s.Summary(ctx, clientID, prevStart, curStart.AddDate(0, 0, -1))
	if err != nil {
		return models.MonthlyComparison{}, err
	}

	return models.MonthlyComparison{
		Current:              current,
		Previous:             previous,
		PageViewsChange:      percentChange(previous.PageViews, current.PageViews),
		UniqueVisitorsChange: percentChange(previous.UniqueVisitors, current.UniqueVisitors),
	}, nil
}

func percentChange(prev, cur int64) *float64 {
	if prev == 0 {
		return nil
	}
	pct := math.Round(float64(cur-prev)/float64(prev)*1000) / 10
	return &pct
}

func checkRange(from, to time.Time) error {
	if to.Before(from) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange, to.Format(utils.DateLayout), from.Format(utils.DateLayout))
	}
	if to.Sub(from) > MaxRangeDays*24*time.Hour {
		return fmt.Errorf("%w: at most %d days", ErrInvalidRange, MaxRangeDays)
	}
	return nil
}
