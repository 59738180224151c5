package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clientpulse/api/models"
)

type memAggregates struct {
	rows []models.DailyAggregate
	err  error
}

func (m *memAggregates) ListDailyAggregates(_ context.Context, clientID string, from, to time.Time) ([]models.DailyAggregate, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := []models.DailyAggregate{}
	for _, r := range m.rows {
		if r.ClientID == clientID && !r.Date.Before(from) && !r.Date.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func row(d time.Time, views, uniques int64, pages ...models.RankedCount) models.DailyAggregate {
	if pages == nil {
		pages = []models.RankedCount{}
	}
	return models.DailyAggregate{
		ClientID:       "acme",
		Date:           d,
		PageViews:      views,
		UniqueVisitors: uniques,
		TopPages:       pages,
		TopReferrers:   []models.RankedCount{},
		Devices:        models.DeviceBreakdown{Desktop: views},
	}
}

func TestSummaryMergesDays(t *testing.T) {
	agg := &memAggregates{rows: []models.DailyAggregate{
		row(date(2026, 3, 1), 10, 4, models.RankedCount{Value: "/b", Count: 6}, models.RankedCount{Value: "/a", Count: 4}),
		row(date(2026, 3, 2), 5, 3, models.RankedCount{Value: "/a", Count: 2}, models.RankedCount{Value: "/c", Count: 3}),
		row(date(2026, 3, 9), 100, 50),
	}}

	sum, err := NewService(agg).Summary(context.Background(), "acme", date(2026, 3, 1), date(2026, 3, 2))
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Days)
	assert.EqualValues(t, 15, sum.PageViews)
	assert.EqualValues(t, 7, sum.UniqueVisitors)
	assert.EqualValues(t, 15, sum.Devices.Desktop)
	assert.Equal(t, []models.RankedCount{
		{Value: "/b", Count: 6},
		{Value: "/a", Count: 6},
		{Value: "/c", Count: 3},
	}, sum.TopPages)
	assert.NotNil(t, sum.TopReferrers)
}

func TestSummaryRejectsReversedRange(t *testing.T) {
	_, err := NewService(&memAggregates{}).Summary(context.Background(), "acme", date(2026, 3, 2), date(2026, 3, 1))

	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestDailyRejectsOversizedRange(t *testing.T) {
	_, err := NewService(&memAggregates{}).Daily(context.Background(), "acme", date(2024, 1, 1), date(2026, 1, 1))

	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestDailyWrapsStoreError(t *testing.T) {
	_, err := NewService(&memAggregates{err: errors.New("timeout")}).Daily(context.Background(), "acme", date(2026, 3, 1), date(2026, 3, 1))

	assert.ErrorContains(t, err, "timeout")
	assert.NotErrorIs(t, err, ErrInvalidRange)
}

func TestMonthOverMonth(t *testing.T) {
	agg := &memAggregates{rows: []models.DailyAggregate{
		row(date(2026, 2, 1), 40, 20),
		row(date(2026, 2, 28), 40, 20),
		row(date(2026, 3, 1), 50, 10),
		row(date(2026, 3, 31), 50, 20),
		row(date(2026, 4, 1), 999, 999),
	}}

	cmp, err := NewService(agg).MonthOverMonth(context.Background(), "acme", date(2026, 3, 17))
	require.NoError(t, err)

	assert.Equal(t, date(2026, 3, 1), cmp.Current.Start)
	assert.Equal(t, date(2026, 3, 31), cmp.Current.End)
	assert.Equal(t, date(2026, 2, 28), cmp.Previous.End)
	assert.EqualValues(t, 100, cmp.Current.PageViews)
	assert.EqualValues(t, 80, cmp.Previous.PageViews)
	require.NotNil(t, cmp.PageViewsChange)
	assert.Equal(t, 25.0, *cmp.PageViewsChange)
	require.NotNil(t, cmp.UniqueVisitorsChange)
	assert.Equal(t, -25.0, *cmp.UniqueVisitorsChange)
}

func TestMonthOverMonthWithoutHistory(t *testing.T) {
	agg := &memAggregates{rows: []models.DailyAggregate{row(date(2026, 3, 5), 10, 5)}}

	cmp, err := NewService(agg).MonthOverMonth(context.Background(), "acme", date(2026, 3, 1))
	require.NoError(t, err)

	assert.Nil(t, cmp.PageViewsChange)
	assert.Nil(t, cmp.UniqueVisitorsChange)
}
