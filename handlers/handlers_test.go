package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clientpulse/api/cache"
	"clientpulse/api/leadmetrics"
	"clientpulse/api/models"
	"clientpulse/api/report"
	"clientpulse/api/rollup"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memEvents struct {
	inserted []models.RawEvent
	err      error
}

func (m *memEvents) InsertEvents(_ context.Context, events []models.RawEvent) error {
	if m.err != nil {
		return m.err
	}
	m.inserted = append(m.inserted, events...)
	return nil
}

func serve(r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func trackRouter(t *testing.T, events *memEvents) *gin.Engine {
	h := NewTrackHandlers(events, quartz.NewMock(t), zap.NewNop(), nil)
	r := gin.New()
	r.POST("/api/track", h.TrackEvent)
	return r
}

func TestTrackEventSingle(t *testing.T) {
	events := &memEvents{}
	r := trackRouter(t, events)

	w := serve(r, http.MethodPost, "/api/track",
		`{"clientId":"acme","pageUrl":"/pricing","referrer":"  ","sessionId":"s1"}`,
		map[string]string{"User-Agent": "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148"})

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, events.inserted, 1)
	e := events.inserted[0]
	assert.Equal(t, "acme", e.ClientID)
	assert.Nil(t, e.Referrer)
	assert.Equal(t, models.DeviceMobile, e.Device)
	require.NotNil(t, e.UserAgent)
	assert.Contains(t, *e.UserAgent, "iPhone")
	assert.NotEmpty(t, e.EventID)
}

func TestTrackEventBatchPrefersBodyUserAgent(t *testing.T) {
	events := &memEvents{}
	r := trackRouter(t, events)

	w := serve(r, http.MethodPost, "/api/track", `[
		{"clientId":"acme","pageUrl":"/","sessionId":"s1","userAgent":"Mozilla/5.0 (iPad; CPU OS 17_0)"},
		{"clientId":"acme","pageUrl":"/about","sessionId":"s1","referrer":"https://google.com"}
	]`, map[string]string{"User-Agent": "curl/8.0"})

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, events.inserted, 2)
	assert.Equal(t, models.DeviceTablet, events.inserted[0].Device)
	assert.Equal(t, models.DeviceDesktop, events.inserted[1].Device)
	require.NotNil(t, events.inserted[1].Referrer)
	assert.Equal(t, "https://google.com", *events.inserted[1].Referrer)
}

func TestTrackEventValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"clientId":`},
		{"missing client", `{"pageUrl":"/","sessionId":"s1"}`},
		{"blank page", `{"clientId":"acme","pageUrl":"   ","sessionId":"s1"}`},
		{"missing session in batch", `[{"clientId":"acme","pageUrl":"/","sessionId":"s1"},{"clientId":"acme","pageUrl":"/"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &memEvents{}
			w := serve(trackRouter(t, events), http.MethodPost, "/api/track", tt.body, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, events.inserted)
		})
	}
}

func TestTrackEventRequiredFieldsUseBindingTags(t *testing.T) {
	events := &memEvents{}
	r := trackRouter(t, events)

	w := serve(r, http.MethodPost, "/api/track", `{"clientId":"acme","sessionId":"s1"}`, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Index   int    `json:"index"`
		Details string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Details, "PageURL")
	assert.Contains(t, body.Details, "required")
	assert.Empty(t, events.inserted)
}

func TestTrackEventBlankFieldsRejected(t *testing.T) {
	events := &memEvents{}
	r := trackRouter(t, events)

	w := serve(r, http.MethodPost, "/api/track", `[{"clientId":"acme","pageUrl":"/","sessionId":"s1"},{"clientId":"acme","pageUrl":"/","sessionId":"  "}]`, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Index int `json:"index"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Index)
	assert.Empty(t, events.inserted)
}

func TestTrackEventStoreFailure(t *testing.T) {
	w := serve(trackRouter(t, &memEvents{err: errors.New("clickhouse down")}), http.MethodPost, "/api/track",
		`{"clientId":"acme","pageUrl":"/","sessionId":"s1"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type fakeMetrics struct {
	res    cache.Result
	err    error
	period models.Period
}

func (f *fakeMetrics) Query(_ context.Context, _ string, period models.Period) (cache.Result, error) {
	f.period = period
	return f.res, f.err
}

func metricsRouter(q MetricsQuerier) *gin.Engine {
	r := gin.New()
	r.GET("/api/clients/:clientId/metrics/crm", NewMetricsHandlers(q, zap.NewNop()).GetCRMMetrics)
	return r
}

func TestGetCRMMetrics(t *testing.T) {
	at := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	q := &fakeMetrics{res: cache.Result{
		Bundle:     models.MetricsBundle{ConversionFunnel: models.ConversionFunnel{TotalLeads: 3, ConversionRate: 33.3}},
		Status:     cache.StatusStale,
		SnapshotAt: &at,
	}}

	w := serve(metricsRouter(q), http.MethodGet, "/api/clients/acme/metrics/crm?period=90", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		PeriodDays       int                     `json:"periodDays"`
		ConversionFunnel models.ConversionFunnel `json:"conversionFunnel"`
		Cache            struct {
			Status     string     `json:"status"`
			SnapshotAt *time.Time `json:"snapshotAt"`
		} `json:"cache"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 90, q.period.Days)
	assert.Equal(t, 90, body.PeriodDays)
	assert.Equal(t, 33.3, body.ConversionFunnel.ConversionRate)
	assert.Equal(t, "stale", body.Cache.Status)
	require.NotNil(t, body.Cache.SnapshotAt)
	assert.True(t, at.Equal(*body.Cache.SnapshotAt))
}

func TestGetCRMMetricsErrors(t *testing.T) {
	w := serve(metricsRouter(&fakeMetrics{}), http.MethodGet, "/api/clients/acme/metrics/crm?period=14", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(metricsRouter(&fakeMetrics{err: leadmetrics.ErrClientNotFound}), http.MethodGet, "/api/clients/ghost/metrics/crm", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(metricsRouter(&fakeMetrics{err: errors.New("postgres down")}), http.MethodGet, "/api/clients/acme/metrics/crm", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type memAggregates []models.DailyAggregate

func (m memAggregates) ListDailyAggregates(_ context.Context, clientID string, from, to time.Time) ([]models.DailyAggregate, error) {
	out := []models.DailyAggregate{}
	for _, r := range m {
		if r.ClientID == clientID && !r.Date.Before(from) && !r.Date.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func trafficRouter(t *testing.T, rows memAggregates) *gin.Engine {
	mClock := quartz.NewMock(t)
	mClock.Set(time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC))
	h := NewTrafficHandlers(report.NewService(rows), mClock, zap.NewNop())
	r := gin.New()
	g := r.Group("/api/clients/:clientId/traffic")
	g.GET("/daily", h.GetDaily)
	g.GET("/summary", h.GetSummary)
	g.GET("/monthly", h.GetMonthly)
	return r
}

func TestTrafficEndpoints(t *testing.T) {
	rows := memAggregates{
		{ClientID: "acme", Date: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), PageViews: 10, UniqueVisitors: 5},
		{ClientID: "acme", Date: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), PageViews: 15, UniqueVisitors: 6},
		{ClientID: "acme", Date: time.Date(2026, 3, 19, 0, 0, 0, 0, time.UTC), PageViews: 5, UniqueVisitors: 4},
	}
	r := trafficRouter(t, rows)

	w := serve(r, http.MethodGet, "/api/clients/acme/traffic/daily?start=2026-03-01&end=2026-03-31", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var daily struct {
		Days []models.DailyAggregate `json:"days"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &daily))
	assert.Len(t, daily.Days, 2)

	w = serve(r, http.MethodGet, "/api/clients/acme/traffic/summary", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary models.TrafficSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.EqualValues(t, 20, summary.PageViews, "default window is the 30 days ending today")

	w = serve(r, http.MethodGet, "/api/clients/acme/traffic/monthly?month=2026-03", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cmp models.MonthlyComparison
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cmp))
	require.NotNil(t, cmp.PageViewsChange)
	assert.Equal(t, 100.0, *cmp.PageViewsChange)
}

func TestTrafficBadParams(t *testing.T) {
	r := trafficRouter(t, nil)

	for _, path := range []string{
		"/api/clients/acme/traffic/daily?start=03-01-2026",
		"/api/clients/acme/traffic/daily?start=2026-03-10&end=2026-03-01",
		"/api/clients/acme/traffic/monthly?month=March",
	} {
		w := serve(r, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

type fakeBackfiller struct {
	date time.Time
	err  error
}

func (f *fakeBackfiller) AggregateWithBackfill(_ context.Context, date time.Time) ([]rollup.Report, error) {
	f.date = date
	if f.err != nil {
		return nil, f.err
	}
	return []rollup.Report{{Date: date.AddDate(0, 0, -1)}, {Date: date, Processed: []string{"acme"}}}, nil
}

func TestTriggerRollup(t *testing.T) {
	mClock := quartz.NewMock(t)
	mClock.Set(time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC))
	b := &fakeBackfiller{}
	r := gin.New()
	r.POST("/api/rollup", NewRollupHandlers(b, mClock, zap.NewNop()).TriggerRollup)

	w := serve(r, http.MethodPost, "/api/rollup", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC), b.date)

	w = serve(r, http.MethodPost, "/api/rollup?date=2026-03-01", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), b.date)

	w = serve(r, http.MethodPost, "/api/rollup?date=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	b.err = errors.New("clickhouse down")
	w = serve(r, http.MethodPost, "/api/rollup", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
