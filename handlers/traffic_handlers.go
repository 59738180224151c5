package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clientpulse/api/models"
	"clientpulse/api/report"
	"clientpulse/api/utils"
)

// defaultRangeDays is the window used when a traffic query omits start.
const defaultRangeDays = 30

type TrafficReporter interface {
	Daily(ctx context.Context, clientID string, from, to time.Time) ([]models.DailyAggregate, error)
	Summary(ctx context.Context, clientID string, from, to time.Time) (models.TrafficSummary, error)
	MonthOverMonth(ctx context.Context, clientID string, month time.Time) (models.MonthlyComparison, error)
}

type TrafficHandlers struct {
	reports TrafficReporter
	clock   quartz.Clock
	logger  *zap.Logger
}

func NewTrafficHandlers(reports TrafficReporter, clock quartz.Clock, logger *zap.Logger) *TrafficHandlers {
	return &TrafficHandlers{reports: reports, clock: clock, logger: logger}
}

func (h *TrafficHandlers) GetDaily(c *gin.Context) {
	clientID := c.Param("clientId")
	start, end, ok := h.parseRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	rows, err := h.reports.Daily(ctx, clientID, start, end)
	if err != nil {
		h.respondError(c, "daily traffic", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"clientId": clientID,
		"start":    start.Format(utils.DateLayout),
		"end":      end.Format(utils.DateLayout),
		"days":     rows,
	})
}

func (h *TrafficHandlers) GetSummary(c *gin.Context) {
	clientID := c.Param("clientId")
	start, end, ok := h.parseRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	summary, err := h.reports.Summary(ctx, clientID, start, end)
	if err != nil {
		h.respondError(c, "traffic summary", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *TrafficHandlers) GetMonthly(c *gin.Context) {
	clientID := c.Param("clientId")
	month, err := utils.ParseMonth(c.Query("month"), h.clock.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	cmp, err := h.reports.MonthOverMonth(ctx, clientID, month)
	if err != nil {
		h.respondError(c, "monthly comparison", err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

// parseRange reads ?start and ?end as YYYY-MM-DD. end defaults to today and start to
// defaultRangeDays-1 days before end.
func (h *TrafficHandlers) parseRange(c *gin.Context) (time.Time, time.Time, bool) {
	now := h.clock.Now()
	end, err := utils.ParseDate(c.Query("end"), now)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return time.Time{}, time.Time{}, false
	}

	start := end.AddDate(0, 0, -(defaultRangeDays - 1))
	if raw := c.Query("start"); raw != "" {
		start, err = utils.ParseDate(raw, now)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return time.Time{}, time.Time{}, false
		}
	}
	return start, end, true
}

func (h *TrafficHandlers) respondError(c *gin.Context, what string, err error) {
	if errors.Is(err, report.ErrInvalidRange) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Error("Error reading "+what, zap.String("client_id", c.Param("clientId")), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve " + what})
}
