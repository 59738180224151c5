package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clientpulse/api/cache"
	"clientpulse/api/leadmetrics"
	"clientpulse/api/models"
)

type MetricsQuerier interface {
	Query(ctx context.Context, clientID string, period models.Period) (cache.Result, error)
}

type MetricsHandlers struct {
	metrics MetricsQuerier
	logger  *zap.Logger
}

func NewMetricsHandlers(metrics MetricsQuerier, logger *zap.Logger) *MetricsHandlers {
	return &MetricsHandlers{metrics: metrics, logger: logger}
}

// GetCRMMetrics returns the conversion funnel and speed-to-lead bundle for ?period=7|30|90.
// CRM outages show up as a stale or empty cache status, never as an error response.
func (h *MetricsHandlers) GetCRMMetrics(c *gin.Context) {
	clientID := c.Param("clientId")
	period, err := models.ParsePeriod(c.Query("period"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Cold computations fan out to the CRM.
	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	res, err := h.metrics.Query(ctx, clientID, period)
	if err != nil {
		if errors.Is(err, leadmetrics.ErrClientNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
			return
		}
		h.logger.Error("Error querying CRM metrics", zap.String("client_id", clientID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"clientId":         clientID,
		"periodDays":       period.Days,
		"conversionFunnel": res.Bundle.ConversionFunnel,
		"speedToLead":      res.Bundle.SpeedToLead,
		"cache": gin.H{
			"status":     res.Status,
			"snapshotAt": res.SnapshotAt,
		},
	})
}
