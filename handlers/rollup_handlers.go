package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clientpulse/api/rollup"
	"clientpulse/api/utils"
)

type Backfiller interface {
	AggregateWithBackfill(ctx context.Context, date time.Time) ([]rollup.Report, error)
}

type RollupHandlers struct {
	aggregator Backfiller
	clock      quartz.Clock
	logger     *zap.Logger
}

func NewRollupHandlers(aggregator Backfiller, clock quartz.Clock, logger *zap.Logger) *RollupHandlers {
	return &RollupHandlers{aggregator: aggregator, clock: clock, logger: logger}
}

// TriggerRollup runs the rollup for ?date (default today, UTC) and the day before it.
func (h *RollupHandlers) TriggerRollup(c *gin.Context) {
	date, err := utils.ParseDate(c.Query("date"), h.clock.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Minute)
	defer cancel()

	reports, err := h.aggregator.AggregateWithBackfill(ctx, date)
	if err != nil {
		h.logger.Error("Rollup failed", zap.String("date", date.Format(utils.DateLayout)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Rollup failed", "reports": reports})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}
