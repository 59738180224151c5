package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"clientpulse/api/models"
	"clientpulse/api/observability"
)

// MaxTrackBatch bounds the number of events accepted in one request.
const MaxTrackBatch = 500

type EventWriter interface {
	InsertEvents(ctx context.Context, events []models.RawEvent) error
}

type TrackHandlers struct {
	events  EventWriter
	clock   quartz.Clock
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewTrackHandlers(events EventWriter, clock quartz.Clock, logger *zap.Logger, metrics *observability.Metrics) *TrackHandlers {
	return &TrackHandlers{events: events, clock: clock, logger: logger, metrics: metrics}
}

// TrackEvent ingests one page view object or an array of them.
func (h *TrackHandlers) TrackEvent(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	requests, err := decodeTrackRequests(body)
	if err != nil {
		h.logger.Debug("Error binding tracking JSON", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(requests) == 0 {
		c.Status(http.StatusAccepted)
		return
	}
	if len(requests) > MaxTrackBatch {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Too many events in one request"})
		return
	}

	headerUA := strings.TrimSpace(c.Request.UserAgent())
	now := h.clock.Now().UTC()
	events := make([]models.RawEvent, 0, len(requests))
	for i, req := range requests {
		if err := binding.Validator.ValidateStruct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "clientId, pageUrl and sessionId are required",
				"index":   i,
				"details": err.Error(),
			})
			return
		}
		if !req.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "clientId, pageUrl and sessionId are required",
				"index": i,
			})
			return
		}

		ua := models.OptionalString(req.UserAgent)
		if ua == nil && headerUA != "" {
			ua = &headerUA
		}
		events = append(events, models.RawEvent{
			EventID:   uuid.New().String(),
			ClientID:  strings.TrimSpace(req.ClientID),
			PageURL:   strings.TrimSpace(req.PageURL),
			Referrer:  models.OptionalString(req.Referrer),
			UserAgent: ua,
			SessionID: strings.TrimSpace(req.SessionID),
			Device:    models.ClassifyDevice(ua),
			CreatedAt: now,
		})
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if err := h.events.InsertEvents(ctx, events); err != nil {
		h.logger.Error("Error inserting visit events", zap.Int("count", len(events)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record events"})
		return
	}
	h.metrics.EventsTracked(len(events))

	c.JSON(http.StatusAccepted, gin.H{"accepted": len(events)})
}

func decodeTrackRequests(body []byte) ([]models.TrackRequest, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []models.TrackRequest
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, err
		}
		return batch, nil
	}
	var single models.TrackRequest
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, err
	}
	return []models.TrackRequest{single}, nil
}
