package leadmetrics

import (
	"sort"
	"time"

	"clientpulse/api/models"
)

const (
	fastThreshold = 5 * time.Minute
	slowThreshold = 30 * time.Minute
)

// Response is the first outbound reply a lead received.
type Response struct {
	LeadID    string
	Latency   time.Duration
	Responder models.ResponderKind
}

// FirstOutbound returns the earliest outbound message, or false when there is none.
func FirstOutbound(messages []models.Message) (models.Message, bool) {
	var (
		first models.Message
		found bool
	)
	for _, m := range messages {
		if m.Direction != models.DirectionOutbound {
			continue
		}
		if !found || m.CreatedAt.Before(first.CreatedAt) {
			first, found = m, true
		}
	}
	return first, found
}

// MeasureResponse computes a lead's response latency. Replies timestamped before the lead
// was created count as instant.
func MeasureResponse(lead models.Lead, reply models.Message) Response {
	latency := reply.CreatedAt.Sub(lead.CreatedAt)
	if latency < 0 {
		latency = 0
	}
	return Response{LeadID: lead.ID, Latency: latency, Responder: reply.Responder}
}

// BuildSpeedToLead summarises measured responses. With nothing measured it returns the
// empty value with a green rating.
func BuildSpeedToLead(responses []Response) models.SpeedToLead {
	if len(responses) == 0 {
		return emptySpeedToLead()
	}

	stl := models.SpeedToLead{TotalMeasured: len(responses)}
	minutes := make([]float64, 0, len(responses))
	var sum float64
	for _, r := range responses {
		switch r.Responder {
		case models.ResponderHuman:
			stl.HumanResponses++
		case models.ResponderAutomated:
			stl.AutomatedResponses++
		default:
			// Unset or unknown kinds count as automated, like CRM replies without a user.
			stl.AutomatedResponses++
		}

		switch {
		case r.Latency < fastThreshold:
			stl.Distribution.Under5Min++
		case r.Latency < slowThreshold:
			stl.Distribution.From5To30Min++
		default:
			stl.Distribution.Over30Min++
		}

		m := r.Latency.Minutes()
		minutes = append(minutes, m)
		sum += m
	}

	avg := sum / float64(len(minutes))
	stl.AverageResponseMinutes = round1(avg)
	stl.MedianResponseMinutes = round1(median(minutes))
	stl.PerformanceRating = rate(avg)
	return stl
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func rate(avgMinutes float64) models.PerformanceRating {
	switch {
	case avgMinutes < fastThreshold.Minutes():
		return models.RatingGreen
	case avgMinutes < slowThreshold.Minutes():
		return models.RatingYellow
	default:
		return models.RatingRed
	}
}

func emptySpeedToLead() models.SpeedToLead {
	return models.SpeedToLead{PerformanceRating: models.RatingGreen}
}

// EmptyBundle is returned when a client has no CRM link or when there is nothing cached
// to fall back to.
func EmptyBundle() models.MetricsBundle {
	return models.MetricsBundle{
		ConversionFunnel: models.ConversionFunnel{Benchmark: benchmark},
		SpeedToLead:      emptySpeedToLead(),
	}
}
