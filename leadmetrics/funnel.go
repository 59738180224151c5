package leadmetrics

import (
	"math"
	"time"

	"clientpulse/api/models"
)

// Industry conversion range shown next to every funnel.
var benchmark = models.BenchmarkBand{Low: 30, High: 50}

// periodLeads keeps leads created inside [start, end], both ends inclusive.
func periodLeads(leads []models.Lead, start, end time.Time) []models.Lead {
	out := make([]models.Lead, 0, len(leads))
	for _, l := range leads {
		if l.CreatedAt.Before(start) || l.CreatedAt.After(end) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// BuildFunnel counts responded and booked leads among the period's leads. Counts are taken by
// set membership over lead IDs, so responded and booked can never exceed the lead total.
func BuildFunnel(leads []models.Lead, bookings []models.BookingEvent, conversations []models.Conversation) models.ConversionFunnel {
	contacted := make(map[string]struct{}, len(conversations))
	for _, c := range conversations {
		contacted[c.ContactID] = struct{}{}
	}
	booked := make(map[string]struct{}, len(bookings))
	for _, b := range bookings {
		if b.Cancelled() {
			continue
		}
		booked[b.ContactID] = struct{}{}
	}

	funnel := models.ConversionFunnel{TotalLeads: len(leads), Benchmark: benchmark}
	for _, l := range leads {
		if _, ok := contacted[l.ID]; ok {
			funnel.RespondedLeads++
		}
		if _, ok := booked[l.ID]; ok {
			funnel.BookedConsultations++
		}
	}
	if funnel.TotalLeads > 0 {
		funnel.ConversionRate = round1(float64(funnel.BookedConsultations) / float64(funnel.TotalLeads) * 100)
	}
	return funnel
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
