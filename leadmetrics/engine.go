// Package leadmetrics turns a client's CRM leads, bookings and conversations into a
// conversion funnel and a speed-to-lead distribution.
package leadmetrics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"clientpulse/api/models"
)

// CRMClient is the subset of the CRM API the engine reads.
type CRMClient interface {
	ListLeads(ctx context.Context, locationID string) ([]models.Lead, error)
	ListBookings(ctx context.Context, locationID string, start, end time.Time) ([]models.BookingEvent, error)
	SearchConversations(ctx context.Context, locationID string, limit int) ([]models.Conversation, error)
	GetMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
}

type EngineOptions struct {
	ConversationLimit int
	MessagePageSize   int
	BatchSize         int
}

type Engine struct {
	crm    CRMClient
	opts   EngineOptions
	logger *zap.Logger
}

func NewEngine(crm CRMClient, opts EngineOptions, logger *zap.Logger) *Engine {
	if opts.ConversationLimit <= 0 {
		opts.ConversationLimit = 100
	}
	if opts.MessagePageSize <= 0 {
		opts.MessagePageSize = 50
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{crm: crm, opts: opts, logger: logger}
}

// ComputeMetrics fetches the location's CRM data and builds the bundle for [start, end].
// Failing to list leads, bookings or conversations fails the whole computation; failing to
// read one conversation's messages only drops that conversation.
func (e *Engine) ComputeMetrics(ctx context.Context, locationID string, start, end time.Time) (models.MetricsBundle, error) {
	var (
		leads         []models.Lead
		bookings      []models.BookingEvent
		conversations []models.Conversation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		leads, err = e.crm.ListLeads(gctx, locationID)
		if err != nil {
			return fmt.Errorf("list leads: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		bookings, err = e.crm.ListBookings(gctx, locationID, start, end)
		if err != nil {
			return fmt.Errorf("list bookings: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		conversations, err = e.crm.SearchConversations(gctx, locationID, e.opts.ConversationLimit)
		if err != nil {
			return fmt.Errorf("search conversations: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.MetricsBundle{}, err
	}

	leads = periodLeads(leads, start, end)
	leadConvs := conversationsOfLeads(conversations, leads)

	return models.MetricsBundle{
		ConversionFunnel: BuildFunnel(leads, bookings, leadConvs),
		SpeedToLead:      BuildSpeedToLead(e.measureResponses(ctx, leads, leadConvs)),
	}, nil
}

func conversationsOfLeads(conversations []models.Conversation, leads []models.Lead) []models.Conversation {
	ids := make(map[string]struct{}, len(leads))
	for _, l := range leads {
		ids[l.ID] = struct{}{}
	}
	out := make([]models.Conversation, 0, len(conversations))
	for _, c := range conversations {
		if _, ok := ids[c.ContactID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// measureResponses fetches messages for every conversation and keeps, per lead, the earliest
// outbound reply across all of that lead's conversations.
func (e *Engine) measureResponses(ctx context.Context, leads []models.Lead, conversations []models.Conversation) []Response {
	firsts := e.firstOutbounds(ctx, conversations)

	earliest := make(map[string]models.Message, len(leads))
	for i, conv := range conversations {
		msg := firsts[i]
		if msg == nil {
			continue
		}
		if cur, seen := earliest[conv.ContactID]; !seen || msg.CreatedAt.Before(cur.CreatedAt) {
			earliest[conv.ContactID] = *msg
		}
	}

	responses := make([]Response, 0, len(earliest))
	for _, l := range leads {
		if msg, ok := earliest[l.ID]; ok {
			responses = append(responses, MeasureResponse(l, msg))
		}
	}
	return responses
}

// firstOutbounds returns one slot per conversation holding its earliest outbound message,
// or nil when it has none. Conversations are fetched in sequential batches;
// the fetches of one batch run concurrently.
func (e *Engine) firstOutbounds(ctx context.Context, conversations []models.Conversation) []*models.Message {
	firsts := make([]*models.Message, len(conversations))
	size := e.opts.BatchSize

	for lo := 0; lo < len(conversations); lo += size {
		hi := min(lo+size, len(conversations))

		var g errgroup.Group
		g.SetLimit(size)
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				conv := conversations[i]
				msgs, err := e.crm.GetMessages(ctx, conv.ID, e.opts.MessagePageSize)
				if err != nil {
					e.logger.Warn("Failed to fetch conversation messages",
						zap.String("conversation_id", conv.ID),
						zap.Error(err))
					return nil
				}
				if first, ok := FirstOutbound(msgs); ok {
					firsts[i] = &first
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	return firsts
}
