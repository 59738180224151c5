// Package crm is a small REST client for the third-party CRM that holds each client's leads,
// calendar bookings and conversations.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"clientpulse/api/config"
	"clientpulse/api/models"
	"clientpulse/api/observability"
)

const (
	contactsPageSize = 100
	maxContactPages  = 50
	errorBodyLimit   = 512
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Operation  string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm %s: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewClient builds a client that authenticates every request with the configured bearer token.
func NewClient(cfg config.CRMConfig, logger *zap.Logger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		version: cfg.APIVersion,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &oauth2.Transport{Source: ts, Base: http.DefaultTransport},
		},
		logger:  logger,
		metrics: metrics,
	}
}

type contactDTO struct {
	ID          string    `json:"id"`
	ContactName string    `json:"contactName"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Source      string    `json:"source"`
	DateAdded   time.Time `json:"dateAdded"`
}

type contactsResponse struct {
	Contacts []contactDTO `json:"contacts"`
}

// ListLeads returns every contact of the location, following startAfterId pagination.
func (c *Client) ListLeads(ctx context.Context, locationID string) ([]models.Lead, error) {
	leads := []models.Lead{}
	startAfter := ""
	for page := 0; page < maxContactPages; page++ {
		q := url.Values{}
		q.Set("locationId", locationID)
		q.Set("limit", strconv.Itoa(contactsPageSize))
		if startAfter != "" {
			q.Set("startAfterId", startAfter)
		}

		var resp contactsResponse
		if err := c.get(ctx, "list_leads", "/contacts/", q, &resp); err != nil {
			return nil, err
		}
		for _, ct := range resp.Contacts {
			leads = append(leads, models.Lead{
				ID:        ct.ID,
				Name:      contactName(ct),
				Source:    ct.Source,
				CreatedAt: ct.DateAdded.UTC(),
			})
		}
		if len(resp.Contacts) < contactsPageSize {
			return leads, nil
		}
		startAfter = resp.Contacts[len(resp.Contacts)-1].ID
	}
	c.logger.Warn("Contact pagination limit reached",
		zap.String("location_id", locationID),
		zap.Int("leads", len(leads)))
	return leads, nil
}

func contactName(ct contactDTO) string {
	if ct.ContactName != "" {
		return ct.ContactName
	}
	return strings.TrimSpace(ct.FirstName + " " + ct.LastName)
}

type eventDTO struct {
	ID                string    `json:"id"`
	ContactID         string    `json:"contactId"`
	AppointmentStatus string    `json:"appointmentStatus"`
	StartTime         time.Time `json:"startTime"`
}

type eventsResponse struct {
	Events []eventDTO `json:"events"`
}

// ListBookings returns calendar events starting inside [start, end].
func (c *Client) ListBookings(ctx context.Context, locationID string, start, end time.Time) ([]models.BookingEvent, error) {
	q := url.Values{}
	q.Set("locationId", locationID)
	q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))

	var resp eventsResponse
	if err := c.get(ctx, "list_bookings", "/calendars/events", q, &resp); err != nil {
		return nil, err
	}
	bookings := make([]models.BookingEvent, 0, len(resp.Events))
	for _, ev := range resp.Events {
		bookings = append(bookings, models.BookingEvent{
			ID:        ev.ID,
			ContactID: ev.ContactID,
			Status:    ev.AppointmentStatus,
			StartTime: ev.StartTime.UTC(),
		})
	}
	return bookings, nil
}

type conversationsResponse struct {
	Conversations []models.Conversation `json:"conversations"`
}

// SearchConversations returns up to limit of the location's most recent conversations.
func (c *Client) SearchConversations(ctx context.Context, locationID string, limit int) ([]models.Conversation, error) {
	q := url.Values{}
	q.Set("locationId", locationID)
	q.Set("limit", strconv.Itoa(limit))

	var resp conversationsResponse
	if err := c.get(ctx, "search_conversations", "/conversations/search", q, &resp); err != nil {
		return nil, err
	}
	if resp.Conversations == nil {
		return []models.Conversation{}, nil
	}
	return resp.Conversations, nil
}

type messageDTO struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Direction      string    `json:"direction"`
	Source         string    `json:"source"`
	UserID         string    `json:"userId"`
	DateAdded      time.Time `json:"dateAdded"`
}

type messagesResponse struct {
	Messages struct {
		Messages []messageDTO `json:"messages"`
	} `json:"messages"`
}

// automatedSources are message sources that indicate no person typed the reply.
var automatedSources = map[string]bool{
	"workflow":     true,
	"campaign":     true,
	"bulk_actions": true,
	"automation":   true,
	"bot":          true,
}

// GetMessages returns one page of messages of a conversation.
func (c *Client) GetMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var resp messagesResponse
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.get(ctx, "get_messages", path, q, &resp); err != nil {
		return nil, err
	}
	messages := make([]models.Message, 0, len(resp.Messages.Messages))
	for _, m := range resp.Messages.Messages {
		convID := m.ConversationID
		if convID == "" {
			convID = conversationID
		}
		messages = append(messages, models.Message{
			ID:             m.ID,
			ConversationID: convID,
			Direction:      models.MessageDirection(strings.ToLower(m.Direction)),
			Responder:      responderKind(m),
			CreatedAt:      m.DateAdded.UTC(),
		})
	}
	return messages, nil
}

func responderKind(m messageDTO) models.ResponderKind {
	if m.UserID == "" || automatedSources[strings.ToLower(m.Source)] {
		return models.ResponderAutomated
	}
	return models.ResponderHuman
}

func (c *Client) get(ctx context.Context, op, path string, q url.Values, out any) error {
	c.metrics.CRMRequest(op)
	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.metrics.CRMError(op)
		return fmt.Errorf("crm %s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Version", c.version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.CRMError(op)
		return fmt.Errorf("crm %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		c.metrics.CRMError(op)
		return &APIError{StatusCode: resp.StatusCode, Operation: op, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.CRMError(op)
		return fmt.Errorf("crm %s: decode response: %w", op, err)
	}
	return nil
}
