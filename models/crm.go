package models

import (
	"strings"
	"time"
)

// MessageDirection tells whether a message came from the lead or from the business.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// ResponderKind tells whether an outbound message was sent by automation or by a person.
type ResponderKind string

const (
	ResponderAutomated ResponderKind = "automated"
	ResponderHuman     ResponderKind = "human"
)

// Lead is a CRM contact created inside a reporting period.
type Lead struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// BookingEvent is a calendar appointment attached to a lead.
type BookingEvent struct {
	ID        string    `json:"id"`
	ContactID string    `json:"contactId"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"startTime"`
}

// Cancelled reports whether the booking was cancelled and so must not count as booked.
func (b BookingEvent) Cancelled() bool {
	return strings.EqualFold(b.Status, "cancelled") || strings.EqualFold(b.Status, "canceled")
}

// Conversation is a message thread between the business and one lead.
type Conversation struct {
	ID        string `json:"id"`
	ContactID string `json:"contactId"`
}

// Message is a single entry of a conversation.
type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversationId"`
	Direction      MessageDirection `json:"direction"`
	Responder      ResponderKind    `json:"responder"`
	CreatedAt      time.Time        `json:"createdAt"`
}
