// api/models/event.go
package models

import (
	"regexp"
	"strings"
	"time"
)

// DeviceClass is the coarse device bucket derived from a visitor's user agent.
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
)

var (
	tabletPattern = regexp.MustCompile(`(?i)tablet|ipad`)
	mobilePattern = regexp.MustCompile(`(?i)mobile|iphone|android.*mobile`)
)

// ClassifyDevice maps a user-agent string to a device class. Tablet rules win over mobile ones,
// so an iPad reporting "Mobile" is still a tablet. A nil user agent is a desktop.
func ClassifyDevice(userAgent *string) DeviceClass {
	if userAgent == nil {
		return DeviceDesktop
	}
	switch {
	case tabletPattern.MatchString(*userAgent):
		return DeviceTablet
	case mobilePattern.MatchString(*userAgent):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

// RawEvent is one page load recorded for a client. Events are never mutated after insert.
type RawEvent struct {
	EventID   string      `json:"eventId"`
	ClientID  string      `json:"clientId"`
	PageURL   string      `json:"pageUrl"`
	Referrer  *string     `json:"referrer,omitempty"`
	UserAgent *string     `json:"userAgent,omitempty"`
	SessionID string      `json:"sessionId"`
	Device    DeviceClass `json:"device"`
	CreatedAt time.Time   `json:"createdAt"`
}

// TrackRequest is the ingestion payload sent by the tracking snippet.
type TrackRequest struct {
	ClientID  string  `json:"clientId" binding:"required"`
	PageURL   string  `json:"pageUrl" binding:"required"`
	Referrer  *string `json:"referrer"`
	UserAgent *string `json:"userAgent"`
	SessionID string  `json:"sessionId" binding:"required"`
}

// Valid reports whether the required fields carry something other than whitespace.
// Presence itself is checked by the binding tags.
func (r TrackRequest) Valid() bool {
	return strings.TrimSpace(r.ClientID) != "" &&
		strings.TrimSpace(r.PageURL) != "" &&
		strings.TrimSpace(r.SessionID) != ""
}

// OptionalString turns blank strings into nil so that "absent" has a single representation.
func OptionalString(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
