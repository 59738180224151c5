package models

import "time"

// Client is a tenant. CRMLocationID is nil when no CRM account is linked.
type Client struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CRMLocationID *string   `json:"crmLocationId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// HasCRM reports whether the client has a usable CRM link.
func (c Client) HasCRM() bool {
	return c.CRMLocationID != nil && *c.CRMLocationID != ""
}
