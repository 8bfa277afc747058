package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEndpoint is a registered subscriber for domain events.
type WebhookEndpoint struct {
	ID  string `gorm:"column:id;primary_key;type:uuid" json:"id"`
	URL string `gorm:"column:url;type:varchar(512);not null" json:"url"`
	// EventTypes lists the subscribed event types as a JSON string array.
	EventTypes datatypes.JSONSlice[string] `gorm:"column:event_types;type:jsonb" json:"event_types"`
	// Headers are sent verbatim on every dispatch to this endpoint.
	Headers datatypes.JSONMap `gorm:"column:headers;type:jsonb;default:'{}'" json:"headers"`
	Active  bool              `gorm:"column:active;not null;default:true" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WebhookEndpoint) TableName() string { return "webhook_endpoint" }

func (w *WebhookEndpoint) SubscribedTo(eventType OutboxEventType) bool {
	if w == nil {
		return false
	}
	for _, t := range w.EventTypes {
		if t == string(eventType) {
			return true
		}
	}
	return false
}
