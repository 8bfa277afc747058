package models

import (
	"time"

	"gorm.io/datatypes"
)

type DispatchChannel string

const (
	DispatchChannelWebhook DispatchChannel = "webhook"
	DispatchChannelEmail   DispatchChannel = "email"
	DispatchChannelLicense DispatchChannel = "license"
)

// DispatchLog records every side-effect delivery attempt, success or failure.
// Append-only; rows are kept for manual replay and debugging.
type DispatchLog struct {
	ID           string          `gorm:"column:id;primary_key;type:uuid" json:"id"`
	EnrollmentID string          `gorm:"column:enrollment_id;type:uuid;not null;index:idx_dispatch_enrollment_event,priority:1" json:"enrollment_id"`
	EventType    OutboxEventType `gorm:"column:event_type;type:varchar(64);not null;index:idx_dispatch_enrollment_event,priority:2" json:"event_type"`
	Channel      DispatchChannel `gorm:"column:channel;type:varchar(16);not null" json:"channel"`
	// Target is the webhook URL, recipient address or license course id.
	Target     string          `gorm:"column:target;type:varchar(512)" json:"target"`
	StatusCode int             `gorm:"column:status_code" json:"status_code"`
	Response   *datatypes.JSON `gorm:"column:response;type:jsonb" json:"response"`
	Error      *string         `gorm:"column:error;type:text" json:"error"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (DispatchLog) TableName() string { return "dispatch_log" }

func (l *DispatchLog) Succeeded() bool {
	return l != nil && l.Error == nil
}
