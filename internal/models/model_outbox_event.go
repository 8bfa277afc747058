package models

import (
	"time"

	"gorm.io/datatypes"
)

type OutboxEventType string

const (
	OutboxEventEnrollmentCompleted OutboxEventType = "enrollment.completed"
	OutboxEventEnrollmentRejected  OutboxEventType = "enrollment.rejected"
)

type OutboxEventStatus string

const (
	OutboxEventStatusPending OutboxEventStatus = "pending"
	OutboxEventStatusSent    OutboxEventStatus = "sent"
	OutboxEventStatusFailed  OutboxEventStatus = "failed"
)

// OutboxEvent is a durable side-effect marker written in the same database
// transaction as the enrollment state change. The dispatcher drains pending
// rows; the unique index keeps at most one event per enrollment and type.
type OutboxEvent struct {
	ID           string            `gorm:"column:id;primary_key;type:uuid" json:"id"`
	EnrollmentID string            `gorm:"column:enrollment_id;type:uuid;not null;uniqueIndex:ux_outbox_enrollment_event,priority:1" json:"enrollment_id"`
	EventType    OutboxEventType   `gorm:"column:event_type;type:varchar(64);not null;uniqueIndex:ux_outbox_enrollment_event,priority:2" json:"event_type"`
	Payload      datatypes.JSON    `gorm:"column:payload;type:jsonb" json:"payload"`
	Status       OutboxEventStatus `gorm:"column:status;type:varchar(16);not null;default:'pending';index" json:"status"`
	Attempts     int               `gorm:"column:attempts;not null;default:0" json:"attempts"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (OutboxEvent) TableName() string { return "outbox_event" }
