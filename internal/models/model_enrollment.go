package models

import (
	"time"
)

type PaymentMethod string

const (
	PaymentMethodGateway PaymentMethod = "gateway"
	PaymentMethodManual  PaymentMethod = "manual"
)

type EnrollmentStatus string

const (
	EnrollmentStatusPending   EnrollmentStatus = "pending"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusFailed    EnrollmentStatus = "failed"
)

type ManualPaymentStatus string

const (
	ManualPaymentStatusNone     ManualPaymentStatus = "none"
	ManualPaymentStatusApproved ManualPaymentStatus = "approved"
	ManualPaymentStatusRejected ManualPaymentStatus = "rejected"
)

// Buyer holds the contact fields captured at request time. Immutable once set.
type Buyer struct {
	Name        string `gorm:"column:buyer_name;type:varchar(128);not null" json:"name"`
	Email       string `gorm:"column:buyer_email;type:varchar(128)" json:"email"`
	Phone       string `gorm:"column:buyer_phone;type:varchar(32);not null" json:"phone"`
	CountryCode string `gorm:"column:buyer_country_code;type:varchar(8)" json:"country_code"`
}

// Enrollment is one purchase attempt for a course or a standalone test.
// Rows are never deleted; a failed or expired attempt stays as an audit record.
type Enrollment struct {
	ID       string  `gorm:"column:id;primary_key;type:uuid" json:"id"`
	CourseID *string `gorm:"column:course_id;type:uuid;index" json:"course_id"`
	TestID   *string `gorm:"column:test_id;type:uuid;index" json:"test_id"`

	Buyer Buyer `gorm:"embedded" json:"buyer"`

	// Amount in gateway minor units, fixed at creation. Verify replays this
	// exact value; any divergence is treated as tampering.
	Amount int64 `gorm:"column:amount;type:bigint;not null" json:"amount"`

	PaymentMethod PaymentMethod    `gorm:"column:payment_method;type:varchar(16);not null;index:idx_method_status,priority:1" json:"payment_method"`
	Status        EnrollmentStatus `gorm:"column:status;type:varchar(16);not null;index:idx_method_status,priority:2" json:"status"`

	// GatewayAuthority is set once a payment attempt started.
	GatewayAuthority *string `gorm:"column:gateway_authority;type:varchar(64);index" json:"gateway_authority"`
	// GatewayReferenceID is set only on confirmed success; its presence is
	// the authoritative proof of payment.
	GatewayReferenceID *string `gorm:"column:gateway_reference_id;type:varchar(64);uniqueIndex" json:"gateway_reference_id"`

	ManualPaymentStatus ManualPaymentStatus `gorm:"column:manual_payment_status;type:varchar(16);not null;default:'none'" json:"manual_payment_status"`
	ManualNote          *string             `gorm:"column:manual_note;type:text" json:"manual_note"`
	DecidedBy           *string             `gorm:"column:decided_by;type:varchar(64)" json:"decided_by"`
	DecidedAt           *time.Time          `gorm:"column:decided_at" json:"decided_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Enrollment) TableName() string { return "enrollment" }

func (e *Enrollment) IsTerminal() bool {
	return e != nil && e.Status != EnrollmentStatusPending
}

// Purchasable returns the id of whichever item this enrollment is for.
func (e *Enrollment) Purchasable() string {
	if e == nil {
		return ""
	}
	if e.CourseID != nil {
		return *e.CourseID
	}
	if e.TestID != nil {
		return *e.TestID
	}
	return ""
}
