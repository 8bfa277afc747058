package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/parsalearn/enrollpay/internal/app/service/outbox"
	"github.com/parsalearn/enrollpay/internal/models"
	"github.com/parsalearn/enrollpay/pkg/logctx"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// RejectedPayload is the outbox payload for enrollment.rejected events.
type RejectedPayload struct {
	EnrollmentID string       `json:"enrollment_id"`
	Buyer        models.Buyer `json:"buyer"`
	Note         string       `json:"note,omitempty"`
	DecidedBy    string       `json:"decided_by,omitempty"`
	RejectedAt   time.Time    `json:"rejected_at"`
}

// Decide applies an operator decision to a manual-payment enrollment. This
// is an audited bypass of gateway verification: approve completes the
// enrollment and fires the same side effects as a verified payment; reject
// records the refusal and fires a rejection webhook without touching status.
func (s *Service) Decide(ctx context.Context, enrollmentID string, decision Decision, note, operator string) error {
	log := logctx.FromCtx(ctx, s.log)

	var enr models.Enrollment
	if err := s.db.WithContext(ctx).Where("id = ?", enrollmentID).First(&enr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: enrollment %s", ErrNotFound, enrollmentID)
		}
		return err
	}
	if enr.PaymentMethod != models.PaymentMethodManual {
		return fmt.Errorf("%w: enrollment %s is not a manual payment", ErrInvalidDecision, enrollmentID)
	}
	if enr.Status == models.EnrollmentStatusCompleted {
		return fmt.Errorf("%w: enrollment %s is already completed", ErrInvalidDecision, enrollmentID)
	}

	now := time.Now().UTC()
	audit := map[string]any{
		"manual_note": note,
		"decided_by":  operator,
		"decided_at":  now,
	}

	switch decision {
	case DecisionApprove:
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			updates := map[string]any{
				"manual_payment_status": models.ManualPaymentStatusApproved,
				"status":                models.EnrollmentStatusCompleted,
			}
			for k, v := range audit {
				updates[k] = v
			}
			res := tx.Model(&models.Enrollment{}).
				Where("id = ? AND status <> ?", enr.ID, models.EnrollmentStatusCompleted).
				Updates(updates)
			if res.Error != nil {
				return fmt.Errorf("approve enrollment: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: enrollment %s is already completed", ErrInvalidDecision, enr.ID)
			}
			log.Infow("manual payment approved",
				"enrollment_id", enr.ID, "operator", operator)
			return s.outbox.EmitIfNotExists(ctx, tx, outbox.Event{
				EnrollmentID: enr.ID,
				EventType:    models.OutboxEventEnrollmentCompleted,
				Data: map[string]any{
					"enrollment_id":  enr.ID,
					"course_id":      enr.CourseID,
					"test_id":        enr.TestID,
					"buyer":          enr.Buyer,
					"amount":         enr.Amount,
					"payment_method": enr.PaymentMethod,
					"note":           note,
					"decided_by":     operator,
					"completed_at":   now,
				},
			})
		})
	case DecisionReject:
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			updates := map[string]any{
				"manual_payment_status": models.ManualPaymentStatusRejected,
			}
			for k, v := range audit {
				updates[k] = v
			}
			if err := tx.Model(&models.Enrollment{}).
				Where("id = ?", enr.ID).
				Updates(updates).Error; err != nil {
				return fmt.Errorf("reject enrollment: %w", err)
			}
			log.Infow("manual payment rejected",
				"enrollment_id", enr.ID, "operator", operator)
			return s.outbox.EmitIfNotExists(ctx, tx, outbox.Event{
				EnrollmentID: enr.ID,
				EventType:    models.OutboxEventEnrollmentRejected,
				Data: RejectedPayload{
					EnrollmentID: enr.ID,
					Buyer:        enr.Buyer,
					Note:         note,
					DecidedBy:    operator,
					RejectedAt:   now,
				},
			})
		})
	default:
		return fmt.Errorf("%w: unknown decision %q", ErrInvalidDecision, decision)
	}
}

// ScanEnrollments implements the paginated admin listing with filters.
func (s *Service) ScanEnrollments(ctx context.Context, req *ScanEnrollmentsRequest) (*ScanEnrollmentsResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.Enrollment{})
	if len(req.Filters) > 0 {
		tx = tx.Where(filtersAnd{filters: req.Filters})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count enrollments: %w", err)
	}

	var rows []*models.Enrollment
	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if req.SortBy != "" {
		q = q.Order(orderBy(req.SortBy, req.SortOrder))
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}

	return &ScanEnrollmentsResponse{Items: rows, Total: total}, nil
}
