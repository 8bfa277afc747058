package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	notificationlog "github.com/parsalearn/enrollpay/internal/app/service/notification_log"
	"github.com/parsalearn/enrollpay/internal/app/service/outbox"
	"github.com/parsalearn/enrollpay/internal/models"
	"github.com/parsalearn/enrollpay/internal/platform/zarinpal"
	"github.com/parsalearn/enrollpay/pkg/logctx"
	"github.com/parsalearn/enrollpay/pkg/metrics"
)

// VerifyResult is the terminal view of one verify call.
type VerifyResult struct {
	EnrollmentID string                  `json:"enrollment_id"`
	Status       models.EnrollmentStatus `json:"status"`
	ReferenceID  string                  `json:"reference_id,omitempty"`
	GatewayCode  int                     `json:"gateway_code,omitempty"`
	// AlreadyTerminal is true when this call found the enrollment in a
	// terminal state and mutated nothing.
	AlreadyTerminal bool `json:"already_terminal"`
}

// CompletedPayload is the outbox payload for enrollment.completed events.
type CompletedPayload struct {
	EnrollmentID  string               `json:"enrollment_id"`
	CourseID      *string              `json:"course_id,omitempty"`
	TestID        *string              `json:"test_id,omitempty"`
	Buyer         models.Buyer         `json:"buyer"`
	Amount        int64                `json:"amount"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	ReferenceID   string               `json:"reference_id,omitempty"`
	CompletedAt   time.Time            `json:"completed_at"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.SugaredLogger
	gateway  zarinpal.Client
	outbox   *outbox.Service
	notifSvc *notificationlog.Service
	metrics  *metrics.Prometheus
}

func NewService(db *gorm.DB, log *zap.SugaredLogger, gateway zarinpal.Client, ob *outbox.Service, notif *notificationlog.Service, m *metrics.Prometheus) *Service {
	return &Service{db: db, log: log, gateway: gateway, outbox: ob, notifSvc: notif, metrics: m}
}

// Verify confirms one payment attempt with the gateway and transitions the
// enrollment to a terminal state exactly once. Safe to call repeatedly: a
// repeated call on a completed enrollment returns the stored result without
// contacting the gateway or duplicating side effects.
func (s *Service) Verify(ctx context.Context, enrollmentID, claimedAuthority string) (res *VerifyResult, retErr error) {
	log := logctx.FromCtx(ctx, s.log)

	var traceID string
	if v, ok := ctx.Value("traceID").(string); ok {
		traceID = v
	}
	dataBytes, _ := json.Marshal(map[string]string{
		"enrollment_id": enrollmentID,
		"authority":     claimedAuthority,
	})
	s.notifSvc.Save(ctx, &models.PaymentNotificationLog{
		EnrollmentID:     enrollmentID,
		Authority:        claimedAuthority,
		TraceID:          traceID,
		NotificationTime: time.Now(),
		Data:             datatypes.JSON(dataBytes),
		Status:           models.PaymentNotificationLogStatusReceived,
	})
	defer func() {
		resMap := map[string]any{"result": res}
		if retErr != nil {
			resMap["error"] = retErr.Error()
		}
		resBytes, _ := json.Marshal(resMap)
		status := models.PaymentNotificationLogStatusHandled
		if retErr != nil {
			status = models.PaymentNotificationLogStatusHandleFailed
		}
		s.notifSvc.Save(ctx, &models.PaymentNotificationLog{
			EnrollmentID:     enrollmentID,
			Authority:        claimedAuthority,
			TraceID:          traceID,
			NotificationTime: time.Now(),
			Data:             datatypes.JSON(dataBytes),
			Result:           func() *datatypes.JSON { j := datatypes.JSON(resBytes); return &j }(),
			Status:           status,
		})
	}()

	enr, err := s.getEnrollment(ctx, enrollmentID)
	if err != nil {
		s.metrics.ObserveVerify("not_found")
		return nil, err
	}

	if enr.IsTerminal() {
		s.metrics.ObserveVerify("already_terminal")
		return terminalResult(enr), nil
	}

	if enr.GatewayAuthority == nil || *enr.GatewayAuthority != claimedAuthority {
		log.Errorw("authority mismatch on verify",
			"enrollment_id", enrollmentID, "claimed", claimedAuthority)
		s.metrics.ObserveVerify("tamper")
		return nil, fmt.Errorf("%w: enrollment %s", ErrTamper, enrollmentID)
	}

	// The amount sent to the gateway is the one captured at request time;
	// the gateway rejects the verify when it does not match the attempt.
	gwRes, err := s.gateway.VerifyPayment(ctx, &zarinpal.VerifyRequest{
		Amount:    enr.Amount,
		Authority: *enr.GatewayAuthority,
	})
	if err != nil {
		s.metrics.ObserveVerify("transient")
		return nil, fmt.Errorf("%w: %v", ErrTransientGateway, err)
	}
	if gwRes.Code == 0 {
		// Decoded but empty outcome; do not transition on ambiguity.
		s.metrics.ObserveVerify("transient")
		return nil, fmt.Errorf("%w: gateway returned no result code", ErrTransientGateway)
	}

	if !gwRes.Success() {
		if err := s.markFailed(ctx, enr.ID); err != nil {
			return nil, err
		}
		log.Infow("payment verify failed",
			"enrollment_id", enr.ID, "gateway_code", gwRes.Code)
		s.metrics.ObserveVerify("failed")
		return &VerifyResult{
			EnrollmentID: enr.ID,
			Status:       models.EnrollmentStatusFailed,
			GatewayCode:  gwRes.Code,
		}, nil
	}

	completed, err := s.complete(ctx, enr, gwRes.ReferenceID)
	if err != nil {
		return nil, err
	}
	if !completed {
		// Lost the race against a concurrent verify or the sweeper; the
		// winner already fired the side effects.
		fresh, err := s.getEnrollment(ctx, enrollmentID)
		if err != nil {
			return nil, err
		}
		s.metrics.ObserveVerify("already_terminal")
		return terminalResult(fresh), nil
	}

	log.Infow("payment verified",
		"enrollment_id", enr.ID, "reference_id", gwRes.ReferenceID, "gateway_code", gwRes.Code)
	s.metrics.ObserveVerify("completed")
	return &VerifyResult{
		EnrollmentID: enr.ID,
		Status:       models.EnrollmentStatusCompleted,
		ReferenceID:  gwRes.ReferenceID,
		GatewayCode:  gwRes.Code,
	}, nil
}

// Cancel marks a pending attempt failed without contacting the gateway. Used
// when the gateway callback reports the buyer cancelled payment.
func (s *Service) Cancel(ctx context.Context, enrollmentID, claimedAuthority string) (*VerifyResult, error) {
	enr, err := s.getEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enr.IsTerminal() {
		return terminalResult(enr), nil
	}
	if enr.GatewayAuthority == nil || *enr.GatewayAuthority != claimedAuthority {
		return nil, fmt.Errorf("%w: enrollment %s", ErrTamper, enrollmentID)
	}
	if err := s.markFailed(ctx, enr.ID); err != nil {
		return nil, err
	}
	s.metrics.ObserveVerify("cancelled")
	return &VerifyResult{EnrollmentID: enr.ID, Status: models.EnrollmentStatusFailed}, nil
}

// ForceComplete repairs an enrollment that already carries a gateway
// reference id but never committed the completed status. No gateway call is
// made; the reference id is authoritative proof of payment. Unlike a normal
// verify this also repairs rows stuck in failed, since the reference id
// outranks the recorded status.
func (s *Service) ForceComplete(ctx context.Context, enr *models.Enrollment) (bool, error) {
	if enr.GatewayReferenceID == nil {
		return false, fmt.Errorf("enrollment %s has no gateway reference id", enr.ID)
	}
	var won bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Enrollment{}).
			Where("id = ? AND status <> ?", enr.ID, models.EnrollmentStatusCompleted).
			Update("status", models.EnrollmentStatusCompleted)
		if res.Error != nil {
			return fmt.Errorf("force complete enrollment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			won = false
			return nil
		}
		won = true
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.Event{
			EnrollmentID: enr.ID,
			EventType:    models.OutboxEventEnrollmentCompleted,
			Data: CompletedPayload{
				EnrollmentID:  enr.ID,
				CourseID:      enr.CourseID,
				TestID:        enr.TestID,
				Buyer:         enr.Buyer,
				Amount:        enr.Amount,
				PaymentMethod: enr.PaymentMethod,
				ReferenceID:   *enr.GatewayReferenceID,
				CompletedAt:   time.Now().UTC(),
			},
		})
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

// complete performs the conditional pending→completed write and queues the
// completion side effects in the same transaction. Returns false when the
// enrollment was no longer pending.
func (s *Service) complete(ctx context.Context, enr *models.Enrollment, referenceID string) (bool, error) {
	var won bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Enrollment{}).
			Where("id = ? AND status = ?", enr.ID, models.EnrollmentStatusPending).
			Updates(map[string]any{
				"status":               models.EnrollmentStatusCompleted,
				"gateway_reference_id": referenceID,
			})
		if res.Error != nil {
			return fmt.Errorf("update enrollment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Row already left pending; the winner owns the side effects.
			won = false
			return nil
		}
		won = true
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.Event{
			EnrollmentID: enr.ID,
			EventType:    models.OutboxEventEnrollmentCompleted,
			Data: CompletedPayload{
				EnrollmentID:  enr.ID,
				CourseID:      enr.CourseID,
				TestID:        enr.TestID,
				Buyer:         enr.Buyer,
				Amount:        enr.Amount,
				PaymentMethod: enr.PaymentMethod,
				ReferenceID:   referenceID,
				CompletedAt:   time.Now().UTC(),
			},
		})
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

func (s *Service) markFailed(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("id = ? AND status = ?", id, models.EnrollmentStatusPending).
		Update("status", models.EnrollmentStatusFailed)
	if res.Error != nil {
		return fmt.Errorf("mark enrollment failed: %w", res.Error)
	}
	return nil
}

func (s *Service) getEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	var enr models.Enrollment
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&enr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &enr, nil
}

func terminalResult(enr *models.Enrollment) *VerifyResult {
	res := &VerifyResult{
		EnrollmentID:    enr.ID,
		Status:          enr.Status,
		AlreadyTerminal: true,
	}
	if enr.GatewayReferenceID != nil {
		res.ReferenceID = *enr.GatewayReferenceID
	}
	return res
}
