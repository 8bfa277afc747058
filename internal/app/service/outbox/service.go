package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/parsalearn/enrollpay/internal/models"
	"github.com/parsalearn/enrollpay/pkg/logctx"
	"github.com/parsalearn/enrollpay/pkg/tool"
)

// Service writes durable side-effect markers. Emit must be called inside the
// same gorm transaction as the state change it belongs to, so a crash after
// commit never loses a notification.
type Service struct {
	log *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) *Service { return &Service{log: log} }

type Event struct {
	EnrollmentID string
	EventType    models.OutboxEventType
	Data         any
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	row := models.OutboxEvent{
		ID:           tool.GenerateUUIDV7(),
		EnrollmentID: event.EnrollmentID,
		EventType:    event.EventType,
		Payload:      datatypes.JSON(payload),
		Status:       models.OutboxEventStatusPending,
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("outbox event queued",
		"enrollment_id", event.EnrollmentID, "event_type", event.EventType)
	return nil
}

// EmitIfNotExists inserts the event unless one already exists for the same
// enrollment and type. The unique index backstops concurrent emitters.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	var count int64
	if err := tx.Model(&models.OutboxEvent{}).
		Where("enrollment_id = ? AND event_type = ?", event.EnrollmentID, event.EventType).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	row := models.OutboxEvent{
		ID:           tool.GenerateUUIDV7(),
		EnrollmentID: event.EnrollmentID,
		EventType:    event.EventType,
		Payload:      datatypes.JSON(payload),
		Status:       models.OutboxEventStatusPending,
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "enrollment_id"}, {Name: "event_type"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("insert outbox event: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		logctx.FromCtx(ctx, s.log).Infow("outbox event queued",
			"enrollment_id", event.EnrollmentID, "event_type", event.EventType)
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(New),
)
