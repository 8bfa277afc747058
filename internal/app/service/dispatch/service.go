package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/parsalearn/enrollpay/internal/models"
	"github.com/parsalearn/enrollpay/internal/platform/spotplayer"
	"github.com/parsalearn/enrollpay/pkg/config"
	"github.com/parsalearn/enrollpay/pkg/logctx"
	"github.com/parsalearn/enrollpay/pkg/metrics"
	"github.com/parsalearn/enrollpay/pkg/tool"
)

// Envelope is the JSON body POSTed to webhook subscribers.
type Envelope struct {
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// completedData is the subset of the completion payload the dispatcher needs.
type completedData struct {
	EnrollmentID string       `json:"enrollment_id"`
	CourseID     *string      `json:"course_id"`
	Buyer        models.Buyer `json:"buyer"`
	ReferenceID  string       `json:"reference_id"`
}

// Service drains pending outbox events and delivers their side effects.
// Deliveries are independently retryable and never touch enrollment status;
// every attempt is recorded in dispatch_log for manual replay.
type Service struct {
	cfg        *config.Config
	db         *gorm.DB
	log        *zap.SugaredLogger
	license    spotplayer.Client
	mailer     Mailer
	metrics    *metrics.Prometheus
	httpClient *http.Client
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, license spotplayer.Client, mailer Mailer, m *metrics.Prometheus) *Service {
	timeout := cfg.Dispatch.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{
		cfg:        cfg,
		db:         db,
		log:        log,
		license:    license,
		mailer:     mailer,
		metrics:    m,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Drain processes every due outbox event once. Returns the number of events
// it attempted.
func (s *Service) Drain(ctx context.Context) (int, error) {
	maxAttempts := s.cfg.Dispatch.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	var events []*models.OutboxEvent
	err := s.db.WithContext(ctx).
		Where("(status = ? OR status = ?) AND attempts < ?",
			models.OutboxEventStatusPending, models.OutboxEventStatusFailed, maxAttempts).
		Order("created_at").
		Find(&events).Error
	if err != nil {
		return 0, fmt.Errorf("query outbox: %w", err)
	}

	log := logctx.FromCtx(ctx, s.log)
	for _, ev := range events {
		if err := s.dispatchEvent(ctx, ev); err != nil {
			log.Warnw("outbox event delivery incomplete",
				"event_id", ev.ID, "event_type", ev.EventType, "err", err)
			s.markEvent(ctx, ev, models.OutboxEventStatusFailed)
			continue
		}
		s.markEvent(ctx, ev, models.OutboxEventStatusSent)
	}
	return len(events), nil
}

func (s *Service) markEvent(ctx context.Context, ev *models.OutboxEvent, status models.OutboxEventStatus) {
	err := s.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", ev.ID).
		Updates(map[string]any{"status": status, "attempts": gorm.Expr("attempts + 1")}).Error
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to mark outbox event",
			"event_id", ev.ID, "status", status, "err", err)
	}
}

func (s *Service) dispatchEvent(ctx context.Context, ev *models.OutboxEvent) error {
	var errs error
	if err := s.dispatchWebhooks(ctx, ev); err != nil {
		errs = multierr.Append(errs, err)
	}
	if ev.EventType == models.OutboxEventEnrollmentCompleted {
		var data completedData
		if err := json.Unmarshal(ev.Payload, &data); err != nil {
			return fmt.Errorf("decode completion payload: %w", err)
		}
		if data.Buyer.Email != "" {
			if err := s.sendConfirmationEmail(ctx, ev, &data); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
		if data.CourseID != nil {
			if err := s.issueLicense(ctx, ev, &data); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}
	return errs
}

func (s *Service) dispatchWebhooks(ctx context.Context, ev *models.OutboxEvent) error {
	var endpoints []*models.WebhookEndpoint
	if err := s.db.WithContext(ctx).Where("active").Find(&endpoints).Error; err != nil {
		return fmt.Errorf("query webhook endpoints: %w", err)
	}

	envelope, err := json.Marshal(Envelope{
		EventType: string(ev.EventType),
		Timestamp: time.Now().UTC(),
		Data:      json.RawMessage(ev.Payload),
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	var errs error
	for _, ep := range endpoints {
		if !ep.SubscribedTo(ev.EventType) {
			continue
		}
		// Skip endpoints this event already reached on an earlier attempt.
		delivered, err := s.alreadyDelivered(ctx, ev, ep.URL)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if delivered {
			continue
		}
		if err := s.postWebhook(ctx, ev, ep, envelope); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (s *Service) alreadyDelivered(ctx context.Context, ev *models.OutboxEvent, target string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.DispatchLog{}).
		Where("enrollment_id = ? AND event_type = ? AND channel = ? AND target = ? AND error IS NULL",
			ev.EnrollmentID, ev.EventType, models.DispatchChannelWebhook, target).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) postWebhook(ctx context.Context, ev *models.OutboxEvent, ep *models.WebhookEndpoint, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ep.Headers {
		if sv, ok := v.(string); ok {
			req.Header.Set(k, sv)
		}
	}

	entry := &models.DispatchLog{
		ID:           tool.GenerateUUIDV7(),
		EnrollmentID: ev.EnrollmentID,
		EventType:    ev.EventType,
		Channel:      models.DispatchChannelWebhook,
		Target:       ep.URL,
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		entry.Error = lo.ToPtr(err.Error())
		s.appendLog(ctx, entry)
		s.metrics.ObserveDispatch(string(models.DispatchChannelWebhook), "error")
		return fmt.Errorf("webhook %s: %w", ep.URL, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	entry.StatusCode = resp.StatusCode
	respJSON, _ := json.Marshal(map[string]string{"body": string(raw)})
	entry.Response = func() *datatypes.JSON { j := datatypes.JSON(respJSON); return &j }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		entry.Error = lo.ToPtr(fmt.Sprintf("unexpected status %d", resp.StatusCode))
		s.appendLog(ctx, entry)
		s.metrics.ObserveDispatch(string(models.DispatchChannelWebhook), "error")
		return fmt.Errorf("webhook %s: status %d", ep.URL, resp.StatusCode)
	}
	s.appendLog(ctx, entry)
	s.metrics.ObserveDispatch(string(models.DispatchChannelWebhook), "ok")
	return nil
}

func (s *Service) sendConfirmationEmail(ctx context.Context, ev *models.OutboxEvent, data *completedData) error {
	delivered, err := s.channelDelivered(ctx, ev, models.DispatchChannelEmail)
	if err != nil {
		return err
	}
	if delivered {
		return nil
	}

	entry := &models.DispatchLog{
		ID:           tool.GenerateUUIDV7(),
		EnrollmentID: ev.EnrollmentID,
		EventType:    ev.EventType,
		Channel:      models.DispatchChannelEmail,
		Target:       data.Buyer.Email,
	}
	subject := "Your purchase is confirmed"
	body := fmt.Sprintf("Hello %s,\n\nYour payment was received. Reference: %s\n", data.Buyer.Name, data.ReferenceID)
	if err := s.mailer.Send(ctx, data.Buyer.Email, subject, body); err != nil {
		entry.Error = lo.ToPtr(err.Error())
		s.appendLog(ctx, entry)
		s.metrics.ObserveDispatch(string(models.DispatchChannelEmail), "error")
		return fmt.Errorf("confirmation email: %w", err)
	}
	s.appendLog(ctx, entry)
	s.metrics.ObserveDispatch(string(models.DispatchChannelEmail), "ok")
	return nil
}

func (s *Service) issueLicense(ctx context.Context, ev *models.OutboxEvent, data *completedData) error {
	var course models.Course
	if err := s.db.WithContext(ctx).Where("id = ?", *data.CourseID).First(&course).Error; err != nil {
		return fmt.Errorf("load course for license: %w", err)
	}
	if course.SpotPlayerCourseID == "" {
		return nil
	}

	delivered, err := s.channelDelivered(ctx, ev, models.DispatchChannelLicense)
	if err != nil {
		return err
	}
	if delivered {
		return nil
	}

	entry := &models.DispatchLog{
		ID:           tool.GenerateUUIDV7(),
		EnrollmentID: ev.EnrollmentID,
		EventType:    ev.EventType,
		Channel:      models.DispatchChannelLicense,
		Target:       course.SpotPlayerCourseID,
	}
	lic, err := s.license.IssueLicense(ctx, &spotplayer.IssueRequest{
		Name:      data.Buyer.Name,
		CourseIDs: []string{course.SpotPlayerCourseID},
		Watermark: data.Buyer.Phone,
		Test:      s.cfg.SpotPlayer.Test,
	})
	if err != nil {
		// Never dropped silently: the failed attempt is the error record.
		entry.Error = lo.ToPtr(err.Error())
		s.appendLog(ctx, entry)
		s.metrics.ObserveDispatch(string(models.DispatchChannelLicense), "error")
		return fmt.Errorf("issue license: %w", err)
	}

	licJSON, _ := json.Marshal(lic)
	entry.Response = func() *datatypes.JSON { j := datatypes.JSON(licJSON); return &j }()
	s.appendLog(ctx, entry)
	s.metrics.ObserveDispatch(string(models.DispatchChannelLicense), "ok")
	logctx.FromCtx(ctx, s.log).Infow("license issued",
		"enrollment_id", ev.EnrollmentID, "license_id", lic.ID)
	return nil
}

func (s *Service) channelDelivered(ctx context.Context, ev *models.OutboxEvent, channel models.DispatchChannel) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.DispatchLog{}).
		Where("enrollment_id = ? AND event_type = ? AND channel = ? AND error IS NULL",
			ev.EnrollmentID, ev.EventType, channel).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) appendLog(ctx context.Context, entry *models.DispatchLog) {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to append dispatch log",
			"enrollment_id", entry.EnrollmentID, "channel", entry.Channel, "err", err)
	}
}
