package enrollment

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/parsalearn/enrollpay/internal/app/service/outbox"
	"github.com/parsalearn/enrollpay/internal/models"
	"github.com/parsalearn/enrollpay/internal/platform/zarinpal"
	"github.com/parsalearn/enrollpay/pkg/config"
	"github.com/parsalearn/enrollpay/pkg/logctx"
	"github.com/parsalearn/enrollpay/pkg/tool"
)

type PurchasableKind string

const (
	PurchasableCourse PurchasableKind = "course"
	PurchasableTest   PurchasableKind = "test"
)

type InitiateRequest struct {
	Kind          PurchasableKind `json:"kind"`
	PurchasableID string          `json:"purchasable_id"`
	Buyer         models.Buyer    `json:"buyer"`
	// Amount is the final amount after any upstream discount validation,
	// in gateway minor units. Zero means "charge list price".
	Amount int64 `json:"amount"`
	// DiscountApplied must be set when Amount is below list price.
	DiscountApplied bool                 `json:"discount_applied"`
	PaymentMethod   models.PaymentMethod `json:"payment_method"`
	Description     string               `json:"description"`
}

type InitiateResult struct {
	EnrollmentID string `json:"enrollment_id"`
	RedirectURL  string `json:"redirect_url,omitempty"`
}

type Service struct {
	cfg     *config.Config
	db      *gorm.DB
	log     *zap.SugaredLogger
	gateway zarinpal.Client
	outbox  *outbox.Service
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, gateway zarinpal.Client, ob *outbox.Service) *Service {
	return &Service{cfg: cfg, db: db, log: log, gateway: gateway, outbox: ob}
}

// Initiate creates a pending enrollment and opens a payment attempt with the
// gateway. On gateway rejection the enrollment stays pending so the same row
// can be retried; transport failures leave an orphaned pending row that is
// never verified, which is an accepted cost.
func (s *Service) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	log := logctx.FromCtx(ctx, s.log)

	price, courseID, testID, freeWithoutEmail, err := s.resolvePurchasable(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.Buyer.Name == "" || req.Buyer.Phone == "" {
		return nil, fmt.Errorf("%w: buyer name and phone are mandatory", ErrInvalidRequest)
	}
	if req.Buyer.Email == "" && !freeWithoutEmail {
		return nil, fmt.Errorf("%w: buyer email is mandatory for this item", ErrInvalidRequest)
	}

	amount := req.Amount
	if amount == 0 {
		amount = price
	}
	if amount > price {
		return nil, fmt.Errorf("%w: amount exceeds list price", ErrInvalidRequest)
	}
	if amount < price && !req.DiscountApplied {
		return nil, fmt.Errorf("%w: amount below list price without a discount", ErrInvalidRequest)
	}

	enr := &models.Enrollment{
		ID:                  tool.GenerateUUIDV7(),
		CourseID:            courseID,
		TestID:              testID,
		Buyer:               req.Buyer,
		Amount:              amount,
		PaymentMethod:       req.PaymentMethod,
		Status:              models.EnrollmentStatusPending,
		ManualPaymentStatus: models.ManualPaymentStatusNone,
	}
	if enr.PaymentMethod == "" {
		enr.PaymentMethod = models.PaymentMethodGateway
	}
	if err := s.db.WithContext(ctx).Create(enr).Error; err != nil {
		return nil, fmt.Errorf("create enrollment: %w", err)
	}

	if enr.PaymentMethod == models.PaymentMethodManual {
		// Manual payments skip the gateway entirely; an operator decides.
		log.Infow("manual enrollment created", "enrollment_id", enr.ID)
		return &InitiateResult{EnrollmentID: enr.ID}, nil
	}

	if s.cfg.Zarinpal.MerchantID == "" {
		return nil, fmt.Errorf("%w: zarinpal merchant id is empty", ErrConfiguration)
	}

	gwRes, err := s.gateway.RequestPayment(ctx, &zarinpal.PaymentRequest{
		Amount:      amount,
		CallbackURL: s.callbackURL(enr.ID),
		Description: req.Description,
		Email:       req.Buyer.Email,
		Mobile:      req.Buyer.Phone,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if gwRes.Code != zarinpal.CodeSuccess || gwRes.Authority == "" {
		// Status stays pending; the caller may retry this enrollment.
		log.Warnw("gateway rejected payment request",
			"enrollment_id", enr.ID, "gateway_code", gwRes.Code)
		return nil, fmt.Errorf("%w: code %d", ErrGatewayRejected, gwRes.Code)
	}

	if err := s.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("id = ?", enr.ID).
		Update("gateway_authority", gwRes.Authority).Error; err != nil {
		return nil, fmt.Errorf("persist authority: %w", err)
	}

	log.Infow("payment attempt opened",
		"enrollment_id", enr.ID, "authority", gwRes.Authority, "amount", amount)
	return &InitiateResult{EnrollmentID: enr.ID, RedirectURL: gwRes.RedirectURL}, nil
}

func (s *Service) resolvePurchasable(ctx context.Context, req *InitiateRequest) (price int64, courseID, testID *string, freeWithoutEmail bool, err error) {
	switch req.Kind {
	case PurchasableCourse:
		var course models.Course
		if e := s.db.WithContext(ctx).Where("id = ? AND active", req.PurchasableID).First(&course).Error; e != nil {
			if errors.Is(e, gorm.ErrRecordNotFound) {
				return 0, nil, nil, false, fmt.Errorf("%w: course %s", ErrNotFound, req.PurchasableID)
			}
			return 0, nil, nil, false, e
		}
		return course.Price, lo.ToPtr(course.ID), nil, course.FreeWithoutEmail, nil
	case PurchasableTest:
		var test models.Test
		if e := s.db.WithContext(ctx).Where("id = ? AND active", req.PurchasableID).First(&test).Error; e != nil {
			if errors.Is(e, gorm.ErrRecordNotFound) {
				return 0, nil, nil, false, fmt.Errorf("%w: test %s", ErrNotFound, req.PurchasableID)
			}
			return 0, nil, nil, false, e
		}
		return test.Price, nil, lo.ToPtr(test.ID), false, nil
	default:
		return 0, nil, nil, false, fmt.Errorf("%w: unknown purchasable kind %q", ErrInvalidRequest, req.Kind)
	}
}

func (s *Service) callbackURL(enrollmentID string) string {
	return fmt.Sprintf("%s/api/v1/payment/callback?enrollment_id=%s",
		s.cfg.Zarinpal.CallbackBase, url.QueryEscape(enrollmentID))
}
