package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/parsalearn/enrollpay/internal/app/service/enrollment"
	notificationlog "github.com/parsalearn/enrollpay/internal/app/service/notification_log"
	"github.com/parsalearn/enrollpay/internal/app/service/outbox"
	"github.com/parsalearn/enrollpay/internal/app/service/sweeper"
	"github.com/parsalearn/enrollpay/internal/app/service/verification"
	"github.com/parsalearn/enrollpay/internal/models"
	"github.com/parsalearn/enrollpay/internal/platform/zarinpal"
	"github.com/parsalearn/enrollpay/pkg/config"
	"github.com/parsalearn/enrollpay/pkg/response"
	"github.com/parsalearn/enrollpay/pkg/tool"
)

type adminStack struct {
	db     *gorm.DB
	router *gin.Engine
}

func newAdminStack(t *testing.T, gw zarinpal.Client) *adminStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Course{},
		&models.Test{},
		&models.Enrollment{},
		&models.OutboxEvent{},
		&models.PaymentNotificationLog{},
	))

	log := zap.NewNop().Sugar()
	cfg := &config.Config{
		Zarinpal: config.ZarinpalConfig{MerchantID: "merchant-1"},
		Sweeper:  config.SweeperConfig{AuthorityTTL: 30 * time.Minute, VerifyTimeout: 5 * time.Second},
	}
	ob := outbox.New(log)
	enrSvc := enrollment.NewService(cfg, db, log, gw, ob)
	verifier := verification.NewService(db, log, gw, ob, notificationlog.New(db, log), nil)
	sweepSvc := sweeper.NewService(cfg, db, log, verifier, nil)

	router := gin.New()
	admin := router.Group("/api/v1/admin")
	// Stand-in for the auth middleware: attach the operator identity only.
	admin.Use(func(c *gin.Context) { c.Set("user_id", "ops@example.com") })
	RegisterAdminRoutes(admin, enrSvc, sweepSvc)
	return &adminStack{db: db, router: router}
}

func (s *adminStack) seedManual(t *testing.T) *models.Enrollment {
	t.Helper()
	enr := &models.Enrollment{
		ID:                  tool.GenerateUUIDV7(),
		CourseID:            lo.ToPtr(tool.GenerateUUIDV7()),
		Buyer:               models.Buyer{Name: "Mina", Email: "mina@example.com", Phone: "09125556666"},
		Amount:              300000,
		PaymentMethod:       models.PaymentMethodManual,
		Status:              models.EnrollmentStatusPending,
		ManualPaymentStatus: models.ManualPaymentStatusNone,
	}
	require.NoError(t, s.db.Create(enr).Error)
	return enr
}

func TestApiDecideEnrollment_Approve(t *testing.T) {
	stack := newAdminStack(t, &fakeGateway{})
	enr := stack.seedManual(t)

	_, env := doJSON(t, stack.router, http.MethodPost,
		"/api/v1/admin/enrollments/"+enr.ID+"/decision",
		map[string]any{"decision": "approve", "note": "bank slip 4412"})
	require.Equal(t, response.APIResponseCodeOK, env.Code)

	var stored models.Enrollment
	require.NoError(t, stack.db.First(&stored, "id = ?", enr.ID).Error)
	require.Equal(t, models.EnrollmentStatusCompleted, stored.Status)
	require.Equal(t, models.ManualPaymentStatusApproved, stored.ManualPaymentStatus)
	require.Equal(t, "ops@example.com", *stored.DecidedBy)
}

func TestApiDecideEnrollment_InvalidDecision(t *testing.T) {
	stack := newAdminStack(t, &fakeGateway{})
	enr := stack.seedManual(t)

	_, env := doJSON(t, stack.router, http.MethodPost,
		"/api/v1/admin/enrollments/"+enr.ID+"/decision",
		map[string]any{"decision": "maybe"})
	require.Equal(t, response.APIResponseCodeBadRequest, env.Code)
}

func TestApiDecideEnrollment_UnknownEnrollment(t *testing.T) {
	stack := newAdminStack(t, &fakeGateway{})

	_, env := doJSON(t, stack.router, http.MethodPost,
		"/api/v1/admin/enrollments/"+tool.GenerateUUIDV7()+"/decision",
		map[string]any{"decision": "approve"})
	require.Equal(t, response.APIResponseCodeNotFound, env.Code)
}

func TestApiListEnrollments_Paginates(t *testing.T) {
	stack := newAdminStack(t, &fakeGateway{})
	for i := 0; i < 3; i++ {
		stack.seedManual(t)
	}

	_, env := doJSON(t, stack.router, http.MethodPost,
		"/api/v1/admin/enrollments/list", map[string]any{"size": 2})
	require.Equal(t, response.APIResponseCodeOK, env.Code)

	var res enrollment.ScanEnrollmentsResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.EqualValues(t, 3, res.Total)
	require.Len(t, res.Items, 2)
}

func TestApiRunSweep_ReturnsReport(t *testing.T) {
	stack := newAdminStack(t, &fakeGateway{})
	// Inconsistent row: reference id present but status failed.
	enr := &models.Enrollment{
		ID:                  tool.GenerateUUIDV7(),
		Buyer:               models.Buyer{Name: "Mina", Phone: "09125556666"},
		Amount:              300000,
		PaymentMethod:       models.PaymentMethodGateway,
		Status:              models.EnrollmentStatusFailed,
		ManualPaymentStatus: models.ManualPaymentStatusNone,
		GatewayAuthority:    lo.ToPtr("AUTH-9"),
		GatewayReferenceID:  lo.ToPtr("ref-9"),
	}
	require.NoError(t, stack.db.Create(enr).Error)

	_, env := doJSON(t, stack.router, http.MethodPost, "/api/v1/admin/sweep", nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)

	var report sweeper.SweepReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	require.Len(t, report.Entries, 1)
	require.Equal(t, sweeper.OutcomeFixed, report.Entries[0].Outcome)

	var stored models.Enrollment
	require.NoError(t, stack.db.First(&stored, "id = ?", enr.ID).Error)
	require.Equal(t, models.EnrollmentStatusCompleted, stored.Status)
}
