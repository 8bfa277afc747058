package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	notificationlog "github.com/parsalearn/enrollpay/internal/app/service/notification_log"
	"github.com/parsalearn/enrollpay/internal/app/service/outbox"
	"github.com/parsalearn/enrollpay/internal/app/service/verification"
	"github.com/parsalearn/enrollpay/internal/models"
	"github.com/parsalearn/enrollpay/internal/platform/zarinpal"
	"github.com/parsalearn/enrollpay/pkg/config"
	"github.com/parsalearn/enrollpay/pkg/tool"
)

type fakeGateway struct {
	verifyRes   *zarinpal.VerifyResult
	verifyErr   error
	verifyCalls int
}

func (f *fakeGateway) RequestPayment(_ context.Context, _ *zarinpal.PaymentRequest) (*zarinpal.PaymentRequestResult, error) {
	panic("not used")
}

func (f *fakeGateway) VerifyPayment(_ context.Context, _ *zarinpal.VerifyRequest) (*zarinpal.VerifyResult, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.verifyRes, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Enrollment{},
		&models.OutboxEvent{},
		&models.PaymentNotificationLog{},
	))
	return db
}

func newTestSweeper(t *testing.T, db *gorm.DB, gw zarinpal.Client, now time.Time) *Service {
	t.Helper()
	log := zap.NewNop().Sugar()
	cfg := &config.Config{
		Sweeper: config.SweeperConfig{
			AuthorityTTL:  30 * time.Minute,
			VerifyTimeout: 5 * time.Second,
		},
	}
	verifier := verification.NewService(db, log, gw, outbox.New(log), notificationlog.New(db, log), nil)
	svc := NewService(cfg, db, log, verifier, nil)
	svc.now = func() time.Time { return now }
	return svc
}

func seedGatewayEnrollment(t *testing.T, db *gorm.DB, status models.EnrollmentStatus, authority, referenceID *string, createdAt time.Time) *models.Enrollment {
	t.Helper()
	enr := &models.Enrollment{
		ID:                  tool.GenerateUUIDV7(),
		CourseID:            lo.ToPtr(tool.GenerateUUIDV7()),
		Buyer:               models.Buyer{Name: "Omid", Email: "omid@example.com", Phone: "09121111111"},
		Amount:              750000,
		PaymentMethod:       models.PaymentMethodGateway,
		Status:              status,
		ManualPaymentStatus: models.ManualPaymentStatusNone,
		GatewayAuthority:    authority,
		GatewayReferenceID:  referenceID,
		CreatedAt:           createdAt,
	}
	require.NoError(t, db.Create(enr).Error)
	return enr
}

func entryFor(t *testing.T, report *SweepReport, id string) Entry {
	t.Helper()
	for _, e := range report.Entries {
		if e.EnrollmentID == id {
			return e
		}
	}
	t.Fatalf("no sweep entry for enrollment %s", id)
	return Entry{}
}

func TestSweep_ReferenceCaseForcesCompleteWithoutGatewayCall(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{}
	now := time.Now()
	svc := newTestSweeper(t, db, gw, now)

	enr := seedGatewayEnrollment(t, db,
		models.EnrollmentStatusFailed, lo.ToPtr("A1"), lo.ToPtr("ref-7"), now.Add(-time.Hour))

	report, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Counts[OutcomeFixed])
	require.Equal(t, OutcomeFixed, entryFor(t, report, enr.ID).Outcome)
	require.Zero(t, gw.verifyCalls)

	var stored models.Enrollment
	require.NoError(t, db.First(&stored, "id = ?", enr.ID).Error)
	require.Equal(t, models.EnrollmentStatusCompleted, stored.Status)

	var events int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("enrollment_id = ?", enr.ID).Count(&events).Error)
	require.EqualValues(t, 1, events)

	// Repeat sweep finds nothing left to repair.
	report, err = svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Entries)
}

func TestSweep_AuthorityCaseReverifiesFreshAttempt(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{verifyRes: &zarinpal.VerifyResult{Code: zarinpal.CodeSuccess, ReferenceID: "ref-3"}}
	now := time.Now()
	svc := newTestSweeper(t, db, gw, now)

	// One second inside the freshness window.
	enr := seedGatewayEnrollment(t, db,
		models.EnrollmentStatusPending, lo.ToPtr("A2"), nil, now.Add(-30*time.Minute).Add(time.Second))

	report, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeFixed, entryFor(t, report, enr.ID).Outcome)
	require.Equal(t, 1, gw.verifyCalls)

	var stored models.Enrollment
	require.NoError(t, db.First(&stored, "id = ?", enr.ID).Error)
	require.Equal(t, models.EnrollmentStatusCompleted, stored.Status)
	require.Equal(t, "ref-3", *stored.GatewayReferenceID)
}

func TestSweep_AuthorityCaseExpiresStaleAttempt(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{}
	now := time.Now()
	svc := newTestSweeper(t, db, gw, now)

	// One second past the freshness window: no verify attempt is made.
	enr := seedGatewayEnrollment(t, db,
		models.EnrollmentStatusPending, lo.ToPtr("A3"), nil, now.Add(-30*time.Minute).Add(-time.Second))

	report, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeExpired, entryFor(t, report, enr.ID).Outcome)
	require.Zero(t, gw.verifyCalls)

	var stored models.Enrollment
	require.NoError(t, db.First(&stored, "id = ?", enr.ID).Error)
	require.Equal(t, models.EnrollmentStatusPending, stored.Status)
}

func TestSweep_OneFailureDoesNotAbortTheRest(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{verifyErr: errors.New("gateway down")}
	now := time.Now()
	svc := newTestSweeper(t, db, gw, now)

	// A reference-case row repairs fine while the authority-case verify fails.
	fixable := seedGatewayEnrollment(t, db,
		models.EnrollmentStatusPending, lo.ToPtr("A4"), lo.ToPtr("ref-8"), now.Add(-time.Hour))
	broken := seedGatewayEnrollment(t, db,
		models.EnrollmentStatusPending, lo.ToPtr("A5"), nil, now.Add(-time.Minute))

	report, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeFixed, entryFor(t, report, fixable.ID).Outcome)

	failedEntry := entryFor(t, report, broken.ID)
	require.Equal(t, OutcomeFailed, failedEntry.Outcome)
	require.NotEmpty(t, failedEntry.Error)

	var stored models.Enrollment
	require.NoError(t, db.First(&stored, "id = ?", broken.ID).Error)
	require.Equal(t, models.EnrollmentStatusPending, stored.Status)
}

func TestSweep_SkipsManualAndCompletedRows(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{}
	now := time.Now()
	svc := newTestSweeper(t, db, gw, now)

	seedGatewayEnrollment(t, db,
		models.EnrollmentStatusCompleted, lo.ToPtr("A6"), lo.ToPtr("ref-6"), now.Add(-time.Minute))
	manual := &models.Enrollment{
		ID:                  tool.GenerateUUIDV7(),
		Buyer:               models.Buyer{Name: "Omid", Phone: "09121111111"},
		Amount:              100000,
		PaymentMethod:       models.PaymentMethodManual,
		Status:              models.EnrollmentStatusPending,
		ManualPaymentStatus: models.ManualPaymentStatusNone,
	}
	require.NoError(t, db.Create(manual).Error)

	report, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Entries)
	require.Zero(t, gw.verifyCalls)
}
