package sweeper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/parsalearn/enrollpay/internal/app/service/verification"
	"github.com/parsalearn/enrollpay/internal/models"
	"github.com/parsalearn/enrollpay/pkg/config"
	"github.com/parsalearn/enrollpay/pkg/logctx"
	"github.com/parsalearn/enrollpay/pkg/metrics"
)

type Case string

const (
	// CaseReference covers rows where the gateway reference id is set but
	// the status never committed to completed.
	CaseReference Case = "reference_without_status"
	// CaseAuthority covers rows where a payment attempt started but no
	// callback ever verified it.
	CaseAuthority Case = "authority_never_verified"
)

type Outcome string

const (
	OutcomeFixed   Outcome = "fixed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeExpired Outcome = "expired"
)

type Entry struct {
	EnrollmentID string  `json:"enrollment_id"`
	Case         Case    `json:"case"`
	Outcome      Outcome `json:"outcome"`
	Error        string  `json:"error,omitempty"`
}

// SweepReport is the structured result of one sweep run, used for
// operational visibility only.
type SweepReport struct {
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Entries   []Entry         `json:"entries"`
	Counts    map[Outcome]int `json:"counts"`
}

func (r *SweepReport) record(e Entry) {
	r.Entries = append(r.Entries, e)
	r.Counts[e.Outcome]++
}

// Service repairs enrollments left inconsistent by missed or partial
// callback delivery. Idempotent and safe to run concurrently with itself:
// every repair goes through a conditional write and each enrollment is
// handled in isolation.
type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	log      *zap.SugaredLogger
	verifier *verification.Service
	metrics  *metrics.Prometheus
	now      func() time.Time
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, verifier *verification.Service, m *metrics.Prometheus) *Service {
	return &Service{cfg: cfg, db: db, log: log, verifier: verifier, metrics: m, now: time.Now}
}

// Sweep runs both repair cases and returns the per-enrollment report. A
// single enrollment's failure never aborts the rest of the sweep.
func (s *Service) Sweep(ctx context.Context) (*SweepReport, error) {
	log := logctx.FromCtx(ctx, s.log)
	report := &SweepReport{StartedAt: s.now().UTC(), Counts: map[Outcome]int{}}

	var errs error
	if err := s.sweepReferenceCase(ctx, report); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := s.sweepAuthorityCase(ctx, report); err != nil {
		errs = multierr.Append(errs, err)
	}

	report.Duration = s.now().UTC().Sub(report.StartedAt)
	log.Infow("sweep complete",
		"entries", len(report.Entries),
		"fixed", report.Counts[OutcomeFixed],
		"failed", report.Counts[OutcomeFailed],
		"skipped", report.Counts[OutcomeSkipped],
		"expired", report.Counts[OutcomeExpired],
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, errs
}

// sweepReferenceCase repairs the "has reference, wrong status" invariant
// violation. The reference id is proof of payment, so the status is forced
// without contacting the gateway.
func (s *Service) sweepReferenceCase(ctx context.Context, report *SweepReport) error {
	var rows []*models.Enrollment
	err := s.db.WithContext(ctx).
		Where("gateway_reference_id IS NOT NULL AND status <> ?", models.EnrollmentStatusCompleted).
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("query reference case: %w", err)
	}

	log := logctx.FromCtx(ctx, s.log)
	for _, enr := range rows {
		fixed, err := s.verifier.ForceComplete(ctx, enr)
		entry := Entry{EnrollmentID: enr.ID, Case: CaseReference}
		switch {
		case err != nil:
			entry.Outcome = OutcomeFailed
			entry.Error = err.Error()
			log.Errorw("sweep: force complete failed", "enrollment_id", enr.ID, "err", err)
		case fixed:
			entry.Outcome = OutcomeFixed
			log.Infow("sweep: repaired status from reference id", "enrollment_id", enr.ID)
		default:
			// Someone else repaired it between select and update.
			entry.Outcome = OutcomeSkipped
		}
		s.metrics.ObserveSweep(string(CaseReference), string(entry.Outcome))
		report.record(entry)
	}
	return nil
}

// sweepAuthorityCase re-verifies gateway enrollments whose callback never
// arrived. Authorities older than the freshness window are expired
// server-side by the gateway, so verifying them is wasted cost.
func (s *Service) sweepAuthorityCase(ctx context.Context, report *SweepReport) error {
	var rows []*models.Enrollment
	err := s.db.WithContext(ctx).
		Where("gateway_authority IS NOT NULL AND gateway_reference_id IS NULL AND status = ? AND payment_method = ?",
			models.EnrollmentStatusPending, models.PaymentMethodGateway).
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("query authority case: %w", err)
	}

	log := logctx.FromCtx(ctx, s.log)
	cutoff := s.now().UTC().Add(-s.cfg.Sweeper.AuthorityTTL)
	for _, enr := range rows {
		entry := Entry{EnrollmentID: enr.ID, Case: CaseAuthority}
		if !enr.CreatedAt.After(cutoff) {
			entry.Outcome = OutcomeExpired
			s.metrics.ObserveSweep(string(CaseAuthority), string(entry.Outcome))
			report.record(entry)
			continue
		}

		entry.Outcome = s.verifyOne(ctx, enr, &entry)
		s.metrics.ObserveSweep(string(CaseAuthority), string(entry.Outcome))
		report.record(entry)
		if entry.Outcome == OutcomeFailed {
			log.Warnw("sweep: verify failed", "enrollment_id", enr.ID, "err", entry.Error)
		}
	}
	return nil
}

// verifyOne runs a single bounded verify so one hanging gateway call cannot
// stall the rest of the sweep.
func (s *Service) verifyOne(ctx context.Context, enr *models.Enrollment, entry *Entry) Outcome {
	timeout := s.cfg.Sweeper.VerifyTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := s.verifier.Verify(callCtx, enr.ID, *enr.GatewayAuthority)
	switch {
	case err != nil:
		entry.Error = err.Error()
		return OutcomeFailed
	case res.AlreadyTerminal:
		return OutcomeSkipped
	case res.Status == models.EnrollmentStatusCompleted:
		return OutcomeFixed
	default:
		// Gateway answered definitively that the payment never happened.
		return OutcomeFixed
	}
}
