// Package jobs contains the scheduled jobs of campusmart-core.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/campusmart/campusmart-core/internal/domain/account"
	"github.com/campusmart/campusmart-core/internal/domain/progression"
	"github.com/campusmart/campusmart-core/internal/domain/shared"
	"github.com/campusmart/campusmart-core/internal/infrastructure/monitoring"
	"github.com/campusmart/campusmart-core/internal/infrastructure/persistence/docvalidate"
	"github.com/campusmart/campusmart-core/internal/infrastructure/telemetry"
)

// GraduationSweepJobName is the scheduler name of the sweep.
const GraduationSweepJobName = "graduation_sweep"

// ══════════════════════════════════════════════════════════════════════════════
// GRADUATION SWEEP JOB
// ══════════════════════════════════════════════════════════════════════════════

// Outcome is the terminal state of one record in a sweep.
type Outcome string

const (
	OutcomeSkipProtected Outcome = "skip-protected"
	OutcomeNotGraduated  Outcome = "not-yet-graduated"
	OutcomeSkipInvalid   Outcome = "skip-invalid-record"
	OutcomeDeleted       Outcome = "graduated-delete-success"
	OutcomeDeletePartial Outcome = "graduated-delete-partial-failure"
	OutcomeDeleteFailed  Outcome = "graduated-delete-failed"
)

// SweepFailure describes a record the sweep could not fully delete.
type SweepFailure struct {
	UserID  string  `json:"user_id"`
	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error"`
}

// SweepReport summarises one sweep run.
type SweepReport struct {
	RunID               string         `json:"run_id"`
	StartedAt           time.Time      `json:"started_at"`
	CompletedAt         time.Time      `json:"completed_at"`
	Processed           int            `json:"processed"`
	Deleted             []string       `json:"deleted"`
	Skipped             int            `json:"skipped"`
	SkippedProtected    int            `json:"skipped_protected"`
	SkippedNotGraduated int            `json:"skipped_not_graduated"`
	PartialFailures     int            `json:"partial_failures"`
	Failed              []SweepFailure `json:"failed"`
	Interrupted         bool           `json:"interrupted"`
	Aborted             string         `json:"aborted,omitempty"`
}

// Duration returns how long the run took.
func (r *SweepReport) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

func (r *SweepReport) record(u *account.UserRecord, outcome Outcome, err error) {
	switch outcome {
	case OutcomeSkipProtected:
		r.Skipped++
		r.SkippedProtected++
	case OutcomeNotGraduated:
		r.Skipped++
		r.SkippedNotGraduated++
	case OutcomeSkipInvalid:
		r.Skipped++
		r.Failed = append(r.Failed, SweepFailure{UserID: u.ID, Outcome: outcome, Error: err.Error()})
	case OutcomeDeleted:
		r.Deleted = append(r.Deleted, u.ID)
	case OutcomeDeletePartial:
		r.PartialFailures++
		r.Failed = append(r.Failed, SweepFailure{UserID: u.ID, Outcome: outcome, Error: err.Error()})
	case OutcomeDeleteFailed:
		r.Failed = append(r.Failed, SweepFailure{UserID: u.ID, Outcome: outcome, Error: err.Error()})
	}
}

// Locker serialises sweeps across processes.
type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// ReportStore persists the latest report.
type ReportStore interface {
	Save(ctx context.Context, report SweepReport) error
	Last(ctx context.Context) (SweepReport, error)
}

// GraduationSweepConfig contains configuration for the sweep.
type GraduationSweepConfig struct {
	// PageSize is the number of records fetched per ListUsers call.
	PageSize int

	// ProtectedRoles are never deleted.
	ProtectedRoles []shared.Role

	// RecordTimeout bounds the two deletions of a single record. They run on
	// a context detached from the run's cancellation.
	RecordTimeout time.Duration
}

// DefaultGraduationSweepConfig returns sensible defaults.
func DefaultGraduationSweepConfig() GraduationSweepConfig {
	return GraduationSweepConfig{
		PageSize:       100,
		ProtectedRoles: []shared.Role{shared.RoleStaff, shared.RoleDeveloper},
		RecordTimeout:  30 * time.Second,
	}
}

// GraduationSweepJob deletes accounts whose tenure has run out.
//
// Records are paged in (created_at, id) order. Deleting a record removes it
// from later pages, so the offset only advances past records that remain.
// Identity is deleted before the profile: a failed identity deletion keeps
// the profile so the next run finds the record again.
type GraduationSweepJob struct {
	store    account.LifecycleStore
	clock    *progression.GraduationClock
	locker   Locker
	reports  ReportStore
	reporter monitoring.Reporter
	logger   *slog.Logger
	now      func() time.Time
	config   GraduationSweepConfig

	lastReport atomic.Pointer[SweepReport]
}

// SweepOption configures optional collaborators.
type SweepOption func(*GraduationSweepJob)

// WithLocker enables the cross-process lock.
func WithLocker(l Locker) SweepOption {
	return func(j *GraduationSweepJob) { j.locker = l }
}

// WithReportStore persists each report after the run.
func WithReportStore(s ReportStore) SweepOption {
	return func(j *GraduationSweepJob) { j.reports = s }
}

// WithReporter sends failures to an error tracker.
func WithReporter(r monitoring.Reporter) SweepOption {
	return func(j *GraduationSweepJob) { j.reporter = r }
}

// WithNow overrides the clock used for graduation decisions.
func WithNow(now func() time.Time) SweepOption {
	return func(j *GraduationSweepJob) { j.now = now }
}

// NewGraduationSweepJob creates the sweep job.
func NewGraduationSweepJob(
	store account.LifecycleStore,
	clock *progression.GraduationClock,
	logger *slog.Logger,
	config GraduationSweepConfig,
	opts ...SweepOption,
) *GraduationSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = progression.DefaultGraduationClock()
	}
	defaults := DefaultGraduationSweepConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.RecordTimeout <= 0 {
		config.RecordTimeout = defaults.RecordTimeout
	}

	j := &GraduationSweepJob{
		store:    store,
		clock:    clock,
		reporter: monitoring.Nop{},
		logger:   logger.With("job", GraduationSweepJobName),
		now:      time.Now,
		config:   config,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Name returns the job name.
func (j *GraduationSweepJob) Name() string {
	return GraduationSweepJobName
}

// Description returns a human-readable description.
func (j *GraduationSweepJob) Description() string {
	return "Deletes accounts older than the graduation period"
}

// Run executes a sweep for the scheduler. A sweep already running in another
// process is not an error. Per-record failures are in the report, not in the
// returned error. Aborted runs were already reported and are marked so.
func (j *GraduationSweepJob) Run(ctx context.Context) error {
	report, err := j.Sweep(ctx)
	switch {
	case errors.Is(err, shared.ErrSweepInProgress):
		j.logger.Info("sweep skipped, lock held elsewhere")
		return nil
	case err != nil && report != nil:
		return monitoring.MarkReported(err)
	case err != nil:
		return err
	case report.Interrupted:
		return fmt.Errorf("graduation sweep interrupted: %w", context.Cause(ctx))
	}
	return nil
}

// Sweep runs one pass over all user records and returns its report.
// On a listing failure the partial report is returned with the error.
func (j *GraduationSweepJob) Sweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{
		RunID:     uuid.NewString(),
		StartedAt: j.now(),
		Deleted:   make([]string, 0),
		Failed:    make([]SweepFailure, 0),
	}
	logger := j.logger.With("run_id", report.RunID)

	ctx, span := telemetry.Tracer().Start(ctx, "graduation_sweep.run",
		trace.WithAttributes(attribute.String("sweep.run_id", report.RunID)))
	defer span.End()

	if j.locker != nil {
		release, err := j.locker.Acquire(ctx)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to release sweep lock", "error", err)
			}
		}()
	}

	logger.Info("graduation sweep started", "page_size", j.config.PageSize)

	runErr := j.sweepPages(ctx, logger, report)

	report.CompletedAt = j.now()
	j.finish(ctx, logger, report, runErr)

	span.SetAttributes(
		attribute.Int("sweep.processed", report.Processed),
		attribute.Int("sweep.deleted", len(report.Deleted)),
		attribute.Int("sweep.failed", len(report.Failed)),
		attribute.Bool("sweep.interrupted", report.Interrupted),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "listing failed")
		return report, runErr
	}
	return report, nil
}

func (j *GraduationSweepJob) sweepPages(ctx context.Context, logger *slog.Logger, report *SweepReport) error {
	visited := make(map[string]struct{})
	offset := 0

	for {
		if ctx.Err() != nil {
			report.Interrupted = true
			return nil
		}

		page, err := j.store.ListUsers(ctx, offset, j.config.PageSize)
		if err != nil {
			if ctx.Err() != nil {
				report.Interrupted = true
				return nil
			}
			report.Aborted = err.Error()
			return fmt.Errorf("list users at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			return nil
		}

		fullyDeleted := 0
		for i := range page {
			if ctx.Err() != nil {
				report.Interrupted = true
				return nil
			}

			u := &page[i]
			// A record seen earlier in this run came back, e.g. after a
			// lagging listing. Step over it instead of deleting twice.
			if _, seen := visited[u.ID]; seen {
				continue
			}
			visited[u.ID] = struct{}{}

			outcome, err := j.processRecord(ctx, u)
			report.Processed++
			report.record(u, outcome, err)
			j.logOutcome(ctx, logger, u, outcome, err)

			if outcome == OutcomeDeleted || (outcome == OutcomeDeletePartial && j.vanished(ctx, u.ID)) {
				fullyDeleted++
			}
		}

		offset += len(page) - fullyDeleted
	}
}

// processRecord decides and, for graduated records, deletes. Records that
// fail validation are never deleted: an unknown role could be a
// protected one spelled differently.
func (j *GraduationSweepJob) processRecord(ctx context.Context, u *account.UserRecord) (Outcome, error) {
	if err := docvalidate.Struct("sweep", "ProcessRecord", u); err != nil {
		return OutcomeSkipInvalid, err
	}
	if !u.Role.IsValid() {
		return OutcomeSkipInvalid, shared.InvalidArgument("sweep", "ProcessRecord", "unknown role %q", u.Role)
	}
	if u.IsProtected(j.config.ProtectedRoles) {
		return OutcomeSkipProtected, nil
	}

	status, err := j.clock.ComputeStatus(u.CreatedAt, j.now())
	if err != nil {
		return OutcomeSkipInvalid, err
	}
	if !status.IsGraduated {
		return OutcomeNotGraduated, nil
	}

	return j.deleteRecord(ctx, u)
}

// deleteRecord runs both deletions to completion even if the run is cancelled.
func (j *GraduationSweepJob) deleteRecord(ctx context.Context, u *account.UserRecord) (Outcome, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.config.RecordTimeout)
	defer cancel()

	ctx, span := telemetry.Tracer().Start(ctx, "graduation_sweep.delete",
		trace.WithAttributes(attribute.String("user.id", u.ID)))
	defer span.End()

	// pending -> identity-deleted
	if err := j.store.DeleteUserIdentity(ctx, u.ID); err != nil && !shared.IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "identity deletion failed")
		return OutcomeDeleteFailed, fmt.Errorf("delete identity: %w", err)
	}

	// identity-deleted -> fully-deleted
	if err := j.store.DeleteUserProfileDocument(ctx, u.ProfileDocumentID()); err != nil && !shared.IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile deletion failed")
		return OutcomeDeletePartial, shared.WrapError("sweep", "DeleteUserProfileDocument",
			shared.ErrPartialFailure, "identity deleted, profile document kept", err)
	}

	return OutcomeDeleted, nil
}

// vanished reports whether a partially deleted record is gone from the
// listing anyway, which happens when the profile deletion committed but its
// reply was lost. A record that cannot be read back counts as still listed;
// at worst one record further down is left for the next run.
func (j *GraduationSweepJob) vanished(ctx context.Context, userID string) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.config.RecordTimeout)
	defer cancel()
	_, err := j.store.GetUser(ctx, userID)
	return shared.IsNotFound(err)
}

func (j *GraduationSweepJob) logOutcome(ctx context.Context, logger *slog.Logger, u *account.UserRecord, outcome Outcome, err error) {
	switch outcome {
	case OutcomeDeleted:
		logger.Info("graduated account deleted", "user_id", u.ID, "created_at", u.CreatedAt)
	case OutcomeDeletePartial, OutcomeDeleteFailed:
		logger.Error("graduated account deletion failed",
			"user_id", u.ID,
			"outcome", string(outcome),
			"error", err,
		)
		j.reporter.Report(ctx, err, map[string]any{
			"job":     GraduationSweepJobName,
			"user_id": u.ID,
			"outcome": string(outcome),
		})
	case OutcomeSkipInvalid:
		logger.Warn("skipping malformed user record", "user_id", u.ID, "error", err)
	default:
		logger.Debug("record skipped", "user_id", u.ID, "outcome", string(outcome))
	}
}

// finish stores and logs the report. It runs even when the run was
// cancelled, so it uses a detached context.
func (j *GraduationSweepJob) finish(ctx context.Context, logger *slog.Logger, report *SweepReport, runErr error) {
	j.lastReport.Store(report)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if j.reports != nil {
		if err := j.reports.Save(saveCtx, *report); err != nil {
			logger.Warn("failed to save sweep report", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("graduation sweep aborted",
			"processed", report.Processed,
			"deleted", len(report.Deleted),
			"error", runErr,
		)
		j.reporter.Report(ctx, runErr, map[string]any{
			"job":       GraduationSweepJobName,
			"run_id":    report.RunID,
			"processed": report.Processed,
		})
		return
	}

	logger.Info("graduation sweep completed",
		"duration", report.Duration().String(),
		"processed", report.Processed,
		"deleted", len(report.Deleted),
		"skipped_protected", report.SkippedProtected,
		"skipped_not_graduated", report.SkippedNotGraduated,
		"partial_failures", report.PartialFailures,
		"failed", len(report.Failed),
		"interrupted", report.Interrupted,
	)
}

// LastReport returns the report of the most recent run, preferring the
// shared store so reports from other processes are visible.
func (j *GraduationSweepJob) LastReport(ctx context.Context) (*SweepReport, error) {
	if j.reports != nil {
		report, err := j.reports.Last(ctx)
		if err == nil {
			return &report, nil
		}
		if !shared.IsNotFound(err) {
			j.logger.Warn("failed to read sweep report, using local copy", "error", err)
		}
	}

	if r := j.lastReport.Load(); r != nil {
		return r, nil
	}
	return nil, shared.NewDomainError("sweep", "LastReport", shared.ErrNotFound, "no sweep has completed yet")
}
