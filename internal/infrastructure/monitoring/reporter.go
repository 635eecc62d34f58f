// Package monitoring forwards failures that need a human to an error tracker.
// Routine per-record outcomes are logged, not reported; only failures that
// leave data inconsistent or that abort a run go through a Reporter.
package monitoring

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Reporter sends an error with structured context to an error tracker.
type Reporter interface {
	Report(ctx context.Context, err error, extras map[string]any)
}

// Nop discards every report.
type Nop struct{}

// Report implements Reporter.
func (Nop) Report(context.Context, error, map[string]any) {}

// LogReporter writes reports to slog at error level.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a LogReporter; nil uses slog.Default().
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

// Report implements Reporter.
func (r *LogReporter) Report(ctx context.Context, err error, extras map[string]any) {
	args := make([]any, 0, 2+2*len(extras))
	args = append(args, "error", err)
	for k, v := range extras {
		args = append(args, k, v)
	}
	r.logger.ErrorContext(ctx, "reported error", args...)
}

// Report is one captured call to a Recorder.
type Report struct {
	Err    error
	Extras map[string]any
}

// Recorder keeps reports in memory. Used by tests and the dev server.
type Recorder struct {
	mu      sync.Mutex
	reports []Report
}

// Report implements Reporter.
func (r *Recorder) Report(_ context.Context, err error, extras map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, Report{Err: err, Extras: extras})
}

// Reports returns a copy of everything recorded so far.
func (r *Recorder) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Report, len(r.reports))
	copy(out, r.reports)
	return out
}

// Multi fans a report out to several reporters.
type Multi []Reporter

// Report implements Reporter.
func (m Multi) Report(ctx context.Context, err error, extras map[string]any) {
	for _, r := range m {
		r.Report(ctx, err, extras)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Job errors
// ─────────────────────────────────────────────────────────────────────────────

type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// MarkReported wraps err to record that it already went through a Reporter.
func MarkReported(err error) error {
	if err == nil || IsReported(err) {
		return err
	}
	return reportedError{err}
}

// IsReported reports whether err was wrapped by MarkReported.
func IsReported(err error) bool {
	var r reportedError
	return errors.As(err, &r)
}

// JobErrorHook returns a scheduler error callback that reports job failures
// to r, skipping errors the job reported itself.
func JobErrorHook(r Reporter) func(jobName string, err error) {
	return func(jobName string, err error) {
		if IsReported(err) {
			return
		}
		r.Report(context.Background(), err, map[string]any{"job": jobName})
	}
}
