package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campusmart/campusmart-core/internal/application/command"
	"github.com/campusmart/campusmart-core/internal/application/query"
	"github.com/campusmart/campusmart-core/internal/domain/progression"
	"github.com/campusmart/campusmart-core/internal/domain/shared"
	"github.com/campusmart/campusmart-core/internal/infrastructure/scheduler"
	"github.com/campusmart/campusmart-core/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth serves /health and /ready.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		handlers.WriteJSON(w, r, http.StatusOK, map[string]any{
			"healthy": true,
			"uptime":  s.Uptime().String(),
			"version": s.deps.Version,
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	handlers.WriteJSON(w, r, code, status)
}

// handleLive handles the liveness endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	handlers.WriteJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLevel handles GET /api/v1/levels/{level}
func (s *Server) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(chi.URLParam(r, "level"))
	if err != nil {
		handlers.WriteError(w, r, shared.InvalidArgument("progression", "DescribeLevel", "level must be an integer"))
		return
	}

	info, err := s.deps.Standing.DescribeLevel(level)
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, info)
}

// handleGetMyStanding handles GET /api/v1/me/standing
func (s *Server) handleGetMyStanding(w http.ResponseWriter, r *http.Request) {
	s.writeStanding(w, r, query.GetStandingQuery{})
}

// handleGetUserStanding handles GET /api/v1/users/{id}/standing
func (s *Server) handleGetUserStanding(w http.ResponseWriter, r *http.Request) {
	s.writeStanding(w, r, query.GetStandingQuery{UserID: chi.URLParam(r, "id")})
}

func (s *Server) writeStanding(w http.ResponseWriter, r *http.Request, q query.GetStandingQuery) {
	standing, err := s.deps.Standing.Handle(r.Context(), q)
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, standing)
}

// xpEventRequest is the body of POST /api/v1/me/xp-events.
type xpEventRequest struct {
	Kind progression.RewardKind `json:"kind"`
}

// handleGrantXP handles POST /api/v1/me/xp-events
func (s *Server) handleGrantXP(w http.ResponseWriter, r *http.Request) {
	var req xpEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.WriteError(w, r, shared.InvalidArgument("progression", "GrantXP", "invalid JSON body: %v", err))
		return
	}

	result, err := s.deps.GrantXP.Handle(r.Context(), command.GrantXPCommand{Kind: req.Kind})
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENT WEBHOOK HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handlePaymentWebhook handles POST /webhooks/payments. Any non-2xx answer
// makes the provider redeliver, which also repairs a partial settlement.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	event, err := s.deps.Webhooks.ReadPaymentEvent(r)
	if err != nil {
		if errors.Is(err, shared.ErrUnauthorized) {
			s.logger.Warn("rejected payment webhook", "reason", err.Error(), "ip", handlers.ClientIP(r))
		}
		handlers.WriteError(w, r, err)
		return
	}

	requestID := handlers.RequestIDFromContext(r.Context())
	s.logger.Info("payment webhook received",
		"event_id", event.EventID,
		"transaction_id", event.TransactionID,
		"request_id", requestID,
	)

	result, err := s.deps.Settle.Handle(r.Context(), command.SettleTransactionCommand{
		TransactionID: event.TransactionID,
		RequestID:     requestID,
	})
	switch {
	case err == nil:
		handlers.WriteJSON(w, r, http.StatusOK, result)
	case result != nil:
		handlers.WriteErrorWithData(w, r, err, result)
	default:
		handlers.WriteError(w, r, err)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERNAL JOB HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRunSweep handles POST /internal/jobs/graduation-sweep. The sweep runs
// on the request context: a client disconnect interrupts it.
func (s *Server) handleRunSweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Sweeper.Sweep(r.Context())
	switch {
	case err == nil:
		handlers.WriteJSON(w, r, http.StatusOK, report)
	case report != nil:
		handlers.WriteErrorWithData(w, r, err, report)
	default:
		handlers.WriteError(w, r, err)
	}
}

// handleLastSweep handles GET /internal/jobs/graduation-sweep/last
func (s *Server) handleLastSweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Sweeper.LastReport(r.Context())
	if err != nil {
		handlers.WriteError(w, r, err)
		return
	}
	handlers.WriteJSON(w, r, http.StatusOK, report)
}

// ─────────────────────────────────────────────────────────────────────────────
// Scheduler state
// ─────────────────────────────────────────────────────────────────────────────

const defaultHistoryLimit = 20

type jobResultView struct {
	JobName     string    `json:"job_name"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMS  int64     `json:"duration_ms"`
	Success     bool      `json:"success"`
	Manual      bool      `json:"manual"`
	Error       string    `json:"error,omitempty"`
}

func newJobResultView(r scheduler.JobResult) jobResultView {
	v := jobResultView{
		JobName:     r.JobName,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		DurationMS:  r.Duration.Milliseconds(),
		Success:     r.Success,
		Manual:      r.Manual,
	}
	if r.Error != nil {
		v.Error = r.Error.Error()
	}
	return v
}

type jobInfoView struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Enabled     bool           `json:"enabled"`
	Running     bool           `json:"running"`
	Schedule    string         `json:"schedule"`
	LastRun     *time.Time     `json:"last_run,omitempty"`
	NextRun     *time.Time     `json:"next_run,omitempty"`
	RunCount    int64          `json:"run_count"`
	FailCount   int64          `json:"fail_count"`
	SkipCount   int64          `json:"skip_count"`
	LastResult  *jobResultView `json:"last_result,omitempty"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// jobError maps scheduler lookup errors onto domain error kinds.
func jobError(op string, err error) error {
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		return shared.WrapError("jobs", op, shared.ErrNotFound, err.Error(), err)
	case errors.Is(err, scheduler.ErrJobRunning):
		return shared.WrapError("jobs", op, shared.ErrConflict, err.Error(), err)
	}
	return err
}

// handleJobHistory handles GET /internal/jobs. The limit query parameter
// bounds the history, newest last.
func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			handlers.WriteError(w, r, shared.InvalidArgument("jobs", "History", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	history := s.deps.Jobs.GetHistory(limit)
	views := make([]jobResultView, 0, len(history))
	for _, res := range history {
		views = append(views, newJobResultView(res))
	}

	snap := s.deps.Jobs.GetMetrics().Snapshot()
	handlers.WriteJSON(w, r, http.StatusOK, map[string]any{
		"history": views,
		"metrics": map[string]any{
			"total_executions":    snap.TotalExecutions,
			"total_successes":     snap.TotalSuccesses,
			"total_failures":      snap.TotalFailures,
			"success_rate":        snap.SuccessRate,
			"average_duration_ms": snap.AverageDuration.Milliseconds(),
		},
	})
}

// handleGetJob handles GET /internal/jobs/{name}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Jobs.GetJobInfo(chi.URLParam(r, "name"))
	if err != nil {
		handlers.WriteError(w, r, jobError("GetJob", err))
		return
	}

	view := jobInfoView{
		Name:        info.Name,
		Description: info.Description,
		Enabled:     info.Enabled,
		Running:     info.Running,
		Schedule:    info.Schedule,
		LastRun:     optionalTime(info.LastRun),
		NextRun:     optionalTime(info.NextRun),
		RunCount:    info.RunCount,
		FailCount:   info.FailCount,
		SkipCount:   info.SkipCount,
	}
	if info.LastResult != nil {
		last := newJobResultView(*info.LastResult)
		view.LastResult = &last
	}
	handlers.WriteJSON(w, r, http.StatusOK, view)
}

// handleRunJob handles POST /internal/jobs/{name}/run. The job runs on the
// request goroutine and its result is returned once it finishes.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Jobs.RunNow(r.Context(), chi.URLParam(r, "name"))
	switch {
	case err == nil:
		handlers.WriteJSON(w, r, http.StatusOK, newJobResultView(*result))
	case result != nil:
		handlers.WriteErrorWithData(w, r, err, newJobResultView(*result))
	default:
		handlers.WriteError(w, r, jobError("RunJob", err))
	}
}
