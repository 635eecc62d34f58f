package monitoring

import (
	"context"
	"errors"

	"github.com/rollbar/rollbar-go"

	"github.com/campusmart/campusmart-core/internal/domain/shared"
	"github.com/campusmart/campusmart-core/internal/domain/session"
)

// RollbarConfig configures the Rollbar reporter.
type RollbarConfig struct {
	Token       string
	Environment string
	CodeVersion string
	ServerHost  string
	ServerRoot  string
}

// Rollbar reports errors to Rollbar through a dedicated client.
type Rollbar struct {
	client *rollbar.Client
}

// NewRollbar creates a reporter. An empty token yields a disabled client.
func NewRollbar(cfg RollbarConfig) *Rollbar {
	client := rollbar.New(cfg.Token, cfg.Environment, cfg.CodeVersion, cfg.ServerHost, cfg.ServerRoot)
	client.SetEnabled(cfg.Token != "")
	return &Rollbar{client: client}
}

// Report implements Reporter. Partial failures are reported as warnings,
// everything else as errors. The session user, when present, is attached.
func (r *Rollbar) Report(ctx context.Context, err error, extras map[string]any) {
	level := rollbar.ERR
	if errors.Is(err, shared.ErrPartialFailure) {
		level = rollbar.WARN
	}

	payload := make(map[string]interface{}, len(extras)+2)
	for k, v := range extras {
		payload[k] = v
	}
	if s, ok := session.FromContext(ctx); ok {
		payload["session_user_id"] = s.UserID
		payload["request_id"] = s.RequestID
	}

	r.client.ErrorWithExtras(level, err, payload)
}

// Close flushes queued items and stops the client.
func (r *Rollbar) Close() {
	r.client.Close()
}
