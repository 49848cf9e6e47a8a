package resilience

import (
	"time"

	"github.com/Iron-Ham/montage/internal/provider"
)

// Status is the terminal outcome of one request.
type Status string

const (
	// StatusSuccess means a chain provider honoured the original or a
	// remediated payload.
	StatusSuccess Status = "SUCCESS"
	// StatusDegraded means the request completed without honouring its
	// intent: a safe generic payload was used, or the placeholder generator
	// produced the artifact.
	StatusDegraded Status = "DEGRADED"
	// StatusFailedTerminal is reserved for configuration errors.
	StatusFailedTerminal Status = "FAILED_TERMINAL"
	// StatusCanceled means the run was canceled before the request finished.
	StatusCanceled Status = "CANCELED"
)

// Request is one capability call to execute.
type Request struct {
	ID             string
	IdempotencyKey string
	Call           provider.Call
}

// Result is the single terminal result of a request.
type Result struct {
	RequestID      string              `json:"request_id"`
	IdempotencyKey string              `json:"idempotency_key"`
	Capability     provider.Capability `json:"capability"`
	Status         Status              `json:"status"`
	Artifact       *provider.Artifact  `json:"artifact,omitempty"`
	Provider       string              `json:"provider,omitempty"`
	Attempts       int                 `json:"attempts"`
	Waits          []time.Duration     `json:"waits,omitempty"`
	Remediations   int                 `json:"remediations,omitempty"`
	Err            error               `json:"-"`
}

// OK reports whether the request produced an artifact.
func (r Result) OK() bool {
	return r.Status == StatusSuccess || r.Status == StatusDegraded
}

// Error returns the failure message, or "" for successful results.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Backoff returns the wait before retry n (1-based): base doubled n-1
// times, capped at maxDelay.
func Backoff(n int, base, maxDelay time.Duration) time.Duration {
	if n < 1 || base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < n; i++ {
		if maxDelay > 0 && d >= maxDelay {
			break
		}
		d *= 2
	}
	if maxDelay > 0 && d > maxDelay {
		d = maxDelay
	}
	return d
}
