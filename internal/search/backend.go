package search

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/ca-srg/hybridgate/internal/types"
)

// Backend executes one fused keyword + vector query against the index.
// Implementations must be safe for concurrent use.
type Backend interface {
	Name() string
	Search(ctx context.Context, plan *types.QueryPlan) ([]types.RawHit, error)
}

// Pinger is implemented by backends that can verify connectivity at startup.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendQueryError wraps any failure talking to the index backend.
type BackendQueryError struct {
	Backend string
	Err     error
}

func (e *BackendQueryError) Error() string {
	return fmt.Sprintf("%s query failed: %v", e.Backend, e.Err)
}

func (e *BackendQueryError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether the failure was a deadline or network timeout.
func (e *BackendQueryError) IsTimeout() bool {
	return IsTimeout(e.Err)
}

// ValidationError reports a malformed search request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

type timeoutError interface {
	Timeout() bool
}

// IsTimeout reports whether err is, or wraps, a timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var te timeoutError
	return errors.As(err, &te) && te.Timeout()
}

// FailureMessage renders err for the degraded result entry.
func FailureMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	if IsTimeout(err) {
		return "timeout"
	}
	var bqe *BackendQueryError
	if errors.As(err, &bqe) && bqe.Err != nil {
		return bqe.Err.Error()
	}
	return err.Error()
}
