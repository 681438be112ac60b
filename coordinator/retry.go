package coordinator

import (
	"github.com/cascadedb/cascade/kit/errors"
)

// RetryPolicy selects the predicate that classifies a per-shard error as
// retriable. Policies form a closed set; the zero value never retries.
type RetryPolicy int

const (
	// NoRetry surfaces every error on the first attempt.
	NoRetry RetryPolicy = iota

	// Idempotent retries network and not-primary class errors, for
	// operations that are safe to repeat.
	Idempotent

	// IdempotentOrCursorInvalidated additionally retries cursor
	// invalidation, for reads that can re-establish their cursor.
	IdempotentOrCursorInvalidated
)

func (p RetryPolicy) String() string {
	switch p {
	case NoRetry:
		return "noRetry"
	case Idempotent:
		return "idempotent"
	case IdempotentOrCursorInvalidated:
		return "idempotentOrCursorInvalidated"
	default:
		return "unknown"
	}
}

// retriable reports whether an error code may be retried under the policy.
// The attempt budget is enforced by the caller.
func (p RetryPolicy) retriable(code string) bool {
	switch p {
	case Idempotent:
		return errors.IsNetworkError(code) || errors.IsNotPrimaryError(code)
	case IdempotentOrCursorInvalidated:
		return errors.IsNetworkError(code) || errors.IsNotPrimaryError(code) ||
			errors.IsCursorInvalidatedError(code)
	default:
		return false
	}
}
