// Package corerr holds the typed error kinds raised by the core pipeline.
//
// Every kind is its own Go type rather than a single enum-with-message, so
// callers can use errors.As to branch on failure class without string
// matching, and every kind carries exactly the fields it needs (a slippage
// error needs observed/bound prices, a rate-limit error needs a retry-after
// hint) instead of a generic payload map.
package corerr

import (
	"fmt"
	"time"
)

// TransientNetworkError wraps a retryable I/O failure (dial timeout, reset
// connection, DNS). Callers should retry with backoff.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network error during %s: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// RateLimited means the exchange rejected or throttled a request. RetryAfter
// is zero when the exchange didn't supply a hint.
type RateLimited struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("rate limited on %s (retry after %s)", e.Endpoint, e.RetryAfter)
}

// UnauthenticatedError means L1/L2 CLOB auth failed or credentials expired.
type UnauthenticatedError struct {
	Reason string
}

func (e *UnauthenticatedError) Error() string {
	return fmt.Sprintf("unauthenticated: %s", e.Reason)
}

// InvariantViolation is raised when a precondition the caller should have
// already guaranteed does not hold. It always indicates a programming bug,
// never an external failure, and is never retried.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated (%s): %s", e.Invariant, e.Detail)
}

// SlippageExceeded means the fillable price moved past the configured bound
// between signal generation and order submission.
type SlippageExceeded struct {
	TokenID        string
	ExpectedPrice  string
	ObservedPrice  string
	MaxSlippagePct string
}

func (e *SlippageExceeded) Error() string {
	return fmt.Sprintf("slippage exceeded on %s: expected %s observed %s (max %s%%)",
		e.TokenID, e.ExpectedPrice, e.ObservedPrice, e.MaxSlippagePct)
}

// InsufficientNotional means the sized order fell outside [min,max] signal
// notional bounds after risk adjustment, and was skipped rather than resized.
type InsufficientNotional struct {
	Sized string
	Min   string
	Max   string
}

func (e *InsufficientNotional) Error() string {
	return fmt.Sprintf("sized notional %s outside [%s,%s]", e.Sized, e.Min, e.Max)
}

// SignalQualityFailed means a consensus signal failed the win-rate/EV/trade-count
// gate before reaching the risk gate. Reason names the specific check that failed.
type SignalQualityFailed struct {
	Reason string
}

func (e *SignalQualityFailed) Error() string {
	return fmt.Sprintf("signal quality check failed: %s", e.Reason)
}

// DatabaseError wraps a persistence-layer failure (SQLite busy, disk full,
// constraint violation).
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// WalletError means the operator's own wallet/RPC interaction failed
// (insufficient gas, nonce collision, RPC node rejection). Several of these
// in a row should auto-disable live copying rather than retry indefinitely.
type WalletError struct {
	Op  string
	Err error
}

func (e *WalletError) Error() string {
	return fmt.Sprintf("wallet error during %s: %v", e.Op, e.Err)
}

func (e *WalletError) Unwrap() error { return e.Err }

// Reason projects any corerr kind to the short string persisted in an
// error_message column. Unknown error types fall back to err.Error().
func Reason(err error) string {
	switch e := err.(type) {
	case *TransientNetworkError:
		return "transient_network: " + e.Op
	case *RateLimited:
		return "rate_limited: " + e.Endpoint
	case *UnauthenticatedError:
		return "unauthenticated: " + e.Reason
	case *InvariantViolation:
		return "invariant_violation: " + e.Invariant
	case *SlippageExceeded:
		return "slippage_exceeded: " + e.TokenID
	case *InsufficientNotional:
		return "insufficient_notional"
	case *SignalQualityFailed:
		return "signal_quality_failed: " + e.Reason
	case *DatabaseError:
		return "database_error: " + e.Op
	case *WalletError:
		return "wallet_error: " + e.Op
	default:
		if err == nil {
			return ""
		}
		return err.Error()
	}
}
