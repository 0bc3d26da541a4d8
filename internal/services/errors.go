package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrResourceInactive     = errors.New("offer is not active")
	ErrPerActorLimitReached = errors.New("per-user redemption limit reached")
	ErrGlobalLimitReached   = errors.New("global redemption limit reached")
	ErrNotEligible          = errors.New("user is not eligible for this offer")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrLockTimeout          = errors.New("resource busy, retry the request")
	ErrNotFound             = errors.New("not found")
)

// Postgres SQLSTATE codes the ledger reacts to. query_canceled (57014) is
// left out: it also fires on statement_timeout and client cancellation.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// IsRetryable reports whether the whole operation may be retried from scratch.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// IsBusinessRejection reports whether err is a normal rejected-request outcome
// rather than an infrastructure failure.
func IsBusinessRejection(err error) bool {
	for _, target := range []error{
		ErrInsufficientFunds,
		ErrResourceInactive,
		ErrPerActorLimitReached,
		ErrGlobalLimitReached,
		ErrNotEligible,
		ErrInvalidRequest,
		ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// translateDBError maps lock contention to ErrLockTimeout and leaves every other
// error untouched.
func translateDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFailure:
			return fmt.Errorf("%w: %s", ErrLockTimeout, pqErr.Message)
		}
	}
	return err
}

func notFoundOr(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return err
}
