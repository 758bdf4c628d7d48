// Package resilience classifies remote-store failures and retries the
// transient ones. Nothing here is fatal to gameplay: a failure that
// exhausts its retries degrades to local-only mode.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// UnavailableError marks a remote-store failure as transient: the account
// table could not be reached, local-only mode continues, and the write is
// retried on the next save or sweep.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return e.Err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Unavailable wraps an error as a transient remote failure.
func Unavailable(err error) *UnavailableError {
	return &UnavailableError{Err: err}
}

// IsTransient reports whether the error (or anything in its chain) is safe
// to retry: an explicit UnavailableError, a network timeout, a dropped
// connection, or a Postgres connection/shutdown failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ue *UnavailableError
	if errors.As(err, &ue) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Postgres class 08 (connection) and 57 (operator intervention,
	// e.g. failover shutdown) come back once the server does.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57") {
			return true
		}
	}

	// String-based heuristics for errors wrapped beyond recognition.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"i/o timeout",
		"server closed idle connection",
		"conn closed",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsOffline reports whether the error means connectivity is absent rather
// than the operation being wrong: transient failures and cancellations.
func IsOffline(err error) bool {
	return IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}
