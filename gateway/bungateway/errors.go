package bungateway

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/orchidarium/go-taxon-repository/taxon"
)

// translate maps driver-level failures onto the taxon error taxonomy.
// Anything already typed passes through untouched so callers can rely on
// errors.As regardless of which layer produced the failure.
func (g *Gateway[T]) translate(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		validationErr *taxon.ValidationError
		notFoundErr   *taxon.NotFoundError
		networkErr    *taxon.NetworkError
		constraintErr *taxon.ConstraintViolationError
		permissionErr *taxon.PermissionDeniedError
	)
	if errors.As(err, &validationErr) || errors.As(err, &notFoundErr) ||
		errors.As(err, &networkErr) || errors.As(err, &constraintErr) ||
		errors.As(err, &permissionErr) {
		return err
	}

	op = g.entity + " " + op

	if isConstraintViolation(err) {
		return &taxon.ConstraintViolationError{Op: op, Err: err}
	}
	if isTransient(err) {
		return &taxon.NetworkError{Op: op, Err: err}
	}
	if isPermissionDenied(err) {
		return &taxon.PermissionDeniedError{Op: op}
	}

	// Unrecognized driver errors are treated as transient: the caller's
	// recovery options are the same either way.
	return &taxon.NetworkError{Op: op, Err: err}
}

func isNoRows(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no rows in result set") || strings.Contains(msg, "record not found")
}

func isConstraintViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	// sqlite, postgres, and the generic SQLSTATE class 23 spellings.
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "sqlstate 23505") ||
		strings.Contains(msg, "constraint failed")
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "i/o timeout")
}

func isPermissionDenied(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "row-level security") ||
		strings.Contains(msg, "insufficient privilege")
}
