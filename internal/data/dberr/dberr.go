// Package dberr classifies store failures into the domain error taxonomy.
package dberr

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/txcore/internal/domain"
)

const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgIntegrityClass       = "23"
)

// Map wraps err with the code that best describes it. Errors that already
// carry a code are returned untouched.
func Map(op string, err error) error {
	if err == nil {
		return nil
	}
	var derr *domain.Error
	if errors.As(err, &derr) {
		return err
	}
	return domain.Wrap(Classify(err), op, err)
}

// Classify returns the code for a raw store error.
func Classify(err error) domain.ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.CodeCanceled
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.CodeNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, gorm.ErrForeignKeyViolated),
		errors.Is(err, gorm.ErrCheckConstraintViolated):
		return domain.CodeConstraintViolation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := strings.TrimSpace(pgErr.Code)
		switch {
		case code == pgLockNotAvailable:
			return domain.CodeLockContention
		case code == pgSerializationFailure, code == pgDeadlockDetected:
			return domain.CodeSerialization
		case strings.HasPrefix(code, pgIntegrityClass):
			return domain.CodeConstraintViolation
		}
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "could not obtain lock"),
		strings.Contains(msg, "lock not available"),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "database table is locked"):
		return domain.CodeLockContention
	case strings.Contains(msg, "duplicate key"),
		strings.Contains(msg, "constraint failed"),
		strings.Contains(msg, "violates"):
		return domain.CodeConstraintViolation
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "could not serialize"):
		return domain.CodeSerialization
	default:
		return domain.CodeInternal
	}
}

// IsLockContention reports whether err is, or wraps, a failed non-blocking lock.
func IsLockContention(err error) bool {
	if err == nil {
		return false
	}
	if domain.IsCode(err, domain.CodeLockContention) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgLockNotAvailable
	}
	return false
}
