package db

import (
	"context"
	"errors"
	"strings"

	pkgerrors "github.com/angelmondragon/barter-backend/pkg/errors"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	mysqlDuplicateEntry   uint16 = 1062
	mysqlLockWaitTimeout  uint16 = 1205
	mysqlDeadlockDetected uint16 = 1213
)

// IsUniqueViolation reports whether the provided error is a unique constraint
// violation on any supported driver. When constraintName is provided, the
// helper also requires the constraint to be referenced by the error.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return matchesConstraint(err, constraintName)
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) && pgxErr.Code == pgUniqueViolation {
		return constraintName == "" || pgxErr.ConstraintName == constraintName
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		return constraintName == "" || pqErr.Constraint == constraintName
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return matchesConstraint(err, constraintName)
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return matchesConstraint(err, constraintName)
}

func matchesConstraint(err error, constraintName string) bool {
	return constraintName == "" || strings.Contains(err.Error(), constraintName)
}

// IsRetryable reports whether the store rejected the unit of work for a
// transient reason (deadlock, serialization failure, lock wait, busy file).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == pgSerializationFailure || pgxErr.Code == pgDeadlockDetected
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return code == pgSerializationFailure || code == pgDeadlockDetected
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlockDetected || myErr.Number == mysqlLockWaitTimeout
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

// Classify maps a store failure raised during step into the typed error
// surface. Typed errors pass through untouched.
func Classify(err error, step string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	details := map[string]any{"step": step}
	if IsRetryable(err) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store contention during "+step).WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeTransaction, err, step+" failed").WithDetails(details)
}
