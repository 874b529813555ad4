package database

import (
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	codeUniqueViolation   = "23505"
	codeCheckViolation    = "23514"
	codeRaiseException    = "P0001"
	codeUndefinedObject   = "42704"
	codeUndefinedFunction = "42883"
	codeUndefinedTable    = "42P01"
	codeDuplicateObject   = "42710"
	codeDuplicateTable    = "42P07"
	codeDuplicateColumn   = "42701"
	codeDuplicateFunction = "42723"
	codeInsufficientPriv  = "42501"
	codeUndefinedColumn   = "42703"
)

// SQLState returns the five character SQLSTATE code of a postgres error from either driver or an empty string.
func SQLState(err error) string {
	if err == nil {
		return ""
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// ErrorMessage returns the server message of a postgres error or the error string.
func ErrorMessage(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Message
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}
	return err.Error()
}

// IsUniqueViolation returns true if err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return SQLState(err) == codeUniqueViolation
}

// IsCheckViolation returns true if err is a check constraint violation.
func IsCheckViolation(err error) bool {
	return SQLState(err) == codeCheckViolation
}

// IsRaisedException returns true if err was raised by a plpgsql RAISE EXCEPTION, such as a trigger rejecting a row.
func IsRaisedException(err error) bool {
	return SQLState(err) == codeRaiseException
}

// IsUndefinedObject returns true if err says the target object does not exist.
func IsUndefinedObject(err error) bool {
	switch SQLState(err) {
	case codeUndefinedObject, codeUndefinedFunction, codeUndefinedTable, codeUndefinedColumn:
		return true
	}
	return false
}

// IsDuplicateObject returns true if err says the object already exists.
func IsDuplicateObject(err error) bool {
	switch SQLState(err) {
	case codeDuplicateObject, codeDuplicateTable, codeDuplicateColumn, codeDuplicateFunction:
		return true
	}
	return false
}

// IsPermissionDenied returns true if err is an insufficient privilege error.
func IsPermissionDenied(err error) bool {
	return SQLState(err) == codeInsufficientPriv
}
