package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Regular expressions for parsing PgError.Detail messages.
var (
	// reKeyField extracts the field name from a unique violation detail:
	// "Key (field)=(value) already exists.".
	reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)
	// reNotPresent detects a missing parent row: "... is not present in table ...".
	reNotPresent = regexp.MustCompile(`is not present in table "?([^"]+)"?`)
)

// MapDBError maps database errors to AppError instances:
//   - pgx.ErrNoRows → UserNotFound (the directory and session tables are
//     the only things the repos query by key)
//   - unique violations → UserExists
//   - foreign key violations with a missing parent in users → UserNotFound
//   - check / NOT NULL violations → Validation
//   - context deadline / cancellation → Timeout / Canceled
//
// Unrecognized errors come back unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrCodeTimeout, "Request timed out. Please try again.")
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(err, ErrCodeCanceled, "Request was canceled.")
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return Wrap(err, ErrCodeUserNotFound, "Record not found").WithSeverity(SeverityWarning)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return mapUniqueViolation(pgErr)
	case pgerrcode.ForeignKeyViolation:
		return mapForeignKeyViolation(pgErr)
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return mapConstraintViolation(pgErr)
	default:
		return Wrap(pgErr, ErrCodeInternal, "A database error occurred. Please try again.")
	}
}

// mapUniqueViolation maps unique constraint violations to UserExists
// errors, carrying the offending field when it can be determined.
func mapUniqueViolation(pgErr *pgconn.PgError) error {
	field := pgErr.ColumnName

	// The Detail message names the key columns even when ColumnName is
	// empty, which it usually is for unique violations.
	if field == "" && pgErr.Detail != "" {
		if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			field = m[1]
		}
	}

	// Last resort: constraint names follow "table_field_key".
	if field == "" {
		field = inferFieldFromConstraint(pgErr.ConstraintName)
	}

	e := Wrap(pgErr, ErrCodeUserExists, "This value already exists. Please choose a different one.")
	e.Field = field
	return e
}

// mapForeignKeyViolation distinguishes a session pointing at a missing
// user from other referential failures.
func mapForeignKeyViolation(pgErr *pgconn.PgError) error {
	if pgErr.Detail != "" {
		if m := reNotPresent.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			if strings.EqualFold(strings.TrimSpace(m[1]), "users") {
				return Wrap(pgErr, ErrCodeUserNotFound, "The referenced user does not exist.")
			}
			return Wrap(pgErr, ErrCodeValidation, "The referenced record does not exist.")
		}
	}
	return Wrap(pgErr, ErrCodeValidation, "Cannot complete operation because this record is in use.")
}

// mapConstraintViolation maps CHECK and NOT NULL violations to Validation
// errors.
func mapConstraintViolation(pgErr *pgconn.PgError) error {
	message := "Invalid data. Please check your input."
	if pgErr.Code == pgerrcode.NotNullViolation {
		message = "Required field is missing. Please check your input."
	}
	e := Wrap(pgErr, ErrCodeValidation, message).WithSeverity(SeverityWarning)
	e.Field = pgErr.ColumnName
	return e
}

// inferFieldFromConstraint infers the field name from a constraint name,
// e.g. "users_email_key" → "email". Multi-column and expression-index
// constraints are ambiguous and yield empty string.
func inferFieldFromConstraint(constraintName string) string {
	if constraintName == "" {
		return ""
	}
	parts := strings.Split(constraintName, "_")
	if len(parts) != 3 {
		return ""
	}
	field := parts[1]
	if isFunctionName(field) {
		return ""
	}
	return field
}

// isFunctionName checks for common SQL function names used in expression
// indexes.
func isFunctionName(s string) bool {
	switch strings.ToLower(s) {
	case "lower", "upper", "trim", "ltrim", "rtrim", "md5":
		return true
	}
	return false
}
