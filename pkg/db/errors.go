package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/numberpool/pkg/errors"
)

// IsUniqueViolation reports whether err is a unique constraint violation from
// Postgres or SQLite. A non-empty constraintName narrows the match to that
// constraint.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if pg, ok := pkgerrors.Postgres(err); ok {
		if pg.Code != pkgerrors.SQLStateUniqueViolation {
			return false
		}
		return constraintName == "" || pg.Constraint == constraintName
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
