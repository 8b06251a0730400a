package database

import (
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// postgres error codes
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

func pqCode(err error) (code, constraint string) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint
	}
	return "", ""
}

// IsUniqueViolation reports whether err is a unique constraint violation, optionally on the named constraint.
func IsUniqueViolation(err error, constraint ...string) bool {
	return isViolation(err, uniqueViolation, constraint)
}

// IsForeignKeyViolation reports whether err is a foreign key violation, optionally on the named constraint.
func IsForeignKeyViolation(err error, constraint ...string) bool {
	return isViolation(err, foreignKeyViolation, constraint)
}

func isViolation(err error, want string, constraint []string) bool {
	code, name := pqCode(err)
	if code != want {
		return false
	}
	return len(constraint) == 0 || constraint[0] == name
}
