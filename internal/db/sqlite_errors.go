package db

import (
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"

	"catcharity/internal/store"
)

// uniqueViolations are the extended codes SQLite reports when an insert
// collides with a UNIQUE index or a composite primary key (favorites).
var uniqueViolations = map[sqlite3.ErrNoExtended]struct{}{
	sqlite3.ErrConstraintUnique:     {},
	sqlite3.ErrConstraintPrimaryKey: {},
}

func IsUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return false
	}
	_, ok := uniqueViolations[sqliteErr.ExtendedCode]
	return ok
}

// insertError turns a unique violation into store.ErrDuplicate and wraps
// anything else with action.
func insertError(err error, action string) error {
	if IsUniqueConstraintError(err) {
		return store.ErrDuplicate
	}
	return fmt.Errorf("%s: %w", action, err)
}
