package database

import (
	"strings"

	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
)

// Classify maps a storage error onto an errkind: no rows is NotFound, a unique violation is
// Conflict and everything else is Transient (a cancelled context reads as Timeout).
func Classify(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case IsNoRows(err):
		return errkind.Wrap(errkind.NotFound, err, msg)
	case IsUniqueViolation(err):
		return errkind.Wrap(errkind.Conflict, err, msg)
	case IsForeignKeyViolation(err):
		return errkind.Wrap(errkind.InvalidArgument, err, msg)
	}
	return errkind.Wrap(errkind.Transient, err, msg)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern builds a LIKE pattern matching s anywhere, with s's wildcards escaped.
func ContainsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// Offset converts a 1-based page into a row offset.
func Offset(page, limit int) int {
	if page < 1 {
		return 0
	}
	return (page - 1) * limit
}
