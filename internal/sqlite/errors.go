package sqlite

import "strings"

// The modernc driver surfaces constraint failures as plain strings, so
// matching on the message is the only classification available. An FK
// failure here usually means a history row was written before its
// parent id_version row within the same transaction.
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// Unique failures come from replayed history inserts: (id, version)
// pairs are append-once.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
