package db

import (
	"errors"
	"slices"
	"strings"

	"gorm.io/gorm"
)

// Unique violations as the drivers word them when TranslateError is off or
// the dialect has no translator.
var duplicateKeyMarkers = []string{
	"SQLSTATE 23505", // pgx
	"duplicate key value violates unique constraint",
	"Error 1062", // mysql
	"UNIQUE constraint failed",
}

// IsDuplicateKeyErr reports a unique constraint violation, such as a second
// role with the same name or a user joining a second organization.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return slices.ContainsFunc(duplicateKeyMarkers, func(marker string) bool {
		return strings.Contains(msg, marker)
	})
}
