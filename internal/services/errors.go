package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Error taxonomy shared by every catalog and lending operation.
// Callers match with errors.Is; messages carry the detail.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrValidation      = errors.New("validation failed")
	ErrForbidden       = errors.New("forbidden")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// quiet returns a session that does not log, for hot read paths
func quiet(db *gorm.DB) *gorm.DB {
	return db.Session(&gorm.Session{Logger: db.Logger.LogMode(logger.Silent)})
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// duplicate reports a unique index violation as a conflict. The check-then-insert
// guards of concurrent writers can both pass; the index decides the loser.
func duplicate(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: "+format, append([]interface{}{ErrConflict}, args...)...)
	}
	return err
}
