package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Base provides a shared foundation for gorm-backed repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Upsert inserts rows or overwrites every column of rows whose primary key
// already exists.
func Upsert[T any](tx *gorm.DB, rows []T, batchSize int) error {
	if len(rows) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&rows, batchSize).Error
}

// FindByID loads one row by primary key; gorm.ErrRecordNotFound when absent.
func FindByID[T any](tx *gorm.DB, id any) (T, error) {
	var row T
	err := tx.Where("id = ?", id).Take(&row).Error
	return row, err
}

// DeleteByID removes one row and reports whether it existed.
func DeleteByID[T any](tx *gorm.DB, id any) (bool, error) {
	var row T
	res := tx.Where("id = ?", id).Delete(&row)
	return res.RowsAffected > 0, res.Error
}

// Count returns the number of rows in T's table.
func Count[T any](tx *gorm.DB) (int, error) {
	var n int64
	var row T
	err := tx.Model(&row).Count(&n).Error
	return int(n), err
}

// DeleteAll removes every row in T's table.
func DeleteAll[T any](tx *gorm.DB) error {
	var row T
	return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&row).Error
}
