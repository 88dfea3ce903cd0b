package database

import (
	"context"

	"gorm.io/gorm"
)

// BatchInsert inserts records in batches
func BatchInsert(ctx context.Context, db *gorm.DB, records interface{}, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	return db.WithContext(ctx).CreateInBatches(records, batchSize).Error
}

// Count counts records matching the query; a nil query counts all rows.
func Count(ctx context.Context, db *gorm.DB, model interface{}, query interface{}, args ...interface{}) (int64, error) {
	var count int64
	q := db.WithContext(ctx).Model(model)
	if query != nil {
		q = q.Where(query, args...)
	}
	err := q.Count(&count).Error
	return count, err
}

// DeleteAll removes every row of model's table.
func DeleteAll(ctx context.Context, db *gorm.DB, model interface{}) (int64, error) {
	res := db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model)
	return res.RowsAffected, res.Error
}
