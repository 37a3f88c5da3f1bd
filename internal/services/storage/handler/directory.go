package handler

import (
	"context"

	"gorm.io/gorm"
)

// UnitDirectory answers storage-unit existence checks from the local table.
// The storage service owns these rows, so its own reference validation never
// leaves the process.
type UnitDirectory struct {
	db *gorm.DB
}

func NewUnitDirectory(db *gorm.DB) *UnitDirectory {
	return &UnitDirectory{db: db}
}

func (d *UnitDirectory) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&StorageUnit{}).
		Where("id = ? AND is_active = ?", id, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
