package handler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"novafreight-system/internal/coordinator"
	"novafreight-system/internal/ledger"
	"novafreight-system/internal/platform/apierr"
)

// StorageUnit carries its capacity ceilings and current usage as decimal
// string columns so ledger arithmetic is exact.
type StorageUnit struct {
	ID            int64  `gorm:"primaryKey" json:"id"`
	UnitCode      string `gorm:"size:100;uniqueIndex" json:"unit_code"`
	Location      string `gorm:"size:255" json:"location"`
	StorageType   string `gorm:"size:100" json:"storage_type"`
	MaxMass       string `gorm:"type:decimal(18,3)" json:"max_mass"`
	MaxVolume     string `gorm:"type:decimal(18,3)" json:"max_volume"`
	CurrentMass   string `gorm:"type:decimal(18,3)" json:"current_mass"`
	CurrentVolume string `gorm:"type:decimal(18,3)" json:"current_volume"`
	IsActive      bool   `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type CargoAllocation struct {
	ID                  int64 `gorm:"primaryKey" json:"id"`
	CargoID             int64 `gorm:"uniqueIndex:idx_cargo_unit" json:"cargo_id"`
	StorageUnitID       int64 `gorm:"uniqueIndex:idx_cargo_unit" json:"storage_unit_id"`
	Quantity            int64 `json:"quantity"`
	LastCheckedByUserID *int64     `json:"last_checked_by_user_id,omitempty"`
	LastInventoryCheck  *time.Time `json:"last_inventory_check,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// CargoTransaction rows are append-only. No handler or store method updates
// or deletes one.
type CargoTransaction struct {
	ID                int64  `gorm:"primaryKey" json:"id"`
	Type              string `gorm:"size:20;index" json:"type"`
	CargoID           int64  `gorm:"index" json:"cargo_id"`
	Quantity          int64  `json:"quantity"`
	FromStorageUnitID *int64 `gorm:"index" json:"from_storage_unit_id,omitempty"`
	ToStorageUnitID   *int64 `gorm:"index" json:"to_storage_unit_id,omitempty"`
	FromSpacecraftID  *int64 `json:"from_spacecraft_id,omitempty"`
	ToSpacecraftID    *int64 `json:"to_spacecraft_id,omitempty"`
	PerformedByUserID int64  `json:"performed_by_user_id"`
	TransactionDate   time.Time `json:"transaction_date"`
	ReferenceCode     string `gorm:"size:64;uniqueIndex" json:"reference_code"`
	Notes             string `gorm:"size:255" json:"notes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

func MigrateStorageDB(db *gorm.DB) error {
	return db.AutoMigrate(&StorageUnit{}, &CargoAllocation{}, &CargoTransaction{})
}

// GormStore backs the capacity ledger and the coordinator with Postgres.
// Per-unit serializability comes from SELECT ... FOR UPDATE row locks; pair
// operations lock in ascending unit-id order so opposing transfers cannot
// deadlock.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) InTx(ctx context.Context, fn func(tx coordinator.TxStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) WithUnit(ctx context.Context, unitID int64, fn func(u *ledger.Unit) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockUnit(tx, unitID)
		if err != nil {
			return err
		}
		unit, err := toLedgerUnit(row)
		if err != nil {
			return err
		}
		if err := fn(&unit); err != nil {
			return err
		}
		return saveUsage(tx, row, unit)
	})
}

func (s *GormStore) WithUnitPair(ctx context.Context, aID, bID int64, fn func(a, b *ledger.Unit) error) error {
	firstID, secondID := aID, bID
	if firstID > secondID {
		firstID, secondID = secondID, firstID
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		firstRow, err := lockUnit(tx, firstID)
		if err != nil {
			return err
		}
		secondRow, err := lockUnit(tx, secondID)
		if err != nil {
			return err
		}

		first, err := toLedgerUnit(firstRow)
		if err != nil {
			return err
		}
		second, err := toLedgerUnit(secondRow)
		if err != nil {
			return err
		}

		a, b := &first, &second
		if firstID != aID {
			a, b = b, a
		}
		if err := fn(a, b); err != nil {
			return err
		}

		if err := saveUsage(tx, firstRow, first); err != nil {
			return err
		}
		return saveUsage(tx, secondRow, second)
	})
}

// Allocation reads the (cargo, unit) row FOR UPDATE. Callers check the
// stored quantity and write the row back within the same transaction; an
// unlocked read would let two concurrent unloads pass the check against the
// same snapshot and over-release the unit.
func (s *GormStore) Allocation(ctx context.Context, cargoID, unitID int64) (*coordinator.Allocation, error) {
	var row CargoAllocation
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("cargo_id = ? AND storage_unit_id = ?", cargoID, unitID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &coordinator.Allocation{
		CargoID:             row.CargoID,
		StorageUnitID:       row.StorageUnitID,
		Quantity:            row.Quantity,
		LastCheckedByUserID: row.LastCheckedByUserID,
		LastInventoryCheck:  row.LastInventoryCheck,
	}, nil
}

func (s *GormStore) SaveAllocation(ctx context.Context, a *coordinator.Allocation) error {
	db := s.db.WithContext(ctx)

	var row CargoAllocation
	err := db.Where("cargo_id = ? AND storage_unit_id = ?", a.CargoID, a.StorageUnitID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		row = CargoAllocation{CargoID: a.CargoID, StorageUnitID: a.StorageUnitID}
	} else if err != nil {
		return err
	}

	row.Quantity = a.Quantity
	row.LastCheckedByUserID = a.LastCheckedByUserID
	row.LastInventoryCheck = a.LastInventoryCheck
	return db.Save(&row).Error
}

func (s *GormStore) AppendTransaction(ctx context.Context, t *coordinator.Transaction) error {
	row := CargoTransaction{
		Type:              string(t.Type),
		CargoID:           t.CargoID,
		Quantity:          t.Quantity,
		FromStorageUnitID: t.FromStorageUnitID,
		ToStorageUnitID:   t.ToStorageUnitID,
		FromSpacecraftID:  t.FromSpacecraftID,
		ToSpacecraftID:    t.ToSpacecraftID,
		PerformedByUserID: t.PerformedByUserID,
		TransactionDate:   t.TransactionDate,
		ReferenceCode:     t.ReferenceCode,
		Notes:             t.Notes,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	t.ID = row.ID
	return nil
}

func (s *GormStore) AllocationsForUnit(ctx context.Context, unitID int64) ([]coordinator.Allocation, error) {
	var rows []CargoAllocation
	if err := s.db.WithContext(ctx).Where("storage_unit_id = ?", unitID).Find(&rows).Error; err != nil {
		return nil, err
	}

	allocs := make([]coordinator.Allocation, len(rows))
	for i, row := range rows {
		allocs[i] = coordinator.Allocation{
			CargoID:             row.CargoID,
			StorageUnitID:       row.StorageUnitID,
			Quantity:            row.Quantity,
			LastCheckedByUserID: row.LastCheckedByUserID,
			LastInventoryCheck:  row.LastInventoryCheck,
		}
	}
	return allocs, nil
}

func lockUnit(tx *gorm.DB, unitID int64) (*StorageUnit, error) {
	var row StorageUnit
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, unitID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apierr.NotFound("storage unit", unitID)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func toLedgerUnit(row *StorageUnit) (ledger.Unit, error) {
	maxMass, err := decimal.NewFromString(row.MaxMass)
	if err != nil {
		return ledger.Unit{}, err
	}
	maxVolume, err := decimal.NewFromString(row.MaxVolume)
	if err != nil {
		return ledger.Unit{}, err
	}
	currentMass, err := decimal.NewFromString(row.CurrentMass)
	if err != nil {
		return ledger.Unit{}, err
	}
	currentVolume, err := decimal.NewFromString(row.CurrentVolume)
	if err != nil {
		return ledger.Unit{}, err
	}
	return ledger.Unit{
		ID:            row.ID,
		MaxMass:       maxMass,
		MaxVolume:     maxVolume,
		CurrentMass:   currentMass,
		CurrentVolume: currentVolume,
	}, nil
}

func saveUsage(tx *gorm.DB, row *StorageUnit, u ledger.Unit) error {
	row.CurrentMass = u.CurrentMass.String()
	row.CurrentVolume = u.CurrentVolume.String()
	return tx.Model(row).Updates(map[string]interface{}{
		"current_mass":   row.CurrentMass,
		"current_volume": row.CurrentVolume,
	}).Error
}
