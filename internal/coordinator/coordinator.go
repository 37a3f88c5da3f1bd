package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"novafreight-system/internal/ledger"
	"novafreight-system/internal/platform/apierr"
	"novafreight-system/internal/platform/logger"
	"novafreight-system/internal/validator"
)

type TransactionType string

const (
	TypeLoad       TransactionType = "LOAD"
	TypeUnload     TransactionType = "UNLOAD"
	TypeTransfer   TransactionType = "TRANSFER"
	TypeAdjustment TransactionType = "ADJUSTMENT"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeLoad, TypeUnload, TypeTransfer, TypeAdjustment:
		return true
	}
	return false
}

// Transaction is one immutable entry of the movement audit trail. Quantity is
// positive for LOAD/UNLOAD/TRANSFER; for ADJUSTMENT it is the signed change
// of the stored count, so current state can be replayed from the log.
type Transaction struct {
	ID                int64
	Type              TransactionType
	CargoID           int64
	Quantity          int64
	FromStorageUnitID *int64
	ToStorageUnitID   *int64
	FromSpacecraftID  *int64
	ToSpacecraftID    *int64
	PerformedByUserID int64
	TransactionDate   time.Time
	ReferenceCode     string
	Notes             string
}

// Request is a parsed mutation request. For ADJUSTMENT, Quantity carries the
// corrected absolute count for the targeted allocation.
type Request struct {
	Type              TransactionType
	CargoID           int64
	Quantity          int64
	FromStorageUnitID *int64
	ToStorageUnitID   *int64
	FromSpacecraftID  *int64
	ToSpacecraftID    *int64
	PerformedByUserID int64
	Notes             string
}

// Allocation is how much of one cargo sits in one storage unit.
type Allocation struct {
	CargoID             int64
	StorageUnitID       int64
	Quantity            int64
	LastCheckedByUserID *int64
	LastInventoryCheck  *time.Time
}

// CargoInfo is the footprint resolved from the cargo service.
type CargoInfo struct {
	ID            int64
	Name          string
	MassPerUnit   decimal.Decimal
	VolumePerUnit decimal.Decimal
}

type CargoLookup interface {
	CargoByID(ctx context.Context, id int64) (*CargoInfo, error)
}

// TxStore is the storage surface visible inside one atomic unit. There is
// deliberately no way to update or delete an appended transaction.
type TxStore interface {
	ledger.Store
	Allocation(ctx context.Context, cargoID, unitID int64) (*Allocation, error)
	SaveAllocation(ctx context.Context, a *Allocation) error
	AppendTransaction(ctx context.Context, t *Transaction) error
}

type Store interface {
	ledger.Store
	// InTx runs fn as one local atomic unit: either the ledger mutation,
	// the allocation bookkeeping and the log append all commit, or none do.
	InTx(ctx context.Context, fn func(tx TxStore) error) error
	AllocationsForUnit(ctx context.Context, unitID int64) ([]Allocation, error)
}

// Coordinator glues validation, the capacity ledger and the transaction log
// together: validate remote references first, then mutate the ledger, then
// append the log entry, all rejections happening before anything later in
// the chain is touched.
type Coordinator struct {
	store     Store
	validator *validator.Validator
	cargo     CargoLookup
	log       *logger.Logger
	now       func() time.Time
}

func New(store Store, v *validator.Validator, cargo CargoLookup, log *logger.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		validator: v,
		cargo:     cargo,
		log:       log,
		now:       time.Now,
	}
}

func (c *Coordinator) RecordTransaction(ctx context.Context, req Request) (*Transaction, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	if err := c.validator.ValidateRefs(ctx, req.refs()...); err != nil {
		return nil, err
	}

	info, err := c.cargo.CargoByID(ctx, req.CargoID)
	if err != nil {
		return nil, err
	}

	var txn *Transaction
	err = c.store.InTx(ctx, func(tx TxStore) error {
		led := ledger.New(tx, c.log)

		var logged int64
		var applyErr error
		switch req.Type {
		case TypeLoad:
			logged, applyErr = c.applyLoad(ctx, tx, led, req, info)
		case TypeUnload:
			logged, applyErr = c.applyUnload(ctx, tx, led, req, info)
		case TypeTransfer:
			logged, applyErr = c.applyTransfer(ctx, tx, led, req, info)
		case TypeAdjustment:
			logged, applyErr = c.applyAdjustment(ctx, tx, led, req, info)
		}
		if applyErr != nil {
			return applyErr
		}

		txn = &Transaction{
			Type:              req.Type,
			CargoID:           req.CargoID,
			Quantity:          logged,
			FromStorageUnitID: req.FromStorageUnitID,
			ToStorageUnitID:   req.ToStorageUnitID,
			FromSpacecraftID:  req.FromSpacecraftID,
			ToSpacecraftID:    req.ToSpacecraftID,
			PerformedByUserID: req.PerformedByUserID,
			TransactionDate:   c.now(),
			ReferenceCode:     uuid.NewString(),
			Notes:             req.Notes,
		}
		return tx.AppendTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("cargo transaction recorded",
		"type", string(txn.Type), "cargo_id", txn.CargoID,
		"quantity", txn.Quantity, "reference_code", txn.ReferenceCode)
	return txn, nil
}

func (c *Coordinator) applyLoad(ctx context.Context, tx TxStore, led *ledger.Ledger, req Request, info *CargoInfo) (int64, error) {
	unitID := *req.ToStorageUnitID
	mass, volume := footprint(info, req.Quantity)
	if _, err := led.Allocate(ctx, unitID, mass, volume); err != nil {
		return 0, err
	}
	return req.Quantity, c.addToAllocation(ctx, tx, req.CargoID, unitID, req.Quantity, req.PerformedByUserID)
}

func (c *Coordinator) applyUnload(ctx context.Context, tx TxStore, led *ledger.Ledger, req Request, info *CargoInfo) (int64, error) {
	unitID := *req.FromStorageUnitID
	if err := c.takeFromAllocation(ctx, tx, req.CargoID, unitID, req.Quantity, req.PerformedByUserID); err != nil {
		return 0, err
	}
	mass, volume := footprint(info, req.Quantity)
	if _, err := led.Release(ctx, unitID, mass, volume); err != nil {
		return 0, err
	}
	return req.Quantity, nil
}

func (c *Coordinator) applyTransfer(ctx context.Context, tx TxStore, led *ledger.Ledger, req Request, info *CargoInfo) (int64, error) {
	fromID, toID := *req.FromStorageUnitID, *req.ToStorageUnitID
	if err := c.takeFromAllocation(ctx, tx, req.CargoID, fromID, req.Quantity, req.PerformedByUserID); err != nil {
		return 0, err
	}
	mass, volume := footprint(info, req.Quantity)
	if _, _, err := led.Transfer(ctx, fromID, toID, mass, volume); err != nil {
		return 0, err
	}
	return req.Quantity, c.addToAllocation(ctx, tx, req.CargoID, toID, req.Quantity, req.PerformedByUserID)
}

func (c *Coordinator) applyAdjustment(ctx context.Context, tx TxStore, led *ledger.Ledger, req Request, info *CargoInfo) (int64, error) {
	unitID := *req.ToStorageUnitID
	alloc, err := tx.Allocation(ctx, req.CargoID, unitID)
	if err != nil {
		return 0, err
	}
	if alloc == nil {
		alloc = &Allocation{CargoID: req.CargoID, StorageUnitID: unitID}
	}

	diff := req.Quantity - alloc.Quantity
	massDelta := decimal.NewFromInt(diff).Mul(info.MassPerUnit)
	volumeDelta := decimal.NewFromInt(diff).Mul(info.VolumePerUnit)
	if _, err := led.Adjust(ctx, unitID, massDelta, volumeDelta); err != nil {
		return 0, err
	}

	alloc.Quantity = req.Quantity
	c.stamp(alloc, req.PerformedByUserID)
	if err := tx.SaveAllocation(ctx, alloc); err != nil {
		return 0, err
	}
	return diff, nil
}

// RecomputeUnit re-derives a unit's usage from its live allocation records,
// resolving each cargo footprint remotely. Self-healing for drift detected
// by a LEDGER_INCONSISTENCY rejection or a periodic audit.
func (c *Coordinator) RecomputeUnit(ctx context.Context, unitID int64) (ledger.Unit, error) {
	allocs, err := c.store.AllocationsForUnit(ctx, unitID)
	if err != nil {
		return ledger.Unit{}, err
	}

	records := make([]ledger.AllocationRecord, 0, len(allocs))
	for _, a := range allocs {
		if a.Quantity == 0 {
			continue
		}
		info, err := c.cargo.CargoByID(ctx, a.CargoID)
		if err != nil {
			return ledger.Unit{}, err
		}
		records = append(records, ledger.AllocationRecord{
			CargoID:       a.CargoID,
			Quantity:      a.Quantity,
			MassPerUnit:   info.MassPerUnit,
			VolumePerUnit: info.VolumePerUnit,
		})
	}

	return ledger.New(c.store, c.log).Recompute(ctx, unitID, records)
}

func (c *Coordinator) addToAllocation(ctx context.Context, tx TxStore, cargoID, unitID, qty, userID int64) error {
	alloc, err := tx.Allocation(ctx, cargoID, unitID)
	if err != nil {
		return err
	}
	if alloc == nil {
		alloc = &Allocation{CargoID: cargoID, StorageUnitID: unitID}
	}
	alloc.Quantity += qty
	c.stamp(alloc, userID)
	return tx.SaveAllocation(ctx, alloc)
}

func (c *Coordinator) takeFromAllocation(ctx context.Context, tx TxStore, cargoID, unitID, qty, userID int64) error {
	alloc, err := tx.Allocation(ctx, cargoID, unitID)
	if err != nil {
		return err
	}
	stored := int64(0)
	if alloc != nil {
		stored = alloc.Quantity
	}
	if stored < qty {
		return apierr.InsufficientStock(cargoID, unitID,
			decimal.NewFromInt(stored).String(), decimal.NewFromInt(qty).String())
	}
	alloc.Quantity -= qty
	c.stamp(alloc, userID)
	return tx.SaveAllocation(ctx, alloc)
}

func (c *Coordinator) stamp(a *Allocation, userID int64) {
	now := c.now()
	a.LastCheckedByUserID = &userID
	a.LastInventoryCheck = &now
}

func footprint(info *CargoInfo, quantity int64) (decimal.Decimal, decimal.Decimal) {
	qty := decimal.NewFromInt(quantity)
	return qty.Mul(info.MassPerUnit), qty.Mul(info.VolumePerUnit)
}

func (r Request) validate() error {
	if !r.Type.Valid() {
		return apierr.InvalidArgument("unknown transaction type " + string(r.Type))
	}
	if r.PerformedByUserID == 0 {
		return apierr.InvalidArgument("performed_by_user_id is required")
	}
	if r.CargoID == 0 {
		return apierr.InvalidArgument("cargo_id is required")
	}

	switch r.Type {
	case TypeLoad:
		if r.ToStorageUnitID == nil {
			return apierr.InvalidArgument("LOAD requires to_storage_unit_id")
		}
		if r.Quantity <= 0 {
			return apierr.InvalidArgument("quantity must be greater than 0")
		}
	case TypeUnload:
		if r.FromStorageUnitID == nil {
			return apierr.InvalidArgument("UNLOAD requires from_storage_unit_id")
		}
		if r.Quantity <= 0 {
			return apierr.InvalidArgument("quantity must be greater than 0")
		}
	case TypeTransfer:
		if r.FromStorageUnitID == nil || r.ToStorageUnitID == nil {
			return apierr.InvalidArgument("TRANSFER requires both storage unit ids")
		}
		if *r.FromStorageUnitID == *r.ToStorageUnitID {
			return apierr.InvalidArgument("cannot transfer to the same unit")
		}
		if r.Quantity <= 0 {
			return apierr.InvalidArgument("quantity must be greater than 0")
		}
	case TypeAdjustment:
		if r.ToStorageUnitID == nil {
			return apierr.InvalidArgument("ADJUSTMENT requires to_storage_unit_id")
		}
		if r.Quantity < 0 {
			return apierr.InvalidArgument("adjusted quantity must not be negative")
		}
	}
	return nil
}

// refs lists every foreign reference the request names. They live in other
// services, so all of them go through the validator before any local write.
func (r Request) refs() []validator.Ref {
	refs := []validator.Ref{
		{Kind: validator.KindCargo, ID: r.CargoID},
		{Kind: validator.KindUser, ID: r.PerformedByUserID},
	}
	for _, unitID := range []*int64{r.FromStorageUnitID, r.ToStorageUnitID} {
		if unitID != nil {
			refs = append(refs, validator.Ref{Kind: validator.KindStorageUnit, ID: *unitID})
		}
	}
	for _, craftID := range []*int64{r.FromSpacecraftID, r.ToSpacecraftID} {
		if craftID != nil {
			refs = append(refs, validator.Ref{Kind: validator.KindSpacecraft, ID: *craftID})
		}
	}
	return refs
}
