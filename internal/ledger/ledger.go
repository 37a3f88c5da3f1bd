package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"novafreight-system/internal/platform/apierr"
	"novafreight-system/internal/platform/logger"
	"novafreight-system/internal/platform/metrics"
)

// Unit is the capacity snapshot a ledger operation works on. CurrentMass and
// CurrentVolume must satisfy 0 <= current <= max after every committed
// mutation; the store guarantees exclusive access while a mutation runs.
type Unit struct {
	ID            int64
	MaxMass       decimal.Decimal
	MaxVolume     decimal.Decimal
	CurrentMass   decimal.Decimal
	CurrentVolume decimal.Decimal
}

// AllocationRecord is one live allocation with its cargo footprint resolved,
// used by Recompute to re-derive unit usage from scratch.
type AllocationRecord struct {
	CargoID       int64
	Quantity      int64
	MassPerUnit   decimal.Decimal
	VolumePerUnit decimal.Decimal
}

// Store serializes access to unit capacity counters. Mutations made inside
// fn are persisted only when fn returns nil; on error nothing is written.
type Store interface {
	// WithUnit runs fn with exclusive access to the unit.
	WithUnit(ctx context.Context, unitID int64, fn func(u *Unit) error) error
	// WithUnitPair locks both units, always in ascending id order, and runs
	// fn with a bound to aID and b bound to bID.
	WithUnitPair(ctx context.Context, aID, bID int64, fn func(a, b *Unit) error) error
}

type Ledger struct {
	store Store
	log   *logger.Logger
}

func New(store Store, log *logger.Logger) *Ledger {
	return &Ledger{store: store, log: log}
}

// Allocate commits requiredMass and requiredVolume against the unit. Both
// ceilings are checked before either counter moves; exact capacity match is
// allowed.
func (l *Ledger) Allocate(ctx context.Context, unitID int64, requiredMass, requiredVolume decimal.Decimal) (Unit, error) {
	if requiredMass.Sign() < 0 || requiredVolume.Sign() < 0 {
		return Unit{}, apierr.InvalidArgument("allocate amounts must not be negative")
	}

	var out Unit
	err := l.store.WithUnit(ctx, unitID, func(u *Unit) error {
		if err := applyAllocate(u, requiredMass, requiredVolume); err != nil {
			return l.reject(err)
		}
		out = *u
		return nil
	})
	return out, err
}

// Release returns mass and volume to the unit. Driving either counter below
// zero means upstream state has drifted; the release is refused loudly
// instead of clamping.
func (l *Ledger) Release(ctx context.Context, unitID int64, mass, volume decimal.Decimal) (Unit, error) {
	if mass.Sign() < 0 || volume.Sign() < 0 {
		return Unit{}, apierr.InvalidArgument("release amounts must not be negative")
	}

	var out Unit
	err := l.store.WithUnit(ctx, unitID, func(u *Unit) error {
		if err := applyRelease(u, mass, volume); err != nil {
			l.log.Error("capacity release refused, run a recompute for this unit",
				"unit_id", unitID, "mass", mass.String(), "volume", volume.String())
			return l.reject(err)
		}
		out = *u
		return nil
	})
	return out, err
}

// Adjust applies signed deltas as one combined check. The ceiling check runs
// only for a positive delta: a decrease can never violate a maximum, and it
// must still succeed on a unit that is over capacity from drift. The floor
// check always runs.
func (l *Ledger) Adjust(ctx context.Context, unitID int64, massDelta, volumeDelta decimal.Decimal) (Unit, error) {
	var out Unit
	err := l.store.WithUnit(ctx, unitID, func(u *Unit) error {
		if err := applyAdjust(u, massDelta, volumeDelta); err != nil {
			return l.reject(err)
		}
		out = *u
		return nil
	})
	return out, err
}

// Transfer moves mass and volume between two units. The destination ceiling
// is evaluated before anything mutates, so a destination failure leaves the
// source untouched.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID int64, mass, volume decimal.Decimal) (Unit, Unit, error) {
	if fromID == toID {
		return Unit{}, Unit{}, apierr.InvalidArgument("cannot transfer to the same unit")
	}
	if mass.Sign() < 0 || volume.Sign() < 0 {
		return Unit{}, Unit{}, apierr.InvalidArgument("transfer amounts must not be negative")
	}

	var outFrom, outTo Unit
	err := l.store.WithUnitPair(ctx, fromID, toID, func(from, to *Unit) error {
		if err := checkAllocate(to, mass, volume); err != nil {
			return l.reject(err)
		}
		if err := applyRelease(from, mass, volume); err != nil {
			return l.reject(err)
		}
		if err := applyAllocate(to, mass, volume); err != nil {
			return l.reject(err)
		}
		outFrom, outTo = *from, *to
		return nil
	})
	return outFrom, outTo, err
}

// Recompute re-derives usage from the full set of live allocation records.
// Idempotent: applying it twice with no intervening mutation yields the same
// counters.
func (l *Ledger) Recompute(ctx context.Context, unitID int64, records []AllocationRecord) (Unit, error) {
	var out Unit
	err := l.store.WithUnit(ctx, unitID, func(u *Unit) error {
		mass := decimal.Zero
		volume := decimal.Zero
		for _, r := range records {
			qty := decimal.NewFromInt(r.Quantity)
			mass = mass.Add(qty.Mul(r.MassPerUnit))
			volume = volume.Add(qty.Mul(r.VolumePerUnit))
		}
		if !mass.Equal(u.CurrentMass) || !volume.Equal(u.CurrentVolume) {
			l.log.Warn("recompute corrected capacity drift",
				"unit_id", unitID,
				"stored_mass", u.CurrentMass.String(), "derived_mass", mass.String(),
				"stored_volume", u.CurrentVolume.String(), "derived_volume", volume.String())
		}
		u.CurrentMass = mass
		u.CurrentVolume = volume
		out = *u
		return nil
	})
	return out, err
}

func (l *Ledger) reject(err error) error {
	metrics.RejectedMutations.WithLabelValues(apierr.CodeOf(err)).Inc()
	return err
}

func checkAllocate(u *Unit, mass, volume decimal.Decimal) error {
	if u.CurrentMass.Add(mass).GreaterThan(u.MaxMass) {
		return apierr.InsufficientCapacity("mass", mass.String(), u.MaxMass.Sub(u.CurrentMass).String())
	}
	if u.CurrentVolume.Add(volume).GreaterThan(u.MaxVolume) {
		return apierr.InsufficientCapacity("volume", volume.String(), u.MaxVolume.Sub(u.CurrentVolume).String())
	}
	return nil
}

func applyAllocate(u *Unit, mass, volume decimal.Decimal) error {
	if err := checkAllocate(u, mass, volume); err != nil {
		return err
	}
	u.CurrentMass = u.CurrentMass.Add(mass)
	u.CurrentVolume = u.CurrentVolume.Add(volume)
	return nil
}

func applyRelease(u *Unit, mass, volume decimal.Decimal) error {
	newMass := u.CurrentMass.Sub(mass)
	newVolume := u.CurrentVolume.Sub(volume)
	if newMass.Sign() < 0 {
		return apierr.LedgerInconsistency(u.ID, "release would drive mass usage below zero")
	}
	if newVolume.Sign() < 0 {
		return apierr.LedgerInconsistency(u.ID, "release would drive volume usage below zero")
	}
	u.CurrentMass = newMass
	u.CurrentVolume = newVolume
	return nil
}

func applyAdjust(u *Unit, massDelta, volumeDelta decimal.Decimal) error {
	newMass := u.CurrentMass.Add(massDelta)
	newVolume := u.CurrentVolume.Add(volumeDelta)
	if newMass.Sign() < 0 {
		return apierr.LedgerInconsistency(u.ID, "adjustment would drive mass usage below zero")
	}
	if newVolume.Sign() < 0 {
		return apierr.LedgerInconsistency(u.ID, "adjustment would drive volume usage below zero")
	}
	if massDelta.Sign() > 0 && newMass.GreaterThan(u.MaxMass) {
		return apierr.InsufficientCapacity("mass", massDelta.String(), u.MaxMass.Sub(u.CurrentMass).String())
	}
	if volumeDelta.Sign() > 0 && newVolume.GreaterThan(u.MaxVolume) {
		return apierr.InsufficientCapacity("volume", volumeDelta.String(), u.MaxVolume.Sub(u.CurrentVolume).String())
	}
	u.CurrentMass = newMass
	u.CurrentVolume = newVolume
	return nil
}
