package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"novafreight-system/internal/platform/apierr"
	"novafreight-system/internal/platform/logger"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func newTestLedger(units ...Unit) (*Ledger, *MemoryStore) {
	store := NewMemoryStore()
	for _, u := range units {
		store.Seed(u)
	}
	return New(store, logger.NewNop()), store
}

func unit(t *testing.T, id int64, maxMass, maxVol, curMass, curVol string) Unit {
	return Unit{
		ID:            id,
		MaxMass:       dec(t, maxMass),
		MaxVolume:     dec(t, maxVol),
		CurrentMass:   dec(t, curMass),
		CurrentVolume: dec(t, curVol),
	}
}

func TestAllocate_ExactBoundary(t *testing.T) {
	// maxMass=1000 maxVolume=50, currently 975/49.5; 10 units of a
	// 2.5kg/0.05m3 cargo fit exactly.
	led, _ := newTestLedger(unit(t, 1, "1000", "50", "975", "49.5"))

	got, err := led.Allocate(context.Background(), 1, dec(t, "25"), dec(t, "0.5"))
	if err != nil {
		t.Fatalf("expected boundary allocate to succeed, got %v", err)
	}
	if !got.CurrentMass.Equal(dec(t, "1000")) {
		t.Errorf("expected mass 1000, got %s", got.CurrentMass)
	}
	if !got.CurrentVolume.Equal(dec(t, "50")) {
		t.Errorf("expected volume 50, got %s", got.CurrentVolume)
	}
}

func TestAllocate_InsufficientMass(t *testing.T) {
	led, store := newTestLedger(unit(t, 1, "1000", "50", "995", "49.5"))

	_, err := led.Allocate(context.Background(), 1, dec(t, "25"), dec(t, "0.5"))
	if !apierr.IsCode(err, apierr.CodeInsufficientCapacity) {
		t.Fatalf("expected INSUFFICIENT_CAPACITY, got %v", err)
	}

	u, _ := store.Snapshot(1)
	if !u.CurrentMass.Equal(dec(t, "995")) || !u.CurrentVolume.Equal(dec(t, "49.5")) {
		t.Errorf("counters changed after rejected allocate: %s/%s", u.CurrentMass, u.CurrentVolume)
	}
}

func TestAllocate_MassFitsVolumeDoesNot(t *testing.T) {
	led, store := newTestLedger(unit(t, 1, "1000", "50", "100", "49.9"))

	_, err := led.Allocate(context.Background(), 1, dec(t, "25"), dec(t, "0.5"))
	if !apierr.IsCode(err, apierr.CodeInsufficientCapacity) {
		t.Fatalf("expected INSUFFICIENT_CAPACITY, got %v", err)
	}

	// Neither dimension may be applied partially.
	u, _ := store.Snapshot(1)
	if !u.CurrentMass.Equal(dec(t, "100")) {
		t.Errorf("mass was partially applied: %s", u.CurrentMass)
	}
}

func TestRelease_BelowZeroIsInconsistency(t *testing.T) {
	led, store := newTestLedger(unit(t, 1, "1000", "50", "10", "1"))

	_, err := led.Release(context.Background(), 1, dec(t, "25"), dec(t, "0.5"))
	if !apierr.IsCode(err, apierr.CodeLedgerInconsistency) {
		t.Fatalf("expected LEDGER_INCONSISTENCY, got %v", err)
	}

	u, _ := store.Snapshot(1)
	if !u.CurrentMass.Equal(dec(t, "10")) {
		t.Errorf("mass mutated on refused release: %s", u.CurrentMass)
	}
}

func TestAdjust_DecreaseBypassesCeiling(t *testing.T) {
	// Unit is over capacity from drift; a decrease must still go through.
	led, _ := newTestLedger(unit(t, 1, "1000", "50", "1100", "55"))

	got, err := led.Adjust(context.Background(), 1, dec(t, "-50"), dec(t, "-2"))
	if err != nil {
		t.Fatalf("decrease on an over-capacity unit must succeed, got %v", err)
	}
	if !got.CurrentMass.Equal(dec(t, "1050")) {
		t.Errorf("expected mass 1050, got %s", got.CurrentMass)
	}
}

func TestAdjust_IncreaseChecksCeiling(t *testing.T) {
	led, _ := newTestLedger(unit(t, 1, "1000", "50", "990", "40"))

	_, err := led.Adjust(context.Background(), 1, dec(t, "20"), dec(t, "1"))
	if !apierr.IsCode(err, apierr.CodeInsufficientCapacity) {
		t.Fatalf("expected INSUFFICIENT_CAPACITY, got %v", err)
	}
}

func TestAdjust_MixedSignsEvaluatedTogether(t *testing.T) {
	led, _ := newTestLedger(unit(t, 1, "1000", "50", "990", "49"))

	// Mass grows within capacity while volume shrinks; one combined check.
	got, err := led.Adjust(context.Background(), 1, dec(t, "5"), dec(t, "-1"))
	if err != nil {
		t.Fatalf("expected mixed adjust to succeed, got %v", err)
	}
	if !got.CurrentMass.Equal(dec(t, "995")) || !got.CurrentVolume.Equal(dec(t, "48")) {
		t.Errorf("unexpected totals %s/%s", got.CurrentMass, got.CurrentVolume)
	}
}

func TestAdjust_FloorAlwaysChecked(t *testing.T) {
	led, _ := newTestLedger(unit(t, 1, "1000", "50", "10", "1"))

	_, err := led.Adjust(context.Background(), 1, dec(t, "-20"), dec(t, "0"))
	if !apierr.IsCode(err, apierr.CodeLedgerInconsistency) {
		t.Fatalf("expected LEDGER_INCONSISTENCY, got %v", err)
	}
}

func TestRecompute_Idempotent(t *testing.T) {
	led, _ := newTestLedger(unit(t, 1, "1000", "50", "123", "4.5"))

	records := []AllocationRecord{
		{CargoID: 7, Quantity: 10, MassPerUnit: dec(t, "2.5"), VolumePerUnit: dec(t, "0.05")},
		{CargoID: 9, Quantity: 4, MassPerUnit: dec(t, "12"), VolumePerUnit: dec(t, "1.25")},
	}

	first, err := led.Recompute(context.Background(), 1, records)
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	second, err := led.Recompute(context.Background(), 1, records)
	if err != nil {
		t.Fatalf("second recompute failed: %v", err)
	}

	// 10*2.5 + 4*12 = 73 mass, 10*0.05 + 4*1.25 = 5.5 volume.
	if !first.CurrentMass.Equal(dec(t, "73")) || !first.CurrentVolume.Equal(dec(t, "5.5")) {
		t.Errorf("unexpected derived totals %s/%s", first.CurrentMass, first.CurrentVolume)
	}
	if !first.CurrentMass.Equal(second.CurrentMass) || !first.CurrentVolume.Equal(second.CurrentVolume) {
		t.Errorf("recompute not idempotent: %s/%s vs %s/%s",
			first.CurrentMass, first.CurrentVolume, second.CurrentMass, second.CurrentVolume)
	}
}

func TestAllocate_NoDoubleSpendUnderConcurrency(t *testing.T) {
	// Room for exactly 9 of 10 concurrent allocations.
	const workers = 10
	led, store := newTestLedger(unit(t, 1, "90", "90", "0", "0"))

	ten := dec(t, "10")
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := led.Allocate(context.Background(), 1, ten, ten)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, rejected int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case apierr.IsCode(err, apierr.CodeInsufficientCapacity):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != workers-1 || rejected != 1 {
		t.Fatalf("expected %d successes and 1 rejection, got %d/%d", workers-1, ok, rejected)
	}

	u, _ := store.Snapshot(1)
	if !u.CurrentMass.Equal(dec(t, "90")) {
		t.Errorf("expected mass at capacity 90, got %s", u.CurrentMass)
	}
}

func TestTransfer_DestinationFailureLeavesSourceUntouched(t *testing.T) {
	led, store := newTestLedger(
		unit(t, 1, "1000", "50", "500", "20"),
		unit(t, 2, "100", "10", "95", "9"),
	)

	_, _, err := led.Transfer(context.Background(), 1, 2, dec(t, "50"), dec(t, "2"))
	if !apierr.IsCode(err, apierr.CodeInsufficientCapacity) {
		t.Fatalf("expected INSUFFICIENT_CAPACITY, got %v", err)
	}

	from, _ := store.Snapshot(1)
	if !from.CurrentMass.Equal(dec(t, "500")) || !from.CurrentVolume.Equal(dec(t, "20")) {
		t.Errorf("source mutated on failed transfer: %s/%s", from.CurrentMass, from.CurrentVolume)
	}
}

func TestTransfer_MovesBothDimensions(t *testing.T) {
	led, store := newTestLedger(
		unit(t, 1, "1000", "50", "500", "20"),
		unit(t, 2, "1000", "50", "100", "5"),
	)

	from, to, err := led.Transfer(context.Background(), 1, 2, dec(t, "50"), dec(t, "2"))
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if !from.CurrentMass.Equal(dec(t, "450")) || !to.CurrentMass.Equal(dec(t, "150")) {
		t.Errorf("unexpected masses %s / %s", from.CurrentMass, to.CurrentMass)
	}
	if !from.CurrentVolume.Equal(dec(t, "18")) || !to.CurrentVolume.Equal(dec(t, "7")) {
		t.Errorf("unexpected volumes %s / %s", from.CurrentVolume, to.CurrentVolume)
	}

	u1, _ := store.Snapshot(1)
	u2, _ := store.Snapshot(2)
	if !u1.CurrentMass.Equal(dec(t, "450")) || !u2.CurrentMass.Equal(dec(t, "150")) {
		t.Errorf("persisted state does not match returned totals")
	}
}

func TestTransfer_OpposingDirectionsDoNotDeadlock(t *testing.T) {
	led, _ := newTestLedger(
		unit(t, 1, "10000", "10000", "5000", "5000"),
		unit(t, 2, "10000", "10000", "5000", "5000"),
	)

	const rounds = 200
	one := dec(t, "1")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, _, _ = led.Transfer(context.Background(), 1, 2, one, one)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, _, _ = led.Transfer(context.Background(), 2, 1, one, one)
		}
	}()
	wg.Wait()
}

func TestAllocate_UnknownUnit(t *testing.T) {
	led, _ := newTestLedger()

	_, err := led.Allocate(context.Background(), 42, dec(t, "1"), dec(t, "1"))
	if !apierr.IsCode(err, apierr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
