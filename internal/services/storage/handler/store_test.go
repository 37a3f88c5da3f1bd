package handler

import (
	"context"
	"strings"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// dryRunStore opens a connectionless gorm handle that builds SQL without
// executing it and records every generated query.
func dryRunStore(t *testing.T) (*GormStore, *[]string) {
	t.Helper()

	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("open dry-run handle: %v", err)
	}

	queries := &[]string{}
	err = db.Callback().Query().After("gorm:query").Register("record_query_sql", func(tx *gorm.DB) {
		*queries = append(*queries, tx.Statement.SQL.String())
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}
	return NewGormStore(db), queries
}

// The stored-quantity check for UNLOAD and TRANSFER reads the allocation row
// and writes it back in the same transaction. The read must carry FOR UPDATE
// or two concurrent unloads both pass the check against the same snapshot.
func TestAllocation_ReadLocksRow(t *testing.T) {
	store, queries := dryRunStore(t)

	if _, err := store.Allocation(context.Background(), 7, 1); err != nil {
		t.Fatalf("Allocation: %v", err)
	}

	if len(*queries) != 1 {
		t.Fatalf("expected one query, got %d", len(*queries))
	}
	q := (*queries)[0]
	if !strings.Contains(q, "FOR UPDATE") {
		t.Errorf("allocation read is not locked: %q", q)
	}
	if !strings.Contains(q, "cargo_id") || !strings.Contains(q, "storage_unit_id") {
		t.Errorf("allocation read not keyed by cargo and unit: %q", q)
	}
}

func TestLockUnit_ReadLocksRow(t *testing.T) {
	store, queries := dryRunStore(t)

	if _, err := lockUnit(store.db, 1); err != nil {
		t.Fatalf("lockUnit: %v", err)
	}

	if len(*queries) != 1 {
		t.Fatalf("expected one query, got %d", len(*queries))
	}
	if q := (*queries)[0]; !strings.Contains(q, "FOR UPDATE") {
		t.Errorf("unit read is not locked: %q", q)
	}
}
