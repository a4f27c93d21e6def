package inventory

import (
	"testing"
	"time"
)

func batchFor(batchNumber string, available int, expiry time.Time, status BatchStatus) *InventoryBatch {
	return &InventoryBatch{
		BatchNumber:    batchNumber,
		CurrentStock:   available,
		AvailableStock: available,
		ExpiryDate:     expiry,
		Status:         status,
	}
}

func TestSelectFIFOBatch_EarliestExpiryFirst(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	batches := []*InventoryBatch{
		batchFor("B2", 50, now.AddDate(0, 6, 0), BatchNormal),
		batchFor("B1", 50, now.AddDate(0, 1, 0), BatchNormal),
	}
	got := selectFIFOBatch(batches, 20, now)
	if got == nil || got.BatchNumber != "B1" {
		t.Fatalf("expected B1 (earliest expiry), got %v", got)
	}
}

func TestSelectFIFOBatch_TieBreakOnBatchNumber(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	expiry := now.AddDate(0, 3, 0)
	batches := []*InventoryBatch{
		batchFor("B9", 50, expiry, BatchNormal),
		batchFor("B1", 50, expiry, BatchNormal),
	}
	got := selectFIFOBatch(batches, 20, now)
	if got == nil || got.BatchNumber != "B1" {
		t.Fatalf("expected B1 on tie-break, got %v", got)
	}
}

func TestSelectFIFOBatch_SkipsUndispensable(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	batches := []*InventoryBatch{
		batchFor("B1", 50, now.AddDate(0, 0, -1), BatchNormal), // expired
		batchFor("B2", 50, now.AddDate(0, 1, 0), BatchDamaged),
		batchFor("B3", 50, now.AddDate(0, 2, 0), BatchFrozen),
		batchFor("B4", 0, now.AddDate(0, 3, 0), BatchNormal), // empty
		batchFor("B5", 50, now.AddDate(0, 4, 0), BatchNormal),
	}
	got := selectFIFOBatch(batches, 20, now)
	if got == nil || got.BatchNumber != "B5" {
		t.Fatalf("expected B5, got %v", got)
	}
}

func TestSelectFIFOBatch_SkipsBatchTooSmall(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	batches := []*InventoryBatch{
		batchFor("B1", 10, now.AddDate(0, 1, 0), BatchNormal),
		batchFor("B2", 40, now.AddDate(0, 2, 0), BatchNormal),
	}
	got := selectFIFOBatch(batches, 25, now)
	if got == nil || got.BatchNumber != "B2" {
		t.Fatalf("expected B2 (B1 too small), got %v", got)
	}
}

func TestSelectFIFOBatch_NoSingleBatchSuffices(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	batches := []*InventoryBatch{
		batchFor("B1", 10, now.AddDate(0, 1, 0), BatchNormal),
		batchFor("B2", 15, now.AddDate(0, 2, 0), BatchNormal),
	}
	// 25 units exist in total but no batch holds them alone.
	if got := selectFIFOBatch(batches, 25, now); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestSelectFIFOBatch_WarningBatchIsDispensable(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	batches := []*InventoryBatch{
		batchFor("B1", 50, now.AddDate(0, 0, 10), BatchWarning),
	}
	got := selectFIFOBatch(batches, 20, now)
	if got == nil || got.BatchNumber != "B1" {
		t.Fatalf("expected warning batch to be allocatable, got %v", got)
	}
}

func TestSelectFIFOBatch_NonPositiveQuantity(t *testing.T) {
	now := time.Now()
	batches := []*InventoryBatch{batchFor("B1", 50, now.AddDate(0, 1, 0), BatchNormal)}
	if selectFIFOBatch(batches, 0, now) != nil {
		t.Error("expected nil for zero quantity")
	}
	if selectFIFOBatch(batches, -5, now) != nil {
		t.Error("expected nil for negative quantity")
	}
}
