package inventory

import (
	"testing"
	"time"
)

func TestEffectiveStatus_LazyExpiry(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	b := &InventoryBatch{Status: BatchNormal, ExpiryDate: now.AddDate(0, 0, -1)}
	if got := b.EffectiveStatus(now); got != BatchExpired {
		t.Errorf("expected expired, got %s", got)
	}

	b.ExpiryDate = now.AddDate(0, 0, 1)
	if got := b.EffectiveStatus(now); got != BatchNormal {
		t.Errorf("expected normal, got %s", got)
	}

	// Damaged and frozen outrank expiry.
	b = &InventoryBatch{Status: BatchDamaged, ExpiryDate: now.AddDate(0, 0, -1)}
	if got := b.EffectiveStatus(now); got != BatchDamaged {
		t.Errorf("expected damaged, got %s", got)
	}
	b.Status = BatchFrozen
	if got := b.EffectiveStatus(now); got != BatchFrozen {
		t.Errorf("expected frozen, got %s", got)
	}
}

func TestCheckInvariant(t *testing.T) {
	b := &InventoryBatch{CurrentStock: 100, ReservedStock: 30, LockedStock: 10, AvailableStock: 60}
	if !b.CheckInvariant() {
		t.Error("expected invariant to hold")
	}
	b.AvailableStock = 70
	if b.CheckInvariant() {
		t.Error("expected invariant violation to be detected")
	}
	b = &InventoryBatch{CurrentStock: -1, AvailableStock: -1}
	if b.CheckInvariant() {
		t.Error("expected negative quantities to fail the invariant")
	}
}

func TestCalculateTotalAmount_AbsoluteQuantity(t *testing.T) {
	tx := &StockTransaction{Quantity: -30, UnitPrice: 2.5}
	if got := tx.CalculateTotalAmount(); got != 75.0 {
		t.Errorf("expected 75.0, got %f", got)
	}
	tx.Quantity = 30
	if got := tx.CalculateTotalAmount(); got != 75.0 {
		t.Errorf("expected 75.0, got %f", got)
	}
}

func TestTransactionDirection(t *testing.T) {
	cases := []struct {
		txType  TransactionType
		qty     int
		inbound bool
	}{
		{TxInbound, 100, true},
		{TxReturn, 5, true},
		{TxOutbound, -30, false},
		{TxDamage, -2, false},
		{TxExpiryWriteoff, -10, false},
		{TxStockTake, 3, true},
		{TxStockTake, -3, false},
		{TxTransfer, 20, true},
		{TxTransfer, -20, false},
	}
	for _, tc := range cases {
		tx := &StockTransaction{Type: tc.txType, Quantity: tc.qty}
		if tx.IsInbound() != tc.inbound {
			t.Errorf("%s qty %d: expected inbound=%v", tc.txType, tc.qty, tc.inbound)
		}
		if tx.IsOutbound() == tc.inbound {
			t.Errorf("%s qty %d: IsOutbound should mirror IsInbound", tc.txType, tc.qty)
		}
	}
}

func TestNewTransactionNumber(t *testing.T) {
	now := time.Date(2026, 8, 29, 15, 30, 0, 0, time.UTC)
	n1 := NewTransactionNumber(now)
	n2 := NewTransactionNumber(now)
	if n1 == n2 {
		t.Error("expected unique transaction numbers")
	}
	if len(n1) != len("TX20260829153000-abc123") {
		t.Errorf("unexpected format: %s", n1)
	}
}
