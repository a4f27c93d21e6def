package inventory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinichq/pharmacy/internal/platform/apperr"
)

// -- Mock Repositories --
//
// The mocks keep the same atomicity guarantees as the SQL statements they
// stand in for: every conditional mutation happens under one lock.

type mockBatchRepo struct {
	mu      sync.Mutex
	batches map[string]*InventoryBatch
}

func newMockBatchRepo() *mockBatchRepo {
	return &mockBatchRepo{batches: make(map[string]*InventoryBatch)}
}

func batchKey(medicineID uuid.UUID, batchNumber string) string {
	return medicineID.String() + "/" + batchNumber
}

func (m *mockBatchRepo) Create(_ context.Context, b *InventoryBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	m.batches[batchKey(b.MedicineID, b.BatchNumber)] = b
	return nil
}

func (m *mockBatchRepo) GetByMedicineAndBatch(_ context.Context, medicineID uuid.UUID, batchNumber string) (*InventoryBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchKey(medicineID, batchNumber)]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *mockBatchRepo) ListByMedicine(_ context.Context, medicineID uuid.UUID) ([]*InventoryBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*InventoryBatch
	for _, b := range m.batches {
		if b.MedicineID == medicineID {
			cp := *b
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockBatchRepo) List(_ context.Context, limit, offset int) ([]*InventoryBatch, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*InventoryBatch
	for _, b := range m.batches {
		cp := *b
		result = append(result, &cp)
	}
	return result, len(result), nil
}

func (m *mockBatchRepo) UpdateStatus(_ context.Context, medicineID uuid.UUID, batchNumber string, status BatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchKey(medicineID, batchNumber)]
	if !ok {
		return fmt.Errorf("batch not found")
	}
	b.Status = status
	return nil
}

func (m *mockBatchRepo) AddStock(_ context.Context, medicineID uuid.UUID, batchNumber string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchKey(medicineID, batchNumber)]
	if !ok {
		return fmt.Errorf("batch not found")
	}
	b.CurrentStock += qty
	b.AvailableStock += qty
	b.InventoryCost = float64(b.CurrentStock) * b.PurchasePrice
	return nil
}

func (m *mockBatchRepo) ReduceStock(_ context.Context, medicineID uuid.UUID, batchNumber string, qty int, clamp bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchKey(medicineID, batchNumber)]
	if !ok {
		return 0, fmt.Errorf("batch not found")
	}
	applied := qty
	if b.AvailableStock < qty {
		if !clamp {
			return 0, nil
		}
		applied = b.AvailableStock
	}
	b.CurrentStock -= applied
	b.AvailableStock -= applied
	b.InventoryCost = float64(b.CurrentStock) * b.PurchasePrice
	return applied, nil
}

func (m *mockBatchRepo) ReserveStock(_ context.Context, medicineID uuid.UUID, batchNumber string, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchKey(medicineID, batchNumber)]
	if !ok || b.AvailableStock < qty {
		return false, nil
	}
	b.ReservedStock += qty
	b.AvailableStock -= qty
	return true, nil
}

func (m *mockBatchRepo) ReleaseStock(_ context.Context, medicineID uuid.UUID, batchNumber string, qty int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchKey(medicineID, batchNumber)]
	if !ok {
		return 0, fmt.Errorf("batch not found")
	}
	released := qty
	if b.ReservedStock < qty {
		released = b.ReservedStock
	}
	b.ReservedStock -= released
	b.AvailableStock += released
	return released, nil
}

func (m *mockBatchRepo) raw(medicineID uuid.UUID, batchNumber string) *InventoryBatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches[batchKey(medicineID, batchNumber)]
}

type mockTransactionRepo struct {
	mu      sync.Mutex
	entries []*StockTransaction
}

func newMockTransactionRepo() *mockTransactionRepo {
	return &mockTransactionRepo{}
}

func (m *mockTransactionRepo) Create(_ context.Context, t *StockTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now()
	cp := *t
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockTransactionRepo) GetByID(_ context.Context, id uuid.UUID) (*StockTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockTransactionRepo) GetByNumber(_ context.Context, number string) (*StockTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.TransactionNumber == number {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockTransactionRepo) List(_ context.Context, limit, offset int) ([]*StockTransaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*StockTransaction{}, m.entries...), len(m.entries), nil
}

func (m *mockTransactionRepo) ListByMedicine(_ context.Context, medicineID uuid.UUID, limit, offset int) ([]*StockTransaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*StockTransaction
	for _, e := range m.entries {
		if e.MedicineID == medicineID {
			result = append(result, e)
		}
	}
	return result, len(result), nil
}

func (m *mockTransactionRepo) ListByBatch(_ context.Context, medicineID uuid.UUID, batchNumber string) ([]*StockTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*StockTransaction
	for _, e := range m.entries {
		if e.MedicineID == medicineID && e.BatchNumber == batchNumber {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *mockTransactionRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to TransactionStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id && e.Status == from {
			e.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *mockTransactionRepo) SumConfirmedByBatch(_ context.Context, medicineID uuid.UUID, batchNumber string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0
	for _, e := range m.entries {
		if e.MedicineID == medicineID && e.BatchNumber == batchNumber && e.Status == TxConfirmed {
			sum += e.Quantity
		}
	}
	return sum, nil
}

func (m *mockTransactionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func newTestService() (*Service, *mockBatchRepo, *mockTransactionRepo) {
	batches := newMockBatchRepo()
	txs := newMockTransactionRepo()
	return NewService(batches, txs), batches, txs
}

func inboundFor(medicineID uuid.UUID, batch string, qty int, price float64) StockMovement {
	return StockMovement{
		MedicineID:  medicineID,
		BatchNumber: batch,
		Quantity:    qty,
		UnitPrice:   price,
		ExpiryDate:  time.Now().AddDate(1, 0, 0),
		Operator:    "李药师",
	}
}

// -- Tests --

func TestAddStock_CreatesBatchAndLedgerEntry(t *testing.T) {
	svc, batches, txs := newTestService()
	ctx := context.Background()
	medID := uuid.New()

	entry, err := svc.AddStock(ctx, inboundFor(medID, "B20260601", 100, 2.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Type != TxInbound || entry.Quantity != 100 || entry.Status != TxConfirmed {
		t.Errorf("unexpected ledger entry: %+v", entry)
	}
	if entry.TotalAmount != 250.0 {
		t.Errorf("expected total 250.0, got %f", entry.TotalAmount)
	}

	b := batches.raw(medID, "B20260601")
	if b == nil {
		t.Fatal("expected batch to be created")
	}
	if b.CurrentStock != 100 || b.AvailableStock != 100 || b.InventoryCost != 250.0 {
		t.Errorf("unexpected batch state: %+v", b)
	}
	if !b.CheckInvariant() {
		t.Error("stock invariant broken after inbound")
	}
	if txs.count() != 1 {
		t.Errorf("expected 1 ledger entry, got %d", txs.count())
	}
}

func TestAddStock_AccumulatesExistingBatch(t *testing.T) {
	svc, batches, _ := newTestService()
	ctx := context.Background()
	medID := uuid.New()

	if _, err := svc.AddStock(ctx, inboundFor(medID, "B1", 100, 2.5)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddStock(ctx, inboundFor(medID, "B1", 50, 2.5)); err != nil {
		t.Fatal(err)
	}

	b := batches.raw(medID, "B1")
	if b.CurrentStock != 150 {
		t.Errorf("expected 150 units, got %d", b.CurrentStock)
	}
	if b.InventoryCost != 375.0 {
		t.Errorf("expected cost 375.0, got %f", b.InventoryCost)
	}
}

func TestAddStock_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	cases := []StockMovement{
		{BatchNumber: "B1", Quantity: 10, Operator: "x"},                      // missing medicine
		{MedicineID: uuid.New(), Quantity: 10, Operator: "x"},                 // missing batch
		{MedicineID: uuid.New(), BatchNumber: "B1", Operator: "x"},            // zero quantity
		{MedicineID: uuid.New(), BatchNumber: "B1", Quantity: -5, Operator: "x"},
		{MedicineID: uuid.New(), BatchNumber: "B1", Quantity: 10},             // missing operator
	}
	for i, mv := range cases {
		if _, err := svc.AddStock(ctx, mv); !apperr.IsValidation(err) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestReduceStock_RejectsUnderflow(t *testing.T) {
	svc, batches, txs := newTestService()
	ctx := context.Background()
	medID := uuid.New()

	if _, err := svc.AddStock(ctx, inboundFor(medID, "B1", 30, 1.0)); err != nil {
		t.Fatal(err)
	}

	_, err := svc.ReduceStock(ctx, inboundFor(medID, "B1", 50, 1.0), TxOutbound)
	if !apperr.IsBusinessRule(err) {
		t.Fatalf("expected business-rule error, got %v", err)
	}

	b := batches.raw(medID, "B1")
	if b.CurrentStock != 30 {
		t.Errorf("stock must be untouched after rejection, got %d", b.CurrentStock)
	}
	if txs.count() != 1 {
		t.Errorf("no outbound ledger entry may be written on rejection, got %d entries", txs.count())
	}
}

func TestReduceStock_ClampPolicy(t *testing.T) {
	svc, batches, txs := newTestService()
	svc.SetClampOnUnderflow(true)
	ctx := context.Background()
	medID := uuid.New()

	if _, err := svc.AddStock(ctx, inboundFor(medID, "B1", 30, 1.0)); err != nil {
		t.Fatal(err)
	}

	entry, err := svc.ReduceStock(ctx, inboundFor(medID, "B1", 50, 1.0), TxOutbound)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Quantity != -30 {
		t.Errorf("ledger must record the actual deduction, got %d", entry.Quantity)
	}

	b := batches.raw(medID, "B1")
	if b.CurrentStock != 0 || b.AvailableStock != 0 {
		t.Errorf("expected stock floored at zero, got %+v", b)
	}
	sum, _ := txs.SumConfirmedByBatch(ctx, medID, "B1")
	if sum != b.CurrentStock {
		t.Errorf("ledger total %d disagrees with current stock %d", sum, b.CurrentStock)
	}
}

func TestReduceStock_ClampNothingToRemove(t *testing.T) {
	svc, batches, txs := newTestService()
	svc.SetClampOnUnderflow(true)
	ctx := context.Background()
	medID := uuid.New()

	if _, err := svc.AddStock(ctx, inboundFor(medID, "B1", 30, 1.0)); err != nil {
		t.Fatal(err)
	}
	if err := svc.Reserve(ctx, medID, "B1", 30); err != nil {
		t.Fatal(err)
	}

	before := txs.count()
	_, err := svc.ReduceStock(ctx, inboundFor(medID, "B1", 10, 1.0), TxOutbound)
	if !apperr.IsBusinessRule(err) {
		t.Fatalf("expected business-rule error when nothing can be removed, got %v", err)
	}
	if txs.count() != before {
		t.Errorf("a deduction that removed nothing must not write a ledger entry, got %d new", txs.count()-before)
	}
	if b := batches.raw(medID, "B1"); b.CurrentStock != 30 {
		t.Errorf("stock must be untouched, got %d", b.CurrentStock)
	}
}

func TestReduceStock_InvalidType(t *testing.T) {
	svc, _, _ := newTestService()
	medID := uuid.New()
	if _, err := svc.AddStock(context.Background(), inboundFor(medID, "B1", 30, 1.0)); err != nil {
		t.Fatal(err)
	}
	_, err := svc.ReduceStock(context.Background(), inboundFor(medID, "B1", 10, 1.0), TxInbound)
	if !apperr.IsValidation(err) {
		t.Errorf("expected validation error for inbound type on outbound op, got %v", err)
	}
}

// Every ledger write funnels through appendEntry, so unknown types and
// statuses are rejected before a row is created.
func TestAppendEntry_RejectsUnknownTypeAndStatus(t *testing.T) {
	svc, _, txs := newTestService()
	ctx := context.Background()
	mv := inboundFor(uuid.New(), "B1", 10, 1.0)

	if _, err := svc.appendEntry(ctx, mv, TransactionType("loan"), 10, TxConfirmed); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for unknown transaction type, got %v", err)
	}
	if _, err := svc.appendEntry(ctx, mv, TxInbound, 10, TransactionStatus("archived")); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for unknown transaction status, got %v", err)
	}
	if txs.count() != 0 {
		t.Errorf("no ledger entry may be written on rejection, got %d", txs.count())
	}
}

// Reservation accounting: reserve shrinks available, release restores it,
// over-release clamps, current stock never moves.
func TestReserveAndRelease(t *testing.T) {
	svc, batches, _ := newTestService()
	ctx := context.Background()
	medID := uuid.New()

	if _, err := svc.AddStock(ctx, inboundFor(medID, "B1", 100, 1.0)); err != nil {
		t.Fatal(err)
	}

	if err := svc.Reserve(ctx, medID, "B1", 30); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b := batches.raw(medID, "B1")
	if b.AvailableStock != 70 || b.ReservedStock != 30 || b.CurrentStock != 100 {
		t.Errorf("unexpected state after reserve: %+v", b)
	}

	// 80 > 70 available: denied, nothing applied.
	if err := svc.Reserve(ctx, medID, "B1", 80); !apperr.IsBusinessRule(err) {
		t.Fatalf("expected business-rule error, got %v", err)
	}
	b = batches.raw(medID, "B1")
	if b.AvailableStock != 70 || b.ReservedStock != 30 {
		t.Errorf("denied reservation must not change stock: %+v", b)
	}

	released, err := svc.Release(ctx, medID, "B1", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released != 30 {
		t.Errorf("expected release clamped to 30, got %d", released)
	}
	b = batches.raw(medID, "B1")
	if b.AvailableStock != 100 || b.ReservedStock != 0 {
		t.Errorf("unexpected state after release: %+v", b)
	}
	if !b.CheckInvariant() {
		t.Error("stock invariant broken")
	}
}

func TestReserve_UnknownBatch(t *testing.T) {
	svc, _, _ := newTestService()
	err := svc.Reserve(context.Background(), uuid.New(), "NOPE", 1)
	if !apperr.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

// Ten workers race for 100 units in chunks of 10; exactly ten may win and
// the batch must never oversell.
func TestConcurrentReservations_NoOversell(t *testing.T) {
	svc, batches, _ := newTestService()
	ctx := context.Background()
	medID := uuid.New()

	if _, err := svc.AddStock(ctx, inboundFor(medID, "B1", 100, 1.0)); err != nil {
		t.Fatal(err)
	}

	const workers = 25
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.Reserve(ctx, medID, "B1", 10)
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else if !apperr.IsBusinessRule(err) {
			t.Errorf("unexpected error kind: %v", err)
		}
	}
	if succeeded != 10 {
		t.Errorf("expected exactly 10 successful reservations, got %d", succeeded)
	}

	b := batches.raw(medID, "B1")
	if b.ReservedStock != 100 || b.AvailableStock != 0 {
		t.Errorf("oversold batch: %+v", b)
	}
	if !b.CheckInvariant() {
		t.Error("stock invariant broken under concurrency")
	}
}

func TestStockLevels_DistinguishesMissingRecord(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	medID := uuid.New()

	_, exists, err := svc.StockLevels(ctx, medID)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("expected no inventory record")
	}

	if _, err := svc.AddStock(ctx, inboundFor(medID, "B1", 5, 1.0)); err != nil {
		t.Fatal(err)
	}
	available, exists, err := svc.StockLevels(ctx, medID)
	if err != nil {
		t.Fatal(err)
	}
	if !exists || available != 5 {
		t.Errorf("expected record with 5 available, got exists=%v available=%d", exists, available)
	}
}

func TestAvailableStock_ExcludesExpiredBatches(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	medID := uuid.New()

	expired := inboundFor(medID, "OLD", 40, 1.0)
	expired.ExpiryDate = time.Now().AddDate(0, 0, -1)
	if _, err := svc.AddStock(ctx, expired); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddStock(ctx, inboundFor(medID, "NEW", 60, 1.0)); err != nil {
		t.Fatal(err)
	}

	available, err := svc.AvailableStock(ctx, medID)
	if err != nil {
		t.Fatal(err)
	}
	if available != 60 {
		t.Errorf("expected 60 available (expired batch excluded), got %d", available)
	}

	total, err := svc.TotalStock(ctx, medID)
	if err != nil {
		t.Fatal(err)
	}
	if total != 60 {
		t.Errorf("expected total 60 (expired batch excluded), got %d", total)
	}
}

func TestTotalStock_ExcludesNonDispensableBatches(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	medID := uuid.New()

	expired := inboundFor(medID, "OLD", 40, 1.0)
	expired.ExpiryDate = time.Now().AddDate(0, 0, -1)
	if _, err := svc.AddStock(ctx, expired); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddStock(ctx, inboundFor(medID, "COLD", 30, 1.0)); err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkBatchStatus(ctx, medID, "COLD", BatchFrozen); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddStock(ctx, inboundFor(medID, "FRESH", 10, 1.0)); err != nil {
		t.Fatal(err)
	}

	total, err := svc.TotalStock(ctx, medID)
	if err != nil {
		t.Fatal(err)
	}
	if total != 10 {
		t.Errorf("expected total 10 with expired and frozen batches excluded, got %d", total)
	}
}

func TestDeductForDispense(t *testing.T) {
	svc, batches, txs := newTestService()
	ctx := context.Background()
	medID := uuid.New()

	if _, err := svc.AddStock(ctx, inboundFor(medID, "B1", 100, 2.0)); err != nil {
		t.Fatal(err)
	}

	before, after, err := svc.DeductForDispense(ctx, medID, "B1", 30, "李药师", "RX2026001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if before != 100 || after != 70 {
		t.Errorf("expected 100 -> 70, got %d -> %d", before, after)
	}

	b := batches.raw(medID, "B1")
	if b.CurrentStock != 70 {
		t.Errorf("expected 70 units left, got %d", b.CurrentStock)
	}

	entries, _ := txs.ListByBatch(ctx, medID, "B1")
	last := entries[len(entries)-1]
	if last.Type != TxOutbound || last.Quantity != -30 {
		t.Errorf("unexpected dispense ledger entry: %+v", last)
	}
	if last.Reference == nil || *last.Reference != "RX2026001" {
		t.Errorf("expected prescription reference on ledger entry, got %v", last.Reference)
	}

	// Insufficient stock always rejects on dispense, even under clamp.
	svc.SetClampOnUnderflow(true)
	if _, _, err := svc.DeductForDispense(ctx, medID, "B1", 500, "李药师", "RX2026002"); !apperr.IsBusinessRule(err) {
		t.Errorf("expected business-rule error, got %v", err)
	}
}

func TestRestockFromReturn(t *testing.T) {
	svc, batches, txs := newTestService()
	ctx := context.Background()
	medID := uuid.New()

	if _, err := svc.AddStock(ctx, inboundFor(medID, "B1", 100, 2.0)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.DeductForDispense(ctx, medID, "B1", 30, "李药师", "RX1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.RestockFromReturn(ctx, medID, "B1", 30, "李药师", "RX1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b := batches.raw(medID, "B1")
	if b.CurrentStock != 100 {
		t.Errorf("expected stock restored to 100, got %d", b.CurrentStock)
	}
	sum, _ := txs.SumConfirmedByBatch(ctx, medID, "B1")
	if sum != 100 {
		t.Errorf("expected ledger total 100, got %d", sum)
	}
}

// Ledger reconciliation: the signed sum of confirmed entries must equal the
// batch's current stock, and pending entries must not count.
func TestReconcileBatch(t *testing.T) {
	svc, batches, _ := newTestService()
	ctx := context.Background()
	medID := uuid.New()

	if _, err := svc.AddStock(ctx, inboundFor(medID, "B1", 100, 1.0)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ReduceStock(ctx, inboundFor(medID, "B1", 30, 1.0), TxOutbound); err != nil {
		t.Fatal(err)
	}

	result, err := svc.ReconcileBatch(ctx, medID, "B1")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Consistent || result.LedgerTotal != 70 || result.CurrentStock != 70 {
		t.Errorf("expected consistent 70/70, got %+v", result)
	}

	// A pending adjustment must not move the ledger total.
	if _, err := svc.ProposeAdjustment(ctx, inboundFor(medID, "B1", 5, 1.0), TxStockTake, -5); err != nil {
		t.Fatal(err)
	}
	result, err = svc.ReconcileBatch(ctx, medID, "B1")
	if err != nil {
		t.Fatal(err)
	}
	if result.LedgerTotal != 70 {
		t.Errorf("pending entry counted toward ledger total: %+v", result)
	}

	// Tampering with the batch outside the ledger shows up as a mismatch.
	batches.raw(medID, "B1").CurrentStock = 65
	result, err = svc.ReconcileBatch(ctx, medID, "B1")
	if err != nil {
		t.Fatal(err)
	}
	if result.Consistent {
		t.Errorf("expected inconsistency to be detected: %+v", result)
	}
}

func TestReviewAdjustment(t *testing.T) {
	svc, batches, _ := newTestService()
	ctx := context.Background()
	medID := uuid.New()

	if _, err := svc.AddStock(ctx, inboundFor(medID, "B1", 100, 1.0)); err != nil {
		t.Fatal(err)
	}

	pending, err := svc.ProposeAdjustment(ctx, inboundFor(medID, "B1", 5, 1.0), TxStockTake, -5)
	if err != nil {
		t.Fatal(err)
	}
	if pending.Status != TxPendingReview {
		t.Fatalf("expected pending_review, got %s", pending.Status)
	}
	if batches.raw(medID, "B1").CurrentStock != 100 {
		t.Error("proposal must not touch stock")
	}

	confirmed, err := svc.ReviewAdjustment(ctx, pending.ID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmed.Status != TxConfirmed {
		t.Errorf("expected confirmed, got %s", confirmed.Status)
	}
	if batches.raw(medID, "B1").CurrentStock != 95 {
		t.Errorf("expected 95 after approval, got %d", batches.raw(medID, "B1").CurrentStock)
	}

	// Re-reviewing a resolved entry is rejected.
	if _, err := svc.ReviewAdjustment(ctx, pending.ID, false); !apperr.IsBusinessRule(err) {
		t.Errorf("expected business-rule error, got %v", err)
	}
}

func TestReviewAdjustment_Reject(t *testing.T) {
	svc, batches, _ := newTestService()
	ctx := context.Background()
	medID := uuid.New()

	if _, err := svc.AddStock(ctx, inboundFor(medID, "B1", 100, 1.0)); err != nil {
		t.Fatal(err)
	}
	pending, err := svc.ProposeAdjustment(ctx, inboundFor(medID, "B1", 10, 1.0), TxDamage, -10)
	if err != nil {
		t.Fatal(err)
	}

	cancelled, err := svc.ReviewAdjustment(ctx, pending.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != TxCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}
	if batches.raw(medID, "B1").CurrentStock != 100 {
		t.Error("rejected adjustment must not touch stock")
	}
}
