package inventory

import (
	"context"

	"github.com/google/uuid"
)

// BatchRepository persists inventory batches. The quantity mutators are
// conditional single-statement updates so that concurrent callers cannot
// break the stock invariant: a mutation that would drive a quantity
// negative either applies a clamped delta or applies nothing.
type BatchRepository interface {
	Create(ctx context.Context, b *InventoryBatch) error
	GetByMedicineAndBatch(ctx context.Context, medicineID uuid.UUID, batchNumber string) (*InventoryBatch, error)
	ListByMedicine(ctx context.Context, medicineID uuid.UUID) ([]*InventoryBatch, error)
	List(ctx context.Context, limit, offset int) ([]*InventoryBatch, int, error)
	UpdateStatus(ctx context.Context, medicineID uuid.UUID, batchNumber string, status BatchStatus) error

	// AddStock raises current and available stock by qty (> 0) and
	// recomputes the inventory cost.
	AddStock(ctx context.Context, medicineID uuid.UUID, batchNumber string, qty int) error

	// ReduceStock lowers current and available stock. With clamp false the
	// full qty must be available or nothing is applied; with clamp true the
	// deduction is floored at the available stock. Returns the quantity
	// actually removed.
	ReduceStock(ctx context.Context, medicineID uuid.UUID, batchNumber string, qty int, clamp bool) (int, error)

	// ReserveStock moves qty from available to reserved. Returns false
	// without applying anything when available stock is insufficient.
	ReserveStock(ctx context.Context, medicineID uuid.UUID, batchNumber string, qty int) (bool, error)

	// ReleaseStock moves stock back from reserved to available, clamped at
	// the reserved quantity. Returns the quantity actually released.
	ReleaseStock(ctx context.Context, medicineID uuid.UUID, batchNumber string, qty int) (int, error)
}

// TransactionRepository is the append-only stock ledger. Entries are never
// deleted; the only permitted update is resolving a pending_review entry.
type TransactionRepository interface {
	Create(ctx context.Context, t *StockTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*StockTransaction, error)
	GetByNumber(ctx context.Context, number string) (*StockTransaction, error)
	List(ctx context.Context, limit, offset int) ([]*StockTransaction, int, error)
	ListByMedicine(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*StockTransaction, int, error)
	ListByBatch(ctx context.Context, medicineID uuid.UUID, batchNumber string) ([]*StockTransaction, error)

	// UpdateStatus flips an entry from one status to another. Returns false
	// when the entry was not in the expected status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to TransactionStatus) (bool, error)

	// SumConfirmedByBatch returns the signed quantity total of confirmed
	// entries for one batch, for reconciliation against current stock.
	SumConfirmedByBatch(ctx context.Context, medicineID uuid.UUID, batchNumber string) (int, error)
}
