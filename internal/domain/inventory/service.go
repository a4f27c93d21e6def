package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinichq/pharmacy/internal/platform/apperr"
	"github.com/clinichq/pharmacy/internal/platform/metrics"
)

// TxRunner executes fn atomically. The production wiring binds this to
// db.WithTx so a batch mutation and its ledger entry commit together;
// tests substitute a passthrough.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	batches      BatchRepository
	transactions TransactionRepository
	runTx        TxRunner
	clamp        bool
	m            *metrics.Metrics
	now          func() time.Time
}

func NewService(batches BatchRepository, transactions TransactionRepository) *Service {
	return &Service{
		batches:      batches,
		transactions: transactions,
		runTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		},
		now: time.Now,
	}
}

// SetTxRunner attaches the transaction boundary used for paired mutations.
func (s *Service) SetTxRunner(run TxRunner) { s.runTx = run }

// SetClampOnUnderflow switches outbound deductions from rejecting
// insufficient stock to flooring the deduction at zero.
func (s *Service) SetClampOnUnderflow(clamp bool) { s.clamp = clamp }

// SetMetrics attaches optional prometheus collectors.
func (s *Service) SetMetrics(m *metrics.Metrics) { s.m = m }

// StockMovement describes one inbound or outbound quantity change.
type StockMovement struct {
	MedicineID  uuid.UUID `json:"medicine_id"`
	BatchNumber string    `json:"batch_number"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	ExpiryDate  time.Time `json:"expiry_date"`
	Operator    string    `json:"operator"`
	Reference   *string   `json:"reference,omitempty"`
	Note        *string   `json:"note,omitempty"`
}

func (mv *StockMovement) validate() error {
	if mv.MedicineID == uuid.Nil {
		return apperr.Validation("medicine_id is required")
	}
	if mv.BatchNumber == "" {
		return apperr.Validation("batch_number is required")
	}
	if mv.Quantity <= 0 {
		return apperr.Validation("quantity must be positive")
	}
	if mv.UnitPrice < 0 {
		return apperr.Validation("unit_price must be non-negative")
	}
	if mv.Operator == "" {
		return apperr.Validation("operator is required")
	}
	return nil
}

func (s *Service) appendEntry(ctx context.Context, mv StockMovement, txType TransactionType, qty int, status TransactionStatus) (*StockTransaction, error) {
	if !validTransactionTypes[txType] {
		return nil, apperr.Validation(fmt.Sprintf("invalid transaction type: %s", txType))
	}
	if !validTransactionStatuses[status] {
		return nil, apperr.Validation(fmt.Sprintf("invalid transaction status: %s", status))
	}
	t := &StockTransaction{
		TransactionNumber: NewTransactionNumber(s.now()),
		MedicineID:        mv.MedicineID,
		BatchNumber:       mv.BatchNumber,
		Type:              txType,
		Quantity:          qty,
		UnitPrice:         mv.UnitPrice,
		Status:            status,
		Operator:          mv.Operator,
		Reference:         mv.Reference,
		Note:              mv.Note,
	}
	t.TotalAmount = t.CalculateTotalAmount()
	if err := s.transactions.Create(ctx, t); err != nil {
		return nil, err
	}
	if s.m != nil {
		s.m.StockTransactions.WithLabelValues(string(txType)).Inc()
	}
	return t, nil
}

// AddStock books stock into a batch, creating the batch on first receipt.
// The batch update and the inbound ledger entry commit atomically.
func (s *Service) AddStock(ctx context.Context, mv StockMovement) (*StockTransaction, error) {
	if err := mv.validate(); err != nil {
		return nil, err
	}

	var entry *StockTransaction
	err := s.runTx(ctx, func(ctx context.Context) error {
		batch, err := s.batches.GetByMedicineAndBatch(ctx, mv.MedicineID, mv.BatchNumber)
		if err != nil {
			return err
		}
		if batch == nil {
			batch = &InventoryBatch{
				MedicineID:     mv.MedicineID,
				BatchNumber:    mv.BatchNumber,
				CurrentStock:   mv.Quantity,
				AvailableStock: mv.Quantity,
				PurchasePrice:  mv.UnitPrice,
				InventoryCost:  float64(mv.Quantity) * mv.UnitPrice,
				ExpiryDate:     mv.ExpiryDate,
				Status:         BatchNormal,
			}
			if err := s.batches.Create(ctx, batch); err != nil {
				return err
			}
		} else if err := s.batches.AddStock(ctx, mv.MedicineID, mv.BatchNumber, mv.Quantity); err != nil {
			return err
		}

		entry, err = s.appendEntry(ctx, mv, TxInbound, mv.Quantity, TxConfirmed)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

var outboundMovementTypes = map[TransactionType]bool{
	TxOutbound: true, TxTransfer: true, TxDamage: true, TxExpiryWriteoff: true,
}

// ReduceStock books stock out of a batch under the configured underflow
// policy and appends the matching ledger entry. The entry records the
// quantity actually removed, which under the clamp policy may be less than
// requested. A deduction that would remove nothing is rejected under
// either policy; the ledger carries only real movements.
func (s *Service) ReduceStock(ctx context.Context, mv StockMovement, txType TransactionType) (*StockTransaction, error) {
	if err := mv.validate(); err != nil {
		return nil, err
	}
	if !outboundMovementTypes[txType] {
		return nil, apperr.Validation(fmt.Sprintf("invalid outbound transaction type: %s", txType))
	}

	var entry *StockTransaction
	err := s.runTx(ctx, func(ctx context.Context) error {
		batch, err := s.batches.GetByMedicineAndBatch(ctx, mv.MedicineID, mv.BatchNumber)
		if err != nil {
			return err
		}
		if batch == nil {
			return apperr.NotFound(fmt.Sprintf("batch not found: %s/%s", mv.MedicineID, mv.BatchNumber))
		}

		applied, err := s.batches.ReduceStock(ctx, mv.MedicineID, mv.BatchNumber, mv.Quantity, s.clamp)
		if err != nil {
			return err
		}
		if applied == 0 {
			return apperr.BusinessRule(fmt.Sprintf("insufficient available stock in batch %s: requested %d, available %d",
				mv.BatchNumber, mv.Quantity, batch.AvailableStock))
		}

		entry, err = s.appendEntry(ctx, mv, txType, -applied, TxConfirmed)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Reserve moves quantity from available to reserved stock. Reservations do
// not change current stock, so no ledger entry is written.
func (s *Service) Reserve(ctx context.Context, medicineID uuid.UUID, batchNumber string, qty int) error {
	if qty <= 0 {
		return apperr.Validation("quantity must be positive")
	}
	ok, err := s.batches.ReserveStock(ctx, medicineID, batchNumber, qty)
	if err != nil {
		return err
	}
	if !ok {
		if s.m != nil {
			s.m.ReservationDenied.Inc()
		}
		batch, err := s.batches.GetByMedicineAndBatch(ctx, medicineID, batchNumber)
		if err != nil {
			return err
		}
		if batch == nil {
			return apperr.NotFound(fmt.Sprintf("batch not found: %s/%s", medicineID, batchNumber))
		}
		return apperr.BusinessRule(fmt.Sprintf("insufficient available stock in batch %s: requested %d, available %d",
			batchNumber, qty, batch.AvailableStock))
	}
	return nil
}

// Release returns reserved stock to available. Releasing more than is
// reserved is not an error; the release is clamped and the applied
// quantity returned.
func (s *Service) Release(ctx context.Context, medicineID uuid.UUID, batchNumber string, qty int) (int, error) {
	if qty <= 0 {
		return 0, apperr.Validation("quantity must be positive")
	}
	return s.batches.ReleaseStock(ctx, medicineID, batchNumber, qty)
}

// TotalStock sums physical stock across a medicine's batches. Batches
// whose stock cannot leave the shelf (expired, damaged, frozen) are
// excluded so the total never overstates what is dispensable.
func (s *Service) TotalStock(ctx context.Context, medicineID uuid.UUID) (int, error) {
	batches, err := s.batches.ListByMedicine(ctx, medicineID)
	if err != nil {
		return 0, err
	}
	now := s.now()
	total := 0
	for _, b := range batches {
		switch b.EffectiveStatus(now) {
		case BatchNormal, BatchWarning:
			total += b.CurrentStock
		}
	}
	return total, nil
}

// AvailableStock sums allocatable stock across dispensable batches.
func (s *Service) AvailableStock(ctx context.Context, medicineID uuid.UUID) (int, error) {
	batches, err := s.batches.ListByMedicine(ctx, medicineID)
	if err != nil {
		return 0, err
	}
	now := s.now()
	total := 0
	for _, b := range batches {
		if b.Dispensable(now) {
			total += b.AvailableStock
		}
	}
	return total, nil
}

// StockLevels reports the allocatable stock of a medicine and whether any
// inventory record exists at all. A medicine with no batches is a distinct
// condition from one whose batches are empty.
func (s *Service) StockLevels(ctx context.Context, medicineID uuid.UUID) (int, bool, error) {
	batches, err := s.batches.ListByMedicine(ctx, medicineID)
	if err != nil {
		return 0, false, err
	}
	if len(batches) == 0 {
		return 0, false, nil
	}
	now := s.now()
	total := 0
	for _, b := range batches {
		if b.Dispensable(now) {
			total += b.AvailableStock
		}
	}
	return total, true, nil
}

// FindBatch returns one batch with lazy expiry applied to its status.
func (s *Service) FindBatch(ctx context.Context, medicineID uuid.UUID, batchNumber string) (*InventoryBatch, error) {
	b, err := s.batches.GetByMedicineAndBatch(ctx, medicineID, batchNumber)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apperr.NotFound(fmt.Sprintf("batch not found: %s/%s", medicineID, batchNumber))
	}
	b.Status = b.EffectiveStatus(s.now())
	return b, nil
}

// SelectFIFOBatch picks the earliest-expiring batch that can cover the
// required quantity on its own. Returns nil when no batch qualifies.
func (s *Service) SelectFIFOBatch(ctx context.Context, medicineID uuid.UUID, required int) (*InventoryBatch, error) {
	batches, err := s.batches.ListByMedicine(ctx, medicineID)
	if err != nil {
		return nil, err
	}
	return selectFIFOBatch(batches, required, s.now()), nil
}

// ListBatches returns a medicine's batches with lazy expiry applied.
func (s *Service) ListBatches(ctx context.Context, medicineID uuid.UUID) ([]*InventoryBatch, error) {
	batches, err := s.batches.ListByMedicine(ctx, medicineID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, b := range batches {
		b.Status = b.EffectiveStatus(now)
	}
	return batches, nil
}

func (s *Service) ListAllBatches(ctx context.Context, limit, offset int) ([]*InventoryBatch, int, error) {
	batches, total, err := s.batches.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	for _, b := range batches {
		b.Status = b.EffectiveStatus(now)
	}
	return batches, total, nil
}

// MarkBatchStatus sets a batch to damaged or frozen, or lifts such a hold.
func (s *Service) MarkBatchStatus(ctx context.Context, medicineID uuid.UUID, batchNumber string, status BatchStatus) error {
	if !validBatchStatuses[status] {
		return apperr.Validation(fmt.Sprintf("invalid batch status: %s", status))
	}
	return s.batches.UpdateStatus(ctx, medicineID, batchNumber, status)
}

func (s *Service) ListTransactions(ctx context.Context, limit, offset int) ([]*StockTransaction, int, error) {
	return s.transactions.List(ctx, limit, offset)
}

func (s *Service) ListTransactionsByMedicine(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*StockTransaction, int, error) {
	return s.transactions.ListByMedicine(ctx, medicineID, limit, offset)
}

func (s *Service) GetTransactionByNumber(ctx context.Context, number string) (*StockTransaction, error) {
	t, err := s.transactions.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperr.NotFound(fmt.Sprintf("transaction not found: %s", number))
	}
	return t, nil
}

// ProposeAdjustment writes a pending_review ledger entry for a stock take
// or damage correction without touching the batch. The quantity is signed.
func (s *Service) ProposeAdjustment(ctx context.Context, mv StockMovement, txType TransactionType, signedQty int) (*StockTransaction, error) {
	if txType != TxStockTake && txType != TxDamage {
		return nil, apperr.Validation(fmt.Sprintf("adjustments must be stock_take or damage, got %s", txType))
	}
	if signedQty == 0 {
		return nil, apperr.Validation("quantity must be non-zero")
	}
	mv.Quantity = signedQty
	if mv.Quantity < 0 {
		mv.Quantity = -mv.Quantity
	}
	if err := mv.validate(); err != nil {
		return nil, err
	}

	batch, err := s.batches.GetByMedicineAndBatch(ctx, mv.MedicineID, mv.BatchNumber)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, apperr.NotFound(fmt.Sprintf("batch not found: %s/%s", mv.MedicineID, mv.BatchNumber))
	}
	return s.appendEntry(ctx, mv, txType, signedQty, TxPendingReview)
}

// ReviewAdjustment resolves a pending adjustment. Approval applies the
// signed quantity to the batch and confirms the entry in one transaction;
// rejection cancels the entry and leaves stock untouched.
func (s *Service) ReviewAdjustment(ctx context.Context, txID uuid.UUID, approve bool) (*StockTransaction, error) {
	var entry *StockTransaction
	err := s.runTx(ctx, func(ctx context.Context) error {
		t, err := s.transactions.GetByID(ctx, txID)
		if err != nil {
			return err
		}
		if t == nil {
			return apperr.NotFound(fmt.Sprintf("transaction not found: %s", txID))
		}
		if t.Status != TxPendingReview {
			return apperr.BusinessRule(fmt.Sprintf("transaction %s is %s, not pending review", t.TransactionNumber, t.Status))
		}

		to := TxCancelled
		if approve {
			to = TxConfirmed
			if t.Quantity > 0 {
				if err := s.batches.AddStock(ctx, t.MedicineID, t.BatchNumber, t.Quantity); err != nil {
					return err
				}
			} else {
				applied, err := s.batches.ReduceStock(ctx, t.MedicineID, t.BatchNumber, -t.Quantity, false)
				if err != nil {
					return err
				}
				if applied == 0 {
					return apperr.BusinessRule(fmt.Sprintf("cannot apply adjustment %s: insufficient available stock", t.TransactionNumber))
				}
			}
		}

		ok, err := s.transactions.UpdateStatus(ctx, txID, TxPendingReview, to)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.BusinessRule(fmt.Sprintf("transaction %s was resolved concurrently", t.TransactionNumber))
		}
		t.Status = to
		entry = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ReconcileResult compares a batch's physical stock with its ledger total.
type ReconcileResult struct {
	MedicineID   uuid.UUID `json:"medicine_id"`
	BatchNumber  string    `json:"batch_number"`
	LedgerTotal  int       `json:"ledger_total"`
	CurrentStock int       `json:"current_stock"`
	Consistent   bool      `json:"consistent"`
}

// ReconcileBatch checks that the signed sum of confirmed ledger entries
// equals the batch's current stock.
func (s *Service) ReconcileBatch(ctx context.Context, medicineID uuid.UUID, batchNumber string) (*ReconcileResult, error) {
	batch, err := s.batches.GetByMedicineAndBatch(ctx, medicineID, batchNumber)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, apperr.NotFound(fmt.Sprintf("batch not found: %s/%s", medicineID, batchNumber))
	}
	sum, err := s.transactions.SumConfirmedByBatch(ctx, medicineID, batchNumber)
	if err != nil {
		return nil, err
	}
	return &ReconcileResult{
		MedicineID:   medicineID,
		BatchNumber:  batchNumber,
		LedgerTotal:  sum,
		CurrentStock: batch.CurrentStock,
		Consistent:   sum == batch.CurrentStock,
	}, nil
}

// DeductForDispense removes dispensed quantity from a batch and appends
// the outbound ledger entry, returning the stock level before and after.
// Dispensing always rejects underflow regardless of the configured policy.
func (s *Service) DeductForDispense(ctx context.Context, medicineID uuid.UUID, batchNumber string, qty int, operator, reference string) (int, int, error) {
	if qty <= 0 {
		return 0, 0, apperr.Validation("quantity must be positive")
	}

	var before, after int
	err := s.runTx(ctx, func(ctx context.Context) error {
		batch, err := s.batches.GetByMedicineAndBatch(ctx, medicineID, batchNumber)
		if err != nil {
			return err
		}
		if batch == nil {
			return apperr.NotFound(fmt.Sprintf("batch not found: %s/%s", medicineID, batchNumber))
		}
		before = batch.CurrentStock

		applied, err := s.batches.ReduceStock(ctx, medicineID, batchNumber, qty, false)
		if err != nil {
			return err
		}
		if applied == 0 {
			return apperr.BusinessRule(fmt.Sprintf("insufficient available stock in batch %s: requested %d, available %d",
				batchNumber, qty, batch.AvailableStock))
		}
		after = before - applied

		_, err = s.appendEntry(ctx, StockMovement{
			MedicineID:  medicineID,
			BatchNumber: batchNumber,
			Quantity:    qty,
			UnitPrice:   batch.PurchasePrice,
			Operator:    operator,
			Reference:   &reference,
		}, TxOutbound, -applied, TxConfirmed)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return before, after, nil
}

// RestockFromReturn puts previously dispensed quantity back into its batch
// with a return-type ledger entry.
func (s *Service) RestockFromReturn(ctx context.Context, medicineID uuid.UUID, batchNumber string, qty int, operator, reference string) error {
	if qty <= 0 {
		return apperr.Validation("quantity must be positive")
	}
	return s.runTx(ctx, func(ctx context.Context) error {
		batch, err := s.batches.GetByMedicineAndBatch(ctx, medicineID, batchNumber)
		if err != nil {
			return err
		}
		if batch == nil {
			return apperr.NotFound(fmt.Sprintf("batch not found: %s/%s", medicineID, batchNumber))
		}
		if err := s.batches.AddStock(ctx, medicineID, batchNumber, qty); err != nil {
			return err
		}
		_, err = s.appendEntry(ctx, StockMovement{
			MedicineID:  medicineID,
			BatchNumber: batchNumber,
			Quantity:    qty,
			UnitPrice:   batch.PurchasePrice,
			Operator:    operator,
			Reference:   &reference,
		}, TxReturn, qty, TxConfirmed)
		return err
	})
}
