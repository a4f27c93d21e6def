package inventory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the lifecycle state of an inventory batch.
type BatchStatus string

const (
	BatchNormal  BatchStatus = "normal"
	BatchWarning BatchStatus = "warning"
	BatchExpired BatchStatus = "expired"
	BatchDamaged BatchStatus = "damaged"
	BatchFrozen  BatchStatus = "frozen"
)

var validBatchStatuses = map[BatchStatus]bool{
	BatchNormal: true, BatchWarning: true, BatchExpired: true,
	BatchDamaged: true, BatchFrozen: true,
}

// InventoryBatch maps to the inventory_batch table. One row per
// (medicine, batch number); quantities never go negative and
// available_stock = current_stock - reserved_stock - locked_stock
// holds at all times.
type InventoryBatch struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	MedicineID     uuid.UUID   `db:"medicine_id" json:"medicine_id"`
	BatchNumber    string      `db:"batch_number" json:"batch_number"`
	CurrentStock   int         `db:"current_stock" json:"current_stock"`
	ReservedStock  int         `db:"reserved_stock" json:"reserved_stock"`
	LockedStock    int         `db:"locked_stock" json:"locked_stock"`
	AvailableStock int         `db:"available_stock" json:"available_stock"`
	PurchasePrice  float64     `db:"purchase_price" json:"purchase_price"`
	InventoryCost  float64     `db:"inventory_cost" json:"inventory_cost"`
	ExpiryDate     time.Time   `db:"expiry_date" json:"expiry_date"`
	Status         BatchStatus `db:"status" json:"status"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// EffectiveStatus returns the batch status with expiry applied lazily: a
// batch whose expiry date has passed reads as expired regardless of the
// stored status, except for damaged or frozen batches which keep their
// stronger state.
func (b *InventoryBatch) EffectiveStatus(now time.Time) BatchStatus {
	if b.Status == BatchDamaged || b.Status == BatchFrozen {
		return b.Status
	}
	if !b.ExpiryDate.IsZero() && b.ExpiryDate.Before(now) {
		return BatchExpired
	}
	return b.Status
}

// Dispensable reports whether stock may be allocated from this batch.
func (b *InventoryBatch) Dispensable(now time.Time) bool {
	s := b.EffectiveStatus(now)
	return (s == BatchNormal || s == BatchWarning) && b.AvailableStock > 0
}

// CheckInvariant verifies the stock accounting identity. Repositories
// maintain it in SQL; this is used by tests and reconciliation.
func (b *InventoryBatch) CheckInvariant() bool {
	if b.CurrentStock < 0 || b.ReservedStock < 0 || b.LockedStock < 0 || b.AvailableStock < 0 {
		return false
	}
	return b.AvailableStock == b.CurrentStock-b.ReservedStock-b.LockedStock
}

// TransactionType classifies a stock ledger entry.
type TransactionType string

const (
	TxInbound        TransactionType = "inbound"
	TxOutbound       TransactionType = "outbound"
	TxTransfer       TransactionType = "transfer"
	TxStockTake      TransactionType = "stock_take"
	TxDamage         TransactionType = "damage"
	TxReturn         TransactionType = "return"
	TxExpiryWriteoff TransactionType = "expiry_writeoff"
)

var validTransactionTypes = map[TransactionType]bool{
	TxInbound: true, TxOutbound: true, TxTransfer: true, TxStockTake: true,
	TxDamage: true, TxReturn: true, TxExpiryWriteoff: true,
}

// inboundTypes carry positive quantities; everything else is outbound.
// Stock takes and transfers can go either way and are classified by sign.
var inboundTypes = map[TransactionType]bool{
	TxInbound: true, TxReturn: true,
}

// TransactionStatus is the review state of a ledger entry. Only confirmed
// entries count toward reconciliation totals.
type TransactionStatus string

const (
	TxPendingReview TransactionStatus = "pending_review"
	TxConfirmed     TransactionStatus = "confirmed"
	TxCancelled     TransactionStatus = "cancelled"
)

var validTransactionStatuses = map[TransactionStatus]bool{
	TxPendingReview: true, TxConfirmed: true, TxCancelled: true,
}

// StockTransaction is one append-only row in the stock ledger. Quantity is
// signed: positive for stock moving in, negative for stock moving out.
// Rows are never updated after creation except for a status change from
// pending_review.
type StockTransaction struct {
	ID                uuid.UUID         `db:"id" json:"id"`
	TransactionNumber string            `db:"transaction_number" json:"transaction_number"`
	MedicineID        uuid.UUID         `db:"medicine_id" json:"medicine_id"`
	BatchNumber       string            `db:"batch_number" json:"batch_number"`
	Type              TransactionType   `db:"type" json:"type"`
	Quantity          int               `db:"quantity" json:"quantity"`
	UnitPrice         float64           `db:"unit_price" json:"unit_price"`
	TotalAmount       float64           `db:"total_amount" json:"total_amount"`
	Status            TransactionStatus `db:"status" json:"status"`
	Operator          string            `db:"operator" json:"operator"`
	Reference         *string           `db:"reference" json:"reference,omitempty"`
	Note              *string           `db:"note" json:"note,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
}

// CalculateTotalAmount returns the monetary value of the movement. The
// quantity's sign is dropped so amounts are always non-negative.
func (t *StockTransaction) CalculateTotalAmount() float64 {
	q := t.Quantity
	if q < 0 {
		q = -q
	}
	return float64(q) * t.UnitPrice
}

func (t *StockTransaction) IsInbound() bool {
	if inboundTypes[t.Type] {
		return true
	}
	return t.Quantity > 0 && (t.Type == TxTransfer || t.Type == TxStockTake)
}

func (t *StockTransaction) IsOutbound() bool {
	return !t.IsInbound()
}

// NewTransactionNumber builds a ledger entry number like TX20260829153000-a1b2c3.
func NewTransactionNumber(now time.Time) string {
	suffix := strings.Split(uuid.New().String(), "-")[0][:6]
	return "TX" + now.Format("20060102150405") + "-" + suffix
}
