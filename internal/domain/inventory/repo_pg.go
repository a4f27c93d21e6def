package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinichq/pharmacy/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Batch Repository ===========

type batchRepoPG struct{ pool *pgxpool.Pool }

func NewBatchRepoPG(pool *pgxpool.Pool) BatchRepository {
	return &batchRepoPG{pool: pool}
}

func (r *batchRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const batchCols = `id, medicine_id, batch_number, current_stock, reserved_stock, locked_stock,
	available_stock, purchase_price, inventory_cost, expiry_date, status, created_at, updated_at`

func (r *batchRepoPG) scanBatch(row pgx.Row) (*InventoryBatch, error) {
	var b InventoryBatch
	err := row.Scan(&b.ID, &b.MedicineID, &b.BatchNumber,
		&b.CurrentStock, &b.ReservedStock, &b.LockedStock, &b.AvailableStock,
		&b.PurchasePrice, &b.InventoryCost, &b.ExpiryDate, &b.Status,
		&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *batchRepoPG) Create(ctx context.Context, b *InventoryBatch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO inventory_batch (id, medicine_id, batch_number, current_stock, reserved_stock,
			locked_stock, available_stock, purchase_price, inventory_cost, expiry_date, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		b.ID, b.MedicineID, b.BatchNumber, b.CurrentStock, b.ReservedStock,
		b.LockedStock, b.AvailableStock, b.PurchasePrice, b.InventoryCost,
		b.ExpiryDate, b.Status)
	return err
}

func (r *batchRepoPG) GetByMedicineAndBatch(ctx context.Context, medicineID uuid.UUID, batchNumber string) (*InventoryBatch, error) {
	return r.scanBatch(r.conn(ctx).QueryRow(ctx,
		`SELECT `+batchCols+` FROM inventory_batch WHERE medicine_id = $1 AND batch_number = $2`,
		medicineID, batchNumber))
}

func (r *batchRepoPG) ListByMedicine(ctx context.Context, medicineID uuid.UUID) ([]*InventoryBatch, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+batchCols+` FROM inventory_batch
		 WHERE medicine_id = $1
		 ORDER BY expiry_date, batch_number`, medicineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*InventoryBatch
	for rows.Next() {
		b, err := r.scanBatch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, nil
}

func (r *batchRepoPG) List(ctx context.Context, limit, offset int) ([]*InventoryBatch, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM inventory_batch`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+batchCols+` FROM inventory_batch
		 ORDER BY medicine_id, expiry_date, batch_number LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*InventoryBatch
	for rows.Next() {
		b, err := r.scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, nil
}

func (r *batchRepoPG) UpdateStatus(ctx context.Context, medicineID uuid.UUID, batchNumber string, status BatchStatus) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE inventory_batch SET status = $3, updated_at = NOW()
		WHERE medicine_id = $1 AND batch_number = $2`,
		medicineID, batchNumber, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch not found: %s/%s", medicineID, batchNumber)
	}
	return nil
}

func (r *batchRepoPG) AddStock(ctx context.Context, medicineID uuid.UUID, batchNumber string, qty int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE inventory_batch
		SET current_stock = current_stock + $3,
			available_stock = available_stock + $3,
			inventory_cost = (current_stock + $3) * purchase_price,
			updated_at = NOW()
		WHERE medicine_id = $1 AND batch_number = $2`,
		medicineID, batchNumber, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch not found: %s/%s", medicineID, batchNumber)
	}
	return nil
}

func (r *batchRepoPG) ReduceStock(ctx context.Context, medicineID uuid.UUID, batchNumber string, qty int, clamp bool) (int, error) {
	if !clamp {
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE inventory_batch
			SET current_stock = current_stock - $3,
				available_stock = available_stock - $3,
				inventory_cost = (current_stock - $3) * purchase_price,
				updated_at = NOW()
			WHERE medicine_id = $1 AND batch_number = $2 AND available_stock >= $3`,
			medicineID, batchNumber, qty)
		if err != nil {
			return 0, err
		}
		if tag.RowsAffected() == 0 {
			return 0, nil
		}
		return qty, nil
	}

	var applied int
	err := r.conn(ctx).QueryRow(ctx, `
		WITH pick AS (
			SELECT id, LEAST(available_stock, $3) AS delta
			FROM inventory_batch
			WHERE medicine_id = $1 AND batch_number = $2
			FOR UPDATE
		)
		UPDATE inventory_batch ib
		SET current_stock = ib.current_stock - pick.delta,
			available_stock = ib.available_stock - pick.delta,
			inventory_cost = (ib.current_stock - pick.delta) * ib.purchase_price,
			updated_at = NOW()
		FROM pick
		WHERE ib.id = pick.id
		RETURNING pick.delta`,
		medicineID, batchNumber, qty).Scan(&applied)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("batch not found: %s/%s", medicineID, batchNumber)
	}
	if err != nil {
		return 0, err
	}
	return applied, nil
}

func (r *batchRepoPG) ReserveStock(ctx context.Context, medicineID uuid.UUID, batchNumber string, qty int) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE inventory_batch
		SET reserved_stock = reserved_stock + $3,
			available_stock = available_stock - $3,
			updated_at = NOW()
		WHERE medicine_id = $1 AND batch_number = $2 AND available_stock >= $3`,
		medicineID, batchNumber, qty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *batchRepoPG) ReleaseStock(ctx context.Context, medicineID uuid.UUID, batchNumber string, qty int) (int, error) {
	var released int
	err := r.conn(ctx).QueryRow(ctx, `
		WITH pick AS (
			SELECT id, LEAST(reserved_stock, $3) AS delta
			FROM inventory_batch
			WHERE medicine_id = $1 AND batch_number = $2
			FOR UPDATE
		)
		UPDATE inventory_batch ib
		SET reserved_stock = ib.reserved_stock - pick.delta,
			available_stock = ib.available_stock + pick.delta,
			updated_at = NOW()
		FROM pick
		WHERE ib.id = pick.id
		RETURNING pick.delta`,
		medicineID, batchNumber, qty).Scan(&released)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("batch not found: %s/%s", medicineID, batchNumber)
	}
	if err != nil {
		return 0, err
	}
	return released, nil
}

// =========== Transaction Repository ===========

type transactionRepoPG struct{ pool *pgxpool.Pool }

func NewTransactionRepoPG(pool *pgxpool.Pool) TransactionRepository {
	return &transactionRepoPG{pool: pool}
}

func (r *transactionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const txCols = `id, transaction_number, medicine_id, batch_number, type, quantity,
	unit_price, total_amount, status, operator, reference, note, created_at`

func (r *transactionRepoPG) scanTx(row pgx.Row) (*StockTransaction, error) {
	var t StockTransaction
	err := row.Scan(&t.ID, &t.TransactionNumber, &t.MedicineID, &t.BatchNumber,
		&t.Type, &t.Quantity, &t.UnitPrice, &t.TotalAmount, &t.Status,
		&t.Operator, &t.Reference, &t.Note, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transactionRepoPG) Create(ctx context.Context, t *StockTransaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO stock_transaction (id, transaction_number, medicine_id, batch_number, type,
			quantity, unit_price, total_amount, status, operator, reference, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.TransactionNumber, t.MedicineID, t.BatchNumber, t.Type,
		t.Quantity, t.UnitPrice, t.TotalAmount, t.Status, t.Operator, t.Reference, t.Note)
	return err
}

func (r *transactionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*StockTransaction, error) {
	return r.scanTx(r.conn(ctx).QueryRow(ctx,
		`SELECT `+txCols+` FROM stock_transaction WHERE id = $1`, id))
}

func (r *transactionRepoPG) GetByNumber(ctx context.Context, number string) (*StockTransaction, error) {
	return r.scanTx(r.conn(ctx).QueryRow(ctx,
		`SELECT `+txCols+` FROM stock_transaction WHERE transaction_number = $1`, number))
}

func (r *transactionRepoPG) List(ctx context.Context, limit, offset int) ([]*StockTransaction, int, error) {
	return r.list(ctx, `SELECT COUNT(*) FROM stock_transaction`, nil,
		`SELECT `+txCols+` FROM stock_transaction ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		[]interface{}{limit, offset})
}

func (r *transactionRepoPG) ListByMedicine(ctx context.Context, medicineID uuid.UUID, limit, offset int) ([]*StockTransaction, int, error) {
	return r.list(ctx,
		`SELECT COUNT(*) FROM stock_transaction WHERE medicine_id = $1`, []interface{}{medicineID},
		`SELECT `+txCols+` FROM stock_transaction WHERE medicine_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		[]interface{}{medicineID, limit, offset})
}

func (r *transactionRepoPG) list(ctx context.Context, countSQL string, countArgs []interface{}, dataSQL string, dataArgs []interface{}) ([]*StockTransaction, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*StockTransaction
	for rows.Next() {
		t, err := r.scanTx(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, nil
}

func (r *transactionRepoPG) ListByBatch(ctx context.Context, medicineID uuid.UUID, batchNumber string) ([]*StockTransaction, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+txCols+` FROM stock_transaction
		 WHERE medicine_id = $1 AND batch_number = $2 ORDER BY created_at`,
		medicineID, batchNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*StockTransaction
	for rows.Next() {
		t, err := r.scanTx(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, nil
}

func (r *transactionRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to TransactionStatus) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE stock_transaction SET status = $3 WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *transactionRepoPG) SumConfirmedByBatch(ctx context.Context, medicineID uuid.UUID, batchNumber string) (int, error) {
	var sum int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM stock_transaction
		WHERE medicine_id = $1 AND batch_number = $2 AND status = 'confirmed'`,
		medicineID, batchNumber).Scan(&sum)
	return sum, err
}
