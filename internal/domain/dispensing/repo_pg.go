package dispensing

import (
	"context"
	"errors"

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

type dispenseRepoPG struct{ pool *pgxpool.Pool }

func NewDispenseRepoPG(pool *pgxpool.Pool) Repository {
	return &dispenseRepoPG{pool: pool}
}

func (r *dispenseRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const recordCols = `id, record_number, prescription_id, patient_id, pharmacist_id, pharmacist_name,
	status, validation_result, has_interaction_risk, has_allergy_risk,
	reviewed_by, review_comments, reviewed_at,
	quality_check_result, quality_checked_by,
	deliverer_id, deliverer_name, delivery_notes,
	return_reason, cancel_reason,
	started_at, completed_at, delivered_at, created_at, updated_at`

func (r *dispenseRepoPG) scanRecord(row pgx.Row) (*DispenseRecord, error) {
	var rec DispenseRecord
	err := row.Scan(&rec.ID, &rec.RecordNumber, &rec.PrescriptionID, &rec.PatientID,
		&rec.PharmacistID, &rec.PharmacistName,
		&rec.Status, &rec.ValidationResult, &rec.HasInteractionRisk, &rec.HasAllergyRisk,
		&rec.ReviewedBy, &rec.ReviewComments, &rec.ReviewedAt,
		&rec.QualityCheckResult, &rec.QualityCheckedBy,
		&rec.DelivererID, &rec.DelivererName, &rec.DeliveryNotes,
		&rec.ReturnReason, &rec.CancelReason,
		&rec.StartedAt, &rec.CompletedAt, &rec.DeliveredAt, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *dispenseRepoPG) CreateRecord(ctx context.Context, rec *DispenseRecord, items []*DispenseItem) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO dispense_record (id, record_number, prescription_id, patient_id,
			pharmacist_id, pharmacist_name, status, validation_result,
			has_interaction_risk, has_allergy_risk, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		rec.ID, rec.RecordNumber, rec.PrescriptionID, rec.PatientID,
		rec.PharmacistID, rec.PharmacistName, rec.Status, rec.ValidationResult,
		rec.HasInteractionRisk, rec.HasAllergyRisk, rec.StartedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateRecord
		}
		return err
	}

	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.RecordID = rec.ID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO dispense_item (id, record_id, prescription_item_id, medicine_id,
				medicine_name, prescribed_quantity, dispensed_quantity, unit_price, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			item.ID, item.RecordID, item.PrescriptionItemID, item.MedicineID,
			item.MedicineName, item.PrescribedQuantity, item.DispensedQuantity,
			item.UnitPrice, item.Status)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *dispenseRepoPG) GetRecord(ctx context.Context, id uuid.UUID) (*DispenseRecord, error) {
	return r.scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM dispense_record WHERE id = $1`, id))
}

func (r *dispenseRepoPG) GetRecordForUpdate(ctx context.Context, id uuid.UUID) (*DispenseRecord, error) {
	return r.scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM dispense_record WHERE id = $1 FOR UPDATE`, id))
}

func (r *dispenseRepoPG) GetRecordByPrescription(ctx context.Context, prescriptionID uuid.UUID) (*DispenseRecord, error) {
	return r.scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM dispense_record WHERE prescription_id = $1`, prescriptionID))
}

func (r *dispenseRepoPG) ListRecords(ctx context.Context, limit, offset int) ([]*DispenseRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM dispense_record`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recordCols+` FROM dispense_record ORDER BY started_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*DispenseRecord
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, nil
}

func (r *dispenseRepoPG) UpdateRecord(ctx context.Context, rec *DispenseRecord) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE dispense_record SET status=$2,
			reviewed_by=$3, review_comments=$4, reviewed_at=$5,
			quality_check_result=$6, quality_checked_by=$7,
			deliverer_id=$8, deliverer_name=$9, delivery_notes=$10,
			return_reason=$11, cancel_reason=$12,
			completed_at=$13, delivered_at=$14, updated_at=NOW()
		WHERE id = $1`,
		rec.ID, rec.Status,
		rec.ReviewedBy, rec.ReviewComments, rec.ReviewedAt,
		rec.QualityCheckResult, rec.QualityCheckedBy,
		rec.DelivererID, rec.DelivererName, rec.DeliveryNotes,
		rec.ReturnReason, rec.CancelReason,
		rec.CompletedAt, rec.DeliveredAt)
	return err
}

const itemCols = `id, record_id, prescription_item_id, medicine_id, medicine_name,
	prescribed_quantity, dispensed_quantity, unit_price,
	batch_number, expiry_date, stock_before, stock_after, status,
	is_substitute, original_medicine_id, original_medicine_name, substitute_reason,
	dispensed_by, dispensed_at, created_at, updated_at`

func (r *dispenseRepoPG) scanItem(row pgx.Row) (*DispenseItem, error) {
	var item DispenseItem
	err := row.Scan(&item.ID, &item.RecordID, &item.PrescriptionItemID,
		&item.MedicineID, &item.MedicineName,
		&item.PrescribedQuantity, &item.DispensedQuantity, &item.UnitPrice,
		&item.BatchNumber, &item.ExpiryDate, &item.StockBefore, &item.StockAfter, &item.Status,
		&item.IsSubstitute, &item.OriginalMedicineID, &item.OriginalMedicineName, &item.SubstituteReason,
		&item.DispensedBy, &item.DispensedAt, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *dispenseRepoPG) GetItem(ctx context.Context, id uuid.UUID) (*DispenseItem, error) {
	return r.scanItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM dispense_item WHERE id = $1`, id))
}

func (r *dispenseRepoPG) GetItemForUpdate(ctx context.Context, id uuid.UUID) (*DispenseItem, error) {
	return r.scanItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM dispense_item WHERE id = $1 FOR UPDATE`, id))
}

func (r *dispenseRepoPG) ListItems(ctx context.Context, recordID uuid.UUID) ([]*DispenseItem, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM dispense_item WHERE record_id = $1 ORDER BY created_at, id`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*DispenseItem
	for rows.Next() {
		item, err := r.scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *dispenseRepoPG) UpdateItem(ctx context.Context, item *DispenseItem) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE dispense_item SET medicine_id=$2, medicine_name=$3, dispensed_quantity=$4,
			batch_number=$5, expiry_date=$6, stock_before=$7, stock_after=$8, status=$9,
			is_substitute=$10, original_medicine_id=$11, original_medicine_name=$12,
			substitute_reason=$13, dispensed_by=$14, dispensed_at=$15, updated_at=NOW()
		WHERE id = $1`,
		item.ID, item.MedicineID, item.MedicineName, item.DispensedQuantity,
		item.BatchNumber, item.ExpiryDate, item.StockBefore, item.StockAfter, item.Status,
		item.IsSubstitute, item.OriginalMedicineID, item.OriginalMedicineName,
		item.SubstituteReason, item.DispensedBy, item.DispensedAt)
	return err
}
