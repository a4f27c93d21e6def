package prescription

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

// =========== Prescription Repository ===========

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) Repository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const prescriptionCols = `id, number, patient_id, physician_id, physician_name, type, status,
	diagnosis, prescribed_at, validity_days, reviewed_by, reviewed_at, created_at, updated_at`

func (r *prescriptionRepoPG) scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.Number, &p.PatientID, &p.PhysicianID, &p.PhysicianName,
		&p.Type, &p.Status, &p.Diagnosis, &p.PrescribedAt, &p.ValidityDays,
		&p.ReviewedBy, &p.ReviewedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescription (id, number, patient_id, physician_id, physician_name, type,
			status, diagnosis, prescribed_at, validity_days)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.Number, p.PatientID, p.PhysicianID, p.PhysicianName, p.Type,
		p.Status, p.Diagnosis, p.PrescribedAt, p.ValidityDays)
	return err
}

func (r *prescriptionRepoPG) CreateItems(ctx context.Context, items []*Item) error {
	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO prescription_item (id, prescription_id, medicine_id, medicine_name,
				quantity, unit_price, subtotal, usage_note)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			item.ID, item.PrescriptionID, item.MedicineID, item.MedicineName,
			item.Quantity, item.UnitPrice, item.Subtotal, item.Usage)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescription WHERE id = $1`, id))
}

func (r *prescriptionRepoPG) GetByNumber(ctx context.Context, number string) (*Prescription, error) {
	return r.scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescription WHERE number = $1`, number))
}

func (r *prescriptionRepoPG) GetItems(ctx context.Context, prescriptionID uuid.UUID) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, prescription_id, medicine_id, medicine_name, quantity, unit_price,
			subtotal, usage_note, created_at
		FROM prescription_item WHERE prescription_id = $1 ORDER BY created_at, id`, prescriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.PrescriptionID, &item.MedicineID, &item.MedicineName,
			&item.Quantity, &item.UnitPrice, &item.Subtotal, &item.Usage, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, nil
}

func (r *prescriptionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM prescription WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+prescriptionCols+` FROM prescription WHERE patient_id = $1
		 ORDER BY prescribed_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := r.scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *prescriptionRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE prescription SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *prescriptionRepoPG) MarkReviewed(ctx context.Context, id uuid.UUID, reviewer string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription
		SET status = $3, reviewed_by = $2, reviewed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $4`,
		id, reviewer, StatusReviewed, StatusIssued)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// =========== Interaction Repository ===========

type interactionRepoPG struct{ pool *pgxpool.Pool }

func NewInteractionRepoPG(pool *pgxpool.Pool) InteractionRepository {
	return &interactionRepoPG{pool: pool}
}

func (r *interactionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const interactionCols = `id, medicine_a_name, medicine_b_name, severity, description,
	management, active, created_at`

func (r *interactionRepoPG) scanInteraction(row pgx.Row) (*DrugInteraction, error) {
	var d DrugInteraction
	err := row.Scan(&d.ID, &d.MedicineAName, &d.MedicineBName, &d.Severity,
		&d.Description, &d.Management, &d.Active, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *interactionRepoPG) Create(ctx context.Context, d *DrugInteraction) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO drug_interaction (id, medicine_a_name, medicine_b_name, severity,
			description, management, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		d.ID, d.MedicineAName, d.MedicineBName, d.Severity, d.Description, d.Management, d.Active)
	return err
}

func (r *interactionRepoPG) FindActiveByNames(ctx context.Context, nameA, nameB string) (*DrugInteraction, error) {
	return r.scanInteraction(r.conn(ctx).QueryRow(ctx, `
		SELECT `+interactionCols+` FROM drug_interaction
		WHERE active
		  AND ((medicine_a_name = $1 AND medicine_b_name = $2)
		    OR (medicine_a_name = $2 AND medicine_b_name = $1))
		LIMIT 1`, nameA, nameB))
}

func (r *interactionRepoPG) List(ctx context.Context, limit, offset int) ([]*DrugInteraction, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM drug_interaction`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+interactionCols+` FROM drug_interaction
		 ORDER BY medicine_a_name, medicine_b_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*DrugInteraction
	for rows.Next() {
		d, err := r.scanInteraction(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, nil
}

func (r *interactionRepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE drug_interaction SET active = $2 WHERE id = $1`, id, active)
	return err
}
