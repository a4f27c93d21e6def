package dispensing

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinichq/pharmacy/internal/domain/prescription"
)

// RecordStatus is the dispense-record lifecycle state.
type RecordStatus string

const (
	RecordPendingDispense RecordStatus = "pending_dispense"
	RecordInProgress      RecordStatus = "in_progress"
	RecordDispensed       RecordStatus = "dispensed"
	RecordDelivered       RecordStatus = "delivered"
	RecordReturned        RecordStatus = "returned"
	RecordCancelled       RecordStatus = "cancelled"
)

// recordTransitions is the single source of truth for the workflow state
// machine. Returned and cancelled are reachable only before the record is
// dispensed and handed over; delivered is terminal.
var recordTransitions = map[RecordStatus][]RecordStatus{
	RecordPendingDispense: {RecordInProgress, RecordReturned, RecordCancelled},
	RecordInProgress:      {RecordDispensed, RecordReturned, RecordCancelled},
	RecordDispensed:       {RecordDelivered},
	RecordDelivered:       {},
	RecordReturned:        {},
	RecordCancelled:       {},
}

// CanTransition reports whether the workflow permits from -> to.
func CanTransition(from, to RecordStatus) bool {
	for _, next := range recordTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ItemStatus is the per-line dispense state.
type ItemStatus string

const (
	ItemPendingDispense ItemStatus = "pending_dispense"
	ItemDispensed       ItemStatus = "dispensed"
	ItemSubstituted     ItemStatus = "substituted"
	ItemReturned        ItemStatus = "returned"
)

// Terminal reports whether the item needs no further dispensing action.
func (s ItemStatus) Terminal() bool {
	return s == ItemDispensed || s == ItemSubstituted || s == ItemReturned
}

// Quality check verdicts recorded before delivery.
const (
	QualityQualified   = "qualified"
	QualityUnqualified = "unqualified"
)

// DispenseRecord maps to the dispense_record table. Exactly one record may
// exist per prescription, enforced by a unique constraint.
type DispenseRecord struct {
	ID                 uuid.UUID           `db:"id" json:"id"`
	RecordNumber       string              `db:"record_number" json:"record_number"`
	PrescriptionID     uuid.UUID           `db:"prescription_id" json:"prescription_id"`
	PatientID          uuid.UUID           `db:"patient_id" json:"patient_id"`
	PharmacistID       uuid.UUID           `db:"pharmacist_id" json:"pharmacist_id"`
	PharmacistName     string              `db:"pharmacist_name" json:"pharmacist_name"`
	Status             RecordStatus        `db:"status" json:"status"`
	ValidationResult   prescription.Result `db:"validation_result" json:"validation_result"`
	HasInteractionRisk bool                `db:"has_interaction_risk" json:"has_interaction_risk"`
	HasAllergyRisk     bool                `db:"has_allergy_risk" json:"has_allergy_risk"`
	ReviewedBy         *string             `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewComments     *string             `db:"review_comments" json:"review_comments,omitempty"`
	ReviewedAt         *time.Time          `db:"reviewed_at" json:"reviewed_at,omitempty"`
	QualityCheckResult *string             `db:"quality_check_result" json:"quality_check_result,omitempty"`
	QualityCheckedBy   *string             `db:"quality_checked_by" json:"quality_checked_by,omitempty"`
	DelivererID        *uuid.UUID          `db:"deliverer_id" json:"deliverer_id,omitempty"`
	DelivererName      *string             `db:"deliverer_name" json:"deliverer_name,omitempty"`
	DeliveryNotes      *string             `db:"delivery_notes" json:"delivery_notes,omitempty"`
	ReturnReason       *string             `db:"return_reason" json:"return_reason,omitempty"`
	CancelReason       *string             `db:"cancel_reason" json:"cancel_reason,omitempty"`
	StartedAt          time.Time           `db:"started_at" json:"started_at"`
	CompletedAt        *time.Time          `db:"completed_at" json:"completed_at,omitempty"`
	DeliveredAt        *time.Time          `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt          time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updated_at"`
}

// NeedsReview reports whether a pharmacist review must be recorded before
// the medicines may leave the pharmacy.
func (r *DispenseRecord) NeedsReview() bool {
	return r.ValidationResult == prescription.ResultNeedsReview ||
		r.HasInteractionRisk || r.HasAllergyRisk
}

// CanBeDelivered checks every delivery gate except the two-person rule,
// which needs the deliverer's identity.
func (r *DispenseRecord) CanBeDelivered() bool {
	if r.Status != RecordDispensed {
		return false
	}
	if r.NeedsReview() && r.ReviewedBy == nil {
		return false
	}
	return r.QualityCheckResult != nil && *r.QualityCheckResult == QualityQualified
}

// DispenseItem mirrors one prescription item plus what actually happened
// at the counter.
type DispenseItem struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	RecordID             uuid.UUID  `db:"record_id" json:"record_id"`
	PrescriptionItemID   uuid.UUID  `db:"prescription_item_id" json:"prescription_item_id"`
	MedicineID           uuid.UUID  `db:"medicine_id" json:"medicine_id"`
	MedicineName         string     `db:"medicine_name" json:"medicine_name"`
	PrescribedQuantity   int        `db:"prescribed_quantity" json:"prescribed_quantity"`
	DispensedQuantity    int        `db:"dispensed_quantity" json:"dispensed_quantity"`
	UnitPrice            float64    `db:"unit_price" json:"unit_price"`
	BatchNumber          *string    `db:"batch_number" json:"batch_number,omitempty"`
	ExpiryDate           *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	StockBefore          *int       `db:"stock_before" json:"stock_before,omitempty"`
	StockAfter           *int       `db:"stock_after" json:"stock_after,omitempty"`
	Status               ItemStatus `db:"status" json:"status"`
	IsSubstitute         bool       `db:"is_substitute" json:"is_substitute"`
	OriginalMedicineID   *uuid.UUID `db:"original_medicine_id" json:"original_medicine_id,omitempty"`
	OriginalMedicineName *string    `db:"original_medicine_name" json:"original_medicine_name,omitempty"`
	SubstituteReason     *string    `db:"substitute_reason" json:"substitute_reason,omitempty"`
	DispensedBy          *string    `db:"dispensed_by" json:"dispensed_by,omitempty"`
	DispensedAt          *time.Time `db:"dispensed_at" json:"dispensed_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// NewRecordNumber builds a record number like DR20260829-a1b2c3.
func NewRecordNumber(now time.Time) string {
	suffix := strings.Split(uuid.New().String(), "-")[0][:6]
	return "DR" + now.Format("20060102") + "-" + suffix
}
