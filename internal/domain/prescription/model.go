package prescription

import (
	"time"

	"github.com/google/uuid"
)

// Status is the prescription lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusIssued    Status = "issued"
	StatusReviewed  Status = "reviewed"
	StatusDispensed Status = "dispensed"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var validStatuses = map[Status]bool{
	StatusDraft: true, StatusIssued: true, StatusReviewed: true,
	StatusDispensed: true, StatusDelivered: true, StatusCancelled: true,
}

// Type classifies a prescription by regulatory category. Anything other
// than a normal prescription forces pharmacist review during dispensing.
type Type string

const (
	TypeNormal       Type = "normal"
	TypeNarcotic     Type = "narcotic"
	TypePsychotropic Type = "psychotropic"
	TypeToxic        Type = "toxic"
)

var validTypes = map[Type]bool{
	TypeNormal: true, TypeNarcotic: true, TypePsychotropic: true, TypeToxic: true,
}

// specialAuthorizations names the prescribing authorization each special
// category requires. Checked as a requirement on the warning, not enforced
// against a credential store here.
var specialAuthorizations = map[Type]string{
	TypeNarcotic:     "麻醉药品处方权",
	TypePsychotropic: "精神药品处方权",
	TypeToxic:        "医疗用毒性药品处方权",
}

// Prescription maps to the prescription table. Prescriptions are written
// elsewhere; this core reads them and advances their status through the
// dispensing workflow.
type Prescription struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Number        string     `db:"number" json:"number"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	PhysicianID   uuid.UUID  `db:"physician_id" json:"physician_id"`
	PhysicianName string     `db:"physician_name" json:"physician_name"`
	Type          Type       `db:"type" json:"type"`
	Status        Status     `db:"status" json:"status"`
	Diagnosis     *string    `db:"diagnosis" json:"diagnosis,omitempty"`
	PrescribedAt  time.Time  `db:"prescribed_at" json:"prescribed_at"`
	ValidityDays  int        `db:"validity_days" json:"validity_days"`
	ReviewedBy    *string    `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// ExpiresAt is the last instant the prescription may be dispensed.
func (p *Prescription) ExpiresAt() time.Time {
	return p.PrescribedAt.AddDate(0, 0, p.ValidityDays)
}

func (p *Prescription) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt())
}

// IsSpecialCategory reports whether the prescription needs special
// prescribing authorization.
func (p *Prescription) IsSpecialCategory() bool {
	_, ok := specialAuthorizations[p.Type]
	return ok
}

// Item is one medicine line on a prescription.
type Item struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	MedicineID     uuid.UUID `db:"medicine_id" json:"medicine_id"`
	MedicineName   string    `db:"medicine_name" json:"medicine_name"`
	Quantity       int       `db:"quantity" json:"quantity"`
	UnitPrice      float64   `db:"unit_price" json:"unit_price"`
	Subtotal       float64   `db:"subtotal" json:"subtotal"`
	Usage          *string   `db:"usage_note" json:"usage,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// RecomputeSubtotal recalculates subtotal from quantity and unit price.
// Callers mutate quantity or price and then invoke this explicitly; there
// is no hidden recompute on assignment.
func (i *Item) RecomputeSubtotal() {
	i.Subtotal = float64(i.Quantity) * i.UnitPrice
}

// DrugInteraction is one row of the known-interaction reference set. The
// medicine names are matched pairwise in either order.
type DrugInteraction struct {
	ID            uuid.UUID `db:"id" json:"id"`
	MedicineAName string    `db:"medicine_a_name" json:"medicine_a_name"`
	MedicineBName string    `db:"medicine_b_name" json:"medicine_b_name"`
	Severity      string    `db:"severity" json:"severity"`
	Description   string    `db:"description" json:"description"`
	Management    *string   `db:"management" json:"management,omitempty"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
