package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Medicine maps to the medicine table (the pharmacy drug catalog).
// Identity (id, code) is immutable once created; pricing and stock
// thresholds may change.
type Medicine struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	Code                 string    `db:"code" json:"code"`
	Name                 string    `db:"name" json:"name"`
	Category             string    `db:"category" json:"category"`
	Unit                 string    `db:"unit" json:"unit"`
	MinStock             int       `db:"min_stock" json:"min_stock"`
	MaxStock             int       `db:"max_stock" json:"max_stock"`
	SafetyStock          int       `db:"safety_stock" json:"safety_stock"`
	PurchasePrice        float64   `db:"purchase_price" json:"purchase_price"`
	SellingPrice         float64   `db:"selling_price" json:"selling_price"`
	PrescriptionRequired bool      `db:"prescription_required" json:"prescription_required"`
	Enabled              bool      `db:"enabled" json:"enabled"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// Patient is the slice of the patient record this core consumes: identity
// plus recorded allergens. Patient management itself lives elsewhere.
type Patient struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	AllergyHistory []string  `db:"allergy_history" json:"allergy_history"`
}
