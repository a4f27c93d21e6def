package prescription

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	CreateItems(ctx context.Context, items []*Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	GetByNumber(ctx context.Context, number string) (*Prescription, error)
	GetItems(ctx context.Context, prescriptionID uuid.UUID) ([]*Item, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error)

	// UpdateStatus advances the lifecycle only when the row still holds the
	// expected status, so concurrent transitions cannot double-apply.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)

	// MarkReviewed records the reviewing pharmacist while flipping the
	// status from issued to reviewed.
	MarkReviewed(ctx context.Context, id uuid.UUID, reviewer string) (bool, error)
}

type InteractionRepository interface {
	Create(ctx context.Context, d *DrugInteraction) error
	FindActiveByNames(ctx context.Context, nameA, nameB string) (*DrugInteraction, error)
	List(ctx context.Context, limit, offset int) ([]*DrugInteraction, int, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}
