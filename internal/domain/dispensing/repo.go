package dispensing

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrDuplicateRecord is returned by CreateRecord when the prescription
// already has a dispense record. The unique constraint makes the check
// atomic under concurrent retries.
var ErrDuplicateRecord = errors.New("prescription already has a dispense record")

type Repository interface {
	// CreateRecord inserts the record and all its items.
	CreateRecord(ctx context.Context, rec *DispenseRecord, items []*DispenseItem) error
	GetRecord(ctx context.Context, id uuid.UUID) (*DispenseRecord, error)
	// GetRecordForUpdate locks the record row for the rest of the enclosing
	// transaction, serializing workflow transitions per record.
	GetRecordForUpdate(ctx context.Context, id uuid.UUID) (*DispenseRecord, error)
	GetRecordByPrescription(ctx context.Context, prescriptionID uuid.UUID) (*DispenseRecord, error)
	ListRecords(ctx context.Context, limit, offset int) ([]*DispenseRecord, int, error)
	UpdateRecord(ctx context.Context, rec *DispenseRecord) error

	GetItem(ctx context.Context, id uuid.UUID) (*DispenseItem, error)
	GetItemForUpdate(ctx context.Context, id uuid.UUID) (*DispenseItem, error)
	ListItems(ctx context.Context, recordID uuid.UUID) ([]*DispenseItem, error)
	UpdateItem(ctx context.Context, item *DispenseItem) error
}
