package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinichq/pharmacy/internal/platform/apperr"
)

type Service struct {
	medicines MedicineRepository
	patients  PatientDirectory
}

func NewService(medicines MedicineRepository, patients PatientDirectory) *Service {
	return &Service{medicines: medicines, patients: patients}
}

func (s *Service) CreateMedicine(ctx context.Context, m *Medicine) error {
	if m.Code == "" {
		return apperr.Validation("code is required")
	}
	if m.Name == "" {
		return apperr.Validation("name is required")
	}
	if m.MinStock < 0 || m.MaxStock < 0 || m.SafetyStock < 0 {
		return apperr.Validation("stock thresholds must be non-negative")
	}
	if m.MaxStock > 0 && m.MinStock > m.MaxStock {
		return apperr.Validation(fmt.Sprintf("min_stock %d exceeds max_stock %d", m.MinStock, m.MaxStock))
	}
	if m.PurchasePrice < 0 || m.SellingPrice < 0 {
		return apperr.Validation("prices must be non-negative")
	}

	existing, err := s.medicines.GetByCode(ctx, m.Code)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperr.BusinessRule(fmt.Sprintf("medicine code already exists: %s", m.Code))
	}

	m.Enabled = true
	return s.medicines.Create(ctx, m)
}

func (s *Service) GetMedicine(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	m, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.NotFound(fmt.Sprintf("medicine not found: %s", id))
	}
	return m, nil
}

func (s *Service) GetMedicineByCode(ctx context.Context, code string) (*Medicine, error) {
	m, err := s.medicines.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.NotFound(fmt.Sprintf("medicine not found: %s", code))
	}
	return m, nil
}

func (s *Service) UpdateMedicine(ctx context.Context, m *Medicine) error {
	if m.ID == uuid.Nil {
		return apperr.Validation("id is required")
	}
	if m.Name == "" {
		return apperr.Validation("name is required")
	}
	existing, err := s.medicines.GetByID(ctx, m.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperr.NotFound(fmt.Sprintf("medicine not found: %s", m.ID))
	}
	// Code is immutable once assigned.
	m.Code = existing.Code
	return s.medicines.Update(ctx, m)
}

func (s *Service) ListMedicines(ctx context.Context, limit, offset int) ([]*Medicine, int, error) {
	return s.medicines.List(ctx, limit, offset)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound(fmt.Sprintf("patient not found: %s", id))
	}
	return p, nil
}
