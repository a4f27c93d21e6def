package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/clinichq/pharmacy/internal/platform/apperr"
)

// -- Mock Repositories --

type mockMedicineRepo struct {
	meds map[uuid.UUID]*Medicine
}

func newMockMedicineRepo() *mockMedicineRepo {
	return &mockMedicineRepo{meds: make(map[uuid.UUID]*Medicine)}
}

func (m *mockMedicineRepo) Create(_ context.Context, med *Medicine) error {
	if med.ID == uuid.Nil {
		med.ID = uuid.New()
	}
	m.meds[med.ID] = med
	return nil
}

func (m *mockMedicineRepo) GetByID(_ context.Context, id uuid.UUID) (*Medicine, error) {
	return m.meds[id], nil
}

func (m *mockMedicineRepo) GetByCode(_ context.Context, code string) (*Medicine, error) {
	for _, med := range m.meds {
		if med.Code == code {
			return med, nil
		}
	}
	return nil, nil
}

func (m *mockMedicineRepo) Update(_ context.Context, med *Medicine) error {
	m.meds[med.ID] = med
	return nil
}

func (m *mockMedicineRepo) List(_ context.Context, limit, offset int) ([]*Medicine, int, error) {
	var result []*Medicine
	for _, med := range m.meds {
		result = append(result, med)
	}
	return result, len(result), nil
}

type mockPatientDirectory struct {
	patients map[uuid.UUID]*Patient
}

func newMockPatientDirectory() *mockPatientDirectory {
	return &mockPatientDirectory{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientDirectory) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	return m.patients[id], nil
}

func newTestService() (*Service, *mockMedicineRepo, *mockPatientDirectory) {
	meds := newMockMedicineRepo()
	patients := newMockPatientDirectory()
	return NewService(meds, patients), meds, patients
}

// -- Tests --

func TestCreateMedicine(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	m := &Medicine{Code: "AMX-500", Name: "阿莫西林胶囊", Category: "抗生素", Unit: "盒"}
	if err := svc.CreateMedicine(ctx, m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.Enabled {
		t.Error("expected new medicine to be enabled")
	}
	if m.ID == uuid.Nil {
		t.Error("expected an id to be assigned")
	}
}

func TestCreateMedicine_RequiresCodeAndName(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if err := svc.CreateMedicine(ctx, &Medicine{Name: "阿莫西林胶囊"}); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for missing code, got %v", err)
	}
	if err := svc.CreateMedicine(ctx, &Medicine{Code: "AMX-500"}); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for missing name, got %v", err)
	}
}

func TestCreateMedicine_DuplicateCode(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if err := svc.CreateMedicine(ctx, &Medicine{Code: "AMX-500", Name: "阿莫西林胶囊"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := svc.CreateMedicine(ctx, &Medicine{Code: "AMX-500", Name: "另一种药"})
	if !apperr.IsBusinessRule(err) {
		t.Errorf("expected business-rule error for duplicate code, got %v", err)
	}
}

func TestCreateMedicine_ThresholdBounds(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	err := svc.CreateMedicine(ctx, &Medicine{Code: "X", Name: "x", MinStock: -1})
	if !apperr.IsValidation(err) {
		t.Errorf("expected validation error for negative threshold, got %v", err)
	}
	err = svc.CreateMedicine(ctx, &Medicine{Code: "Y", Name: "y", MinStock: 50, MaxStock: 10})
	if !apperr.IsValidation(err) {
		t.Errorf("expected validation error for min above max, got %v", err)
	}
}

func TestUpdateMedicine_CodeImmutable(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	m := &Medicine{Code: "AMX-500", Name: "阿莫西林胶囊"}
	if err := svc.CreateMedicine(ctx, m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	upd := &Medicine{ID: m.ID, Code: "HACKED", Name: "阿莫西林胶囊 0.5g"}
	if err := svc.UpdateMedicine(ctx, upd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.meds[m.ID].Code != "AMX-500" {
		t.Errorf("expected code to stay AMX-500, got %s", repo.meds[m.ID].Code)
	}
}

func TestGetMedicine_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.GetMedicine(context.Background(), uuid.New())
	if !apperr.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestGetPatient(t *testing.T) {
	svc, _, patients := newTestService()
	ctx := context.Background()

	id := uuid.New()
	patients.patients[id] = &Patient{ID: id, Name: "张三", AllergyHistory: []string{"青霉素"}}

	p, err := svc.GetPatient(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.AllergyHistory) != 1 || p.AllergyHistory[0] != "青霉素" {
		t.Errorf("unexpected allergy history: %v", p.AllergyHistory)
	}

	if _, err := svc.GetPatient(ctx, uuid.New()); !apperr.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}
