package prescription

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinichq/pharmacy/internal/platform/apperr"
)

// -- Mock Repositories --

type mockPrescriptionRepo struct {
	prescriptions map[uuid.UUID]*Prescription
	items         map[uuid.UUID][]*Item
}

func newMockPrescriptionRepo() *mockPrescriptionRepo {
	return &mockPrescriptionRepo{
		prescriptions: make(map[uuid.UUID]*Prescription),
		items:         make(map[uuid.UUID][]*Item),
	}
}

func (m *mockPrescriptionRepo) Create(_ context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.prescriptions[p.ID] = p
	return nil
}

func (m *mockPrescriptionRepo) CreateItems(_ context.Context, items []*Item) error {
	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		m.items[item.PrescriptionID] = append(m.items[item.PrescriptionID], item)
	}
	return nil
}

func (m *mockPrescriptionRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	return m.prescriptions[id], nil
}

func (m *mockPrescriptionRepo) GetByNumber(_ context.Context, number string) (*Prescription, error) {
	for _, p := range m.prescriptions {
		if p.Number == number {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockPrescriptionRepo) GetItems(_ context.Context, prescriptionID uuid.UUID) ([]*Item, error) {
	return m.items[prescriptionID], nil
}

func (m *mockPrescriptionRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var result []*Prescription
	for _, p := range m.prescriptions {
		if p.PatientID == patientID {
			result = append(result, p)
		}
	}
	return result, len(result), nil
}

func (m *mockPrescriptionRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (bool, error) {
	p, ok := m.prescriptions[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func (m *mockPrescriptionRepo) MarkReviewed(_ context.Context, id uuid.UUID, reviewer string) (bool, error) {
	p, ok := m.prescriptions[id]
	if !ok || p.Status != StatusIssued {
		return false, nil
	}
	now := time.Now()
	p.Status = StatusReviewed
	p.ReviewedBy = &reviewer
	p.ReviewedAt = &now
	return true, nil
}

type mockInteractionRepo struct {
	rules map[uuid.UUID]*DrugInteraction
}

func newMockInteractionRepo() *mockInteractionRepo {
	return &mockInteractionRepo{rules: make(map[uuid.UUID]*DrugInteraction)}
}

func (m *mockInteractionRepo) Create(_ context.Context, d *DrugInteraction) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.rules[d.ID] = d
	return nil
}

func (m *mockInteractionRepo) FindActiveByNames(_ context.Context, nameA, nameB string) (*DrugInteraction, error) {
	for _, r := range m.rules {
		if !r.Active {
			continue
		}
		if (r.MedicineAName == nameA && r.MedicineBName == nameB) ||
			(r.MedicineAName == nameB && r.MedicineBName == nameA) {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockInteractionRepo) List(_ context.Context, limit, offset int) ([]*DrugInteraction, int, error) {
	var result []*DrugInteraction
	for _, r := range m.rules {
		result = append(result, r)
	}
	return result, len(result), nil
}

func (m *mockInteractionRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	if r, ok := m.rules[id]; ok {
		r.Active = active
	}
	return nil
}

func newTestService() (*Service, *mockPrescriptionRepo, *mockInteractionRepo) {
	repo := newMockPrescriptionRepo()
	interactions := newMockInteractionRepo()
	return NewService(repo, interactions), repo, interactions
}

func draftRequest() (*Prescription, []*Item) {
	p := &Prescription{
		PatientID:   uuid.New(),
		PhysicianID: uuid.New(),
	}
	items := []*Item{
		{MedicineID: uuid.New(), MedicineName: "阿莫西林胶囊", Quantity: 2, UnitPrice: 15.5},
		{MedicineID: uuid.New(), MedicineName: "布洛芬缓释胶囊", Quantity: 1, UnitPrice: 12.0},
	}
	return p, items
}

// -- Tests --

func TestCreate_Defaults(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	p, items := draftRequest()
	if err := svc.Create(ctx, p, items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != StatusDraft {
		t.Errorf("expected draft status, got %s", p.Status)
	}
	if p.Type != TypeNormal || p.ValidityDays != 3 || p.Number == "" {
		t.Errorf("defaults not applied: %+v", p)
	}
	stored := repo.items[p.ID]
	if len(stored) != 2 {
		t.Fatalf("expected 2 items, got %d", len(stored))
	}
	if stored[0].Subtotal != 31.0 {
		t.Errorf("expected subtotal 31.0, got %f", stored[0].Subtotal)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p, items := draftRequest()
	p.PatientID = uuid.Nil
	if err := svc.Create(ctx, p, items); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for missing patient, got %v", err)
	}

	p, _ = draftRequest()
	if err := svc.Create(ctx, p, nil); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for empty items, got %v", err)
	}

	p, items = draftRequest()
	items[0].Quantity = -1
	if err := svc.Create(ctx, p, items); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for negative quantity, got %v", err)
	}
}

func TestRecomputeSubtotal_Idempotent(t *testing.T) {
	item := &Item{Quantity: 3, UnitPrice: 2.5}
	item.RecomputeSubtotal()
	first := item.Subtotal
	item.RecomputeSubtotal()
	if item.Subtotal != first || first != 7.5 {
		t.Errorf("expected stable subtotal 7.5, got %f then %f", first, item.Subtotal)
	}
}

func TestLifecycle_IssueReviewCancel(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p, items := draftRequest()
	if err := svc.Create(ctx, p, items); err != nil {
		t.Fatal(err)
	}

	// Review before issue is rejected.
	if _, err := svc.Review(ctx, p.ID, "李药师"); !apperr.IsBusinessRule(err) {
		t.Errorf("expected business-rule error, got %v", err)
	}

	if _, err := svc.Issue(ctx, p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reviewed, err := svc.Review(ctx, p.ID, "李药师")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reviewed.Status != StatusReviewed || reviewed.ReviewedBy == nil || *reviewed.ReviewedBy != "李药师" {
		t.Errorf("unexpected reviewed state: %+v", reviewed)
	}

	cancelled, err := svc.Cancel(ctx, p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}
}

func TestAdvance_InvalidTransition(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	p, items := draftRequest()
	if err := svc.Create(ctx, p, items); err != nil {
		t.Fatal(err)
	}
	repo.prescriptions[p.ID].Status = StatusDelivered

	if err := svc.Advance(ctx, p.ID, StatusDelivered, StatusCancelled); !apperr.IsBusinessRule(err) {
		t.Errorf("expected business-rule error for delivered->cancelled, got %v", err)
	}
}

func TestAdvance_UnknownStatus(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if err := svc.Advance(ctx, uuid.New(), Status("archived"), StatusDispensed); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for unknown from-status, got %v", err)
	}
	if err := svc.Advance(ctx, uuid.New(), StatusReviewed, Status("done")); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for unknown to-status, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusDraft, StatusIssued},
		{StatusIssued, StatusReviewed},
		{StatusReviewed, StatusDispensed},
		{StatusDispensed, StatusDelivered},
		{StatusReviewed, StatusCancelled},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}
	denied := []struct{ from, to Status }{
		{StatusDraft, StatusDispensed},
		{StatusDelivered, StatusCancelled},
		{StatusCancelled, StatusIssued},
		{StatusDispensed, StatusCancelled},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestAddInteraction(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	d := &DrugInteraction{MedicineAName: "华法林", MedicineBName: "阿司匹林", Severity: "severe", Description: "出血风险增加"}
	if err := svc.AddInteraction(ctx, d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Active {
		t.Error("expected new rule to be active")
	}

	bad := &DrugInteraction{MedicineAName: "华法林", MedicineBName: "华法林", Severity: "severe", Description: "x"}
	if err := svc.AddInteraction(ctx, bad); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for identical names, got %v", err)
	}
	bad = &DrugInteraction{MedicineAName: "a", MedicineBName: "b", Severity: "catastrophic", Description: "x"}
	if err := svc.AddInteraction(ctx, bad); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for unknown severity, got %v", err)
	}
}
