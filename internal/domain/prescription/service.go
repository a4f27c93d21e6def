package prescription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinichq/pharmacy/internal/platform/apperr"
)

// statusTransitions is the single source of truth for the prescription
// lifecycle.
var statusTransitions = map[Status][]Status{
	StatusDraft:     {StatusIssued, StatusCancelled},
	StatusIssued:    {StatusReviewed, StatusCancelled},
	StatusReviewed:  {StatusDispensed, StatusCancelled},
	StatusDispensed: {StatusDelivered},
	StatusDelivered: {},
	StatusCancelled: {},
}

// CanTransition reports whether the lifecycle permits from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	prescriptions Repository
	interactions  InteractionRepository
	runTx         TxRunner
	now           func() time.Time
}

func NewService(prescriptions Repository, interactions InteractionRepository) *Service {
	return &Service{
		prescriptions: prescriptions,
		interactions:  interactions,
		runTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		},
		now: time.Now,
	}
}

func (s *Service) SetTxRunner(run TxRunner) { s.runTx = run }

// NewPrescriptionNumber builds a number like RX20260829-a1b2c3.
func NewPrescriptionNumber(now time.Time) string {
	suffix := strings.Split(uuid.New().String(), "-")[0][:6]
	return "RX" + now.Format("20060102") + "-" + suffix
}

// Create stores a prescription and its items, recomputing every subtotal.
// Prescriptions enter the lifecycle as drafts.
func (s *Service) Create(ctx context.Context, p *Prescription, items []*Item) error {
	if p.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required")
	}
	if p.PhysicianID == uuid.Nil {
		return apperr.Validation("physician_id is required")
	}
	if len(items) == 0 {
		return apperr.Validation(msgNoItems)
	}
	for _, item := range items {
		if item.MedicineID == uuid.Nil {
			return apperr.Validation("medicine_id is required on every item")
		}
		if item.Quantity <= 0 {
			return apperr.Validation(fmt.Sprintf("quantity must be positive for %s", item.MedicineName))
		}
		if item.UnitPrice < 0 {
			return apperr.Validation(fmt.Sprintf("unit_price must be non-negative for %s", item.MedicineName))
		}
	}
	if p.Type == "" {
		p.Type = TypeNormal
	}
	if !validTypes[p.Type] {
		return apperr.Validation(fmt.Sprintf("invalid prescription type: %s", p.Type))
	}
	if p.ValidityDays <= 0 {
		p.ValidityDays = 3
	}
	if p.PrescribedAt.IsZero() {
		p.PrescribedAt = s.now()
	}
	if p.Number == "" {
		p.Number = NewPrescriptionNumber(s.now())
	}
	p.Status = StatusDraft

	return s.runTx(ctx, func(ctx context.Context) error {
		if err := s.prescriptions.Create(ctx, p); err != nil {
			return err
		}
		for _, item := range items {
			item.PrescriptionID = p.ID
			item.RecomputeSubtotal()
		}
		return s.prescriptions.CreateItems(ctx, items)
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound(fmt.Sprintf("prescription not found: %s", id))
	}
	return p, nil
}

func (s *Service) GetWithItems(ctx context.Context, id uuid.UUID) (*Prescription, []*Item, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.prescriptions.GetItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return p, items, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.ListByPatient(ctx, patientID, limit, offset)
}

// Issue moves a draft prescription into circulation.
func (s *Service) Issue(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.advance(ctx, id, StatusDraft, StatusIssued)
}

// Review records the pharmacist sign-off that gates dispensing.
func (s *Service) Review(ctx context.Context, id uuid.UUID, reviewer string) (*Prescription, error) {
	if reviewer == "" {
		return nil, apperr.Validation("reviewer is required")
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.prescriptions.MarkReviewed(ctx, id, reviewer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.BusinessRule(fmt.Sprintf("prescription %s is %s, only issued prescriptions can be reviewed", p.Number, p.Status))
	}
	return s.Get(ctx, id)
}

// Cancel withdraws a prescription that has not been dispensed.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(p.Status, StatusCancelled) {
		return nil, apperr.BusinessRule(fmt.Sprintf("prescription %s cannot be cancelled from %s", p.Number, p.Status))
	}
	return s.advance(ctx, id, p.Status, StatusCancelled)
}

// Advance performs a lifecycle transition on behalf of the dispensing
// workflow, validating it against the transition table.
func (s *Service) Advance(ctx context.Context, id uuid.UUID, from, to Status) error {
	if !validStatuses[from] || !validStatuses[to] {
		return apperr.Validation(fmt.Sprintf("unknown prescription status: %s -> %s", from, to))
	}
	if !CanTransition(from, to) {
		return apperr.BusinessRule(fmt.Sprintf("invalid prescription transition: %s -> %s", from, to))
	}
	ok, err := s.prescriptions.UpdateStatus(ctx, id, from, to)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.BusinessRule(fmt.Sprintf("prescription %s is no longer %s", id, from))
	}
	return nil
}

func (s *Service) advance(ctx context.Context, id uuid.UUID, from, to Status) (*Prescription, error) {
	if err := s.Advance(ctx, id, from, to); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

var validSeverities = map[string]bool{
	"minor": true, "moderate": true, "severe": true,
}

// AddInteraction registers a rule in the interaction reference set.
func (s *Service) AddInteraction(ctx context.Context, d *DrugInteraction) error {
	if d.MedicineAName == "" || d.MedicineBName == "" {
		return apperr.Validation("both medicine names are required")
	}
	if d.MedicineAName == d.MedicineBName {
		return apperr.Validation("an interaction needs two distinct medicines")
	}
	if !validSeverities[d.Severity] {
		return apperr.Validation(fmt.Sprintf("invalid severity: %s", d.Severity))
	}
	if d.Description == "" {
		return apperr.Validation("description is required")
	}
	d.Active = true
	return s.interactions.Create(ctx, d)
}

func (s *Service) ListInteractions(ctx context.Context, limit, offset int) ([]*DrugInteraction, int, error) {
	return s.interactions.List(ctx, limit, offset)
}

func (s *Service) SetInteractionActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.interactions.SetActive(ctx, id, active)
}
