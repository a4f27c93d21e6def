package dispensing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinichq/pharmacy/internal/domain/catalog"
	"github.com/clinichq/pharmacy/internal/domain/inventory"
	"github.com/clinichq/pharmacy/internal/domain/prescription"
	"github.com/clinichq/pharmacy/internal/platform/apperr"
	"github.com/clinichq/pharmacy/internal/platform/metrics"
)

// StockLedger is the slice of the inventory service the workflow drives.
// Every deduction or reversal pairs the batch mutation with its ledger
// entry inside the caller's transaction.
type StockLedger interface {
	TotalStock(ctx context.Context, medicineID uuid.UUID) (int, error)
	SelectFIFOBatch(ctx context.Context, medicineID uuid.UUID, required int) (*inventory.InventoryBatch, error)
	FindBatch(ctx context.Context, medicineID uuid.UUID, batchNumber string) (*inventory.InventoryBatch, error)
	DeductForDispense(ctx context.Context, medicineID uuid.UUID, batchNumber string, qty int, operator, reference string) (int, int, error)
	RestockFromReturn(ctx context.Context, medicineID uuid.UUID, batchNumber string, qty int, operator, reference string) error
}

// PrescriptionSource reads prescriptions and advances their lifecycle on
// behalf of the workflow.
type PrescriptionSource interface {
	GetWithItems(ctx context.Context, id uuid.UUID) (*prescription.Prescription, []*prescription.Item, error)
	Advance(ctx context.Context, id uuid.UUID, from, to prescription.Status) error
}

// MedicineSource resolves catalog entries for substitutions.
type MedicineSource interface {
	GetMedicine(ctx context.Context, id uuid.UUID) (*catalog.Medicine, error)
}

type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	records       Repository
	prescriptions PrescriptionSource
	validator     *prescription.Validator
	patients      catalog.PatientDirectory
	ledger        StockLedger
	medicines     MedicineSource
	runTx         TxRunner
	m             *metrics.Metrics
	now           func() time.Time
}

func NewService(
	records Repository,
	prescriptions PrescriptionSource,
	validator *prescription.Validator,
	patients catalog.PatientDirectory,
	ledger StockLedger,
	medicines MedicineSource,
) *Service {
	return &Service{
		records:       records,
		prescriptions: prescriptions,
		validator:     validator,
		patients:      patients,
		ledger:        ledger,
		medicines:     medicines,
		runTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		},
		now: time.Now,
	}
}

func (s *Service) SetTxRunner(run TxRunner) { s.runTx = run }
func (s *Service) SetMetrics(m *metrics.Metrics) { s.m = m }

func (s *Service) observe(operation, outcome string) {
	if s.m != nil {
		s.m.DispenseOps.WithLabelValues(operation, outcome).Inc()
	}
}

// ValidationSummary bundles the base pipeline verdict with the stock,
// interaction and allergy sub-checks.
type ValidationSummary struct {
	Report       *prescription.Report           `json:"report"`
	Stock        *prescription.StockCheck       `json:"stock,omitempty"`
	Interactions *prescription.InteractionCheck `json:"interactions,omitempty"`
	Allergies    *prescription.AllergyCheck     `json:"allergies,omitempty"`
}

// NeedsReview reports whether any finding forces a pharmacist review
// before delivery.
func (v *ValidationSummary) NeedsReview() bool {
	if v.Report != nil && v.Report.Result == prescription.ResultNeedsReview {
		return true
	}
	if v.Interactions != nil && v.Interactions.HasInteractions {
		return true
	}
	return v.Allergies != nil && v.Allergies.HasRisk
}

// ValidatePrescription runs the full pre-dispense pipeline. The sub-checks
// are skipped when the base pipeline already failed.
func (s *Service) ValidatePrescription(ctx context.Context, prescriptionID uuid.UUID) (*ValidationSummary, error) {
	p, items, err := s.prescriptions.GetWithItems(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}

	summary := &ValidationSummary{Report: s.validator.Validate(p, items)}
	if !summary.Report.Valid() {
		return summary, nil
	}

	if summary.Stock, err = s.validator.CheckStock(ctx, items); err != nil {
		return nil, err
	}
	if summary.Interactions, err = s.validator.CheckInteractions(ctx, items); err != nil {
		return nil, err
	}
	patient, err := s.patients.GetPatient(ctx, p.PatientID)
	if err != nil {
		return nil, err
	}
	if summary.Allergies, err = s.validator.CheckAllergies(ctx, patient, items); err != nil {
		return nil, err
	}
	return summary, nil
}

// StartDispensing validates the prescription and opens its dispense
// record. A failed validation aborts with no record and no side effects;
// a second record for the same prescription is rejected atomically.
func (s *Service) StartDispensing(ctx context.Context, prescriptionID, pharmacistID uuid.UUID, pharmacistName string) (*DispenseRecord, error) {
	if pharmacistID == uuid.Nil {
		return nil, apperr.Validation("pharmacist_id is required")
	}

	p, items, err := s.prescriptions.GetWithItems(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}

	summary, err := s.ValidatePrescription(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	if !summary.Report.Valid() {
		s.observe("start", "rejected")
		return nil, apperr.BusinessRule(summary.Report.Issues[0].Message)
	}

	if existing, err := s.records.GetRecordByPrescription(ctx, prescriptionID); err != nil {
		return nil, err
	} else if existing != nil {
		s.observe("start", "rejected")
		return nil, apperr.BusinessRule(fmt.Sprintf("prescription %s already has dispense record %s", p.Number, existing.RecordNumber))
	}

	rec := &DispenseRecord{
		RecordNumber:       NewRecordNumber(s.now()),
		PrescriptionID:     prescriptionID,
		PatientID:          p.PatientID,
		PharmacistID:       pharmacistID,
		PharmacistName:     pharmacistName,
		Status:             RecordPendingDispense,
		ValidationResult:   summary.Report.Result,
		HasInteractionRisk: summary.Interactions != nil && summary.Interactions.HasInteractions,
		HasAllergyRisk:     summary.Allergies != nil && summary.Allergies.HasRisk,
		StartedAt:          s.now(),
	}

	recItems := make([]*DispenseItem, 0, len(items))
	for _, item := range items {
		recItems = append(recItems, &DispenseItem{
			PrescriptionItemID: item.ID,
			MedicineID:         item.MedicineID,
			MedicineName:       item.MedicineName,
			PrescribedQuantity: item.Quantity,
			DispensedQuantity:  item.Quantity,
			UnitPrice:          item.UnitPrice,
			Status:             ItemPendingDispense,
		})
	}

	err = s.runTx(ctx, func(ctx context.Context) error {
		return s.records.CreateRecord(ctx, rec, recItems)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateRecord) {
			s.observe("start", "rejected")
			return nil, apperr.BusinessRule(fmt.Sprintf("prescription %s already has a dispense record", p.Number))
		}
		return nil, err
	}
	s.observe("start", "ok")
	return rec, nil
}

// DispenseItemRequest carries the counter-side parameters of one item
// dispense. BatchNumber empty means the allocator picks the batch.
type DispenseItemRequest struct {
	Quantity    int    `json:"quantity"`
	BatchNumber string `json:"batch_number"`
	Dispenser   string `json:"dispenser"`
}

// DispenseItem allocates a batch, deducts its stock with a paired ledger
// entry and marks the line dispensed. Insufficient stock aborts with no
// mutation.
func (s *Service) DispenseItem(ctx context.Context, itemID uuid.UUID, req DispenseItemRequest) (*DispenseItem, error) {
	if req.Dispenser == "" {
		return nil, apperr.Validation("dispenser is required")
	}

	var result *DispenseItem
	err := s.runTx(ctx, func(ctx context.Context) error {
		item, err := s.records.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return apperr.NotFound(fmt.Sprintf("dispense item not found: %s", itemID))
		}
		if item.Status != ItemPendingDispense {
			return apperr.BusinessRule(fmt.Sprintf("item %s is %s, not pending dispense", item.MedicineName, item.Status))
		}

		rec, err := s.records.GetRecordForUpdate(ctx, item.RecordID)
		if err != nil {
			return err
		}
		if rec.Status != RecordPendingDispense && rec.Status != RecordInProgress {
			return apperr.BusinessRule(fmt.Sprintf("record %s is %s, dispensing is closed", rec.RecordNumber, rec.Status))
		}

		qty := req.Quantity
		if qty == 0 {
			qty = item.DispensedQuantity
		}
		if qty <= 0 {
			return apperr.Validation("quantity must be positive")
		}

		total, err := s.ledger.TotalStock(ctx, item.MedicineID)
		if err != nil {
			return err
		}
		if total < qty {
			return apperr.BusinessRule(fmt.Sprintf("insufficient stock for %s: requested %d, total %d", item.MedicineName, qty, total))
		}

		var batch *inventory.InventoryBatch
		if req.BatchNumber != "" {
			batch, err = s.ledger.FindBatch(ctx, item.MedicineID, req.BatchNumber)
			if err != nil {
				return err
			}
			if !batch.Dispensable(s.now()) || batch.AvailableStock < qty {
				return apperr.BusinessRule(fmt.Sprintf("batch %s cannot cover %d units of %s", req.BatchNumber, qty, item.MedicineName))
			}
		} else {
			batch, err = s.ledger.SelectFIFOBatch(ctx, item.MedicineID, qty)
			if err != nil {
				return err
			}
			if batch == nil {
				return apperr.BusinessRule(fmt.Sprintf("no single batch can cover %d units of %s", qty, item.MedicineName))
			}
		}

		before, after, err := s.ledger.DeductForDispense(ctx, item.MedicineID, batch.BatchNumber, qty, req.Dispenser, rec.RecordNumber)
		if err != nil {
			return err
		}

		now := s.now()
		item.DispensedQuantity = qty
		item.BatchNumber = &batch.BatchNumber
		item.ExpiryDate = &batch.ExpiryDate
		item.StockBefore = &before
		item.StockAfter = &after
		item.Status = ItemDispensed
		item.DispensedBy = &req.Dispenser
		item.DispensedAt = &now
		if err := s.records.UpdateItem(ctx, item); err != nil {
			return err
		}

		if rec.Status == RecordPendingDispense {
			rec.Status = RecordInProgress
			if err := s.records.UpdateRecord(ctx, rec); err != nil {
				return err
			}
		}
		result = item
		return nil
	})
	if err != nil {
		s.observe("dispense_item", "rejected")
		return nil, err
	}
	s.observe("dispense_item", "ok")
	return result, nil
}

// SubstituteMedicine swaps an item's medicine before it is dispensed,
// keeping the original for the record.
func (s *Service) SubstituteMedicine(ctx context.Context, itemID, newMedicineID uuid.UUID, reason string) (*DispenseItem, error) {
	if reason == "" {
		return nil, apperr.Validation("substitute reason is required")
	}

	med, err := s.medicines.GetMedicine(ctx, newMedicineID)
	if err != nil {
		return nil, err
	}

	var result *DispenseItem
	err = s.runTx(ctx, func(ctx context.Context) error {
		item, err := s.records.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return apperr.NotFound(fmt.Sprintf("dispense item not found: %s", itemID))
		}
		if item.Status != ItemPendingDispense {
			return apperr.BusinessRule(fmt.Sprintf("item %s is %s, substitution is only possible before dispensing", item.MedicineName, item.Status))
		}

		rec, err := s.records.GetRecordForUpdate(ctx, item.RecordID)
		if err != nil {
			return err
		}
		if rec.Status != RecordPendingDispense && rec.Status != RecordInProgress {
			return apperr.BusinessRule(fmt.Sprintf("record %s is %s, dispensing is closed", rec.RecordNumber, rec.Status))
		}

		origID := item.MedicineID
		origName := item.MedicineName
		item.OriginalMedicineID = &origID
		item.OriginalMedicineName = &origName
		item.MedicineID = med.ID
		item.MedicineName = med.Name
		item.IsSubstitute = true
		item.SubstituteReason = &reason
		item.Status = ItemSubstituted
		if err := s.records.UpdateItem(ctx, item); err != nil {
			return err
		}

		if rec.Status == RecordPendingDispense {
			rec.Status = RecordInProgress
			if err := s.records.UpdateRecord(ctx, rec); err != nil {
				return err
			}
		}
		result = item
		return nil
	})
	if err != nil {
		s.observe("substitute", "rejected")
		return nil, err
	}
	s.observe("substitute", "ok")
	return result, nil
}

// CompleteDispensing closes the counter work: every item must be in a
// terminal state, the record becomes dispensed and the prescription
// advances with it.
func (s *Service) CompleteDispensing(ctx context.Context, recordID uuid.UUID) (*DispenseRecord, error) {
	var rec *DispenseRecord
	err := s.runTx(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.records.GetRecordForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperr.NotFound(fmt.Sprintf("dispense record not found: %s", recordID))
		}
		if rec.Status != RecordInProgress {
			return apperr.BusinessRule(fmt.Sprintf("record %s is %s, not in progress", rec.RecordNumber, rec.Status))
		}

		items, err := s.records.ListItems(ctx, recordID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if !item.Status.Terminal() {
				return apperr.BusinessRule(fmt.Sprintf("item %s is still %s", item.MedicineName, item.Status))
			}
		}

		now := s.now()
		rec.Status = RecordDispensed
		rec.CompletedAt = &now
		if err := s.records.UpdateRecord(ctx, rec); err != nil {
			return err
		}
		return s.prescriptions.Advance(ctx, rec.PrescriptionID, prescription.StatusReviewed, prescription.StatusDispensed)
	})
	if err != nil {
		s.observe("complete", "rejected")
		return nil, err
	}
	s.observe("complete", "ok")
	return rec, nil
}

// RecordReview stores the pharmacist review that clears a needs-review
// record for delivery.
func (s *Service) RecordReview(ctx context.Context, recordID uuid.UUID, reviewer, comments string) (*DispenseRecord, error) {
	if reviewer == "" {
		return nil, apperr.Validation("reviewer is required")
	}

	var rec *DispenseRecord
	err := s.runTx(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.records.GetRecordForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperr.NotFound(fmt.Sprintf("dispense record not found: %s", recordID))
		}
		if rec.Status == RecordDelivered || rec.Status == RecordReturned || rec.Status == RecordCancelled {
			return apperr.BusinessRule(fmt.Sprintf("record %s is %s, review is closed", rec.RecordNumber, rec.Status))
		}

		now := s.now()
		rec.ReviewedBy = &reviewer
		rec.ReviewComments = &comments
		rec.ReviewedAt = &now
		return s.records.UpdateRecord(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordQualityCheck stores the pre-delivery quality verdict.
func (s *Service) RecordQualityCheck(ctx context.Context, recordID uuid.UUID, result, checkedBy string) (*DispenseRecord, error) {
	if result != QualityQualified && result != QualityUnqualified {
		return nil, apperr.Validation(fmt.Sprintf("invalid quality check result: %s", result))
	}
	if checkedBy == "" {
		return nil, apperr.Validation("checked_by is required")
	}

	var rec *DispenseRecord
	err := s.runTx(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.records.GetRecordForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperr.NotFound(fmt.Sprintf("dispense record not found: %s", recordID))
		}
		if rec.Status != RecordDispensed {
			return apperr.BusinessRule(fmt.Sprintf("record %s is %s, quality check happens after dispensing", rec.RecordNumber, rec.Status))
		}
		rec.QualityCheckResult = &result
		rec.QualityCheckedBy = &checkedBy
		return s.records.UpdateRecord(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeliverMedicine hands the medicines over. A second pharmacist must
// deliver, a needs-review record must carry a recorded review, and the
// quality check must have passed.
func (s *Service) DeliverMedicine(ctx context.Context, recordID, delivererID uuid.UUID, delivererName, notes string) (*DispenseRecord, error) {
	if delivererID == uuid.Nil {
		return nil, apperr.Validation("deliverer_id is required")
	}

	var rec *DispenseRecord
	err := s.runTx(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.records.GetRecordForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperr.NotFound(fmt.Sprintf("dispense record not found: %s", recordID))
		}
		if rec.Status != RecordDispensed {
			return apperr.BusinessRule(fmt.Sprintf("record %s is %s, only dispensed records can be delivered", rec.RecordNumber, rec.Status))
		}
		if delivererID == rec.PharmacistID {
			return apperr.BusinessRule("delivering pharmacist must differ from dispensing pharmacist")
		}
		if rec.NeedsReview() && rec.ReviewedBy == nil {
			return apperr.BusinessRule(fmt.Sprintf("record %s requires a recorded pharmacist review before delivery", rec.RecordNumber))
		}
		if rec.QualityCheckResult == nil || *rec.QualityCheckResult != QualityQualified {
			return apperr.BusinessRule(fmt.Sprintf("record %s has not passed the quality check", rec.RecordNumber))
		}

		now := s.now()
		rec.Status = RecordDelivered
		rec.DelivererID = &delivererID
		rec.DelivererName = &delivererName
		if notes != "" {
			rec.DeliveryNotes = &notes
		}
		rec.DeliveredAt = &now
		if err := s.records.UpdateRecord(ctx, rec); err != nil {
			return err
		}
		return s.prescriptions.Advance(ctx, rec.PrescriptionID, prescription.StatusDispensed, prescription.StatusDelivered)
	})
	if err != nil {
		s.observe("deliver", "rejected")
		return nil, err
	}
	s.observe("deliver", "ok")
	return rec, nil
}

// ReturnPrescription unwinds a record before delivery. Every dispensed
// item is restocked with a compensating ledger entry; the whole reversal
// commits or fails as one.
func (s *Service) ReturnPrescription(ctx context.Context, recordID uuid.UUID, reason, operator string) (*DispenseRecord, error) {
	return s.unwind(ctx, recordID, RecordReturned, reason, operator)
}

// Cancel abandons a record before delivery, reversing any partial
// dispensing the same way a return does.
func (s *Service) Cancel(ctx context.Context, recordID uuid.UUID, reason, operator string) (*DispenseRecord, error) {
	return s.unwind(ctx, recordID, RecordCancelled, reason, operator)
}

func (s *Service) unwind(ctx context.Context, recordID uuid.UUID, target RecordStatus, reason, operator string) (*DispenseRecord, error) {
	if reason == "" {
		return nil, apperr.Validation("reason is required")
	}

	operation := "return"
	if target == RecordCancelled {
		operation = "cancel"
	}

	var rec *DispenseRecord
	err := s.runTx(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.records.GetRecordForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperr.NotFound(fmt.Sprintf("dispense record not found: %s", recordID))
		}
		if !CanTransition(rec.Status, target) {
			return apperr.BusinessRule(fmt.Sprintf("record %s is %s and cannot be %s", rec.RecordNumber, rec.Status, target))
		}

		items, err := s.records.ListItems(ctx, recordID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.Status != ItemDispensed {
				continue
			}
			if item.BatchNumber == nil {
				return apperr.BusinessRule(fmt.Sprintf("item %s has no batch to restock", item.MedicineName))
			}
			op := operator
			if op == "" {
				op = rec.PharmacistName
			}
			if err := s.ledger.RestockFromReturn(ctx, item.MedicineID, *item.BatchNumber, item.DispensedQuantity, op, rec.RecordNumber); err != nil {
				return err
			}
			item.Status = ItemReturned
			if err := s.records.UpdateItem(ctx, item); err != nil {
				return err
			}
		}

		rec.Status = target
		if target == RecordReturned {
			rec.ReturnReason = &reason
		} else {
			rec.CancelReason = &reason
		}
		return s.records.UpdateRecord(ctx, rec)
	})
	if err != nil {
		s.observe(operation, "rejected")
		return nil, err
	}
	s.observe(operation, "ok")
	return rec, nil
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*DispenseRecord, error) {
	rec, err := s.records.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperr.NotFound(fmt.Sprintf("dispense record not found: %s", id))
	}
	return rec, nil
}

func (s *Service) GetRecordWithItems(ctx context.Context, id uuid.UUID) (*DispenseRecord, []*DispenseItem, error) {
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.records.ListItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return rec, items, nil
}

func (s *Service) ListRecords(ctx context.Context, limit, offset int) ([]*DispenseRecord, int, error) {
	return s.records.ListRecords(ctx, limit, offset)
}
