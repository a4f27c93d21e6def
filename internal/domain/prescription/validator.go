package prescription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinichq/pharmacy/internal/domain/catalog"
)

// Result is the overall verdict of the validation pipeline.
type Result string

const (
	ResultPass        Result = "pass"
	ResultNeedsReview Result = "needs_review"
	ResultFail        Result = "fail"
)

// IssueKind classifies a validation finding so callers can branch without
// matching message strings.
type IssueKind string

const (
	IssueMissingPrescription IssueKind = "missing_prescription"
	IssueNoItems             IssueKind = "no_items"
	IssueExpired             IssueKind = "expired"
	IssueNotReviewed         IssueKind = "not_reviewed"
	IssueSpecialCategory     IssueKind = "special_category"
	IssueNoStockRecord       IssueKind = "no_stock_record"
	IssueInsufficientStock   IssueKind = "insufficient_stock"
	IssueDrugInteraction     IssueKind = "drug_interaction"
	IssueAllergyRisk         IssueKind = "allergy_risk"
)

const (
	msgEmptyPrescription = "处方信息不能为空"
	msgNoItems           = "处方无药品项目"
	msgExpired           = "处方已过期，无法调剂"
	msgNotReviewed       = "处方未经审核，无法调剂"
	msgNoStockRecord     = "无库存记录"
	msgInsufficientStock = "库存不足"
)

// Issue is one structured validation finding.
type Issue struct {
	Kind         IssueKind  `json:"kind"`
	Message      string     `json:"message"`
	MedicineID   *uuid.UUID `json:"medicine_id,omitempty"`
	MedicineName string     `json:"medicine_name,omitempty"`
	Detail       string     `json:"detail,omitempty"`
}

// Report is the outcome of the base validation pipeline.
type Report struct {
	Result   Result  `json:"result"`
	Issues   []Issue `json:"issues"`
	Warnings []Issue `json:"warnings"`
}

// Valid reports whether dispensing may proceed (possibly after review).
func (r *Report) Valid() bool {
	return r.Result != ResultFail
}

// StockReader exposes the inventory levels the stock check needs. A
// medicine with no inventory record at all reports exists=false.
type StockReader interface {
	StockLevels(ctx context.Context, medicineID uuid.UUID) (available int, exists bool, err error)
}

// InteractionFinder looks up the known-interaction reference set. The name
// pair matches in either order; inactive rules are not returned.
type InteractionFinder interface {
	FindActiveByNames(ctx context.Context, nameA, nameB string) (*DrugInteraction, error)
}

// MedicineInfo resolves a medicine's catalog entry, used to match patient
// allergens against medicine categories.
type MedicineInfo interface {
	GetMedicine(ctx context.Context, id uuid.UUID) (*catalog.Medicine, error)
}

// Validator runs the pre-dispense checks. The base Validate pipeline is
// pure; the stock, interaction and allergy checks read their collaborators
// and are composed by the dispensing workflow.
type Validator struct {
	stock        StockReader
	interactions InteractionFinder
	medicines    MedicineInfo
	now          func() time.Time
}

func NewValidator(stock StockReader, interactions InteractionFinder, medicines MedicineInfo) *Validator {
	return &Validator{
		stock:        stock,
		interactions: interactions,
		medicines:    medicines,
		now:          time.Now,
	}
}

// Validate runs the base pipeline: null/empty checks fail fast, then the
// expiry and review-status checks run together so the caller sees every
// hard failure at once, then special categories downgrade the result to
// needs_review with a warning.
func (v *Validator) Validate(p *Prescription, items []*Item) *Report {
	if p == nil {
		return &Report{Result: ResultFail, Issues: []Issue{
			{Kind: IssueMissingPrescription, Message: msgEmptyPrescription},
		}}
	}
	if len(items) == 0 {
		return &Report{Result: ResultFail, Issues: []Issue{
			{Kind: IssueNoItems, Message: msgNoItems},
		}}
	}

	var issues []Issue
	if p.IsExpired(v.now()) {
		issues = append(issues, Issue{
			Kind:    IssueExpired,
			Message: msgExpired,
			Detail:  fmt.Sprintf("有效期至 %s", p.ExpiresAt().Format("2006-01-02")),
		})
	}
	if p.Status != StatusReviewed {
		issues = append(issues, Issue{
			Kind:    IssueNotReviewed,
			Message: msgNotReviewed,
			Detail:  fmt.Sprintf("当前状态: %s", p.Status),
		})
	}
	if len(issues) > 0 {
		return &Report{Result: ResultFail, Issues: issues}
	}

	report := &Report{Result: ResultPass}
	if auth, ok := specialAuthorizations[p.Type]; ok {
		report.Result = ResultNeedsReview
		report.Warnings = append(report.Warnings, Issue{
			Kind:    IssueSpecialCategory,
			Message: fmt.Sprintf("%s处方需药师审核", typeLabel(p.Type)),
			Detail:  fmt.Sprintf("开方医师须持有%s", auth),
		})
	}
	return report
}

func typeLabel(t Type) string {
	switch t {
	case TypeNarcotic:
		return "麻醉药品"
	case TypePsychotropic:
		return "精神药品"
	case TypeToxic:
		return "医疗用毒性药品"
	default:
		return string(t)
	}
}

// StockCheck is the verdict of the stock-sufficiency sub-check.
type StockCheck struct {
	Sufficient bool    `json:"sufficient"`
	Issues     []Issue `json:"issues"`
}

// CheckStock verifies that every item's requested quantity is covered by
// the medicine's total available stock. A missing inventory record is
// reported as its own issue, distinct from low stock.
func (v *Validator) CheckStock(ctx context.Context, items []*Item) (*StockCheck, error) {
	check := &StockCheck{Sufficient: true}
	for _, item := range items {
		available, exists, err := v.stock.StockLevels(ctx, item.MedicineID)
		if err != nil {
			return nil, err
		}
		medID := item.MedicineID
		if !exists {
			check.Sufficient = false
			check.Issues = append(check.Issues, Issue{
				Kind:         IssueNoStockRecord,
				Message:      msgNoStockRecord,
				MedicineID:   &medID,
				MedicineName: item.MedicineName,
			})
			continue
		}
		if available < item.Quantity {
			check.Sufficient = false
			check.Issues = append(check.Issues, Issue{
				Kind:         IssueInsufficientStock,
				Message:      msgInsufficientStock,
				MedicineID:   &medID,
				MedicineName: item.MedicineName,
				Detail:       fmt.Sprintf("需要 %d，可用 %d", item.Quantity, available),
			})
		}
	}
	return check, nil
}

// InteractionCheck is the verdict of the pairwise drug-interaction check.
type InteractionCheck struct {
	HasInteractions bool    `json:"has_interactions"`
	Interactions    []Issue `json:"interactions"`
}

// CheckInteractions tests every pair of item medicine names against the
// interaction reference set. Quadratic over the item count, which is fine
// for prescription-sized lists.
func (v *Validator) CheckInteractions(ctx context.Context, items []*Item) (*InteractionCheck, error) {
	check := &InteractionCheck{}
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			rule, err := v.interactions.FindActiveByNames(ctx, items[i].MedicineName, items[j].MedicineName)
			if err != nil {
				return nil, err
			}
			if rule == nil {
				continue
			}
			check.HasInteractions = true
			medID := items[i].MedicineID
			check.Interactions = append(check.Interactions, Issue{
				Kind:         IssueDrugInteraction,
				Message:      fmt.Sprintf("%s 与 %s 存在相互作用", items[i].MedicineName, items[j].MedicineName),
				MedicineID:   &medID,
				MedicineName: items[i].MedicineName,
				Detail:       fmt.Sprintf("[%s] %s", rule.Severity, rule.Description),
			})
		}
	}
	return check, nil
}

// AllergyCheck is the verdict of the patient-allergen cross-reference.
type AllergyCheck struct {
	HasRisk bool    `json:"has_risk"`
	Risks   []Issue `json:"risks"`
}

// CheckAllergies matches the patient's recorded allergens against item
// medicine names and catalog categories by substring.
func (v *Validator) CheckAllergies(ctx context.Context, patient *catalog.Patient, items []*Item) (*AllergyCheck, error) {
	check := &AllergyCheck{}
	if patient == nil || len(patient.AllergyHistory) == 0 {
		return check, nil
	}

	for _, item := range items {
		category := ""
		if v.medicines != nil {
			med, err := v.medicines.GetMedicine(ctx, item.MedicineID)
			if err == nil && med != nil {
				category = med.Category
			}
		}
		for _, allergen := range patient.AllergyHistory {
			if allergen == "" {
				continue
			}
			if !allergyMatch(item.MedicineName, allergen) && !allergyMatch(category, allergen) {
				continue
			}
			check.HasRisk = true
			medID := item.MedicineID
			check.Risks = append(check.Risks, Issue{
				Kind:         IssueAllergyRisk,
				Message:      fmt.Sprintf("患者对 %s 过敏", allergen),
				MedicineID:   &medID,
				MedicineName: item.MedicineName,
				Detail:       fmt.Sprintf("过敏原: %s", allergen),
			})
			break
		}
	}
	return check, nil
}

func allergyMatch(subject, allergen string) bool {
	if subject == "" {
		return false
	}
	s := strings.ToLower(subject)
	a := strings.ToLower(allergen)
	return strings.Contains(s, a) || strings.Contains(a, s)
}
