package dispensing

import (
	"strings"
	"testing"
	"time"

	"github.com/clinichq/pharmacy/internal/domain/prescription"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to RecordStatus }{
		{RecordPendingDispense, RecordInProgress},
		{RecordPendingDispense, RecordReturned},
		{RecordPendingDispense, RecordCancelled},
		{RecordInProgress, RecordDispensed},
		{RecordInProgress, RecordReturned},
		{RecordInProgress, RecordCancelled},
		{RecordDispensed, RecordDelivered},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}
	denied := []struct{ from, to RecordStatus }{
		{RecordPendingDispense, RecordDispensed},
		{RecordPendingDispense, RecordDelivered},
		{RecordDispensed, RecordReturned},
		{RecordDispensed, RecordCancelled},
		{RecordDelivered, RecordReturned},
		{RecordDelivered, RecordCancelled},
		{RecordReturned, RecordInProgress},
		{RecordCancelled, RecordPendingDispense},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestDelivered_OnlyReachableFromDispensed(t *testing.T) {
	for from := range recordTransitions {
		if from == RecordDispensed {
			continue
		}
		if CanTransition(from, RecordDelivered) {
			t.Errorf("delivered must not be reachable from %s", from)
		}
	}
}

func TestItemStatus_Terminal(t *testing.T) {
	if ItemPendingDispense.Terminal() {
		t.Error("pending_dispense must not be terminal")
	}
	for _, s := range []ItemStatus{ItemDispensed, ItemSubstituted, ItemReturned} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
}

func TestNeedsReview(t *testing.T) {
	rec := &DispenseRecord{ValidationResult: prescription.ResultPass}
	if rec.NeedsReview() {
		t.Error("clean record must not need review")
	}
	rec.HasInteractionRisk = true
	if !rec.NeedsReview() {
		t.Error("interaction risk must force review")
	}
	rec = &DispenseRecord{ValidationResult: prescription.ResultNeedsReview}
	if !rec.NeedsReview() {
		t.Error("needs_review validation must force review")
	}
	rec = &DispenseRecord{ValidationResult: prescription.ResultPass, HasAllergyRisk: true}
	if !rec.NeedsReview() {
		t.Error("allergy risk must force review")
	}
}

func TestCanBeDelivered(t *testing.T) {
	qualified := QualityQualified
	reviewer := "李药师"

	rec := &DispenseRecord{Status: RecordDispensed, ValidationResult: prescription.ResultPass}
	if rec.CanBeDelivered() {
		t.Error("delivery must wait for the quality check")
	}
	rec.QualityCheckResult = &qualified
	if !rec.CanBeDelivered() {
		t.Error("qualified dispensed record should be deliverable")
	}

	rec.Status = RecordInProgress
	if rec.CanBeDelivered() {
		t.Error("only dispensed records are deliverable")
	}

	rec = &DispenseRecord{Status: RecordDispensed, ValidationResult: prescription.ResultNeedsReview, QualityCheckResult: &qualified}
	if rec.CanBeDelivered() {
		t.Error("needs-review record must carry a review before delivery")
	}
	rec.ReviewedBy = &reviewer
	if !rec.CanBeDelivered() {
		t.Error("reviewed needs-review record should be deliverable")
	}
}

func TestNewRecordNumber(t *testing.T) {
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	n := NewRecordNumber(now)
	if !strings.HasPrefix(n, "DR20260829-") {
		t.Errorf("unexpected record number %s", n)
	}
	if n == NewRecordNumber(now) {
		t.Error("record numbers must not collide for the same day")
	}
}
