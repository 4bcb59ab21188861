package engine

import (
	"strings"
	"testing"

	"github.com/tarifwerk/tarifwerk/internal/domain/catalog"
)

func rulesSnap() *catalog.Snapshot {
	return catalog.BuildSnapshot(catalog.BuildInput{
		Services: []*catalog.ServiceCode{
			{Code: "00.0010", Kind: catalog.KindItemized, Chapter: "CA.10", MaxQuantity: 1},
			{Code: "00.0020", Kind: catalog.KindItemized, Chapter: "CA.10", MaxQuantity: 10,
				MinutesPerUnit: intp(5), Prerequisite: strp("00.0010")},
			{Code: "00.0030", Kind: catalog.KindItemized, Chapter: "CB.20",
				Excluded: []string{"00.0010"}},
			{Code: "03.0010", Kind: catalog.KindItemized, Chapter: "CA.20",
				Sex: strp("f"), MinAge: intp(18)},
			{Code: "04.0010", Kind: catalog.KindItemized, MaxAge: intp(16)},
		},
	})
}

func checkOne(t *testing.T, requested []RequestedService, ctx EncounterContext, code string) RuleCheckResult {
	t.Helper()
	results := CheckRules(requested, ctx, rulesSnap())
	for _, r := range results {
		if r.Code == code {
			return r
		}
	}
	t.Fatalf("no result for %s in %+v", code, results)
	return RuleCheckResult{}
}

func hasNote(r RuleCheckResult, substr string) bool {
	for _, n := range r.Notes {
		if strings.Contains(n, substr) {
			return true
		}
	}
	return false
}

// =========== Basic Verdicts ===========

func TestCheckRules_UnknownCode(t *testing.T) {
	r := checkOne(t, []RequestedService{{Code: "99.9999", Quantity: 1}}, EncounterContext{}, "99.9999")
	if r.Billable {
		t.Error("unknown code must not be billable")
	}
	if !hasNote(r, "unknown in catalog") {
		t.Errorf("notes: %v", r.Notes)
	}
}

func TestCheckRules_UnknownCodeDoesNotBlockOthers(t *testing.T) {
	results := CheckRules([]RequestedService{
		{Code: "99.9999", Quantity: 1},
		{Code: "00.0010", Quantity: 1},
	}, EncounterContext{}, rulesSnap())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Billable {
		t.Error("unknown code billable")
	}
	if !results[1].Billable {
		t.Errorf("valid code should stay billable: %+v", results[1])
	}
}

func TestCheckRules_ResultsInRequestOrder(t *testing.T) {
	results := CheckRules([]RequestedService{
		{Code: "00.0030", Quantity: 1},
		{Code: "00.0010", Quantity: 1},
	}, EncounterContext{}, rulesSnap())
	if results[0].Code != "00.0030" || results[1].Code != "00.0010" {
		t.Errorf("order: %s, %s", results[0].Code, results[1].Code)
	}
}

// =========== Quantity ===========

func TestCheckRules_QuantityClampedWithNote(t *testing.T) {
	r := checkOne(t, []RequestedService{{Code: "00.0010", Quantity: 3}}, EncounterContext{}, "00.0010")
	if !r.Billable {
		t.Fatalf("clamping must not reject: %+v", r)
	}
	if r.Quantity != 1 || r.RequestedQuantity != 3 {
		t.Errorf("quantity %d (requested %d)", r.Quantity, r.RequestedQuantity)
	}
	if !hasNote(r, "quantity reduced from 3 to 1") {
		t.Errorf("notes: %v", r.Notes)
	}
}

func TestCheckRules_QuantityDerivedFromDuration(t *testing.T) {
	ctx := EncounterContext{DurationMinutes: intp(25)}
	r := checkOne(t, []RequestedService{
		{Code: "00.0010", Quantity: 1},
		{Code: "00.0020", Quantity: 0},
	}, ctx, "00.0020")
	if !r.Billable {
		t.Fatalf("not billable: %+v", r)
	}
	if r.Quantity != 5 {
		t.Errorf("quantity %d, want 5 (25 min / 5 min per unit)", r.Quantity)
	}
	if !hasNote(r, "derived from duration") {
		t.Errorf("notes: %v", r.Notes)
	}
}

func TestCheckRules_QuantityDefaultsToOne(t *testing.T) {
	r := checkOne(t, []RequestedService{{Code: "00.0010", Quantity: 0}}, EncounterContext{}, "00.0010")
	if r.Quantity != 1 {
		t.Errorf("quantity %d", r.Quantity)
	}
	if !hasNote(r, "defaulted to 1") {
		t.Errorf("notes: %v", r.Notes)
	}
}

func TestCheckRules_DerivedQuantityStillClamped(t *testing.T) {
	// 120 min at 5 min per unit derives 24 units, ceiling is 10.
	ctx := EncounterContext{DurationMinutes: intp(120)}
	r := checkOne(t, []RequestedService{
		{Code: "00.0010", Quantity: 1},
		{Code: "00.0020", Quantity: 0},
	}, ctx, "00.0020")
	if r.Quantity != 10 {
		t.Errorf("quantity %d, want 10", r.Quantity)
	}
	if !hasNote(r, "quantity reduced from 24 to 10") {
		t.Errorf("notes: %v", r.Notes)
	}
}

// =========== Exclusions ===========

func TestCheckRules_ExclusionNamesConflict(t *testing.T) {
	results := CheckRules([]RequestedService{
		{Code: "00.0010", Quantity: 1},
		{Code: "00.0030", Quantity: 1},
	}, EncounterContext{}, rulesSnap())

	// 00.0030 excludes 00.0010; the exclusion is recorded on the code that
	// carries it.
	var r30 RuleCheckResult
	for _, r := range results {
		if r.Code == "00.0030" {
			r30 = r
		}
	}
	if r30.Billable {
		t.Error("00.0030 should be blocked by its exclusion")
	}
	if !hasNote(r30, "cannot be billed together with 00.0010") {
		t.Errorf("notes: %v", r30.Notes)
	}
}

func TestCheckRules_ExclusionOnlyWithinRequest(t *testing.T) {
	r := checkOne(t, []RequestedService{{Code: "00.0030", Quantity: 1}}, EncounterContext{}, "00.0030")
	if !r.Billable {
		t.Errorf("exclusion partner absent, should be billable: %+v", r)
	}
}

// =========== Prerequisites ===========

func TestCheckRules_PrerequisitePresent(t *testing.T) {
	r := checkOne(t, []RequestedService{
		{Code: "00.0010", Quantity: 1},
		{Code: "00.0020", Quantity: 2},
	}, EncounterContext{}, "00.0020")
	if !r.Billable {
		t.Errorf("surcharge with billable base should pass: %+v", r)
	}
}

func TestCheckRules_PrerequisiteMissing(t *testing.T) {
	r := checkOne(t, []RequestedService{{Code: "00.0020", Quantity: 2}}, EncounterContext{}, "00.0020")
	if r.Billable {
		t.Error("surcharge without base must not be billable")
	}
	if !hasNote(r, "requires base code 00.0010") {
		t.Errorf("notes: %v", r.Notes)
	}
}

func TestCheckRules_PrerequisiteBaseNotBillable(t *testing.T) {
	// Base B is blocked by a sex restriction, so the surcharge S fails too.
	snap := catalog.BuildSnapshot(catalog.BuildInput{
		Services: []*catalog.ServiceCode{
			{Code: "B", Kind: catalog.KindItemized, Sex: strp("f")},
			{Code: "S", Kind: catalog.KindItemized, Prerequisite: strp("B")},
		},
	})
	results := CheckRules([]RequestedService{
		{Code: "B", Quantity: 1},
		{Code: "S", Quantity: 1},
	}, EncounterContext{Sex: "m"}, snap)

	if results[0].Billable {
		t.Error("base blocked by sex restriction should not be billable")
	}
	if results[1].Billable {
		t.Error("surcharge on a non-billable base must not be billable")
	}
	if !hasNote(results[1], "base code B is itself not billable") {
		t.Errorf("notes: %v", results[1].Notes)
	}
}

func TestCheckRules_CyclicPrerequisiteTerminates(t *testing.T) {
	snap := catalog.BuildSnapshot(catalog.BuildInput{
		Services: []*catalog.ServiceCode{
			{Code: "A", Kind: catalog.KindItemized, Prerequisite: strp("B")},
			{Code: "B", Kind: catalog.KindItemized, Prerequisite: strp("A")},
		},
	})
	results := CheckRules([]RequestedService{
		{Code: "A", Quantity: 1},
		{Code: "B", Quantity: 1},
	}, EncounterContext{}, snap)

	for _, r := range results {
		if r.Billable {
			t.Errorf("code %s on a prerequisite cycle must not be billable", r.Code)
		}
	}
}

// =========== Demographics ===========

func TestCheckRules_SexRestriction(t *testing.T) {
	req := []RequestedService{{Code: "03.0010", Quantity: 1}}

	r := checkOne(t, req, EncounterContext{Sex: "f", Age: intp(30)}, "03.0010")
	if !r.Billable {
		t.Errorf("matching demographics should pass: %+v", r)
	}

	r = checkOne(t, req, EncounterContext{Sex: "m", Age: intp(30)}, "03.0010")
	if r.Billable || !hasNote(r, `restricted to sex "f"`) {
		t.Errorf("got %+v", r)
	}

	// Sex restriction with sex absent fails closed.
	r = checkOne(t, req, EncounterContext{Age: intp(30)}, "03.0010")
	if r.Billable || !hasNote(r, "sex not supplied") {
		t.Errorf("got %+v", r)
	}
}

func TestCheckRules_AgeRestriction(t *testing.T) {
	req := []RequestedService{{Code: "04.0010", Quantity: 1}}

	if r := checkOne(t, req, EncounterContext{Age: intp(10)}, "04.0010"); !r.Billable {
		t.Errorf("age 10 within max 16 should pass: %+v", r)
	}
	if r := checkOne(t, req, EncounterContext{Age: intp(17)}, "04.0010"); r.Billable {
		t.Errorf("age 17 above max 16 should fail: %+v", r)
	}
	r := checkOne(t, req, EncounterContext{}, "04.0010")
	if r.Billable || !hasNote(r, "age not supplied") {
		t.Errorf("absent age must fail closed: %+v", r)
	}
}

// =========== Duplicate Request Lines ===========

func TestCheckRules_DuplicateLinesMergeAndClampOnce(t *testing.T) {
	results := CheckRules([]RequestedService{
		{Code: "00.0010", Quantity: 1},
		{Code: "00.0010", Quantity: 5},
	}, EncounterContext{}, rulesSnap())

	if len(results) != 2 {
		t.Fatalf("expected one result per request line, got %d", len(results))
	}

	first := results[0]
	if !first.Billable {
		t.Fatalf("merged line should stay billable: %+v", first)
	}
	if first.RequestedQuantity != 6 || first.Quantity != 1 {
		t.Errorf("combined quantity 6 clamped to ceiling 1, got requested %d quantity %d",
			first.RequestedQuantity, first.Quantity)
	}
	if !hasNote(first, "quantity combined from 2 request lines") {
		t.Errorf("notes: %v", first.Notes)
	}
	if !hasNote(first, "quantity reduced from 6 to 1") {
		t.Errorf("notes: %v", first.Notes)
	}

	dup := results[1]
	if dup.Billable || dup.Quantity != 0 {
		t.Errorf("duplicate line must not bill again: %+v", dup)
	}
	if dup.RequestedQuantity != 5 {
		t.Errorf("duplicate line keeps its own requested quantity: %+v", dup)
	}
	if !hasNote(dup, "duplicate request line") {
		t.Errorf("notes: %v", dup.Notes)
	}
}
