package catalog

import (
	"testing"
)

// =========== Grammar Tests ===========

func TestParseCondition_SingleClause(t *testing.T) {
	n, err := ParseCondition("ICD:I10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Op != OpClause || n.Kind != PredDiagnosisEquals || n.Operand != "I10" {
		t.Errorf("got %+v", n)
	}
}

func TestParseCondition_CanonicalKindNames(t *testing.T) {
	n, err := ParseCondition("diagnosis-in-table:CAP9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Kind != PredDiagnosisInTable || n.Operand != "CAP9" {
		t.Errorf("got %+v", n)
	}
}

func TestParseCondition_AndBindsTighterThanOr(t *testing.T) {
	n, err := ParseCondition("ICD:A OR ICD:B AND SEX:f")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Op != OpOr || len(n.Children) != 2 {
		t.Fatalf("root should be OR with 2 children, got %+v", n)
	}
	if n.Children[1].Op != OpAnd {
		t.Errorf("second OR child should be AND, got %+v", n.Children[1])
	}
}

func TestParseCondition_ParensOverride(t *testing.T) {
	n, err := ParseCondition("(ICD:A OR ICD:B) AND SEX:f")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Op != OpAnd || len(n.Children) != 2 {
		t.Fatalf("root should be AND, got %+v", n)
	}
	if n.Children[0].Op != OpOr {
		t.Errorf("first AND child should be OR, got %+v", n.Children[0])
	}
}

func TestParseCondition_NotBindsTightest(t *testing.T) {
	n, err := ParseCondition("NOT ICD:A AND SEX:f")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Op != OpAnd {
		t.Fatalf("root should be AND, got %+v", n)
	}
	if n.Children[0].Op != OpNot {
		t.Errorf("first child should be NOT, got %+v", n.Children[0])
	}
}

func TestParseCondition_DoubleNegation(t *testing.T) {
	n, err := ParseCondition("NOT NOT ICD:A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Op != OpNot || n.Children[0].Op != OpNot {
		t.Errorf("got %+v", n)
	}
}

func TestParseCondition_KeywordsCaseInsensitive(t *testing.T) {
	n, err := ParseCondition("icd:A and not sex:m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Op != OpAnd {
		t.Errorf("got %+v", n)
	}
}

func TestParseCondition_AgeOperandChecked(t *testing.T) {
	if _, err := ParseCondition("AGE:18-65"); err != nil {
		t.Errorf("valid age range rejected: %v", err)
	}
	if _, err := ParseCondition("AGE:old"); err == nil {
		t.Error("expected error for malformed age operand")
	}
}

// =========== Rejection Tests ===========

func TestParseCondition_Rejects(t *testing.T) {
	cases := []string{
		"",                  // empty
		"   ",               // whitespace only
		"ICD:A ICD:B",       // two clauses without a connective
		"ICD:A AND",         // dangling operator
		"AND ICD:A",         // leading operator
		"(ICD:A",            // unbalanced paren
		"ICD:A)",            // stray closing paren
		"ICD",               // missing operand
		"UNKNOWN-LABEL:x",   // unknown clause label
		"NOT",               // negation without operand
		"ICD:A OR OR ICD:B", // doubled operator
	}
	for _, expr := range cases {
		if _, err := ParseCondition(expr); err == nil {
			t.Errorf("ParseCondition(%q): expected error", expr)
		}
	}
}

func TestParseCondition_ShortLabels(t *testing.T) {
	cases := map[string]PredicateKind{
		"ICD-TABLE:T1": PredDiagnosisInTable,
		"ICD:I10":      PredDiagnosisEquals,
		"ATC-TABLE:T2": PredMedicationInTable,
		"LKN-TABLE:T3": PredServiceInTable,
		"LKN:00.0010":  PredServiceEquals,
		"AGE:0-16":     PredAgeInRange,
		"SEX:f":        PredSexEquals,
	}
	for expr, want := range cases {
		n, err := ParseCondition(expr)
		if err != nil {
			t.Errorf("ParseCondition(%q): %v", expr, err)
			continue
		}
		if n.Kind != want {
			t.Errorf("ParseCondition(%q): kind %q, want %q", expr, n.Kind, want)
		}
	}
}
