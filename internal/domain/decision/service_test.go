package decision

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tarifwerk/tarifwerk/internal/domain/catalog"
	"github.com/tarifwerk/tarifwerk/internal/engine"
)

func loadedStore() *catalog.Store {
	snap := catalog.BuildSnapshot(catalog.BuildInput{
		Services: []*catalog.ServiceCode{
			{Code: "00.0010", Kind: catalog.KindItemized, Chapter: "CA.10"},
		},
		Tables: []*catalog.CodeTable{
			{Name: "HYPERT", Entries: []catalog.CodeTableEntry{{Code: "I10"}}},
		},
		Packages: []*catalog.PackageDefinition{
			{ID: "C01.HYP", Chapter: "CA.10", TaxPoints: 150},
		},
		Conditions: []catalog.PackageCondition{
			{PackageID: "C01.HYP", Kind: "diagnosis-in-table", Operand: "HYPERT"},
		},
		Links: []catalog.ServicePackageLink{
			{ServiceCode: "00.0010", PackageID: "C01.HYP"},
		},
	})
	return catalog.NewStore(snap)
}

func newTestService(store *catalog.Store) *Service {
	return NewService(store, Options{DiagnosisChecks: true}, zerolog.Nop())
}

// =========== Validation ===========

func TestDecide_NoServices(t *testing.T) {
	svc := newTestService(loadedStore())
	if _, err := svc.Decide(&DecideRequest{}); err == nil {
		t.Error("expected error for empty service list")
	}
}

func TestDecide_EmptyCode(t *testing.T) {
	svc := newTestService(loadedStore())
	_, err := svc.Decide(&DecideRequest{
		Services: []engine.RequestedService{{Code: ""}},
	})
	if err == nil {
		t.Error("expected error for empty code")
	}
}

func TestDecide_NegativeQuantity(t *testing.T) {
	svc := newTestService(loadedStore())
	_, err := svc.Decide(&DecideRequest{
		Services: []engine.RequestedService{{Code: "00.0010", Quantity: -1}},
	})
	if err == nil {
		t.Error("expected error for negative quantity")
	}
}

func TestDecide_NegativeAge(t *testing.T) {
	svc := newTestService(loadedStore())
	age := -5
	_, err := svc.Decide(&DecideRequest{
		Services: []engine.RequestedService{{Code: "00.0010", Quantity: 1}},
		Context:  engine.EncounterContext{Age: &age},
	})
	if err == nil {
		t.Error("expected error for negative age")
	}
}

func TestDecide_CatalogNotLoaded(t *testing.T) {
	svc := newTestService(catalog.NewStore(nil))
	_, err := svc.Decide(&DecideRequest{
		Services: []engine.RequestedService{{Code: "00.0010", Quantity: 1}},
	})
	if !errors.Is(err, ErrCatalogNotLoaded) {
		t.Errorf("expected ErrCatalogNotLoaded, got %v", err)
	}
}

// =========== Runs ===========

func TestDecide_Success(t *testing.T) {
	svc := newTestService(loadedStore())
	resp, err := svc.Decide(&DecideRequest{
		Services: []engine.RequestedService{{Code: "00.0010", Quantity: 1}},
		Context:  engine.EncounterContext{Diagnoses: []string{"I10"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.RunID == uuid.Nil {
		t.Error("run id should be assigned")
	}
	if resp.Decision.Kind != engine.DecisionPackage {
		t.Errorf("kind %q", resp.Decision.Kind)
	}
	if resp.CatalogLoadedAt.IsZero() {
		t.Error("catalog load time should be set")
	}
}

func TestDecide_UniqueRunIDs(t *testing.T) {
	svc := newTestService(loadedStore())
	req := &DecideRequest{
		Services: []engine.RequestedService{{Code: "00.0010", Quantity: 1}},
	}
	r1, err := svc.Decide(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r2, err := svc.Decide(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r1.RunID == r2.RunID {
		t.Error("runs must get distinct ids")
	}
}

func TestDecide_ServerPolicyOverridesContext(t *testing.T) {
	// Diagnosis checks disabled server-side: the package condition is
	// skipped and evaluates vacuously true even without diagnoses.
	svc := NewService(loadedStore(), Options{DiagnosisChecks: false}, zerolog.Nop())
	resp, err := svc.Decide(&DecideRequest{
		Services: []engine.RequestedService{{Code: "00.0010", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Decision.Kind != engine.DecisionPackage {
		t.Errorf("kind %q, want package via skipped diagnosis clause", resp.Decision.Kind)
	}
}
