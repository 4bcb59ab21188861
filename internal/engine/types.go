// Package engine implements the billing-decision core: itemized-service
// rule checking, boolean evaluation of package eligibility conditions, and
// selection of the best-matching flat-rate package. The engine is a pure
// function of a request payload and an immutable catalog snapshot; it
// performs no I/O and keeps no state between runs, so any number of
// decisions may execute concurrently against the same snapshot.
package engine

import (
	"github.com/tarifwerk/tarifwerk/internal/domain/catalog"
)

// RequestedService is one (service code, quantity) pair supplied by the
// caller for a single decision run. A quantity of zero asks the engine to
// derive one (from the encounter duration when the code supports it).
type RequestedService struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity"`
}

// Medication identifies one supplied medication. Table membership is
// resolved against the classification code first, falling back to the
// product identifier and then the free-text name only when the run enables
// the name fallback.
type Medication struct {
	ATC  string `json:"atc,omitempty"`
	GTIN string `json:"gtin,omitempty"`
	Name string `json:"name,omitempty"`
}

// EncounterContext carries the patient and encounter facts predicates
// evaluate against. All fields are optional; a predicate that needs an
// absent value fails closed and records why.
type EncounterContext struct {
	Diagnoses       []string     `json:"diagnoses,omitempty"`
	Medications     []Medication `json:"medications,omitempty"`
	Age             *int         `json:"age,omitempty"`
	Sex             string       `json:"sex,omitempty"`
	DurationMinutes *int         `json:"duration_minutes,omitempty"`

	// DiagnosisChecks controls whether diagnosis predicates are honored.
	// When false they evaluate vacuously true and the trace flags the skip.
	// Set by the server from its configuration, never by the caller.
	DiagnosisChecks bool `json:"-"`
	// MedicationNameLookup enables the free-text name fallback for
	// medication table membership. Server policy, not caller-controlled.
	MedicationNameLookup bool `json:"-"`
}

// RuleCheckResult is the rule checker's verdict for one requested service.
type RuleCheckResult struct {
	Code              string   `json:"code"`
	RequestedQuantity int      `json:"requested_quantity"`
	Quantity          int      `json:"quantity"`
	Billable          bool     `json:"billable"`
	Notes             []string `json:"notes,omitempty"`
}

// TraceOutcome classifies one clause or subtree in an evaluation trace.
type TraceOutcome string

const (
	TracePassed       TraceOutcome = "passed"
	TraceFailed       TraceOutcome = "failed"
	TraceSkipped      TraceOutcome = "skipped"       // predicate disabled for this run, vacuously true
	TraceNotEvaluated TraceOutcome = "not-evaluated" // sibling untried after a short-circuit
)

// ClauseTrace is one entry of a condition-tree evaluation trace. Traces
// are ordered and deterministic: the same tree against the same context
// always yields the identical sequence.
type ClauseTrace struct {
	Expr      string       `json:"expr"`
	Outcome   TraceOutcome `json:"outcome"`
	MatchedBy string       `json:"matched_by,omitempty"`
	Detail    string       `json:"detail,omitempty"`
}

// PackageEvaluation is the tree evaluator's verdict for one candidate
// package, kept for audit regardless of whether the package is chosen.
type PackageEvaluation struct {
	PackageID      string        `json:"package_id"`
	Met            bool          `json:"met"`
	TaxPoints      float64       `json:"tax_points"`
	TriggerCode    string        `json:"trigger_code,omitempty"`
	TriggerChapter string        `json:"trigger_chapter,omitempty"`
	Trace          []ClauseTrace `json:"trace"`
}

// DecisionKind names the populated variant of a Decision.
type DecisionKind string

const (
	DecisionPackage    DecisionKind = "package"
	DecisionItemized   DecisionKind = "itemized"
	DecisionUnresolved DecisionKind = "unresolved"
)

// PackageResult pairs the chosen package with its evaluation.
type PackageResult struct {
	PackageID  string            `json:"package_id"`
	Text       string            `json:"text"`
	TaxPoints  float64           `json:"tax_points"`
	Chapter    string            `json:"chapter"`
	Evaluation PackageEvaluation `json:"evaluation"`
}

// Decision is the orchestrator's output. Exactly one variant is populated,
// indicated by Kind: a selected package (with any billable itemized codes
// the package does not consume retained as Auxiliary), an itemized result
// over all billable services, or Unresolved with a reason. RuleChecks and
// Evaluations carry the full audit trail in every variant; Diagnostics
// surfaces reference-data integrity problems alongside the best-effort
// decision.
type Decision struct {
	Kind        DecisionKind        `json:"kind"`
	Package     *PackageResult      `json:"package,omitempty"`
	Itemized    []RuleCheckResult   `json:"itemized,omitempty"`
	Auxiliary   []RuleCheckResult   `json:"auxiliary,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	RuleChecks  []RuleCheckResult   `json:"rule_checks"`
	Evaluations []PackageEvaluation `json:"evaluations,omitempty"`
	Diagnostics []string            `json:"diagnostics,omitempty"`
}

// Snapshot is the read-only catalog surface the engine needs. Satisfied by
// *catalog.Snapshot; narrowed to an interface so engine tests can run
// against a hand-built fixture.
type Snapshot interface {
	Service(code string) *catalog.ServiceCode
	Package(id string) *catalog.PackageDefinition
	TableHas(table, code string) (member, tableExists bool)
	PackagesForService(code string) []*catalog.PackageDefinition
	PackageCoversService(packageID, code string) bool
}
