package engine

import (
	"fmt"

	"github.com/tarifwerk/tarifwerk/internal/domain/catalog"
)

// evalInput bundles everything a predicate may consult: the catalog
// snapshot, the encounter context, and the requested service codes in
// request order. Predicate evaluation is pure; "not found" outcomes are
// reported as false with a diagnostic detail, never as an error.
type evalInput struct {
	snap      Snapshot
	ctx       EncounterContext
	requested []RequestedService
}

// evalClause evaluates one leaf condition. Indeterminate predicates
// (required context absent) fail closed: the result is false and the trace
// records why.
func evalClause(node *catalog.ConditionNode, in evalInput) (bool, ClauseTrace) {
	tr := ClauseTrace{Expr: node.String()}

	switch node.Kind {
	case catalog.PredDiagnosisInTable, catalog.PredDiagnosisEquals:
		return evalDiagnosisClause(node, in, tr)
	case catalog.PredMedicationInTable:
		return evalMedicationClause(node, in, tr)
	case catalog.PredServiceInTable, catalog.PredServiceEquals:
		return evalServiceClause(node, in, tr)
	case catalog.PredAgeInRange:
		return evalAgeClause(node, in, tr)
	case catalog.PredSexEquals:
		return evalSexClause(node, in, tr)
	default:
		// Unknown kinds are rejected at load time; reaching this branch
		// means the snapshot handed in was not built by the catalog
		// builder. Fail closed all the same.
		tr.Outcome = TraceFailed
		tr.Detail = fmt.Sprintf("unknown condition kind %q", node.Kind)
		return false, tr
	}
}

func evalDiagnosisClause(node *catalog.ConditionNode, in evalInput, tr ClauseTrace) (bool, ClauseTrace) {
	if !in.ctx.DiagnosisChecks {
		tr.Outcome = TraceSkipped
		tr.Detail = "diagnosis checking disabled for this run"
		return true, tr
	}
	if len(in.ctx.Diagnoses) == 0 {
		tr.Outcome = TraceFailed
		tr.Detail = "no diagnosis codes supplied"
		return false, tr
	}

	if node.Kind == catalog.PredDiagnosisEquals {
		for _, d := range in.ctx.Diagnoses {
			if d == node.Operand {
				tr.Outcome = TracePassed
				tr.MatchedBy = d
				return true, tr
			}
		}
		tr.Outcome = TraceFailed
		tr.Detail = fmt.Sprintf("no supplied diagnosis equals %s", node.Operand)
		return false, tr
	}

	for _, d := range in.ctx.Diagnoses {
		member, tableExists := in.snap.TableHas(node.Operand, d)
		if !tableExists {
			tr.Outcome = TraceFailed
			tr.Detail = fmt.Sprintf("table %q not in catalog", node.Operand)
			return false, tr
		}
		if member {
			tr.Outcome = TracePassed
			tr.MatchedBy = d
			return true, tr
		}
	}
	tr.Outcome = TraceFailed
	tr.Detail = fmt.Sprintf("no supplied diagnosis is in table %s", node.Operand)
	return false, tr
}

func evalMedicationClause(node *catalog.ConditionNode, in evalInput, tr ClauseTrace) (bool, ClauseTrace) {
	if len(in.ctx.Medications) == 0 {
		tr.Outcome = TraceFailed
		tr.Detail = "no medications supplied"
		return false, tr
	}

	// Classification code identity first, product identifier second, free
	// text name only when the run enables the fallback.
	for _, m := range in.ctx.Medications {
		if m.ATC == "" {
			continue
		}
		member, tableExists := in.snap.TableHas(node.Operand, m.ATC)
		if !tableExists {
			tr.Outcome = TraceFailed
			tr.Detail = fmt.Sprintf("table %q not in catalog", node.Operand)
			return false, tr
		}
		if member {
			tr.Outcome = TracePassed
			tr.MatchedBy = m.ATC
			return true, tr
		}
	}
	for _, m := range in.ctx.Medications {
		if m.GTIN == "" {
			continue
		}
		if member, _ := in.snap.TableHas(node.Operand, m.GTIN); member {
			tr.Outcome = TracePassed
			tr.MatchedBy = m.GTIN
			return true, tr
		}
	}
	if in.ctx.MedicationNameLookup {
		for _, m := range in.ctx.Medications {
			if m.Name == "" {
				continue
			}
			if member, _ := in.snap.TableHas(node.Operand, m.Name); member {
				tr.Outcome = TracePassed
				tr.MatchedBy = m.Name
				return true, tr
			}
		}
	}

	if _, tableExists := in.snap.TableHas(node.Operand, ""); !tableExists {
		tr.Outcome = TraceFailed
		tr.Detail = fmt.Sprintf("table %q not in catalog", node.Operand)
		return false, tr
	}
	tr.Outcome = TraceFailed
	tr.Detail = fmt.Sprintf("no supplied medication is in table %s", node.Operand)
	return false, tr
}

// evalServiceClause checks service-code presence among the request itself,
// independent of the rule-check outcome of those codes.
func evalServiceClause(node *catalog.ConditionNode, in evalInput, tr ClauseTrace) (bool, ClauseTrace) {
	if node.Kind == catalog.PredServiceEquals {
		for _, r := range in.requested {
			if r.Code == node.Operand {
				tr.Outcome = TracePassed
				tr.MatchedBy = r.Code
				return true, tr
			}
		}
		tr.Outcome = TraceFailed
		tr.Detail = fmt.Sprintf("service code %s not requested", node.Operand)
		return false, tr
	}

	for _, r := range in.requested {
		member, tableExists := in.snap.TableHas(node.Operand, r.Code)
		if !tableExists {
			tr.Outcome = TraceFailed
			tr.Detail = fmt.Sprintf("table %q not in catalog", node.Operand)
			return false, tr
		}
		if member {
			tr.Outcome = TracePassed
			tr.MatchedBy = r.Code
			return true, tr
		}
	}
	tr.Outcome = TraceFailed
	tr.Detail = fmt.Sprintf("no requested service code is in table %s", node.Operand)
	return false, tr
}

func evalAgeClause(node *catalog.ConditionNode, in evalInput, tr ClauseTrace) (bool, ClauseTrace) {
	if in.ctx.Age == nil {
		tr.Outcome = TraceFailed
		tr.Detail = "age not supplied"
		return false, tr
	}
	min, max, err := catalog.ParseAgeRange(node.Operand)
	if err != nil {
		tr.Outcome = TraceFailed
		tr.Detail = err.Error()
		return false, tr
	}
	age := *in.ctx.Age
	if min != catalog.AgeUnbounded && age < min {
		tr.Outcome = TraceFailed
		tr.Detail = fmt.Sprintf("age %d below %d", age, min)
		return false, tr
	}
	if max != catalog.AgeUnbounded && age > max {
		tr.Outcome = TraceFailed
		tr.Detail = fmt.Sprintf("age %d above %d", age, max)
		return false, tr
	}
	tr.Outcome = TracePassed
	tr.MatchedBy = fmt.Sprintf("%d", age)
	return true, tr
}

func evalSexClause(node *catalog.ConditionNode, in evalInput, tr ClauseTrace) (bool, ClauseTrace) {
	if in.ctx.Sex == "" {
		tr.Outcome = TraceFailed
		tr.Detail = "sex not supplied"
		return false, tr
	}
	if in.ctx.Sex == node.Operand {
		tr.Outcome = TracePassed
		tr.MatchedBy = in.ctx.Sex
		return true, tr
	}
	tr.Outcome = TraceFailed
	tr.Detail = fmt.Sprintf("sex %q does not match %q", in.ctx.Sex, node.Operand)
	return false, tr
}
