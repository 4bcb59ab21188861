package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// PredicateKind identifies the leaf condition types a package eligibility
// tree may contain. The set is closed: reference data carrying any other
// kind is rejected at load time instead of falling through to a default.
type PredicateKind string

const (
	// PredDiagnosisInTable is true when any supplied diagnosis code is a
	// member of the named code table.
	PredDiagnosisInTable PredicateKind = "diagnosis-in-table"
	// PredDiagnosisEquals is true when any supplied diagnosis code equals
	// the literal operand.
	PredDiagnosisEquals PredicateKind = "diagnosis-equals"
	// PredMedicationInTable is true when any supplied medication is a
	// member of the named code table.
	PredMedicationInTable PredicateKind = "medication-in-table"
	// PredServiceInTable is true when any requested service code is a
	// member of the named code table.
	PredServiceInTable PredicateKind = "service-in-table"
	// PredServiceEquals is true when the literal operand appears among the
	// requested service codes.
	PredServiceEquals PredicateKind = "service-equals"
	// PredAgeInRange is true when the patient age lies within the operand
	// range ("min-max", either bound may be empty).
	PredAgeInRange PredicateKind = "age-in-range"
	// PredSexEquals is true when the patient sex equals the operand.
	PredSexEquals PredicateKind = "sex-equals"
)

var predicateKinds = map[string]PredicateKind{
	string(PredDiagnosisInTable):  PredDiagnosisInTable,
	string(PredDiagnosisEquals):   PredDiagnosisEquals,
	string(PredMedicationInTable): PredMedicationInTable,
	string(PredServiceInTable):    PredServiceInTable,
	string(PredServiceEquals):     PredServiceEquals,
	string(PredAgeInRange):        PredAgeInRange,
	string(PredSexEquals):         PredSexEquals,
}

// ParsePredicateKind maps a reference-data kind label to a PredicateKind.
// Unknown labels are a data-integrity error for the package that carries
// them, never a silently-true clause.
func ParsePredicateKind(s string) (PredicateKind, error) {
	k, ok := predicateKinds[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown condition kind %q", s)
	}
	return k, nil
}

// NodeOp is the structural tag of a ConditionNode.
type NodeOp string

const (
	OpClause NodeOp = "clause"
	OpAnd    NodeOp = "and"
	OpOr     NodeOp = "or"
	OpNot    NodeOp = "not"
)

// ConditionNode is one node of a package eligibility tree. A node is either
// a leaf Clause (Kind + Operand set, Children empty) or a connective
// (Children set, clause fields empty). Trees are built once when reference
// data is loaded and shared read-only across decision runs.
type ConditionNode struct {
	Op       NodeOp           `json:"op"`
	Kind     PredicateKind    `json:"kind,omitempty"`
	Operand  string           `json:"operand,omitempty"`
	Children []*ConditionNode `json:"children,omitempty"`
}

// Clause builds a leaf node.
func Clause(kind PredicateKind, operand string) *ConditionNode {
	return &ConditionNode{Op: OpClause, Kind: kind, Operand: operand}
}

// And builds a conjunction node. An And with no children is the empty
// condition and evaluates trivially true.
func And(children ...*ConditionNode) *ConditionNode {
	return &ConditionNode{Op: OpAnd, Children: children}
}

// Or builds a disjunction node.
func Or(children ...*ConditionNode) *ConditionNode {
	return &ConditionNode{Op: OpOr, Children: children}
}

// Not builds a negation node over a single child.
func Not(child *ConditionNode) *ConditionNode {
	return &ConditionNode{Op: OpNot, Children: []*ConditionNode{child}}
}

// String renders the node in the textual condition syntax. Used in
// evaluation traces and diagnostics so adjustments stay auditable.
func (n *ConditionNode) String() string {
	if n == nil {
		return "TRUE"
	}
	switch n.Op {
	case OpClause:
		if n.Operand == "" {
			return string(n.Kind)
		}
		return string(n.Kind) + ":" + n.Operand
	case OpNot:
		if len(n.Children) == 1 {
			return "NOT " + n.Children[0].childString(OpNot)
		}
		return "NOT ?"
	case OpAnd, OpOr:
		if len(n.Children) == 0 {
			return "TRUE"
		}
		sep := " AND "
		if n.Op == OpOr {
			sep = " OR "
		}
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = c.childString(n.Op)
		}
		return strings.Join(parts, sep)
	}
	return "?"
}

// childString parenthesizes children whose operator binds looser than the
// parent, so the rendered expression re-parses to the same tree.
func (n *ConditionNode) childString(parent NodeOp) string {
	if n == nil {
		return "TRUE"
	}
	needParens := false
	switch parent {
	case OpNot:
		needParens = n.Op == OpAnd || n.Op == OpOr
	case OpAnd:
		needParens = n.Op == OpOr
	}
	if needParens {
		return "(" + n.String() + ")"
	}
	return n.String()
}

// Validate walks the tree and checks structural integrity: clause kinds are
// known, connectives have the right arity, and clause operands referencing
// code tables resolve against the supplied table set. It returns every
// problem found rather than stopping at the first.
func (n *ConditionNode) Validate(tables map[string]*CodeTable) []error {
	var errs []error
	n.validate(tables, &errs)
	return errs
}

func (n *ConditionNode) validate(tables map[string]*CodeTable, errs *[]error) {
	if n == nil {
		return
	}
	switch n.Op {
	case OpClause:
		if _, ok := predicateKinds[string(n.Kind)]; !ok {
			*errs = append(*errs, fmt.Errorf("clause %s: unknown condition kind", n.String()))
			return
		}
		switch n.Kind {
		case PredDiagnosisInTable, PredMedicationInTable, PredServiceInTable:
			if _, ok := tables[n.Operand]; !ok {
				*errs = append(*errs, fmt.Errorf("clause %s: references nonexistent table %q", n.String(), n.Operand))
			}
		case PredAgeInRange:
			if _, _, err := ParseAgeRange(n.Operand); err != nil {
				*errs = append(*errs, fmt.Errorf("clause %s: %w", n.String(), err))
			}
		}
		if len(n.Children) != 0 {
			*errs = append(*errs, fmt.Errorf("clause %s: must not have children", n.String()))
		}
	case OpNot:
		if len(n.Children) != 1 {
			*errs = append(*errs, fmt.Errorf("NOT node must have exactly one child, has %d", len(n.Children)))
			return
		}
		n.Children[0].validate(tables, errs)
	case OpAnd, OpOr:
		for _, c := range n.Children {
			c.validate(tables, errs)
		}
	default:
		*errs = append(*errs, fmt.Errorf("unknown node op %q", n.Op))
	}
}

// AgeUnbounded marks a missing bound in a parsed age range.
const AgeUnbounded = -1

// ParseAgeRange parses an age operand of the form "min-max". Either bound
// may be omitted ("18-", "-16"). Bounds are inclusive.
func ParseAgeRange(operand string) (min, max int, err error) {
	min, max = AgeUnbounded, AgeUnbounded

	idx := strings.Index(operand, "-")
	if idx < 0 {
		return 0, 0, fmt.Errorf("invalid age range %q: missing '-'", operand)
	}
	lo, hi := strings.TrimSpace(operand[:idx]), strings.TrimSpace(operand[idx+1:])
	if lo == "" && hi == "" {
		return 0, 0, fmt.Errorf("invalid age range %q: both bounds empty", operand)
	}
	if lo != "" {
		min, err = strconv.Atoi(lo)
		if err != nil || min < 0 {
			return 0, 0, fmt.Errorf("invalid age range %q: bad lower bound", operand)
		}
	}
	if hi != "" {
		max, err = strconv.Atoi(hi)
		if err != nil || max < 0 {
			return 0, 0, fmt.Errorf("invalid age range %q: bad upper bound", operand)
		}
	}
	if min != AgeUnbounded && max != AgeUnbounded && min > max {
		return 0, 0, fmt.Errorf("invalid age range %q: lower bound exceeds upper", operand)
	}
	return min, max, nil
}
