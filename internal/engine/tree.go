package engine

import (
	"github.com/tarifwerk/tarifwerk/internal/domain/catalog"
)

// EvaluateTree evaluates a package eligibility tree against the supplied
// context and returns the result with a full ordered trace. Evaluation is
// post-order and deterministic: And short-circuits on the first false
// child, Or on the first true child, but untried siblings are still
// recorded as not-evaluated so the trace never silently omits a clause.
func EvaluateTree(root *catalog.ConditionNode, in evalInput) (bool, []ClauseTrace) {
	var trace []ClauseTrace
	result := evalNode(root, in, &trace)
	return result, trace
}

func evalNode(node *catalog.ConditionNode, in evalInput, trace *[]ClauseTrace) bool {
	if node == nil {
		return true
	}
	switch node.Op {
	case catalog.OpClause:
		ok, tr := evalClause(node, in)
		*trace = append(*trace, tr)
		return ok

	case catalog.OpNot:
		if len(node.Children) != 1 {
			*trace = append(*trace, ClauseTrace{
				Expr:    node.String(),
				Outcome: TraceFailed,
				Detail:  "malformed NOT node",
			})
			return false
		}
		ok := evalNode(node.Children[0], in, trace)
		outcome := TraceFailed
		if !ok {
			outcome = TracePassed
		}
		*trace = append(*trace, ClauseTrace{Expr: node.String(), Outcome: outcome})
		return !ok

	case catalog.OpAnd:
		result := true
		for i, child := range node.Children {
			if !evalNode(child, in, trace) {
				result = false
				markNotEvaluated(node.Children[i+1:], trace)
				break
			}
		}
		appendConnectiveTrace(node, result, trace)
		return result

	case catalog.OpOr:
		// An Or with no children cannot be satisfied.
		result := false
		for i, child := range node.Children {
			if evalNode(child, in, trace) {
				result = true
				markNotEvaluated(node.Children[i+1:], trace)
				break
			}
		}
		appendConnectiveTrace(node, result, trace)
		return result

	default:
		*trace = append(*trace, ClauseTrace{
			Expr:    node.String(),
			Outcome: TraceFailed,
			Detail:  "unknown node op",
		})
		return false
	}
}

// markNotEvaluated records every sibling skipped by a short-circuit, one
// entry per untried subtree.
func markNotEvaluated(siblings []*catalog.ConditionNode, trace *[]ClauseTrace) {
	for _, s := range siblings {
		*trace = append(*trace, ClauseTrace{Expr: s.String(), Outcome: TraceNotEvaluated})
	}
}

// appendConnectiveTrace records the aggregate outcome of an And/Or node.
// Leaf-only trees skip the aggregate entry to keep single-clause traces
// flat.
func appendConnectiveTrace(node *catalog.ConditionNode, result bool, trace *[]ClauseTrace) {
	if len(node.Children) <= 1 {
		return
	}
	outcome := TraceFailed
	if result {
		outcome = TracePassed
	}
	*trace = append(*trace, ClauseTrace{Expr: node.String(), Outcome: outcome})
}
