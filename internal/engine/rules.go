package engine

import (
	"fmt"
)

// CheckRules runs the itemized-service rule checker over every requested
// service. Each check is a one-pass state machine: demographic gate, then
// quantity ceiling (clamping, not rejecting), then cumulation/exclusion,
// then prerequisite. Notes accumulate and are never overwritten, so a
// successful check can still carry informational notes. One bad input
// never blocks the others: an unknown code only marks that service
// non-billable.
//
// Results are returned in request order, one per request line. Lines
// naming the same code are merged onto the first occurrence (quantities
// summed, the ceiling applied once to the total); later duplicates come
// back non-billable with a note pointing at the merge, so a code is never
// billed twice. Prerequisite ("surcharge-of") checks need the base code's
// own verdict, so resolution is memoized per code; cyclic prerequisite
// chains (a load-time data defect) terminate with a non-billable verdict
// instead of recursing forever.
func CheckRules(requested []RequestedService, ctx EncounterContext, snap Snapshot) []RuleCheckResult {
	merged, counts := mergeDuplicates(requested)
	byCode := make(map[string]RequestedService, len(merged))
	for _, m := range merged {
		byCode[m.Code] = m
	}

	rc := &ruleChecker{
		in:       evalInput{snap: snap, ctx: ctx, requested: merged},
		results:  make(map[string]*RuleCheckResult, len(merged)),
		visiting: make(map[string]bool),
	}

	out := make([]RuleCheckResult, 0, len(requested))
	emitted := make(map[string]bool, len(merged))
	for _, r := range requested {
		if emitted[r.Code] {
			out = append(out, RuleCheckResult{
				Code:              r.Code,
				RequestedQuantity: r.Quantity,
				Notes:             []string{fmt.Sprintf("not billable: duplicate request line, quantity merged into the first line for %s", r.Code)},
			})
			continue
		}
		emitted[r.Code] = true
		res := *rc.check(byCode[r.Code])
		if counts[r.Code] > 1 {
			notes := make([]string, 0, len(res.Notes)+1)
			notes = append(notes, fmt.Sprintf("quantity combined from %d request lines", counts[r.Code]))
			res.Notes = append(notes, res.Notes...)
		}
		out = append(out, res)
	}
	return out
}

// mergeDuplicates collapses request lines naming the same code into one
// line at the first occurrence, summing quantities so ceilings apply to
// the combined total instead of to each line separately.
func mergeDuplicates(requested []RequestedService) ([]RequestedService, map[string]int) {
	merged := make([]RequestedService, 0, len(requested))
	pos := make(map[string]int, len(requested))
	counts := make(map[string]int, len(requested))
	for _, r := range requested {
		counts[r.Code]++
		if p, ok := pos[r.Code]; ok {
			if r.Quantity > 0 {
				merged[p].Quantity += r.Quantity
			}
			continue
		}
		pos[r.Code] = len(merged)
		merged = append(merged, r)
	}
	return merged, counts
}

type ruleChecker struct {
	in       evalInput
	results  map[string]*RuleCheckResult
	visiting map[string]bool
}

func (rc *ruleChecker) check(r RequestedService) *RuleCheckResult {
	if res, ok := rc.results[r.Code]; ok {
		return res
	}
	if rc.visiting[r.Code] {
		// Cyclic prerequisite chain; terminate the walk here. The builder
		// reported the cycle as a catalog diagnostic at load time.
		res := &RuleCheckResult{
			Code:              r.Code,
			RequestedQuantity: r.Quantity,
			Billable:          false,
			Notes:             []string{fmt.Sprintf("not billable: cyclic prerequisite chain involving %s", r.Code)},
		}
		rc.results[r.Code] = res
		return res
	}
	rc.visiting[r.Code] = true
	res := rc.run(r)
	delete(rc.visiting, r.Code)
	rc.results[r.Code] = res
	return res
}

func (rc *ruleChecker) run(r RequestedService) *RuleCheckResult {
	res := &RuleCheckResult{Code: r.Code, RequestedQuantity: r.Quantity}

	sc := rc.in.snap.Service(r.Code)
	if sc == nil {
		res.note("not billable: code %s unknown in catalog", r.Code)
		return res
	}

	// Demographic gate. A restriction that cannot be checked because the
	// context value is absent fails closed.
	if sc.Sex != nil {
		if rc.in.ctx.Sex == "" {
			res.note("not billable: code restricted to sex %q but sex not supplied", *sc.Sex)
			return res
		}
		if rc.in.ctx.Sex != *sc.Sex {
			res.note("not billable: code restricted to sex %q, patient is %q", *sc.Sex, rc.in.ctx.Sex)
			return res
		}
	}
	if sc.MinAge != nil || sc.MaxAge != nil {
		if rc.in.ctx.Age == nil {
			res.note("not billable: code carries an age restriction but age not supplied")
			return res
		}
		age := *rc.in.ctx.Age
		if sc.MinAge != nil && age < *sc.MinAge {
			res.note("not billable: patient age %d below minimum %d", age, *sc.MinAge)
			return res
		}
		if sc.MaxAge != nil && age > *sc.MaxAge {
			res.note("not billable: patient age %d above maximum %d", age, *sc.MaxAge)
			return res
		}
	}

	// Quantity. A missing quantity is derived from the encounter duration
	// when the code defines a per-unit duration.
	qty := r.Quantity
	if qty <= 0 {
		if sc.MinutesPerUnit != nil && *sc.MinutesPerUnit > 0 && rc.in.ctx.DurationMinutes != nil {
			qty = *rc.in.ctx.DurationMinutes / *sc.MinutesPerUnit
			if qty < 1 {
				qty = 1
			}
			res.note("quantity derived from duration: %d min at %d min per unit = %d", *rc.in.ctx.DurationMinutes, *sc.MinutesPerUnit, qty)
		} else {
			qty = 1
			res.note("quantity defaulted to 1")
		}
	}
	if sc.MaxQuantity > 0 && qty > sc.MaxQuantity {
		res.note("quantity reduced from %d to %d", qty, sc.MaxQuantity)
		qty = sc.MaxQuantity
	}
	res.Quantity = qty

	// Cumulation/exclusion: a forbidden partner present in the same
	// request makes this code non-billable, naming the conflict.
	for _, other := range rc.in.requested {
		if other.Code == r.Code {
			continue
		}
		if sc.ExcludesCode(other.Code) {
			res.note("not billable: cannot be billed together with %s", other.Code)
			return res
		}
	}

	// Prerequisite: a surcharge needs its base code present and itself
	// billable.
	if sc.Prerequisite != nil {
		base := rc.findRequested(*sc.Prerequisite)
		if base == nil {
			res.note("not billable: requires base code %s which was not requested", *sc.Prerequisite)
			return res
		}
		baseRes := rc.check(*base)
		if !baseRes.Billable {
			res.note("not billable: base code %s is itself not billable", *sc.Prerequisite)
			return res
		}
	}

	res.Billable = true
	return res
}

func (rc *ruleChecker) findRequested(code string) *RequestedService {
	for i := range rc.in.requested {
		if rc.in.requested[i].Code == code {
			return &rc.in.requested[i]
		}
	}
	return nil
}

func (r *RuleCheckResult) note(format string, args ...interface{}) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}
