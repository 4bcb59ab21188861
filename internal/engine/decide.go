package engine

import (
	"github.com/tarifwerk/tarifwerk/internal/domain/catalog"
)

// Decide is the engine's single public entry point. It rule-checks every
// requested service, runs package selection over the billable subset, and
// assembles the final decision under the package-before-itemized policy:
//
//   - a satisfied package wins; billable itemized codes the package does
//     not consume are retained as auxiliary output (never double-billed);
//   - otherwise the decision is itemized over all billable services;
//   - an empty billable subset yields an unresolved decision.
//
// Decide never fails: errors in the input or the reference data are
// represented as notes, diagnostics, and the unresolved variant.
func Decide(requested []RequestedService, ctx EncounterContext, snap *catalog.Snapshot) Decision {
	return decide(requested, ctx, snap, snap.Diagnostics)
}

// decide is the snapshot-interface version Decide wraps, split out so
// tests can run against a fixture snapshot.
func decide(requested []RequestedService, ctx EncounterContext, snap Snapshot, diagnostics []string) Decision {
	d := Decision{Diagnostics: diagnostics}

	if len(requested) == 0 {
		d.Kind = DecisionUnresolved
		d.Reason = "no services requested"
		return d
	}

	d.RuleChecks = CheckRules(requested, ctx, snap)

	var billable []RequestedService
	billableResults := make(map[string]RuleCheckResult)
	for i, res := range d.RuleChecks {
		if !res.Billable {
			continue
		}
		billable = append(billable, RequestedService{
			Code:     requested[i].Code,
			Quantity: res.Quantity,
		})
		billableResults[res.Code] = res
	}
	if len(billable) == 0 {
		d.Kind = DecisionUnresolved
		d.Reason = "no requested service passed the rule check"
		return d
	}

	pkg, evaluations := SelectPackage(billable, requested, ctx, snap)
	d.Evaluations = evaluations

	if pkg == nil {
		d.Kind = DecisionItemized
		for _, r := range billable {
			d.Itemized = append(d.Itemized, billableResults[r.Code])
		}
		return d
	}

	d.Kind = DecisionPackage
	d.Package = pkg
	for _, r := range billable {
		if snap.PackageCoversService(pkg.PackageID, r.Code) {
			continue
		}
		d.Auxiliary = append(d.Auxiliary, billableResults[r.Code])
	}
	return d
}
