package engine

import (
	"sort"

	"github.com/tarifwerk/tarifwerk/internal/domain/catalog"
)

// SelectPackage gathers every candidate package linked to the billable
// services, evaluates each candidate's condition tree, and picks the best
// survivor. It returns the chosen package (nil when no candidate
// satisfies its conditions, which is a normal outcome, not an error) plus
// the evaluation of every candidate for audit.
//
// Candidates are gathered from the billable subset only, but condition
// trees evaluate against the full requested set: a service-presence
// clause is satisfied by any code the caller requested, independent of
// that code's own rule-check verdict.
//
// Tie-break policy among satisfied candidates: prefer candidates whose
// chapter shares the longest prefix with their triggering service code's
// chapter; when no candidate matches the triggering chapter at all, the
// full surviving set stays in play. Within the preferred subset the lowest
// tax-point value wins (most conservative billing), ties broken by package
// id, so selection is stable across runs.
func SelectPackage(billable, requested []RequestedService, ctx EncounterContext, snap Snapshot) (*PackageResult, []PackageEvaluation) {
	candidates := gatherCandidates(billable, snap)
	if len(candidates) == 0 {
		return nil, nil
	}

	in := evalInput{snap: snap, ctx: ctx, requested: requested}

	evaluations := make([]PackageEvaluation, 0, len(candidates))
	var survivors []candidate
	for _, cand := range candidates {
		met, trace := EvaluateTree(cand.pkg.Root, in)
		ev := PackageEvaluation{
			PackageID:      cand.pkg.ID,
			Met:            met,
			TaxPoints:      cand.pkg.TaxPoints,
			TriggerCode:    cand.triggerCode,
			TriggerChapter: cand.triggerChapter,
			Trace:          trace,
		}
		evaluations = append(evaluations, ev)
		if met {
			cand.eval = ev
			survivors = append(survivors, cand)
		}
	}
	if len(survivors) == 0 {
		return nil, evaluations
	}

	best := pickBest(survivors)
	return &PackageResult{
		PackageID:  best.pkg.ID,
		Text:       best.pkg.Text,
		TaxPoints:  best.pkg.TaxPoints,
		Chapter:    best.pkg.Chapter,
		Evaluation: best.eval,
	}, evaluations
}

type candidate struct {
	pkg            *catalog.PackageDefinition
	triggerCode    string
	triggerChapter string
	eval           PackageEvaluation
}

// gatherCandidates collects packages cross-linked to any billable service
// plus packages directly named by a service's package trigger. The first
// service (in request order) that reaches a package becomes its trigger
// for the chapter tie-break. Candidates come out sorted by package id so
// repeated runs see the same order.
func gatherCandidates(billable []RequestedService, snap Snapshot) []candidate {
	seen := make(map[string]candidate)
	for _, r := range billable {
		sc := snap.Service(r.Code)
		chapter := ""
		if sc != nil {
			chapter = sc.Chapter
		}
		for _, pkg := range snap.PackagesForService(r.Code) {
			if _, ok := seen[pkg.ID]; !ok {
				seen[pkg.ID] = candidate{pkg: pkg, triggerCode: r.Code, triggerChapter: chapter}
			}
		}
		if sc != nil && sc.PackageTrigger != nil {
			if pkg := snap.Package(*sc.PackageTrigger); pkg != nil {
				if _, ok := seen[pkg.ID]; !ok {
					seen[pkg.ID] = candidate{pkg: pkg, triggerCode: r.Code, triggerChapter: chapter}
				}
			}
		}
	}

	out := make([]candidate, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].pkg.ID < out[j].pkg.ID })
	return out
}

func pickBest(survivors []candidate) candidate {
	// Chapter specificity first: keep the candidates sharing the longest
	// chapter prefix with their trigger. A zero maximum means no candidate
	// matches the triggering chapter, so everything stays in play.
	maxPrefix := 0
	for _, c := range survivors {
		if n := catalog.ChapterPrefixLen(c.pkg.Chapter, c.triggerChapter); n > maxPrefix {
			maxPrefix = n
		}
	}
	pool := survivors
	if maxPrefix > 0 {
		pool = nil
		for _, c := range survivors {
			if catalog.ChapterPrefixLen(c.pkg.Chapter, c.triggerChapter) == maxPrefix {
				pool = append(pool, c)
			}
		}
	}

	best := pool[0]
	for _, c := range pool[1:] {
		if c.pkg.TaxPoints < best.pkg.TaxPoints ||
			(c.pkg.TaxPoints == best.pkg.TaxPoints && c.pkg.ID < best.pkg.ID) {
			best = c
		}
	}
	return best
}
