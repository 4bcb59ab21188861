package catalog

import (
	"fmt"
	"sort"
	"time"
)

// BuildInput carries the raw reference data rows a snapshot is built from.
// The loader (Postgres repositories, seed files in tests) fills it; the
// builder owns all validation.
type BuildInput struct {
	Services   []*ServiceCode
	Tables     []*CodeTable
	Packages   []*PackageDefinition
	Conditions []PackageCondition
	Links      []ServicePackageLink
}

// BuildSnapshot validates the raw rows and assembles an immutable Snapshot.
// Data-integrity problems are fatal only for the entity that carries them:
// a package with a malformed condition tree is excluded from candidacy and
// reported in Diagnostics, the rest of the catalog loads normally.
func BuildSnapshot(in BuildInput) *Snapshot {
	s := &Snapshot{
		LoadedAt:          time.Now().UTC(),
		services:          make(map[string]*ServiceCode, len(in.Services)),
		tables:            make(map[string]*CodeTable, len(in.Tables)),
		packages:          make(map[string]*PackageDefinition, len(in.Packages)),
		packagesByService: make(map[string][]*PackageDefinition),
		tableMembers:      make(map[string]map[string]bool, len(in.Tables)),
		linkedServices:    make(map[string]map[string]bool),
	}

	for _, t := range in.Tables {
		if t.Name == "" {
			s.diag("code table with empty name skipped")
			continue
		}
		s.tables[t.Name] = t
		members := make(map[string]bool, len(t.Entries))
		for _, e := range t.Entries {
			members[e.Code] = true
		}
		s.tableMembers[t.Name] = members
	}

	for _, sc := range in.Services {
		if sc.Code == "" {
			s.diag("service code with empty identifier skipped")
			continue
		}
		if !validServiceCodeKinds[sc.Kind] {
			s.diag(fmt.Sprintf("service code %s: unknown kind %q, skipped", sc.Code, sc.Kind))
			continue
		}
		s.services[sc.Code] = sc
	}
	s.checkPrerequisites()

	condsByPackage := groupConditions(in.Conditions)
	for _, p := range in.Packages {
		if p.ID == "" {
			s.diag("package with empty identifier skipped")
			continue
		}
		root, errs := buildPackageRoot(p, condsByPackage[p.ID], s.tables)
		if len(errs) > 0 {
			for _, err := range errs {
				s.diag(fmt.Sprintf("package %s excluded: %v", p.ID, err))
			}
			continue
		}
		p.Root = root
		s.packages[p.ID] = p
	}

	for _, sc := range s.services {
		if sc.PackageTrigger != nil && s.packages[*sc.PackageTrigger] == nil {
			s.diag(fmt.Sprintf("service code %s: package trigger %q does not resolve", sc.Code, *sc.PackageTrigger))
		}
	}

	for _, link := range in.Links {
		if s.services[link.ServiceCode] == nil {
			s.diag(fmt.Sprintf("link %s -> %s: unknown service code, dropped", link.ServiceCode, link.PackageID))
			continue
		}
		pkg := s.packages[link.PackageID]
		if pkg == nil {
			s.diag(fmt.Sprintf("link %s -> %s: unknown or excluded package, dropped", link.ServiceCode, link.PackageID))
			continue
		}
		if s.linkedServices[pkg.ID] == nil {
			s.linkedServices[pkg.ID] = make(map[string]bool)
		}
		if s.linkedServices[pkg.ID][link.ServiceCode] {
			continue
		}
		s.linkedServices[pkg.ID][link.ServiceCode] = true
		s.packagesByService[link.ServiceCode] = append(s.packagesByService[link.ServiceCode], pkg)
	}
	for code := range s.packagesByService {
		list := s.packagesByService[code]
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}

	return s
}

func (s *Snapshot) diag(msg string) {
	s.Diagnostics = append(s.Diagnostics, msg)
}

// checkPrerequisites walks surcharge chains and records every cycle as a
// diagnostic. Codes on a cycle stay loaded; the rule checker marks them
// non-billable because their base can never resolve.
func (s *Snapshot) checkPrerequisites() {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	state := make(map[string]int, len(s.services))

	var visit func(code string) bool // true when a cycle passes through code
	visit = func(code string) bool {
		switch state[code] {
		case gray:
			return true
		case black:
			return false
		}
		state[code] = gray
		defer func() { state[code] = black }()

		sc := s.services[code]
		if sc == nil || sc.Prerequisite == nil {
			return false
		}
		if s.services[*sc.Prerequisite] == nil {
			s.diag(fmt.Sprintf("service code %s: prerequisite %q not in catalog", code, *sc.Prerequisite))
			return false
		}
		if visit(*sc.Prerequisite) {
			s.diag(fmt.Sprintf("service code %s: cyclic prerequisite chain via %q", code, *sc.Prerequisite))
			return false
		}
		return false
	}

	codes := make([]string, 0, len(s.services))
	for code := range s.services {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		visit(code)
	}
}

func groupConditions(conds []PackageCondition) map[string][]PackageCondition {
	out := make(map[string][]PackageCondition)
	for _, c := range conds {
		out[c.PackageID] = append(out[c.PackageID], c)
	}
	for id := range out {
		list := out[id]
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].GroupNo != list[j].GroupNo {
				return list[i].GroupNo < list[j].GroupNo
			}
			return list[i].SortOrder < list[j].SortOrder
		})
	}
	return out
}

// buildPackageRoot assembles the single root condition tree of a package
// from its structured condition groups and, when present, its textual
// expression. Groups combine with OR between groups and AND within a
// group; the parsed textual expression joins as one more group. A package
// with no conditions at all gets an empty root, which is trivially true.
func buildPackageRoot(p *PackageDefinition, conds []PackageCondition, tables map[string]*CodeTable) (*ConditionNode, []error) {
	var groups []*ConditionNode
	var errs []error

	var currentGroup int
	var clauses []*ConditionNode
	flush := func() {
		if len(clauses) == 0 {
			return
		}
		if len(clauses) == 1 {
			groups = append(groups, clauses[0])
		} else {
			groups = append(groups, And(clauses...))
		}
		clauses = nil
	}

	for i, c := range conds {
		if i > 0 && c.GroupNo != currentGroup {
			flush()
		}
		currentGroup = c.GroupNo

		kind, err := ParsePredicateKind(c.Kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("condition group %d: %w", c.GroupNo, err))
			continue
		}
		clause := Clause(kind, c.Operand)
		if c.Negated {
			clause = Not(clause)
		}
		clauses = append(clauses, clause)
	}
	flush()

	if p.ConditionExpr != nil && *p.ConditionExpr != "" {
		tree, err := ParseCondition(*p.ConditionExpr)
		if err != nil {
			errs = append(errs, err)
		} else {
			groups = append(groups, tree)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	var root *ConditionNode
	switch len(groups) {
	case 0:
		root = And() // no conditions: trivially true
	case 1:
		root = groups[0]
	default:
		root = Or(groups...)
	}

	if verrs := root.Validate(tables); len(verrs) > 0 {
		return nil, verrs
	}
	return root, nil
}
