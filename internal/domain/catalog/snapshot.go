package catalog

import (
	"sort"
	"sync/atomic"
	"time"
)

// Snapshot is one fully built, immutable view of the reference data plus
// the precomputed lookup indices both the rule checker and the candidate
// selector consult. Decision runs only ever read a snapshot; reloads build
// a fresh one and swap it in through the Store.
type Snapshot struct {
	LoadedAt    time.Time
	Diagnostics []string // data-integrity problems found at build time

	services map[string]*ServiceCode
	tables   map[string]*CodeTable
	packages map[string]*PackageDefinition

	packagesByService map[string][]*PackageDefinition
	tableMembers      map[string]map[string]bool
	linkedServices    map[string]map[string]bool // package id -> linked service codes
}

// Service looks up a service code, nil when absent.
func (s *Snapshot) Service(code string) *ServiceCode {
	return s.services[code]
}

// Package looks up a package definition, nil when absent.
func (s *Snapshot) Package(id string) *PackageDefinition {
	return s.packages[id]
}

// Table looks up a code table, nil when absent.
func (s *Snapshot) Table(name string) *CodeTable {
	return s.tables[name]
}

// TableHas reports whether the named table exists and contains code.
func (s *Snapshot) TableHas(table, code string) (member, tableExists bool) {
	members, ok := s.tableMembers[table]
	if !ok {
		return false, false
	}
	return members[code], true
}

// PackagesForService returns every package whose cross-reference links to
// the given service code, sorted by package id for deterministic candidate
// gathering.
func (s *Snapshot) PackagesForService(code string) []*PackageDefinition {
	return s.packagesByService[code]
}

// PackageCoversService reports whether the given service code is linked to
// the package (used to decide which billable itemized codes the chosen
// package consumes).
func (s *Snapshot) PackageCoversService(packageID, code string) bool {
	if s.linkedServices[packageID][code] {
		return true
	}
	sc := s.services[code]
	return sc != nil && sc.PackageTrigger != nil && *sc.PackageTrigger == packageID
}

// ServiceCount, TableCount and PackageCount report snapshot sizes for
// logging after a load.
func (s *Snapshot) ServiceCount() int { return len(s.services) }
func (s *Snapshot) TableCount() int   { return len(s.tables) }
func (s *Snapshot) PackageCount() int { return len(s.packages) }

// Packages returns all package definitions sorted by id.
func (s *Snapshot) Packages() []*PackageDefinition {
	out := make([]*PackageDefinition, 0, len(s.packages))
	for _, p := range s.packages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Store is the atomically swappable handle to the current snapshot.
// Readers always observe a fully formed snapshot; in-flight decision runs
// keep the snapshot they started with across a reload.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates a store holding the given initial snapshot.
func NewStore(s *Snapshot) *Store {
	st := &Store{}
	st.current.Store(s)
	return st
}

// Current returns the snapshot to use for a decision run.
func (st *Store) Current() *Snapshot {
	return st.current.Load()
}

// Swap publishes a new snapshot and returns the previous one.
func (st *Store) Swap(s *Snapshot) *Snapshot {
	return st.current.Swap(s)
}
