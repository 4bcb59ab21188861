package catalog

import (
	"time"
)

// ServiceCodeKind distinguishes itemized fee-schedule positions from codes
// that exist only as components of a bundled package.
type ServiceCodeKind string

const (
	KindItemized         ServiceCodeKind = "itemized"
	KindPackageComponent ServiceCodeKind = "package-component"
)

var validServiceCodeKinds = map[ServiceCodeKind]bool{
	KindItemized: true, KindPackageComponent: true,
}

// ServiceCode maps to the service_code table. One row per billable position
// in the tariff catalog. Immutable after load; decision runs only read it.
type ServiceCode struct {
	Code            string          `db:"code" json:"code"`
	Kind            ServiceCodeKind `db:"kind" json:"kind"`
	Description     string          `db:"description" json:"description"`
	Chapter         string          `db:"chapter" json:"chapter"`
	MaxQuantity     int             `db:"max_quantity" json:"max_quantity"` // 0 = no ceiling
	MinutesPerUnit  *int            `db:"minutes_per_unit" json:"minutes_per_unit,omitempty"`
	Prerequisite    *string         `db:"prerequisite" json:"prerequisite,omitempty"` // base code this surcharge requires
	MinAge          *int            `db:"min_age" json:"min_age,omitempty"`
	MaxAge          *int            `db:"max_age" json:"max_age,omitempty"`
	Sex             *string         `db:"sex" json:"sex,omitempty"` // nil = unrestricted
	MedicalPoints   float64         `db:"medical_points" json:"medical_points"`
	TechnicalPoints float64         `db:"technical_points" json:"technical_points"`
	PackageTrigger  *string         `db:"package_trigger" json:"package_trigger,omitempty"` // package id directly triggered by this code
	Excluded        []string        `db:"-" json:"excluded,omitempty"`                      // cumulation partners, loaded from service_code_exclusion
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// ExcludesCode reports whether other may not be billed together with this
// code in the same encounter.
func (s *ServiceCode) ExcludesCode(other string) bool {
	for _, e := range s.Excluded {
		if e == other {
			return true
		}
	}
	return false
}

// CodeTableEntry maps to the code_table_entry table.
type CodeTableEntry struct {
	Code string `db:"code" json:"code"`
	Text string `db:"text" json:"text,omitempty"`
}

// CodeTable is a named reference list of codes used by membership
// predicates (diagnosis, medication, or service tables).
type CodeTable struct {
	Name      string           `db:"name" json:"name"`
	Kind      *string          `db:"kind" json:"kind,omitempty"` // informational: icd, atc, lkn
	Entries   []CodeTableEntry `db:"-" json:"entries,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// PackageDefinition maps to the package table. A bundled flat-rate billing
// unit with a single root condition tree. Root is assembled by the snapshot
// builder from the package's condition groups; an empty root is trivially
// true.
type PackageDefinition struct {
	ID            string    `db:"id" json:"id"`
	Text          string    `db:"text" json:"text"`
	TaxPoints     float64   `db:"tax_points" json:"tax_points"` // monetary weight, lower = more conservative
	Chapter       string    `db:"chapter" json:"chapter"`       // specificity marker for tie-breaking
	ConditionExpr *string   `db:"condition_expr" json:"condition_expr,omitempty"`
	Root          *ConditionNode `db:"-" json:"root,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// PackageCondition maps to the package_condition table: one structured
// clause of one condition group. Groups are combined OR-wise, clauses
// within a group AND-wise (the reference data's "any set suffices, each
// set's entries all required" encoding).
type PackageCondition struct {
	PackageID string `db:"package_id" json:"package_id"`
	GroupNo   int    `db:"group_no" json:"group_no"`
	SortOrder int    `db:"sort_order" json:"sort_order"`
	Kind      string `db:"kind" json:"kind"`
	Operand   string `db:"operand" json:"operand"`
	Negated   bool   `db:"negated" json:"negated"`
}

// ServicePackageLink maps to the service_package_link table: the
// cross-reference making a package a candidate whenever one of its linked
// service codes is requested.
type ServicePackageLink struct {
	ServiceCode string `db:"service_code" json:"service_code"`
	PackageID   string `db:"package_id" json:"package_id"`
}

// ChapterPrefixLen returns the number of leading chapter segments two
// chapter markers share ("CA.10.20" vs "CA.10.30" -> 2). Chapter markers
// are dot-separated, most significant segment first.
func ChapterPrefixLen(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	as, bs := splitChapter(a), splitChapter(b)
	n := 0
	for n < len(as) && n < len(bs) && as[n] == bs[n] {
		n++
	}
	return n
}

func splitChapter(s string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '.' {
			if i > start {
				parts = append(parts, s[start:i])
			}
			start = i + 1
		}
	}
	return parts
}
