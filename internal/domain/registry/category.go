package registry

import (
	"sort"
	"strings"

	apperrors "github.com/turtacn/rid-registry/pkg/errors"
)

// Category is the IP category of a registered object and of a snapshot.
type Category string

const (
	CategoryInvention        Category = "invention"
	CategoryUtilityModel     Category = "utility_model"
	CategoryIndustrialDesign Category = "industrial_design"
	CategoryICTopology       Category = "ic_topology"
	CategorySoftware         Category = "software"
	CategoryDatabase         Category = "database"
)

// Categories lists every category in processing order.
var Categories = []Category{
	CategoryInvention,
	CategoryUtilityModel,
	CategoryIndustrialDesign,
	CategoryICTopology,
	CategorySoftware,
	CategoryDatabase,
}

// ParseCategory accepts the canonical code, case-insensitively, with dashes
// or underscores.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", apperrors.InvalidParam("unknown ip category").WithDetail(s)
}

func (c Category) String() string { return string(c) }

// ─────────────────────────────────────────────────────────────────────────────
// Tabular rows
// ─────────────────────────────────────────────────────────────────────────────

// Row is one snapshot row keyed by normalized column header.
type Row map[string]string

// Get returns the cleaned value of column, or "".
func (r Row) Get(column string) string {
	return CleanString(r[column])
}

// Table is a decoded snapshot.
type Table struct {
	Columns []string
	Rows    []Row
}

// HasColumn reports whether the header contains column.
func (t *Table) HasColumn(column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// MissingColumns returns the required columns absent from the header, sorted.
func (t *Table) MissingColumns(required []string) []string {
	var missing []string
	for _, col := range required {
		if !t.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	sort.Strings(missing)
	return missing
}

// Slice returns a table sharing the header with only the given rows.
func (t *Table) Slice(rows []Row) *Table {
	return &Table{Columns: t.Columns, Rows: rows}
}

// NormalizeHeader canonicalizes a header cell: BOM and surrounding whitespace
// removed, lower case, underscores as spaces, inner whitespace collapsed.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\uFEFF")
	h = strings.ReplaceAll(strings.ToLower(h), "_", " ")
	return strings.Join(strings.Fields(h), " ")
}
