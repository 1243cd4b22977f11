package registry

import (
	"regexp"
	"strings"
)

// Canonical snapshot column headers.
const (
	ColRegistrationNumber = "registration number"
	ColApplicationDate    = "application date"
	ColRegistrationDate   = "registration date"
	ColExpirationDate     = "expiration date"
	ColActual             = "actual"
	ColPublicationURL     = "publication url"
	ColAuthors            = "authors"
	ColPatentHolders      = "patent holders"
	ColRightHolders       = "right holders"
	ColAbstract           = "abstract"
	ColClaims             = "claims"
	ColCreationYear       = "creation year"
	ColPublicationYear    = "publication year"
	ColUpdateYear         = "update year"
	ColFirstUsageDate     = "first usage date"
	ColFirstUsageCountry  = "first usage countries"
)

const maxRegistrationNumberLength = 64

// Adapter binds a category to its snapshot columns and change-detection
// fields.  All behavior beyond the column mapping is shared.
type Adapter struct {
	Category        Category
	NameColumn      string
	AuthorsColumn   string
	HoldersColumn   string
	CountriesColumn string
	Separator       Separator
	// Tracked lists the fields compared to decide whether a record changed.
	Tracked []FieldName
	// extra columns copied verbatim into category-specific fields
	extras map[FieldName]string
}

var patentTracked = []FieldName{
	FieldObjectName, FieldApplicationDate, FieldRegistrationDate, FieldExpirationDate,
	FieldActual, FieldPublicationURL, FieldCreationYear, FieldAbstract, FieldClaims,
}

var programTracked = []FieldName{
	FieldObjectName, FieldApplicationDate, FieldRegistrationDate, FieldActual,
	FieldPublicationURL, FieldCreationYear, FieldPublicationYear, FieldUpdateYear,
}

var adapters = map[Category]*Adapter{
	CategoryInvention: {
		Category:      CategoryInvention,
		NameColumn:    "invention name",
		AuthorsColumn: ColAuthors,
		HoldersColumn: ColPatentHolders,
		Separator:     SplitNewline,
		Tracked:       patentTracked,
		extras:        map[FieldName]string{FieldAbstract: ColAbstract, FieldClaims: ColClaims},
	},
	CategoryUtilityModel: {
		Category:      CategoryUtilityModel,
		NameColumn:    "utility model name",
		AuthorsColumn: ColAuthors,
		HoldersColumn: ColPatentHolders,
		Separator:     SplitNewline,
		Tracked:       patentTracked,
		extras:        map[FieldName]string{FieldAbstract: ColAbstract, FieldClaims: ColClaims},
	},
	CategoryIndustrialDesign: {
		Category:      CategoryIndustrialDesign,
		NameColumn:    "industrial design name",
		AuthorsColumn: ColAuthors,
		HoldersColumn: ColPatentHolders,
		Separator:     SplitNewline,
		Tracked: []FieldName{
			FieldObjectName, FieldApplicationDate, FieldRegistrationDate, FieldExpirationDate,
			FieldActual, FieldPublicationURL, FieldCreationYear,
		},
	},
	CategoryICTopology: {
		Category:        CategoryICTopology,
		NameColumn:      "microchip name",
		AuthorsColumn:   ColAuthors,
		HoldersColumn:   ColRightHolders,
		CountriesColumn: ColFirstUsageCountry,
		Separator:       SplitCommaNewline,
		Tracked: []FieldName{
			FieldObjectName, FieldApplicationDate, FieldRegistrationDate, FieldActual,
			FieldPublicationURL, FieldCreationYear, FieldFirstUsageDate,
		},
	},
	CategorySoftware: {
		Category:      CategorySoftware,
		NameColumn:    "program name",
		AuthorsColumn: ColAuthors,
		HoldersColumn: ColRightHolders,
		Separator:     SplitCommaNewline,
		Tracked:       programTracked,
	},
	CategoryDatabase: {
		Category:      CategoryDatabase,
		NameColumn:    "db name",
		AuthorsColumn: ColAuthors,
		HoldersColumn: ColRightHolders,
		Separator:     SplitCommaNewline,
		Tracked:       programTracked,
	},
}

// AdapterFor returns the adapter of category c.
func AdapterFor(c Category) (*Adapter, bool) {
	a, ok := adapters[c]
	return a, ok
}

// RequiredColumns is the minimum header a snapshot of this category needs.
func (a *Adapter) RequiredColumns() []string {
	return []string{ColRegistrationNumber, a.NameColumn}
}

// Key returns the registration number of row.
func (a *Adapter) Key(row Row) string {
	return row.Get(ColRegistrationNumber)
}

// Build converts a row into the target RegisteredObject.  It fails only on
// values that cannot be represented, never on absent optional columns.
func (a *Adapter) Build(row Row) (*RegisteredObject, error) {
	regNumber := a.Key(row)
	if len(regNumber) > maxRegistrationNumberLength || strings.ContainsAny(regNumber, "\r\n") {
		return nil, &FieldError{Field: "registration_number", Value: regNumber}
	}

	obj := &RegisteredObject{
		Category:           a.Category,
		RegistrationNumber: regNumber,
		Name:               row.Get(a.NameColumn),
		ApplicationDate:    DatePtr(row[ColApplicationDate]),
		RegistrationDate:   DatePtr(row[ColRegistrationDate]),
		ExpirationDate:     DatePtr(row[ColExpirationDate]),
		Actual:             ParseBool(row[ColActual]),
		PublicationURL:     row.Get(ColPublicationURL),
	}
	for field, column := range a.extras {
		obj.Set(field, row.Get(column))
	}

	if a.Category == CategoryICTopology {
		obj.FirstUsageDate = DatePtr(row[ColFirstUsageDate])
	}
	if a.Category == CategorySoftware || a.Category == CategoryDatabase {
		var err error
		if obj.PublicationYear, err = parseYearField(row, ColPublicationYear, FieldPublicationYear); err != nil {
			return nil, err
		}
		if obj.UpdateYear, err = parseYearField(row, ColUpdateYear, FieldUpdateYear); err != nil {
			return nil, err
		}
	}

	year, err := a.creationYear(row, obj)
	if err != nil {
		return nil, err
	}
	obj.CreationYear = year
	return obj, nil
}

// creationYear prefers the application date, then the registration date,
// then an explicit creation-year column.
func (a *Adapter) creationYear(row Row, obj *RegisteredObject) (*int, error) {
	if obj.ApplicationDate != nil {
		y := obj.ApplicationDate.Year()
		return &y, nil
	}
	if obj.RegistrationDate != nil {
		y := obj.RegistrationDate.Year()
		return &y, nil
	}
	return parseYearField(row, ColCreationYear, FieldCreationYear)
}

func parseYearField(row Row, column string, field FieldName) (*int, error) {
	y, err := ParseYear(row[column])
	if err != nil {
		return nil, &FieldError{Field: field, Value: row[column]}
	}
	return y, nil
}

// Authors returns the cleaned author fragments of row.
func (a *Adapter) Authors(row Row) []string {
	if a.AuthorsColumn == "" {
		return nil
	}
	return SplitEntities(row[a.AuthorsColumn], a.Separator)
}

// Holders returns the cleaned rights-holder fragments of row.
func (a *Adapter) Holders(row Row) []string {
	if a.HoldersColumn == "" {
		return nil
	}
	return SplitEntities(row[a.HoldersColumn], a.Separator)
}

var countrySeparator = regexp.MustCompile(`[,;\r\n]+`)

// Countries returns the usage-country fragments of row.
func (a *Adapter) Countries(row Row) []string {
	if a.CountriesColumn == "" {
		return nil
	}
	v := row.Get(a.CountriesColumn)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range countrySeparator.Split(v, -1) {
		if c := strings.Trim(strings.TrimSpace(part), `"()`); c != "" {
			out = append(out, c)
		}
	}
	return out
}
