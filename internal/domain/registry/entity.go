// Package registry holds the domain model of the RID registry: registered
// objects, the persons and organizations linked to them, the per-category
// snapshot adapters and the field normalizers they share.
package registry

import (
	"time"
)

// RegisteredObject is the canonical IP record, unique per
// (RegistrationNumber, Category).
type RegisteredObject struct {
	ID                 int64
	Category           Category
	RegistrationNumber string

	Name             string
	ApplicationDate  *time.Time
	RegistrationDate *time.Time
	ExpirationDate   *time.Time
	Actual           bool
	PublicationURL   string
	CreationYear     *int

	Abstract        string
	Claims          string
	FirstUsageDate  *time.Time
	PublicationYear *int
	UpdateYear      *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Person is a canonical natural person.  Identity is approximated by the
// name triple; two real people with the same name share one Person.
type Person struct {
	ID         int64
	Key        int64
	Slug       string
	LastName   string
	FirstName  string
	MiddleName string
}

// Parts returns the lookup key of the person.
func (p *Person) Parts() NameParts {
	return NameParts{Last: p.LastName, First: p.FirstName, Middle: p.MiddleName}
}

// Organization is a canonical legal entity.  The three name fields hold the
// source text verbatim; SearchName is the normalized form used for matching.
type Organization struct {
	ID         int64
	Key        int64
	Slug       string
	Name       string
	FullName   string
	ShortName  string
	SearchName string
}

// Country is a row of the fixed country reference table.
type Country struct {
	ID     int64
	Code   string // ISO 3166-1 alpha-2
	Alpha3 string
	Name   string
}

// Snapshot is one uploaded catalogue export.
type Snapshot struct {
	ID              int64
	Category        Category
	SourceURI       string
	UploadedAt      time.Time
	LastProcessedAt *time.Time
}

// Processed reports whether the snapshot has been marked complete.
func (s *Snapshot) Processed() bool {
	return s.LastProcessedAt != nil
}

// CategoryRef is the stored reference row for a Category.
type CategoryRef struct {
	ID    int64
	Code  Category
	Title string
}
