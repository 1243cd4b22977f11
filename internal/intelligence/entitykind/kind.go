// Package entitykind decides whether a free-text rights-holder string names a
// person or an organization.  Decisions come from an explicit ranked list of
// strategies; the first strategy with an opinion wins.
package entitykind

import (
	"context"
)

// Kind is the classification outcome.
type Kind string

const (
	KindPerson       Kind = "person"
	KindOrganization Kind = "organization"
)

func (k Kind) String() string { return string(k) }

// Verdict is a strategy opinion.
type Verdict struct {
	Kind       Kind
	Confidence float64
	Strategy   string
}

// Strategy is one ranked classification rule.  ok=false means "no opinion".
type Strategy interface {
	Name() string
	Classify(ctx context.Context, text string) (v Verdict, ok bool)
}

// Recognizer is the external named-entity capability.
type Recognizer interface {
	// DetectPersonSpan reports whether text contains a person-name span.
	DetectPersonSpan(ctx context.Context, text string) (bool, error)
}
