package entitykind

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/turtacn/rid-registry/internal/domain/registry"
)

// ─────────────────────────────────────────────────────────────────────────────
// MinLength
// ─────────────────────────────────────────────────────────────────────────────

// MinLength classifies texts shorter than Min runes as organizations.
type MinLength struct {
	Min int
}

func (MinLength) Name() string { return "min_length" }

func (s MinLength) Classify(_ context.Context, text string) (Verdict, bool) {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < s.Min {
		return Verdict{Kind: KindOrganization, Confidence: 0.6, Strategy: s.Name()}, true
	}
	return Verdict{}, false
}

// ─────────────────────────────────────────────────────────────────────────────
// OrgMarkers
// ─────────────────────────────────────────────────────────────────────────────

// orgFragments are substrings that only occur in organization names.
var orgFragments = []string{
	"академи", "институт", "университет", "лаборатор", "корпорац", "компани",
	"общество", "предприяти", "учреждени", "завод", "фонд", "центр", "объединени",
	"academy", "institut", "universit", "laborator", "corporation", "company",
	"foundation", "center", "centre", "group", "holding",
}

// OrgMarkers classifies texts containing a legal-form token or an
// institutional name fragment as organizations.
type OrgMarkers struct{}

func (OrgMarkers) Name() string { return "org_markers" }

func (s OrgMarkers) Classify(_ context.Context, text string) (Verdict, bool) {
	lower := strings.ToLower(text)
	for _, token := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if _, ok := registry.LegalForms[token]; ok {
			return Verdict{Kind: KindOrganization, Confidence: 0.95, Strategy: s.Name()}, true
		}
	}
	for _, fragment := range orgFragments {
		if strings.Contains(lower, fragment) {
			return Verdict{Kind: KindOrganization, Confidence: 0.9, Strategy: s.Name()}, true
		}
	}
	return Verdict{}, false
}

// ─────────────────────────────────────────────────────────────────────────────
// NER
// ─────────────────────────────────────────────────────────────────────────────

// NER defers to a Recognizer.  A detected person span is conclusive; a miss
// or a recognizer error is no opinion.
type NER struct {
	Recognizer Recognizer
}

func (NER) Name() string { return "ner" }

func (s NER) Classify(ctx context.Context, text string) (Verdict, bool) {
	if s.Recognizer == nil {
		return Verdict{}, false
	}
	found, err := s.Recognizer.DetectPersonSpan(ctx, text)
	if err != nil || !found {
		return Verdict{}, false
	}
	return Verdict{Kind: KindPerson, Confidence: 0.85, Strategy: s.Name()}, true
}

// ─────────────────────────────────────────────────────────────────────────────
// PersonShape
// ─────────────────────────────────────────────────────────────────────────────

// PersonShape treats 2 to 4 word-like tokens, all capitalized except at most
// one, as a person name.
type PersonShape struct{}

func (PersonShape) Name() string { return "person_shape" }

func (s PersonShape) Classify(_ context.Context, text string) (Verdict, bool) {
	tokens := strings.Fields(text)
	if len(tokens) < 2 || len(tokens) > 4 {
		return Verdict{}, false
	}
	lowercase := 0
	for _, tok := range tokens {
		if !isNameToken(tok) {
			return Verdict{}, false
		}
		first, _ := utf8.DecodeRuneInString(tok)
		if !unicode.IsUpper(first) {
			lowercase++
		}
	}
	if lowercase > 1 {
		return Verdict{}, false
	}
	return Verdict{Kind: KindPerson, Confidence: 0.7, Strategy: s.Name()}, true
}

func isNameToken(tok string) bool {
	letters := 0
	for _, r := range tok {
		switch {
		case unicode.IsLetter(r):
			letters++
		case r == '-' || r == '.' || r == '\'' || r == '’':
		default:
			return false
		}
	}
	return letters > 0
}

// ─────────────────────────────────────────────────────────────────────────────
// Default
// ─────────────────────────────────────────────────────────────────────────────

// Fallback always answers organization.  It terminates every chain.
type Fallback struct{}

func (Fallback) Name() string { return "fallback" }

func (s Fallback) Classify(_ context.Context, _ string) (Verdict, bool) {
	return Verdict{Kind: KindOrganization, Confidence: 0.5, Strategy: s.Name()}, true
}
