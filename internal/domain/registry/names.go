package registry

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NameParts is a person's name split into its components.  It is comparable
// and doubles as the lookup key for persons.
type NameParts struct {
	Last   string
	First  string
	Middle string
}

// IsLabel reports whether the parts carry only a single-field label, i.e. the
// source text had fewer than two tokens.
func (p NameParts) IsLabel() bool {
	return p.First == ""
}

// Full joins the non-empty parts with single spaces.
func (p NameParts) Full() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.Last, p.First, p.Middle} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// ParseNameParts splits a name on whitespace: last, first, optional middle.
// A single token yields a label in Last.  Tokens past the third are folded
// into Middle.  Parts are title-cased.
func ParseNameParts(value string) NameParts {
	tokens := splitInitials(strings.Fields(CleanString(value)))
	switch len(tokens) {
	case 0:
		return NameParts{}
	case 1:
		return NameParts{Last: tokens[0]}
	case 2:
		return NameParts{Last: TitleName(tokens[0]), First: TitleName(tokens[1])}
	default:
		return NameParts{
			Last:   TitleName(tokens[0]),
			First:  TitleName(tokens[1]),
			Middle: TitleName(strings.Join(tokens[2:], " ")),
		}
	}
}

var joinedInitials = regexp.MustCompile(`^(\pL\.){2,}$`)

// splitInitials turns "И.И." after the surname into "И." "И." so that both
// spellings of the same author give one triple.
func splitInitials(tokens []string) []string {
	if len(tokens) < 2 {
		return tokens
	}
	out := tokens[:1:1]
	for _, tok := range tokens[1:] {
		if !joinedInitials.MatchString(tok) {
			out = append(out, tok)
			continue
		}
		for _, initial := range strings.SplitAfter(tok, ".") {
			if initial != "" {
				out = append(out, initial)
			}
		}
	}
	return out
}

// TitleName title-cases a name fragment ("ИВАНОВ-ПЕТРОВ" → "Иванов-Петров").
// Segments between dots and hyphens are cased separately; a one-letter
// segment is an initial and is upper-cased ("и.и." → "И.И.").
func TitleName(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	caser := cases.Title(language.Russian)
	var b strings.Builder
	start := 0
	for i, r := range v {
		if r != '.' && r != '-' {
			continue
		}
		b.WriteString(titleSegment(caser, v[start:i]))
		b.WriteRune(r)
		start = i + utf8.RuneLen(r)
	}
	b.WriteString(titleSegment(caser, v[start:]))
	return b.String()
}

func titleSegment(caser cases.Caser, s string) string {
	switch utf8.RuneCountInString(s) {
	case 0:
		return ""
	case 1:
		return strings.ToUpper(s)
	default:
		return caser.String(s)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Fragment cleanup
// ─────────────────────────────────────────────────────────────────────────────

var (
	trailingCountryCode = regexp.MustCompile(`\s*\(\s*[A-Za-z]{2}\s*\)\s*$`)
	newlineSeparator    = regexp.MustCompile(`\r?\n`)
	commaNewline        = regexp.MustCompile(`,?\s*\r?\n`)
	spaceRun            = regexp.MustCompile(`\s+`)
)

// Separator selects how a multi-entity cell is split.
type Separator int

const (
	// SplitNewline splits on line breaks only.
	SplitNewline Separator = iota
	// SplitCommaNewline also swallows a comma that ends a line.
	SplitCommaNewline
)

// SplitEntities splits a free-text author or holder cell into cleaned,
// non-empty fragments, preserving order.
func SplitEntities(value string, sep Separator) []string {
	v := CleanString(value)
	if v == "" {
		return nil
	}
	pattern := newlineSeparator
	if sep == SplitCommaNewline {
		pattern = commaNewline
	}
	raw := pattern.Split(v, -1)
	out := make([]string, 0, len(raw))
	for _, fragment := range raw {
		if cleaned := CleanFragment(fragment); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

// CleanFragment strips a trailing two-letter country code in parentheses,
// collapses doubled CSV quotes, unwraps a fragment fully enclosed in one pair
// of quotes and trims trailing separators.
func CleanFragment(value string) string {
	v := strings.TrimRight(CleanString(value), " ,;")
	v = trailingCountryCode.ReplaceAllString(v, "")
	v = strings.ReplaceAll(v, `""`, `"`)
	v = strings.TrimSpace(v)
	if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) && strings.Count(v, `"`) == 2 {
		v = strings.TrimSpace(v[1 : len(v)-1])
	}
	if strings.Count(v, `"`) == 1 {
		v = strings.TrimSpace(strings.Trim(v, `"`))
	}
	return spaceRun.ReplaceAllString(v, " ")
}

// ─────────────────────────────────────────────────────────────────────────────
// Organization search normalization
// ─────────────────────────────────────────────────────────────────────────────

// longLegalForms are spelled-out legal forms, longest first.
var longLegalForms = []string{
	"федеральное государственное бюджетное образовательное учреждение высшего образования",
	"федеральное государственное автономное образовательное учреждение высшего образования",
	"федеральное государственное бюджетное учреждение",
	"федеральное государственное унитарное предприятие",
	"общество с ограниченной ответственностью",
	"публичное акционерное общество",
	"закрытое акционерное общество",
	"открытое акционерное общество",
	"непубличное акционерное общество",
	"акционерное общество",
	"индивидуальный предприниматель",
	"limited liability company",
}

// LegalForms are the abbreviated legal-form tokens, lower case.
var LegalForms = map[string]struct{}{
	"ооо": {}, "оао": {}, "зао": {}, "пао": {}, "ао": {}, "нао": {}, "ип": {},
	"фгуп": {}, "гуп": {}, "муп": {}, "фгбу": {}, "фгбоу": {}, "фгаоу": {},
	"во": {}, "впо": {}, "ано": {}, "нко": {}, "тоо": {},
	"llc": {}, "ltd": {}, "inc": {}, "gmbh": {}, "corp": {}, "jsc": {},
	"plc": {}, "co": {}, "ag": {}, "sa": {}, "bv": {}, "oy": {},
}

// NormalizeOrgName lower-cases name, removes legal forms and punctuation and
// collapses whitespace.  The result is only ever used for searching.
func NormalizeOrgName(name string) string {
	v := strings.ToLower(CleanString(name))
	for _, form := range longLegalForms {
		v = strings.ReplaceAll(v, form, " ")
	}
	v = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, v)
	words := strings.Fields(v)
	kept := words[:0]
	for _, w := range words {
		if _, legal := LegalForms[w]; legal {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

var (
	quotedSubstring = regexp.MustCompile(`["«„“]([^"«»„“”]+)["»“”]`)
	longDigitRun    = regexp.MustCompile(`\d{10,}`)
)

// OrgKeywords extracts search keywords from a raw organization name: quoted
// substrings longer than three characters, all-caps tokens of at least two
// characters and digit runs of ten or more.  Keywords are normalized and
// deduplicated; order follows the categories above.
func OrgKeywords(raw string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(k string) {
		n := NormalizeOrgName(k)
		if n == "" {
			return
		}
		if _, dup := seen[n]; dup {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}

	for _, m := range quotedSubstring.FindAllStringSubmatch(raw, -1) {
		if len([]rune(strings.TrimSpace(m[1]))) > 3 {
			add(m[1])
		}
	}
	for _, token := range strings.FieldsFunc(raw, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if isCapsToken(token) {
			add(token)
		}
	}
	for _, digits := range longDigitRun.FindAllString(raw, -1) {
		add(digits)
	}
	return out
}

func isCapsToken(token string) bool {
	letters := 0
	for _, r := range token {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 2
}

// OrgSignificantWords returns the words of the normalized name longer than
// four characters.
func OrgSignificantWords(normalized string) []string {
	var out []string
	for _, w := range strings.Fields(normalized) {
		if len([]rune(w)) > 4 {
			out = append(out, w)
		}
	}
	return out
}

// RunePrefix returns the first n runes of s.
func RunePrefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ─────────────────────────────────────────────────────────────────────────────
// Slugs
// ─────────────────────────────────────────────────────────────────────────────

const maxSlugLength = 200

// BaseSlug derives the URL-safe base slug for a display name, transliterating
// Cyrillic.  fallback is used when nothing survives.
func BaseSlug(name, fallback string) string {
	s := slug.Make(name)
	if len(s) > maxSlugLength {
		s = strings.TrimRight(s[:maxSlugLength], "-")
	}
	if s == "" {
		return fallback
	}
	return s
}
