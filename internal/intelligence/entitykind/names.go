package entitykind

import (
	"context"

	"github.com/turtacn/rid-registry/internal/domain/registry"
)

// NameParser is the external name-splitting capability.
type NameParser interface {
	ExtractNameParts(ctx context.Context, text string) (registry.NameParts, error)
}

// WhitespaceNameParser splits on whitespace: last, first, middle.
type WhitespaceNameParser struct{}

func (WhitespaceNameParser) ExtractNameParts(_ context.Context, text string) (registry.NameParts, error) {
	return registry.ParseNameParts(text), nil
}

// ParseName asks parser for the parts of text and falls back to whitespace
// splitting when the parser is nil, fails or returns nothing.
func ParseName(ctx context.Context, parser NameParser, text string) registry.NameParts {
	if parser != nil {
		parts, err := parser.ExtractNameParts(ctx, text)
		if err == nil && parts.Last != "" && parts.First != "" {
			return registry.NameParts{
				Last:   registry.TitleName(parts.Last),
				First:  registry.TitleName(parts.First),
				Middle: registry.TitleName(parts.Middle),
			}
		}
	}
	return registry.ParseNameParts(text)
}
