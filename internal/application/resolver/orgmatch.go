package resolver

import (
	"context"
	"unicode/utf8"

	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/rid-registry/pkg/errors"
)

// prefixMatchRunes is the length of the normalized-name prefix used by the
// prefix strategy, which only applies to longer names.
const prefixMatchRunes = 30

// fuzzyMatch runs the non-exact organization strategies in order: keyword
// containment, normalized prefix containment, significant word containment.
//
// The word strategy is broad and can merge distinct organizations sharing a
// common word; there is no confidence threshold.
func (r *Resolver) fuzzyMatch(ctx context.Context, name string) (*registry.Organization, error) {
	normalized := registry.NormalizeOrgName(name)

	try := func(strategy string, fragments []string) (*registry.Organization, error) {
		for _, f := range fragments {
			o, err := r.orgs.FindBySearchFragment(ctx, f)
			if err != nil {
				return nil, apperrors.Wrap(err, apperrors.CodeUnknown, "searching organizations")
			}
			if o != nil {
				r.logger.Debug("organization matched",
					logging.String("name", name), logging.String("strategy", strategy),
					logging.String("fragment", f), logging.Int64("organization_id", o.ID))
				return o, nil
			}
		}
		return nil, nil
	}

	if o, err := try("keyword", registry.OrgKeywords(name)); o != nil || err != nil {
		return o, err
	}
	if utf8.RuneCountInString(normalized) > prefixMatchRunes {
		if o, err := try("prefix", []string{registry.RunePrefix(normalized, prefixMatchRunes)}); o != nil || err != nil {
			return o, err
		}
	}
	return try("word", registry.OrgSignificantWords(normalized))
}
