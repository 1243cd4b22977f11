package resolver

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/rid-registry/pkg/errors"
)

// countryAliases maps common spellings to ISO alpha-2 codes.
var countryAliases = map[string]string{
	"россия": "RU", "российская федерация": "RU", "рф": "RU", "russia": "RU", "russian federation": "RU",
	"беларусь": "BY", "белоруссия": "BY", "республика беларусь": "BY", "belarus": "BY",
	"казахстан": "KZ", "республика казахстан": "KZ", "kazakhstan": "KZ",
	"украина": "UA", "ukraine": "UA",
	"армения": "AM", "armenia": "AM",
	"узбекистан": "UZ", "uzbekistan": "UZ",
	"кыргызстан": "KG", "киргизия": "KG", "kyrgyzstan": "KG",
	"сша": "US", "соединенные штаты америки": "US", "usa": "US", "united states": "US",
	"китай": "CN", "кнр": "CN", "china": "CN",
	"германия": "DE", "germany": "DE",
	"франция": "FR", "france": "FR",
	"великобритания": "GB", "united kingdom": "GB", "uk": "GB",
	"япония": "JP", "japan": "JP",
	"южная корея": "KR", "республика корея": "KR", "korea": "KR",
	"индия": "IN", "india": "IN",
	"израиль": "IL", "israel": "IL",
	"финляндия": "FI", "finland": "FI",
	"швейцария": "CH", "switzerland": "CH",
	"италия": "IT", "italy": "IT",
}

// ResolveCountry maps a free-text country to the reference table: alias
// table, then two-letter code, then alpha-3 code, then a name containment
// lookup for names longer than a code.  Unknown countries resolve to nil; the table is never extended.
func (r *Resolver) ResolveCountry(ctx context.Context, raw string) (*registry.Country, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return nil, nil
	}
	if c, ok := r.cache.countries[key]; ok {
		return c, nil
	}
	if err := r.loadCountries(ctx); err != nil {
		return nil, err
	}

	c := r.lookupCountry(key)
	if c == nil && utf8.RuneCountInString(key) > 3 {
		found, err := r.countries.FindByNameContaining(ctx, strings.TrimSpace(raw))
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeUnknown, "searching countries")
		}
		c = found
	}
	if c == nil {
		r.stats.CountriesMissed++
		r.logger.Debug("country not resolved", logging.String("country", raw))
	}
	r.cache.countries[key] = c
	return c, nil
}

func (r *Resolver) lookupCountry(key string) *registry.Country {
	if code, ok := countryAliases[key]; ok {
		return r.cache.byAlpha2[code]
	}
	if !allLetters(key) {
		return nil
	}
	switch utf8.RuneCountInString(key) {
	case 2:
		return r.cache.byAlpha2[strings.ToUpper(key)]
	case 3:
		return r.cache.byAlpha3[strings.ToUpper(key)]
	}
	return nil
}

func (r *Resolver) loadCountries(ctx context.Context) error {
	if r.cache.countriesLoaded {
		return nil
	}
	all, err := r.countries.All(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnknown, "loading countries")
	}
	r.cache.byAlpha2 = make(map[string]*registry.Country, len(all))
	r.cache.byAlpha3 = make(map[string]*registry.Country, len(all))
	for _, c := range all {
		if c.Code != "" {
			r.cache.byAlpha2[strings.ToUpper(c.Code)] = c
		}
		if c.Alpha3 != "" {
			r.cache.byAlpha3[strings.ToUpper(c.Alpha3)] = c
		}
	}
	r.cache.countriesLoaded = true
	return nil
}

func allLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
