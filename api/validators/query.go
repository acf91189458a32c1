package validators

import (
	"net/http"
	"strings"

	"golang.org/x/text/language"

	pkgerrors "github.com/armorylabs/armory-backend/pkg/errors"
	"github.com/armorylabs/armory-backend/pkg/enums"
)

// ParseCurrencyQuery reads the display currency from the request. A missing
// or blank parameter defaults to USD; an unsupported code is a client error.
func ParseCurrencyQuery(r *http.Request, key string) (enums.Currency, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return enums.CurrencyUSD, nil
	}
	ccy, err := enums.ParseCurrency(raw)
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported display currency").
			WithDetails(map[string]any{"field": key, "value": raw})
	}
	return ccy, nil
}

// ParseLocale resolves the shopper's display locale. An explicit query
// parameter beats the Accept-Language header; anything unparseable
// degrades to English, the same way an invalid currency degrades to USD
// at the formatter.
func ParseLocale(r *http.Request, key string) language.Tag {
	if raw := strings.TrimSpace(r.URL.Query().Get(key)); raw != "" {
		if tag, err := language.Parse(raw); err == nil {
			return tag
		}
	}
	if header := r.Header.Get("Accept-Language"); header != "" {
		if tags, _, err := language.ParseAcceptLanguage(header); err == nil && len(tags) > 0 {
			return tags[0]
		}
	}
	return language.English
}
