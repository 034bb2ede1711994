// Package phone normalizes contact numbers submitted during registration.
package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Validator parses free-form phone input into E.164. Numbers without a
// leading + are interpreted in DefaultRegion.
type Validator struct {
	DefaultRegion string
}

func (v Validator) Normalize(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty phone number")
	}
	if region == "" {
		region = v.DefaultRegion
	}
	if region == "" {
		region = "RU"
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("parse phone %q: %w", raw, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number %q", raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// RegionFromLanguage maps a chat language code to a default dialing region.
func RegionFromLanguage(lang string) string {
	switch strings.ToLower(lang) {
	case "ru":
		return "RU"
	case "uk":
		return "UA"
	case "be":
		return "BY"
	case "kk":
		return "KZ"
	case "uz":
		return "UZ"
	case "en":
		return "US"
	default:
		return "RU"
	}
}
