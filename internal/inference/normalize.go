package inference

import (
	"strings"

	"github.com/raaihank/pii-sentry/internal/pii"
)

// NormalizeType maps a free-form backend type label into the closed Type
// enumeration using case-insensitive substring matching. Anything
// unrecognized becomes CUSTOM.
func NormalizeType(label string) pii.Type {
	l := strings.ToUpper(label)
	switch {
	case strings.Contains(l, "MAIL"):
		return pii.TypeEmail
	case strings.Contains(l, "PHONE") || strings.Contains(l, "TEL"):
		return pii.TypePhone
	case strings.Contains(l, "CARD"):
		return pii.TypeCreditCard
	case strings.Contains(l, "SSN") || strings.Contains(l, "SOCIAL"):
		return pii.TypeSSN
	case strings.Contains(l, "KEY") || strings.Contains(l, "TOKEN") || strings.Contains(l, "SECRET") || strings.Contains(l, "CREDENTIAL"):
		return pii.TypeAPIKey
	case strings.Contains(l, "NAME") || strings.Contains(l, "PERSON"):
		return pii.TypeName
	case strings.Contains(l, "IP") && !strings.Contains(l, "ZIP"):
		return pii.TypeIPAddress
	case strings.Contains(l, "LOCATION") || strings.Contains(l, "ADDRESS") || strings.Contains(l, "PLACE"):
		return pii.TypeLocation
	default:
		return pii.TypeCustom
	}
}

// NormalizeLevel maps a free-form sensitivity label into the closed Level
// enumeration. Missing or unrecognized labels fall back to LOW, the safe
// default that still keeps the entity in the redaction set.
func NormalizeLevel(label string) pii.Level {
	l := strings.ToUpper(label)
	switch {
	case strings.Contains(l, "HIGH") || strings.Contains(l, "CRITICAL") || strings.Contains(l, "SEVERE"):
		return pii.LevelHigh
	case strings.Contains(l, "MED") || strings.Contains(l, "MODERATE"):
		return pii.LevelMedium
	default:
		return pii.LevelLow
	}
}
