package rules

import "github.com/raaihank/pii-sentry/internal/pii"

// DefaultRules returns the built-in rule set seeded into every new store.
// Patterns target the high-confidence structured formats; NAME and LOCATION
// are descriptive-only and rely on the inference backend.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "builtin-email",
			Name:        "Email Address",
			Type:        pii.TypeEmail,
			Enabled:     true,
			Level:       pii.LevelMedium,
			Description: "Email addresses such as j.doe@example.com",
			Pattern:     `[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`,
		},
		{
			ID:          "builtin-phone",
			Name:        "Phone Number",
			Type:        pii.TypePhone,
			Enabled:     true,
			Level:       pii.LevelMedium,
			Description: "North American phone numbers with optional country code",
			Pattern:     `(?:\+?1[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`,
		},
		{
			ID:          "builtin-credit-card",
			Name:        "Credit Card",
			Type:        pii.TypeCreditCard,
			Enabled:     true,
			Level:       pii.LevelHigh,
			Description: "13-16 digit card numbers with optional separators",
			Pattern:     `\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{1,4}\b`,
		},
		{
			ID:          "builtin-ssn",
			Name:        "Social Security Number",
			Type:        pii.TypeSSN,
			Enabled:     true,
			Level:       pii.LevelHigh,
			Description: "US social security numbers (AAA-GG-SSSS)",
			Pattern:     `\b\d{3}-\d{2}-\d{4}\b`,
		},
		{
			ID:          "builtin-api-key",
			Name:        "API Key",
			Type:        pii.TypeAPIKey,
			Enabled:     true,
			Level:       pii.LevelHigh,
			Description: "Provider API keys and bearer tokens (OpenAI, GitHub, AWS, JWT)",
			Pattern:     `\b(?:sk-[a-zA-Z0-9\-_]{20,}|ghp_[a-zA-Z0-9]{36}|AKIA[0-9A-Z]{16}|eyJ[a-zA-Z0-9\-_]+\.eyJ[a-zA-Z0-9\-_]+\.[a-zA-Z0-9\-_]+)`,
		},
		{
			ID:          "builtin-ip-address",
			Name:        "IP Address",
			Type:        pii.TypeIPAddress,
			Enabled:     true,
			Level:       pii.LevelLow,
			Description: "IPv4 addresses",
			Pattern:     `\b(?:\d{1,3}\.){3}\d{1,3}\b`,
		},
		{
			ID:          "builtin-name",
			Name:        "Person Name",
			Type:        pii.TypeName,
			Enabled:     true,
			Level:       pii.LevelMedium,
			Description: "Human names, detected by the inference backend",
		},
		{
			ID:          "builtin-location",
			Name:        "Location",
			Type:        pii.TypeLocation,
			Enabled:     true,
			Level:       pii.LevelLow,
			Description: "Physical addresses and place names, detected by the inference backend",
		},
	}
}
