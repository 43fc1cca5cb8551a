// Package pii defines the shared data model for detection, reconciliation
// and redaction: the closed type/sensitivity enumerations, detected
// entities, and the per-scan analysis result.
package pii

import "time"

// Type classifies a detected span of sensitive data.
type Type string

const (
	TypeEmail      Type = "EMAIL"
	TypePhone      Type = "PHONE"
	TypeCreditCard Type = "CREDIT_CARD"
	TypeSSN        Type = "SSN"
	TypeAPIKey     Type = "API_KEY"
	TypeName       Type = "NAME"
	TypeLocation   Type = "LOCATION"
	TypeIPAddress  Type = "IP_ADDRESS"
	TypeCustom     Type = "CUSTOM"
)

// Level is the sensitivity assigned to a rule or detected entity.
type Level string

const (
	LevelHigh   Level = "HIGH"
	LevelMedium Level = "MEDIUM"
	LevelLow    Level = "LOW"
)

// rank orders sensitivity levels for comparison; higher wins during dedup.
func (l Level) rank() int {
	switch l {
	case LevelHigh:
		return 3
	case LevelMedium:
		return 2
	case LevelLow:
		return 1
	default:
		return 0
	}
}

// Max returns the more sensitive of the two levels.
func (l Level) Max(other Level) Level {
	if other.rank() > l.rank() {
		return other
	}
	return l
}

// RawMatch is a single pattern-rule hit before reconciliation.
type RawMatch struct {
	Text        string `json:"text"`
	Type        Type   `json:"type"`
	Level       Level  `json:"level"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Replacement string `json:"replacement"`
}

// RawEntity is an extraction returned by an inference backend. Type and
// sensitivity arrive as free-form strings and are normalized later.
type RawEntity struct {
	Text        string `json:"text"`
	TypeLabel   string `json:"type"`
	Sensitivity string `json:"sensitivity"`
	Replacement string `json:"replacement,omitempty"`
}

// InferencePayload is the normalized output contract shared by every
// inference backend.
type InferencePayload struct {
	Summary        string      `json:"summary"`
	Classification string      `json:"classification"`
	RiskScore      int         `json:"riskScore"`
	Entities       []RawEntity `json:"entities"`
}

// Entity is a reconciled detection with resolved offsets. Entities are
// immutable once created; the caller tracks redaction state separately
// through the active id set.
type Entity struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Type        Type   `json:"type"`
	Level       Level  `json:"level"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Replacement string `json:"replacement"`
	// Unlocatable marks entities whose text could not be found in the
	// original document. They keep 0/0 offsets, stay in the redaction set,
	// and are skipped by highlighting.
	Unlocatable bool `json:"unlocatable,omitempty"`
}

// AnalysisResult is the outcome of one scan request.
type AnalysisResult struct {
	ID             string        `json:"id"`
	OriginalText   string        `json:"-"`
	SanitizedText  string        `json:"sanitizedText"`
	Entities       []Entity      `json:"entities"`
	RiskScore      int           `json:"riskScore"`
	Summary        string        `json:"summary"`
	Classification string        `json:"classification"`
	Engine         string        `json:"engine"`
	Duration       time.Duration `json:"duration"`
}
