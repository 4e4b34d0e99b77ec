// Package schema defines the canonical input formats accepted by the
// analysis pipeline. All ingested traffic is normalized to these
// structures before analysis.
package schema

import (
	"time"

	"github.com/google/uuid"
)

// NetworkEvent is one observed network interaction. It is the unit of
// work for traffic analysis: indicator lookups, pattern matching,
// baseline updates and correlation all consume this structure.
type NetworkEvent struct {
	// Required fields
	EventID    uuid.UUID `json:"event_id" validate:"required"`
	Timestamp  time.Time `json:"timestamp" validate:"required"`
	SourceAddr string    `json:"source_addr" validate:"required,ip"`
	DestAddr   string    `json:"dest_addr" validate:"required,ip"`

	// Optional fields
	Protocol   string         `json:"protocol,omitempty" validate:"omitempty,oneof=tcp udp icmp http https dns tls ssh"`
	SourcePort int            `json:"source_port,omitempty" validate:"omitempty,min=0,max=65535"`
	DestPort   int            `json:"dest_port,omitempty" validate:"omitempty,min=0,max=65535"`
	Bytes      int64          `json:"bytes,omitempty" validate:"omitempty,min=0"`
	Packets    int64          `json:"packets,omitempty" validate:"omitempty,min=0"`
	Duration   float64        `json:"duration,omitempty" validate:"omitempty,min=0"`
	Status     string         `json:"status,omitempty" validate:"max=64"`
	Method     string         `json:"method,omitempty" validate:"max=16"`
	URI        string         `json:"uri,omitempty" validate:"max=8192"`
	UserAgent  string         `json:"user_agent,omitempty" validate:"max=1024"`
	Payload    string         `json:"payload,omitempty" validate:"max=65536"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	// Internal fields (set by system)
	ReceivedAt time.Time `json:"received_at"`
}

// Entity returns the identity the event is attributed to for baselining
// and correlation purposes.
func (e *NetworkEvent) Entity() string {
	return e.SourceAddr
}

// TextInput is a piece of user-supplied text submitted for content
// analysis, such as a chat message or a form field.
type TextInput struct {
	InputID   uuid.UUID      `json:"input_id" validate:"required"`
	Timestamp time.Time      `json:"timestamp" validate:"required"`
	Text      string         `json:"text" validate:"required,max=65536"`
	Context   map[string]any `json:"context,omitempty"`
}

// Entity returns the identity the text is attributed to. It prefers an
// explicit user key in the context, falling back to "anonymous".
func (t *TextInput) Entity() string {
	if t.Context != nil {
		if u, ok := t.Context["user"].(string); ok && u != "" {
			return u
		}
	}
	return "anonymous"
}

// Intent classifies the inferred purpose of a text input.
type Intent string

const (
	IntentIncidentReport       Intent = "incident_report"
	IntentVulnerabilityInquiry Intent = "vulnerability_inquiry"
	IntentThreatIntelligence   Intent = "threat_intelligence"
	IntentPolicyQuestion       Intent = "policy_question"
	IntentTechnicalSupport     Intent = "technical_support"
	IntentGeneralSecurity      Intent = "general_security"
	IntentGeneralInquiry       Intent = "general_inquiry"
)

// ExtractedEntity is a security-relevant value found inside a text input.
type ExtractedEntity struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// TextAnalysis is the outcome of analyzing one text input.
type TextAnalysis struct {
	InputID         uuid.UUID         `json:"input_id"`
	Safe            bool              `json:"safe"`
	Intent          Intent            `json:"intent"`
	Entities        []ExtractedEntity `json:"entities,omitempty"`
	Categories      []string          `json:"categories,omitempty"`
	Confidence      float64           `json:"confidence"`
	RiskScore       float64           `json:"risk_score"`
	Recommendations []string          `json:"recommendations,omitempty"`
	AnalyzedAt      time.Time         `json:"analyzed_at"`
}
