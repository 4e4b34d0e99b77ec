// Package incident manages security incidents: creation, deduplication,
// lifecycle transitions and history.
package incident

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"sentinel-engine/internal/threat"
)

// Status is an incident lifecycle state.
type Status string

const (
	StatusNew           Status = "new"
	StatusInvestigating Status = "investigating"
	StatusContained     Status = "contained"
	StatusResolved      Status = "resolved"
)

// IsValid checks if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusInvestigating, StatusContained, StatusResolved:
		return true
	}
	return false
}

// allowedTransitions lists the legal lifecycle edges. Resolved
// incidents leave the active set; reopening is the only edge out of
// resolved.
var allowedTransitions = map[Status][]Status{
	StatusNew:           {StatusInvestigating},
	StatusInvestigating: {StatusContained, StatusResolved},
	StatusContained:     {StatusResolved},
	StatusResolved:      {StatusNew},
}

func transitionAllowed(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Origin marks which detection path raised an incident. It selects the
// incident ID prefix.
type Origin string

const (
	OriginIndicator Origin = "indicator" // IOC or signature match
	OriginAnomaly   Origin = "anomaly"   // baseline deviation
	OriginCampaign  Origin = "campaign"  // correlated multi-event activity
)

func (o Origin) prefix() string {
	switch o {
	case OriginAnomaly:
		return "ANO"
	case OriginCampaign:
		return "CAM"
	}
	return "INC"
}

// TimelineEntry is one recorded step in an incident's history.
type TimelineEntry struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"` // detection, merge, transition, note
	Message   string    `json:"message"`
}

// SecurityIncident is one open or historical security incident.
type SecurityIncident struct {
	ID             string          `json:"id"`
	Entity         string          `json:"entity"`
	Vector         threat.Vector   `json:"vector"`
	Level          threat.Level    `json:"level"`
	Status         Status          `json:"status"`
	Origin         Origin          `json:"origin"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Confidence     float64         `json:"confidence"`
	Indicators     []string        `json:"indicators,omitempty"`
	AffectedAssets []string        `json:"affected_assets,omitempty"`
	Actions        []threat.Action `json:"actions,omitempty"`
	Timeline       []TimelineEntry `json:"timeline"`
	EventCount     int             `json:"event_count"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewID builds a deterministic-format incident ID: a prefix by origin,
// a timestamp, and a short hash of the entity and vector.
func NewID(origin Origin, entity string, vector threat.Vector, at time.Time) string {
	h := fnv.New32a()
	h.Write([]byte(entity))
	h.Write([]byte(vector))
	return fmt.Sprintf("%s-%s-%04d", origin.prefix(), at.UTC().Format("20060102150405"), h.Sum32()%10000)
}

func (i *SecurityIncident) addTimeline(kind, message string) {
	i.Timeline = append(i.Timeline, TimelineEntry{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Message:   message,
	})
}

// Active reports whether the incident is still being worked.
func (i *SecurityIncident) Active() bool {
	return i.Status != StatusResolved
}
