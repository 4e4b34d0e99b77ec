package incident

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"sentinel-engine/internal/threat"
)

// Detection is the input to incident submission: one detected threat
// attributed to an entity.
type Detection struct {
	Entity         string
	Vector         threat.Vector
	Level          threat.Level
	Origin         Origin
	Title          string
	Description    string
	Confidence     float64
	Indicators     []string
	AffectedAssets []string
	Actions        []threat.Action
}

// ManagerConfig configures incident deduplication and retention.
type ManagerConfig struct {
	DedupWindow   time.Duration // repeat detections merge within this window
	RetentionAge  time.Duration // inactive incidents older than this are archived
	StreamBacklog int           // per-subscriber channel depth
}

// DefaultManagerConfig returns the default manager configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		DedupWindow:   15 * time.Minute,
		RetentionAge:  24 * time.Hour,
		StreamBacklog: 256,
	}
}

type dedupKey struct {
	entity string
	vector threat.Vector
}

// Manager owns the active incident set and its history.
type Manager struct {
	config ManagerConfig

	mu          sync.RWMutex
	active      map[string]*SecurityIncident
	byKey       map[dedupKey]string // dedup key -> active incident ID
	history     []*SecurityIncident // all incidents ever raised, append-only
	subscribers []chan *SecurityIncident

	totalCreated int64
	totalMerged  int64
}

// NewManager creates an incident manager.
func NewManager(config ManagerConfig) *Manager {
	if config.DedupWindow <= 0 {
		config.DedupWindow = DefaultManagerConfig().DedupWindow
	}
	if config.RetentionAge <= 0 {
		config.RetentionAge = DefaultManagerConfig().RetentionAge
	}
	if config.StreamBacklog <= 0 {
		config.StreamBacklog = DefaultManagerConfig().StreamBacklog
	}
	return &Manager{
		config: config,
		active: make(map[string]*SecurityIncident),
		byKey:  make(map[dedupKey]string),
	}
}

// Subscribe returns a channel receiving a copy of every created or
// updated incident. Slow subscribers drop updates rather than block
// the pipeline.
func (m *Manager) Subscribe() <-chan *SecurityIncident {
	ch := make(chan *SecurityIncident, m.config.StreamBacklog)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()
	return ch
}

// Submit records a detection. A detection matching an active incident
// for the same entity and vector within the dedup window merges into
// it; otherwise a new incident is created. A matching incident
// resolved within the window is reopened instead.
// Returns the incident and whether it was newly created.
func (m *Manager) Submit(det Detection) (*SecurityIncident, bool) {
	now := time.Now().UTC()
	key := dedupKey{entity: det.Entity, vector: det.Vector}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byKey[key]; ok {
		inc, ok := m.active[id]
		if ok && (inc.Status == StatusNew || inc.Status == StatusInvestigating) &&
			now.Sub(inc.UpdatedAt) <= m.config.DedupWindow {
			m.mergeLocked(inc, det, now)
			m.publishLocked(inc)
			return inc, false
		}
	}

	// A recently resolved incident for the same activity reopens
	// rather than duplicating.
	if inc := m.recentResolvedLocked(key, now); inc != nil {
		m.reopenLocked(inc, "recurring detection within dedup window")
		m.mergeLocked(inc, det, now)
		m.publishLocked(inc)
		return inc, false
	}

	title := det.Title
	if title == "" {
		title = fmt.Sprintf("%s detected from %s", det.Vector, det.Entity)
	}

	// The ID derivation has one-second resolution; walk forward until
	// it does not collide with an existing incident.
	id := NewID(det.Origin, det.Entity, det.Vector, now)
	for at := now; m.lookupLocked(id) != nil; {
		at = at.Add(time.Second)
		id = NewID(det.Origin, det.Entity, det.Vector, at)
	}

	inc := &SecurityIncident{
		ID:             id,
		Entity:         det.Entity,
		Vector:         det.Vector,
		Level:          det.Level,
		Status:         StatusNew,
		Origin:         det.Origin,
		Title:          title,
		Description:    det.Description,
		Confidence:     det.Confidence,
		Indicators:     append([]string(nil), det.Indicators...),
		AffectedAssets: append([]string(nil), det.AffectedAssets...),
		Actions:        append([]threat.Action(nil), det.Actions...),
		EventCount:     1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	inc.addTimeline("detection", det.Description)

	m.active[inc.ID] = inc
	m.byKey[key] = inc.ID
	m.history = append(m.history, inc)
	m.totalCreated++

	slog.Info("incident created",
		"incident_id", inc.ID,
		"entity", inc.Entity,
		"vector", inc.Vector,
		"level", inc.Level,
	)

	m.publishLocked(inc)
	return inc, true
}

func (m *Manager) mergeLocked(inc *SecurityIncident, det Detection, now time.Time) {
	inc.EventCount++
	if det.Confidence > inc.Confidence {
		inc.Confidence = det.Confidence
	}
	if det.Level.Rank() > inc.Level.Rank() {
		inc.Level = det.Level
	}
	inc.Indicators = appendUnique(inc.Indicators, det.Indicators)
	inc.AffectedAssets = appendUnique(inc.AffectedAssets, det.AffectedAssets)
	inc.addTimeline("merge", fmt.Sprintf("repeat detection merged (%d events)", inc.EventCount))
	inc.UpdatedAt = now
	m.totalMerged++
}

func (m *Manager) recentResolvedLocked(key dedupKey, now time.Time) *SecurityIncident {
	for i := len(m.history) - 1; i >= 0; i-- {
		inc := m.history[i]
		if inc.Entity != key.entity || inc.Vector != key.vector {
			continue
		}
		if inc.Status == StatusResolved && now.Sub(inc.UpdatedAt) <= m.config.DedupWindow {
			return inc
		}
		return nil
	}
	return nil
}

func (m *Manager) reopenLocked(inc *SecurityIncident, reason string) {
	inc.Status = StatusNew
	inc.addTimeline("transition", "reopened: "+reason)
	inc.UpdatedAt = time.Now().UTC()
	m.active[inc.ID] = inc
	m.byKey[dedupKey{entity: inc.Entity, vector: inc.Vector}] = inc.ID
}

// Transition moves an incident to a new lifecycle state. Illegal
// transitions are rejected.
func (m *Manager) Transition(id string, to Status) error {
	if !to.IsValid() {
		return fmt.Errorf("unknown status %q", to)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inc := m.lookupLocked(id)
	if inc == nil {
		return fmt.Errorf("incident %s not found", id)
	}
	if !transitionAllowed(inc.Status, to) {
		return fmt.Errorf("illegal transition %s -> %s for incident %s", inc.Status, to, id)
	}

	from := inc.Status
	inc.Status = to
	inc.addTimeline("transition", fmt.Sprintf("%s -> %s", from, to))
	inc.UpdatedAt = time.Now().UTC()

	if to == StatusResolved {
		delete(m.active, inc.ID)
		key := dedupKey{entity: inc.Entity, vector: inc.Vector}
		if m.byKey[key] == inc.ID {
			delete(m.byKey, key)
		}
	}
	if from == StatusResolved && to == StatusNew {
		m.active[inc.ID] = inc
		m.byKey[dedupKey{entity: inc.Entity, vector: inc.Vector}] = inc.ID
	}

	slog.Info("incident transitioned", "incident_id", id, "from", from, "to", to)
	m.publishLocked(inc)
	return nil
}

// Reopen moves a resolved incident back to new.
func (m *Manager) Reopen(id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inc := m.lookupLocked(id)
	if inc == nil {
		return fmt.Errorf("incident %s not found", id)
	}
	if inc.Status != StatusResolved {
		return fmt.Errorf("incident %s is %s, only resolved incidents reopen", id, inc.Status)
	}

	m.reopenLocked(inc, reason)
	m.publishLocked(inc)
	return nil
}

// AddNote appends a free-form analyst note to an incident's timeline.
func (m *Manager) AddNote(id, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inc := m.lookupLocked(id)
	if inc == nil {
		return fmt.Errorf("incident %s not found", id)
	}
	inc.addTimeline("note", note)
	inc.UpdatedAt = time.Now().UTC()
	return nil
}

// Get returns an incident by ID, searching active and history.
func (m *Manager) Get(id string) (*SecurityIncident, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inc := m.lookupLocked(id)
	return inc, inc != nil
}

func (m *Manager) lookupLocked(id string) *SecurityIncident {
	if inc, ok := m.active[id]; ok {
		return inc
	}
	for _, inc := range m.history {
		if inc.ID == id {
			return inc
		}
	}
	return nil
}

// Active returns the active incidents.
func (m *Manager) Active() []*SecurityIncident {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*SecurityIncident, 0, len(m.active))
	for _, inc := range m.active {
		out = append(out, inc)
	}
	return out
}

// History returns every incident ever raised, oldest first.
func (m *Manager) History() []*SecurityIncident {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*SecurityIncident(nil), m.history...)
}

// Cleanup drops incidents from the active set that have seen no
// activity for the retention age. They remain in history. Returns how
// many were archived.
func (m *Manager) Cleanup() int {
	cutoff := time.Now().UTC().Add(-m.config.RetentionAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	archived := 0
	for id, inc := range m.active {
		if inc.UpdatedAt.Before(cutoff) {
			delete(m.active, id)
			key := dedupKey{entity: inc.Entity, vector: inc.Vector}
			if m.byKey[key] == id {
				delete(m.byKey, key)
			}
			archived++
		}
	}

	if archived > 0 {
		slog.Info("stale incidents archived", "count", archived)
	}
	return archived
}

// Summary aggregates the current incident population.
type Summary struct {
	ActiveTotal  int                   `json:"active_total"`
	HistoryTotal int                   `json:"history_total"`
	Last24h      int                   `json:"last_24h"`
	ByLevel      map[threat.Level]int  `json:"by_level"`
	ByStatus     map[Status]int        `json:"by_status"`
	ByVector     map[threat.Vector]int `json:"by_vector"`
	TopVectors   []VectorCount         `json:"top_vectors,omitempty"`
	TotalCreated int64                 `json:"total_created"`
	TotalMerged  int64                 `json:"total_merged"`
	GeneratedAt  time.Time             `json:"generated_at"`
}

// VectorCount pairs an attack vector with its active incident count.
type VectorCount struct {
	Vector threat.Vector `json:"vector"`
	Count  int           `json:"count"`
}

// Summarize reports counts over the active incident set.
func (m *Manager) Summarize() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Summary{
		ActiveTotal:  len(m.active),
		HistoryTotal: len(m.history),
		ByLevel:      make(map[threat.Level]int),
		ByStatus:     make(map[Status]int),
		ByVector:     make(map[threat.Vector]int),
		TotalCreated: m.totalCreated,
		TotalMerged:  m.totalMerged,
		GeneratedAt:  time.Now().UTC(),
	}
	for _, inc := range m.active {
		s.ByLevel[inc.Level]++
		s.ByStatus[inc.Status]++
		s.ByVector[inc.Vector]++
	}

	dayAgo := s.GeneratedAt.Add(-24 * time.Hour)
	for _, inc := range m.history {
		if inc.CreatedAt.After(dayAgo) {
			s.Last24h++
		}
	}

	for v, n := range s.ByVector {
		s.TopVectors = append(s.TopVectors, VectorCount{Vector: v, Count: n})
	}
	sort.Slice(s.TopVectors, func(i, j int) bool {
		if s.TopVectors[i].Count != s.TopVectors[j].Count {
			return s.TopVectors[i].Count > s.TopVectors[j].Count
		}
		return s.TopVectors[i].Vector < s.TopVectors[j].Vector
	})
	if len(s.TopVectors) > 5 {
		s.TopVectors = s.TopVectors[:5]
	}
	return s
}

func (m *Manager) publishLocked(inc *SecurityIncident) {
	if len(m.subscribers) == 0 {
		return
	}
	snapshot := *inc
	snapshot.Timeline = append([]TimelineEntry(nil), inc.Timeline...)
	snapshot.Indicators = append([]string(nil), inc.Indicators...)
	snapshot.AffectedAssets = append([]string(nil), inc.AffectedAssets...)
	snapshot.Actions = append([]threat.Action(nil), inc.Actions...)

	for _, ch := range m.subscribers {
		select {
		case ch <- &snapshot:
		default:
			// Slow subscriber; drop rather than stall analysis.
		}
	}
}

func appendUnique(dst, src []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range src {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}
