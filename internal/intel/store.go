package intel

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is an immutable view of the indicator set. Lookups during
// analysis read a snapshot without locking; updates publish a new one.
type Snapshot struct {
	byKind map[Kind]map[string]*Indicator
	taken  time.Time
}

// Lookup returns the indicator for the given kind and value, if any.
func (s *Snapshot) Lookup(kind Kind, value string) (*Indicator, bool) {
	m, ok := s.byKind[kind]
	if !ok {
		return nil, false
	}
	ind, ok := m[strings.ToLower(value)]
	return ind, ok
}

// LookupAny checks the value against every kind and returns the first
// match. Used when the caller does not know the value's shape.
func (s *Snapshot) LookupAny(value string) (*Indicator, bool) {
	v := strings.ToLower(value)
	for _, m := range s.byKind {
		if ind, ok := m[v]; ok {
			return ind, true
		}
	}
	return nil, false
}

// SizesByKind reports indicator counts per kind.
func (s *Snapshot) SizesByKind() map[Kind]int {
	sizes := make(map[Kind]int, len(s.byKind))
	for kind, m := range s.byKind {
		sizes[kind] = len(m)
	}
	return sizes
}

// TakenAt reports when the snapshot was published.
func (s *Snapshot) TakenAt() time.Time {
	return s.taken
}

// DefaultMaxPerKind bounds the number of indicators held per kind.
const DefaultMaxPerKind = 100000

// Store holds the authoritative indicator set and publishes immutable
// snapshots for the analysis hot path.
type Store struct {
	mu         sync.Mutex
	byKind     map[Kind]map[string]*Indicator
	maxPerKind int
	snapshot   atomic.Pointer[Snapshot]
}

// NewStore creates a Store preloaded with the built-in indicator set.
func NewStore() *Store {
	return NewStoreWithCapacity(DefaultMaxPerKind)
}

// NewStoreWithCapacity creates a Store bounded to maxPerKind indicators
// per kind. When full, the least recently seen entry is evicted.
func NewStoreWithCapacity(maxPerKind int) *Store {
	if maxPerKind <= 0 {
		maxPerKind = DefaultMaxPerKind
	}
	s := &Store{
		byKind:     make(map[Kind]map[string]*Indicator),
		maxPerKind: maxPerKind,
	}
	s.loadBuiltInIndicators()
	return s
}

// Snapshot returns the current published snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Upsert adds an indicator or refreshes an existing one. Confidence is
// monotone: a lower-confidence sighting never downgrades an entry.
func (s *Store) Upsert(ind Indicator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(ind)
	s.publishLocked()
}

// BulkLoad upserts a batch of indicators and publishes one snapshot.
func (s *Store) BulkLoad(indicators []Indicator) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := 0
	for _, ind := range indicators {
		if !ind.Kind.IsValid() || ind.Value == "" {
			continue
		}
		s.upsertLocked(ind)
		loaded++
	}
	s.publishLocked()
	return loaded
}

// LoadLines parses newline-delimited feed text and loads every line
// that classifies as an indicator. Comments and unrecognized lines are
// dropped without error. Returns how many indicators loaded.
func (s *Store) LoadLines(source string, lines []string, confidence float64) int {
	now := time.Now().UTC()

	var indicators []Indicator
	for _, line := range lines {
		value := strings.TrimSpace(line)
		kind, ok := ClassifyValue(value)
		if !ok {
			continue
		}
		indicators = append(indicators, Indicator{
			Kind:       kind,
			Value:      value,
			Confidence: confidence,
			Source:     source,
			Reputation: ReputationSuspicious,
			FirstSeen:  now,
		})
	}
	return s.BulkLoad(indicators)
}

func (s *Store) upsertLocked(ind Indicator) {
	now := time.Now().UTC()
	value := strings.ToLower(ind.Value)

	m, ok := s.byKind[ind.Kind]
	if !ok {
		m = make(map[string]*Indicator)
		s.byKind[ind.Kind] = m
	}

	if existing, ok := m[value]; ok {
		if ind.Confidence > existing.Confidence {
			existing.Confidence = ind.Confidence
		}
		if ind.Reputation > existing.Reputation {
			existing.Reputation = ind.Reputation
		}
		existing.LastSeen = now
		return
	}

	if len(m) >= s.maxPerKind {
		s.evictOldestLocked(m)
	}

	stored := ind
	stored.Value = value
	stored.Confidence = clamp01(stored.Confidence)
	stored.Reputation = clamp01(stored.Reputation)
	if stored.FirstSeen.IsZero() {
		stored.FirstSeen = now
	}
	stored.LastSeen = now
	m[value] = &stored
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// evictOldestLocked removes the least recently seen indicator from m.
func (s *Store) evictOldestLocked(m map[string]*Indicator) {
	var oldestKey string
	var oldest time.Time
	for v, ind := range m {
		if oldestKey == "" || ind.LastSeen.Before(oldest) {
			oldestKey = v
			oldest = ind.LastSeen
		}
	}
	if oldestKey != "" {
		delete(m, oldestKey)
	}
}

func (s *Store) publishLocked() {
	byKind := make(map[Kind]map[string]*Indicator, len(s.byKind))
	for kind, m := range s.byKind {
		copied := make(map[string]*Indicator, len(m))
		for v, ind := range m {
			c := *ind
			copied[v] = &c
		}
		byKind[kind] = copied
	}
	s.snapshot.Store(&Snapshot{byKind: byKind, taken: time.Now().UTC()})
}

func (s *Store) loadBuiltInIndicators() {
	seeds := []Indicator{
		{Kind: KindIP, Value: "185.220.100.240", Confidence: 0.9, Reputation: ReputationMalicious},
		{Kind: KindIP, Value: "185.220.101.32", Confidence: 0.9, Reputation: ReputationMalicious},
		{Kind: KindIP, Value: "198.96.155.3", Confidence: 0.85, Reputation: ReputationMalicious},
		{Kind: KindIP, Value: "171.25.193.77", Confidence: 0.8, Reputation: ReputationSuspicious},
		{Kind: KindDomain, Value: "malware-c2.example.com", Confidence: 0.95, Reputation: ReputationMalicious},
		{Kind: KindDomain, Value: "phishing-bank.example.net", Confidence: 0.9, Reputation: ReputationMalicious},
		{Kind: KindDomain, Value: "botnet-command.example.org", Confidence: 0.9, Reputation: ReputationMalicious},
		{Kind: KindHash, Value: "44d88612fea8a8f36de82e1278abb02f", Confidence: 1.0, Reputation: ReputationMalicious},
		{Kind: KindHash, Value: "275a021bbfb6489e54d471899f7db9d1663fc695ec2fe2a2c4538aabf651fd0f", Confidence: 1.0, Reputation: ReputationMalicious},
		{Kind: KindURL, Value: "http://malware-c2.example.com/gate.php", Confidence: 0.9, Reputation: ReputationMalicious},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seed := range seeds {
		seed.Source = "built-in"
		s.upsertLocked(seed)
	}
	s.publishLocked()
}
