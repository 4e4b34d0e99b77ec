// Package correlation groups related events from the same entity into
// campaign candidates over a sliding time window.
package correlation

import (
	"fmt"
	"sync"
	"time"

	"sentinel-engine/internal/queue"
	"sentinel-engine/internal/schema"
	"sentinel-engine/internal/threat"
)

// Config configures the correlation window and campaign thresholds.
type Config struct {
	Window        time.Duration // sliding window length
	MinEvents     int           // events in window before a campaign forms
	DDoSDests     int           // distinct destinations before DDoS is assumed
	ExfilBytes    int64         // total bytes before exfiltration is assumed
	BufferCap     int           // per-entity event buffer capacity
	BufferMaxAge  time.Duration // events older than this are dropped
	ConfidenceCap float64       // ceiling for campaign confidence
}

// DefaultConfig returns the default correlator configuration.
func DefaultConfig() Config {
	return Config{
		Window:        5 * time.Minute,
		MinEvents:     10,
		DDoSDests:     5,
		ExfilBytes:    100 * 1024 * 1024,
		BufferCap:     1000,
		BufferMaxAge:  24 * time.Hour,
		ConfidenceCap: 0.8,
	}
}

// Candidate is a correlated campaign detected for one entity.
type Candidate struct {
	Entity        string        `json:"entity"`
	Vector        threat.Vector `json:"vector"`
	EventCount    int           `json:"event_count"`
	DistinctDests int           `json:"distinct_dests"`
	TotalBytes    int64         `json:"total_bytes"`
	WindowStart   time.Time     `json:"window_start"`
	WindowEnd     time.Time     `json:"window_end"`
	Confidence    float64       `json:"confidence"`
	Description   string        `json:"description"`
}

type entityBuffer struct {
	events *queue.Ring[*schema.NetworkEvent]
	latest time.Time
}

// Correlator buffers recent events per entity and detects campaigns.
type Correlator struct {
	config Config

	mu      sync.Mutex
	buffers map[string]*entityBuffer
}

// New creates a Correlator.
func New(config Config) *Correlator {
	def := DefaultConfig()
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.MinEvents <= 0 {
		config.MinEvents = def.MinEvents
	}
	if config.DDoSDests <= 0 {
		config.DDoSDests = def.DDoSDests
	}
	if config.ExfilBytes <= 0 {
		config.ExfilBytes = def.ExfilBytes
	}
	if config.BufferCap <= 0 {
		config.BufferCap = def.BufferCap
	}
	if config.BufferMaxAge <= 0 {
		config.BufferMaxAge = def.BufferMaxAge
	}
	if config.ConfidenceCap <= 0 {
		config.ConfidenceCap = def.ConfidenceCap
	}
	return &Correlator{
		config:  config,
		buffers: make(map[string]*entityBuffer),
	}
}

// Observe folds a batch of events into the per-entity buffers and
// returns campaign candidates. At most one candidate is reported per
// entity per call.
func (c *Correlator) Observe(events []*schema.NetworkEvent) []Candidate {
	if len(events) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	touched := make(map[string]struct{})
	for _, event := range events {
		entity := event.Entity()
		buf, ok := c.buffers[entity]
		if !ok {
			buf = &entityBuffer{events: queue.NewRing[*schema.NetworkEvent](c.config.BufferCap)}
			c.buffers[entity] = buf
		}
		buf.events.Append(event)
		if event.Timestamp.After(buf.latest) {
			buf.latest = event.Timestamp
		}
		touched[entity] = struct{}{}
	}

	var candidates []Candidate
	for entity := range touched {
		if cand, ok := c.evaluateLocked(entity); ok {
			candidates = append(candidates, cand)
		}
	}
	return candidates
}

func (c *Correlator) evaluateLocked(entity string) (Candidate, bool) {
	buf := c.buffers[entity]

	ageCutoff := buf.latest.Add(-c.config.BufferMaxAge)
	buf.events.DropWhile(func(e *schema.NetworkEvent) bool {
		return e.Timestamp.Before(ageCutoff)
	})

	windowStart := buf.latest.Add(-c.config.Window)
	var (
		count int
		bytes int64
		dests = make(map[string]struct{})
	)
	for i := 0; i < buf.events.Len(); i++ {
		e := buf.events.At(i)
		if e.Timestamp.Before(windowStart) {
			continue
		}
		count++
		bytes += e.Bytes
		dests[e.DestAddr] = struct{}{}
	}

	if count <= c.config.MinEvents {
		return Candidate{}, false
	}

	vector := threat.VectorAPT
	desc := fmt.Sprintf("%d correlated events from %s in %s", count, entity, c.config.Window)
	switch {
	case len(dests) > c.config.DDoSDests:
		vector = threat.VectorDDoS
		desc = fmt.Sprintf("%d events to %d destinations from %s in %s", count, len(dests), entity, c.config.Window)
	case bytes > c.config.ExfilBytes:
		vector = threat.VectorDataExfiltration
		desc = fmt.Sprintf("%d events moving %d bytes from %s in %s", count, bytes, entity, c.config.Window)
	}

	confidence := float64(count) / 20
	if confidence > c.config.ConfidenceCap {
		confidence = c.config.ConfidenceCap
	}

	return Candidate{
		Entity:        entity,
		Vector:        vector,
		EventCount:    count,
		DistinctDests: len(dests),
		TotalBytes:    bytes,
		WindowStart:   windowStart,
		WindowEnd:     buf.latest,
		Confidence:    confidence,
		Description:   desc,
	}, true
}

// Entities reports how many entities currently have buffered events.
func (c *Correlator) Entities() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffers)
}

// Cleanup drops buffers whose newest event is older than the buffer
// max age. Returns how many buffers were removed.
func (c *Correlator) Cleanup() int {
	cutoff := time.Now().UTC().Add(-c.config.BufferMaxAge)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for entity, buf := range c.buffers {
		if buf.latest.Before(cutoff) {
			delete(c.buffers, entity)
			removed++
		}
	}
	return removed
}
