// Package behavior tracks per-entity behavioral baselines and measures
// how far new activity deviates from them.
package behavior

import (
	"math"
	"sync"
	"time"

	"sentinel-engine/internal/queue"
)

// ewmaAlpha is the smoothing factor for the exponential moving average
// of each feature.
const ewmaAlpha = 0.1

// historyCap bounds the per-entity sample history.
const historyCap = 1000

// Result describes one baseline update.
type Result struct {
	Entity      string  `json:"entity"`
	First       bool    `json:"first"`
	Deviation   float64 `json:"deviation"`
	SampleCount int     `json:"sample_count"`
}

// Classification grades an observation against its baseline.
type Classification string

const (
	ClassNormal     Classification = "normal"
	ClassSuspicious Classification = "suspicious"
	ClassAnomalous  Classification = "anomalous"
	ClassMalicious  Classification = "malicious"
)

type sample struct {
	features map[string]float64
	ts       time.Time
}

type entityBaseline struct {
	averages map[string]float64
	history  *queue.Ring[sample]
	count    int
	lastSeen time.Time
}

// Engine holds baselines for all observed entities.
type Engine struct {
	mu       sync.Mutex
	entities map[string]*entityBaseline
}

// NewEngine creates an empty baseline engine.
func NewEngine() *Engine {
	return &Engine{entities: make(map[string]*entityBaseline)}
}

// Update folds a feature observation into the entity's baseline and
// returns how far the observation deviated from it. The first
// observation for an entity establishes the baseline and reports zero
// deviation.
func (e *Engine) Update(entityID string, features map[string]float64) Result {
	now := time.Now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	eb, ok := e.entities[entityID]
	if !ok {
		eb = &entityBaseline{
			averages: make(map[string]float64, len(features)),
			history:  queue.NewRing[sample](historyCap),
		}
		for k, v := range features {
			eb.averages[k] = v
		}
		eb.history.Append(sample{features: features, ts: now})
		eb.count = 1
		eb.lastSeen = now
		e.entities[entityID] = eb
		return Result{Entity: entityID, First: true, SampleCount: 1}
	}

	deviation := deviationFrom(eb.averages, features)

	for k, v := range features {
		if avg, ok := eb.averages[k]; ok {
			eb.averages[k] = (1-ewmaAlpha)*avg + ewmaAlpha*v
		} else {
			eb.averages[k] = v
		}
	}
	eb.history.Append(sample{features: features, ts: now})
	eb.count++
	eb.lastSeen = now

	return Result{Entity: entityID, Deviation: deviation, SampleCount: eb.count}
}

// deviationFrom averages the relative distance of each observed
// feature from its baseline mean. Features without a positive baseline
// are skipped.
func deviationFrom(averages, features map[string]float64) float64 {
	var total float64
	var n int
	for k, v := range features {
		avg, ok := averages[k]
		if !ok || avg <= 0 {
			continue
		}
		total += math.Abs(v-avg) / avg
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// SampleCount reports how many observations an entity has contributed.
func (e *Engine) SampleCount(entityID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if eb, ok := e.entities[entityID]; ok {
		return eb.count
	}
	return 0
}

// Entities reports how many entities have baselines.
func (e *Engine) Entities() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entities)
}

// Cleanup drops baselines for entities inactive longer than maxAge and
// returns how many were removed.
func (e *Engine) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, eb := range e.entities {
		if eb.lastSeen.Before(cutoff) {
			delete(e.entities, id)
			removed++
		}
	}
	return removed
}

// Classify grades an observation given its baseline deviation and the
// number of indicator or signature hits it produced.
func Classify(deviation float64, hits int) Classification {
	switch {
	case hits > 5 || deviation > 2.0:
		return ClassMalicious
	case hits > 2 || deviation > 1.0:
		return ClassAnomalous
	case hits > 0 || deviation > 0.5:
		return ClassSuspicious
	}
	return ClassNormal
}
