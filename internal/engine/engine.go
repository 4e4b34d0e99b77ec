// Package engine runs the analysis pipeline: indicator lookups,
// signature matching, behavioral baselines, risk scoring, correlation
// and incident management over ingested traffic.
package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sentinel-engine/internal/behavior"
	"sentinel-engine/internal/correlation"
	"sentinel-engine/internal/escalation"
	"sentinel-engine/internal/history"
	"sentinel-engine/internal/incident"
	"sentinel-engine/internal/intel"
	"sentinel-engine/internal/patterns"
	"sentinel-engine/internal/queue"
	"sentinel-engine/internal/schema"
	"sentinel-engine/internal/scoring"
	"sentinel-engine/internal/threat"
)

// entityShards is the number of locks serializing per-entity analysis.
const entityShards = 64

// Config configures the engine.
type Config struct {
	Workers         int
	QueueSize       int
	Thresholds      scoring.Thresholds
	Correlation     correlation.Config
	Incidents       incident.ManagerConfig
	Dispatcher      escalation.DispatcherConfig
	Validator       schema.ValidatorConfig
	CleanupInterval time.Duration
	BaselineMaxAge  time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		QueueSize:       100000,
		Thresholds:      scoring.DefaultThresholds(),
		Correlation:     correlation.DefaultConfig(),
		Incidents:       incident.DefaultManagerConfig(),
		Dispatcher:      escalation.DefaultDispatcherConfig(),
		Validator:       schema.DefaultValidatorConfig(),
		CleanupInterval: 1 * time.Hour,
		BaselineMaxAge:  7 * 24 * time.Hour,
	}
}

// TrafficAnalysis is the outcome of analyzing one network event.
type TrafficAnalysis struct {
	Entity         string                  `json:"entity"`
	Classification behavior.Classification `json:"classification"`
	Deviation      float64                 `json:"deviation"`
	RiskScore      float64                 `json:"risk_score"`
	Level          threat.Level            `json:"level"`
	IndicatorHits  []string                `json:"indicator_hits,omitempty"`
	SignatureHits  []patterns.Hit          `json:"signature_hits,omitempty"`
	Incident       *incident.SecurityIncident `json:"incident,omitempty"`
	Campaigns      []correlation.Candidate    `json:"campaigns,omitempty"`
	AnalyzedAt     time.Time               `json:"analyzed_at"`
}

// Engine is the analysis pipeline.
type Engine struct {
	config     Config
	validator  *schema.Validator
	intelStore *intel.Store
	matcher    *patterns.Matcher
	baselines  *behavior.Engine
	correlator *correlation.Correlator
	incidents  *incident.Manager
	dispatcher *escalation.Dispatcher
	archive    history.Store
	ingest     *queue.RingBuffer

	entityLocks [entityShards]sync.Mutex

	eventsAnalyzed atomic.Int64
	textsAnalyzed  atomic.Int64
	rejected       atomic.Int64

	stopCh  chan struct{}
	stopped atomic.Bool
	wg      sync.WaitGroup
}

// New creates an engine.
func New(config Config, intelStore *intel.Store, archive history.Store) *Engine {
	def := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.BaselineMaxAge <= 0 {
		config.BaselineMaxAge = def.BaselineMaxAge
	}
	if intelStore == nil {
		intelStore = intel.NewStore()
	}
	if archive == nil {
		archive = history.NewMemoryStore()
	}

	return &Engine{
		config:     config,
		validator:  schema.NewValidatorWithConfig(config.Validator),
		intelStore: intelStore,
		matcher:    patterns.NewMatcher(),
		baselines:  behavior.NewEngine(),
		correlator: correlation.New(config.Correlation),
		incidents:  incident.NewManager(config.Incidents),
		dispatcher: escalation.NewDispatcher(config.Dispatcher),
		archive:    archive,
		ingest:     queue.NewRingBuffer(config.QueueSize),
		stopCh:     make(chan struct{}),
	}
}

// Incidents exposes the incident manager for lifecycle operations.
func (e *Engine) Incidents() *incident.Manager {
	return e.incidents
}

// Dispatcher exposes the escalation dispatcher for notifier setup.
func (e *Engine) Dispatcher() *escalation.Dispatcher {
	return e.dispatcher
}

// Start launches the analysis workers, the archiver and the cleanup
// loop.
func (e *Engine) Start(ctx context.Context) error {
	for i := 0; i < e.config.Workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx, i)
	}

	e.wg.Add(1)
	go e.archiver(ctx)

	e.wg.Add(1)
	go e.cleanupLoop(ctx)

	slog.Info("analysis engine started", "workers", e.config.Workers)
	return nil
}

// Stop drains the pipeline and waits for workers to exit.
func (e *Engine) Stop() {
	if e.stopped.Swap(true) {
		return
	}
	e.ingest.Close()
	close(e.stopCh)
	e.wg.Wait()
	e.dispatcher.Wait()
	slog.Info("analysis engine stopped")
}

// Submit queues an event for analysis.
func (e *Engine) Submit(event *schema.NetworkEvent) error {
	return e.ingest.Push(event)
}

func (e *Engine) worker(ctx context.Context, id int) {
	defer e.wg.Done()

	for {
		event, err := e.ingest.PopBlocking()
		if err != nil {
			return
		}
		if _, err := e.AnalyzeTraffic(ctx, event); err != nil {
			slog.Debug("event rejected", "worker", id, "error", err)
		}
	}
}

func (e *Engine) archiver(ctx context.Context) {
	defer e.wg.Done()

	updates := e.incidents.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case inc := <-updates:
			if err := e.archive.Archive(ctx, inc); err != nil {
				slog.Error("incident archive failed", "incident_id", inc.ID, "error", err)
			}
		}
	}
}

func (e *Engine) cleanupLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			archived := e.incidents.Cleanup()
			baselines := e.baselines.Cleanup(e.config.BaselineMaxAge)
			buffers := e.correlator.Cleanup()
			slog.Info("maintenance sweep",
				"incidents_archived", archived,
				"baselines_dropped", baselines,
				"buffers_dropped", buffers,
			)
		}
	}
}

// suspiciousAgents are scanner and exploitation tool user agent
// substrings.
var suspiciousAgents = []string{"sqlmap", "nikto", "nmap", "masscan", "zap", "dirbuster", "hydra"}

// AnalyzeTraffic runs the full pipeline over one event: validation,
// indicator lookups, signature matching, baseline update, scoring,
// incident submission and correlation.
func (e *Engine) AnalyzeTraffic(ctx context.Context, event *schema.NetworkEvent) (*TrafficAnalysis, error) {
	if err := e.validator.ValidateEvent(event); err != nil {
		e.rejected.Add(1)
		return nil, err
	}
	event.ReceivedAt = time.Now().UTC()

	entity := event.Entity()
	lock := &e.entityLocks[shardFor(entity)]
	lock.Lock()

	snap := e.intelStore.Snapshot()

	var (
		hitConfidences []float64
		indicatorHits  []string
	)
	for _, value := range []string{event.SourceAddr, event.DestAddr, event.URI} {
		if value == "" {
			continue
		}
		if ind, ok := snap.LookupAny(value); ok {
			hitConfidences = append(hitConfidences, ind.Confidence)
			indicatorHits = append(indicatorHits, fmt.Sprintf("%s:%s", ind.Kind, ind.Value))
		}
	}

	text := event.URI + " " + event.UserAgent + " " + event.Payload
	sigHits := e.matcher.Match(text)
	for _, h := range sigHits {
		hitConfidences = append(hitConfidences, h.Confidence)
	}

	agent := strings.ToLower(event.UserAgent)
	for _, tool := range suspiciousAgents {
		if strings.Contains(agent, tool) {
			sigHits = append(sigHits, patterns.Hit{
				Category:   "suspicious_activity",
				Pattern:    tool,
				MatchCount: 1,
				Confidence: 0.9,
			})
			hitConfidences = append(hitConfidences, 0.9)
			break
		}
	}

	res := e.baselines.Update(entity, featuresOf(event))

	totalHits := len(hitConfidences)
	classification := behavior.Classify(res.Deviation, totalHits)
	risk := scoring.Score(scoring.Input{
		AnomalyScore:   anomalyScoreFor(classification),
		HitConfidences: hitConfidences,
		Deviation:      res.Deviation,
	})

	// The incident level reflects the strongest single signal: a
	// high-confidence indicator hit escalates even when the composite
	// risk is still low.
	levelScore := risk
	for _, c := range hitConfidences {
		if c > levelScore {
			levelScore = c
		}
	}
	level := e.config.Thresholds.LevelFor(levelScore)

	analysis := &TrafficAnalysis{
		Entity:         entity,
		Classification: classification,
		Deviation:      res.Deviation,
		RiskScore:      risk,
		Level:          level,
		IndicatorHits:  indicatorHits,
		SignatureHits:  sigHits,
		AnalyzedAt:     time.Now().UTC(),
	}

	if classification != behavior.ClassNormal {
		det := e.buildDetection(event, analysis)
		inc, _ := e.incidents.Submit(det)
		analysis.Incident = inc
		e.dispatcher.Dispatch(inc)
	}
	lock.Unlock()

	// Correlation runs outside the entity lock; the correlator has its
	// own synchronization and may touch other entities' incidents.
	candidates := e.correlator.Observe([]*schema.NetworkEvent{event})
	for _, cand := range candidates {
		inc := e.submitCampaign(cand)
		analysis.Campaigns = append(analysis.Campaigns, cand)
		e.dispatcher.Dispatch(inc)
	}

	e.eventsAnalyzed.Add(1)
	return analysis, nil
}

// AnalyzeBatch runs AnalyzeTraffic over a batch. Events failing
// validation are skipped; the rest of the batch still applies.
func (e *Engine) AnalyzeBatch(ctx context.Context, events []*schema.NetworkEvent) []*TrafficAnalysis {
	analyses := make([]*TrafficAnalysis, 0, len(events))
	for _, event := range events {
		analysis, err := e.AnalyzeTraffic(ctx, event)
		if err != nil {
			slog.Debug("event rejected", "event_id", event.EventID, "error", err)
			continue
		}
		analyses = append(analyses, analysis)
	}
	return analyses
}

func (e *Engine) buildDetection(event *schema.NetworkEvent, analysis *TrafficAnalysis) incident.Detection {
	vector := threat.VectorMalware
	origin := incident.OriginAnomaly
	desc := fmt.Sprintf("%s traffic from %s (deviation %.2f)", analysis.Classification, analysis.Entity, analysis.Deviation)

	if len(analysis.SignatureHits) > 0 {
		best := analysis.SignatureHits[0]
		for _, h := range analysis.SignatureHits[1:] {
			if h.Confidence > best.Confidence {
				best = h
			}
		}
		vector = patterns.VectorFor(best.Category)
		origin = incident.OriginIndicator
		desc = fmt.Sprintf("%s signature from %s against %s", best.Category, analysis.Entity, event.DestAddr)
	} else if len(analysis.IndicatorHits) > 0 {
		origin = incident.OriginIndicator
		desc = fmt.Sprintf("traffic matching %d threat indicators from %s", len(analysis.IndicatorHits), analysis.Entity)
	}

	confidence := analysis.RiskScore
	for _, h := range analysis.SignatureHits {
		if h.Confidence > confidence {
			confidence = h.Confidence
		}
	}

	return incident.Detection{
		Entity:         analysis.Entity,
		Vector:         vector,
		Level:          analysis.Level,
		Origin:         origin,
		Description:    desc,
		Confidence:     confidence,
		Indicators:     analysis.IndicatorHits,
		AffectedAssets: []string{event.DestAddr},
		Actions:        escalation.ActionsFor(analysis.Level, vector),
	}
}

func (e *Engine) submitCampaign(cand correlation.Candidate) *incident.SecurityIncident {
	level := e.config.Thresholds.LevelFor(cand.Confidence)
	inc, _ := e.incidents.Submit(incident.Detection{
		Entity:      cand.Entity,
		Vector:      cand.Vector,
		Level:       level,
		Origin:      incident.OriginCampaign,
		Description: cand.Description,
		Confidence:  cand.Confidence,
		Actions:     escalation.ActionsFor(level, cand.Vector),
	})
	return inc
}

func featuresOf(event *schema.NetworkEvent) map[string]float64 {
	return map[string]float64{
		"hour_of_day": float64(event.Timestamp.UTC().Hour()),
		"bytes":       float64(event.Bytes),
		"packets":     float64(event.Packets),
		"duration":    event.Duration,
	}
}

func anomalyScoreFor(c behavior.Classification) float64 {
	switch c {
	case behavior.ClassMalicious:
		return 1.0
	case behavior.ClassAnomalous:
		return 0.66
	case behavior.ClassSuspicious:
		return 0.33
	}
	return 0
}

func shardFor(entity string) int {
	h := fnv.New32a()
	h.Write([]byte(entity))
	return int(h.Sum32() % entityShards)
}

// Stats is a point-in-time view of engine health.
type Stats struct {
	EventsAnalyzed int64              `json:"events_analyzed"`
	TextsAnalyzed  int64              `json:"texts_analyzed"`
	Rejected       int64              `json:"rejected"`
	Queue          queue.QueueMetrics `json:"queue"`
	BaselinedHosts int                `json:"baselined_hosts"`
	IndicatorSizes map[intel.Kind]int `json:"indicator_sizes"`
	Incidents      incident.Summary   `json:"incidents"`
}

// Summary reports engine counters alongside the incident summary.
func (e *Engine) Summary() Stats {
	return Stats{
		EventsAnalyzed: e.eventsAnalyzed.Load(),
		TextsAnalyzed:  e.textsAnalyzed.Load(),
		Rejected:       e.rejected.Load(),
		Queue:          e.ingest.Metrics(),
		BaselinedHosts: e.baselines.Entities(),
		IndicatorSizes: e.intelStore.Snapshot().SizesByKind(),
		Incidents:      e.incidents.Summarize(),
	}
}
