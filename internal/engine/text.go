package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sentinel-engine/internal/escalation"
	"sentinel-engine/internal/incident"
	"sentinel-engine/internal/intel"
	"sentinel-engine/internal/patterns"
	"sentinel-engine/internal/schema"
)

// intentKeywords maps each intent to the terms that vote for it. The
// intent with the most keyword hits wins; no hits means general_inquiry.
var intentKeywords = map[schema.Intent][]string{
	schema.IntentIncidentReport:       {"incident", "breach", "compromise", "attack", "malware"},
	schema.IntentVulnerabilityInquiry: {"vulnerability", "flaw", "cve", "patch", "update"},
	schema.IntentThreatIntelligence:   {"threat", "ioc", "indicator", "campaign", "apt"},
	schema.IntentPolicyQuestion:       {"policy", "procedure", "compliance", "audit", "rule"},
	schema.IntentTechnicalSupport:     {"help", "problem", "error", "configuration", "troubleshoot"},
	schema.IntentGeneralSecurity:      {"security", "protection", "prevention", "training"},
}

// intentRisk is the baseline risk contributed by the classified intent.
var intentRisk = map[schema.Intent]float64{
	schema.IntentIncidentReport:       0.3,
	schema.IntentVulnerabilityInquiry: 0.2,
	schema.IntentThreatIntelligence:   0.1,
	schema.IntentTechnicalSupport:     0.1,
}

var suspiciousTerms = []string{
	"backdoor", "rootkit", "exploit", "zero-day", "pwned",
	"botnet", "ransomware", "keylogger", "phishing",
}

// AnalyzeText inspects user-supplied text for attack signatures and
// security-relevant entities, classifies the request intent, scores the
// risk, and raises an incident for hostile input.
func (e *Engine) AnalyzeText(ctx context.Context, input *schema.TextInput) (*schema.TextAnalysis, error) {
	if err := e.validator.ValidateText(input); err != nil {
		e.rejected.Add(1)
		return nil, err
	}

	hits := e.matcher.Match(input.Text)

	var (
		categories  []string
		confidences []float64
		confidence  float64
	)
	for _, h := range hits {
		categories = append(categories, h.Category)
		confidences = append(confidences, h.Confidence)
		if h.Confidence > confidence {
			confidence = h.Confidence
		}
	}

	intent := classifyIntent(input.Text)
	risk := textRiskScore(input.Text, confidence, intent)

	analysis := &schema.TextAnalysis{
		InputID:         input.InputID,
		Safe:            len(hits) == 0,
		Intent:          intent,
		Entities:        extractEntities(input.Text),
		Categories:      categories,
		Confidence:      confidence,
		RiskScore:       risk,
		Recommendations: recommendationsFor(intent, risk),
		AnalyzedAt:      time.Now().UTC(),
	}

	if len(hits) > 0 {
		entity := input.Entity()
		levelScore := risk
		if confidence > levelScore {
			levelScore = confidence
		}
		level := e.config.Thresholds.LevelFor(levelScore)

		best := hits[0]
		for _, h := range hits[1:] {
			if h.Confidence > best.Confidence {
				best = h
			}
		}
		vector := patterns.VectorFor(best.Category)

		inc, _ := e.incidents.Submit(incident.Detection{
			Entity:      entity,
			Vector:      vector,
			Level:       level,
			Origin:      incident.OriginIndicator,
			Description: fmt.Sprintf("%s content submitted by %s (%s)", best.Category, entity, intent),
			Confidence:  confidence,
			Actions:     escalation.ActionsFor(level, vector),
		})
		e.dispatcher.Dispatch(inc)
	}

	e.textsAnalyzed.Add(1)
	return analysis, nil
}

func classifyIntent(text string) schema.Intent {
	lower := strings.ToLower(text)

	best := schema.IntentGeneralInquiry
	bestScore := 0
	for intent, keywords := range intentKeywords {
		score := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore || (score == bestScore && score > 0 && intent < best) {
			best = intent
			bestScore = score
		}
	}
	return best
}

// textRiskScore combines pattern severity, intent baseline, and
// suspicious-term density into a single score in [0, 1].
func textRiskScore(text string, maxPatternConfidence float64, intent schema.Intent) float64 {
	risk := maxPatternConfidence * 0.6
	risk += intentRisk[intent]

	lower := strings.ToLower(text)
	count := 0
	for _, term := range suspiciousTerms {
		if strings.Contains(lower, term) {
			count++
		}
	}
	term := float64(count) * 0.1
	if term > 0.3 {
		term = 0.3
	}
	risk += term

	if risk > 1 {
		risk = 1
	}
	return risk
}

// extractEntities pulls addresses, domains, hashes, and URLs out of the
// text using the indicator heuristics.
func extractEntities(text string) []schema.ExtractedEntity {
	var entities []schema.ExtractedEntity
	seen := make(map[string]bool)

	for _, token := range strings.Fields(text) {
		token = strings.Trim(token, ".,;:()[]{}<>\"'")
		kind, ok := intel.ClassifyValue(token)
		if !ok {
			continue
		}
		key := string(kind) + ":" + strings.ToLower(token)
		if seen[key] {
			continue
		}
		seen[key] = true
		entities = append(entities, schema.ExtractedEntity{
			Kind:  string(kind),
			Value: strings.ToLower(token),
		})
	}
	return entities
}

func recommendationsFor(intent schema.Intent, risk float64) []string {
	var recs []string

	switch {
	case risk > 0.7:
		recs = append(recs,
			"escalate to the security team",
			"begin a full investigation")
	case risk > 0.4:
		recs = append(recs,
			"increase monitoring for the submitting entity",
			"review recent activity logs")
	}

	switch intent {
	case schema.IntentIncidentReport:
		recs = append(recs,
			"document all incident details",
			"isolate affected systems if needed",
			"preserve digital evidence")
	case schema.IntentVulnerabilityInquiry:
		recs = append(recs,
			"check the latest security advisories",
			"schedule critical updates",
			"assess infrastructure exposure")
	case schema.IntentThreatIntelligence:
		recs = append(recs,
			"correlate with threat intelligence feeds",
			"update detection rules")
	}
	return recs
}
