package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"sentinel-engine/internal/schema"
	"sentinel-engine/internal/threat"
)

func textInput(text, user string) *schema.TextInput {
	in := &schema.TextInput{
		InputID:   uuid.New(),
		Timestamp: time.Now().UTC(),
		Text:      text,
	}
	if user != "" {
		in.Context = map[string]any{"user": user}
	}
	return in
}

func TestAnalyzeText_Benign(t *testing.T) {
	e := newTestEngine()

	analysis, err := e.AnalyzeText(context.Background(), textInput("can you help me with a configuration problem?", "alice"))
	if err != nil {
		t.Fatalf("AnalyzeText() error = %v", err)
	}

	if !analysis.Safe {
		t.Error("Safe = false for benign text")
	}
	if analysis.Intent != schema.IntentTechnicalSupport {
		t.Errorf("Intent = %v, want technical_support", analysis.Intent)
	}
	if len(e.Incidents().Active()) != 0 {
		t.Error("benign text raised an incident")
	}
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name string
		text string
		want schema.Intent
	}{
		{"incident report", "we detected a breach, malware attack on the mail server", schema.IntentIncidentReport},
		{"vulnerability inquiry", "is there a patch for this CVE vulnerability?", schema.IntentVulnerabilityInquiry},
		{"threat intelligence", "any IOC for the new APT campaign?", schema.IntentThreatIntelligence},
		{"policy question", "what does the compliance policy say about audits?", schema.IntentPolicyQuestion},
		{"general security", "we need more security training and prevention", schema.IntentGeneralSecurity},
		{"no match", "good morning everyone", schema.IntentGeneralInquiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyIntent(tt.text); got != tt.want {
				t.Errorf("classifyIntent(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestTextRiskScore(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		confidence float64
		intent     schema.Intent
		want       float64
	}{
		{"clean inquiry", "good morning", 0, schema.IntentGeneralInquiry, 0},
		{"intent baseline only", "we had an incident", 0, schema.IntentIncidentReport, 0.3},
		{"pattern plus intent plus term", "the threat used a keylogger", 0.5, schema.IntentThreatIntelligence, 0.5},
		{"term contribution capped", "backdoor rootkit botnet keylogger phishing", 0, schema.IntentGeneralInquiry, 0.3},
		{"clamped to one", "backdoor rootkit ransomware", 0.9, schema.IntentIncidentReport, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := textRiskScore(tt.text, tt.confidence, tt.intent)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("textRiskScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractEntities(t *testing.T) {
	text := "traffic from 185.220.100.240 to malware-c2.example.com fetched " +
		"http://malware-c2.example.com/gate.php, hash 44d88612fea8a8f36de82e1278abb02f. " +
		"Saw 185.220.100.240 again later."

	entities := extractEntities(text)

	byKind := make(map[string][]string)
	for _, ent := range entities {
		byKind[ent.Kind] = append(byKind[ent.Kind], ent.Value)
	}

	if got := byKind["ip"]; len(got) != 1 || got[0] != "185.220.100.240" {
		t.Errorf("ip entities = %v, want one 185.220.100.240", got)
	}
	if len(byKind["domain"]) == 0 {
		t.Error("no domain entity extracted")
	}
	if got := byKind["hash"]; len(got) != 1 || got[0] != "44d88612fea8a8f36de82e1278abb02f" {
		t.Errorf("hash entities = %v", got)
	}
	if len(byKind["url"]) != 1 {
		t.Errorf("url entities = %v, want one", byKind["url"])
	}
}

func TestRecommendationsFor(t *testing.T) {
	recs := recommendationsFor(schema.IntentIncidentReport, 0.8)
	if len(recs) != 5 {
		t.Fatalf("recommendations = %d, want 5 (2 high-risk + 3 intent)", len(recs))
	}
	if recs[0] != "escalate to the security team" {
		t.Errorf("first recommendation = %q", recs[0])
	}

	if recs := recommendationsFor(schema.IntentGeneralInquiry, 0.1); len(recs) != 0 {
		t.Errorf("low-risk general inquiry recommendations = %v, want none", recs)
	}

	recs = recommendationsFor(schema.IntentThreatIntelligence, 0.5)
	if len(recs) != 4 {
		t.Errorf("medium-risk threat intel recommendations = %d, want 4", len(recs))
	}
}

func TestAnalyzeText_Hostile(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		vector threat.Vector
	}{
		{
			"sql injection",
			"try this: ' UNION SELECT password FROM users --",
			threat.VectorSQLInjection,
		},
		{
			"xss payload",
			`<script>document.cookie</script>`,
			threat.VectorXSS,
		},
		{
			"ransom note",
			"your files are encrypted, send bitcoin for decrypt_instructions",
			threat.VectorRansomware,
		},
		{
			"insider chatter",
			"planning lateral movement after the password dump",
			threat.VectorInsiderThreat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine()
			analysis, err := e.AnalyzeText(context.Background(), textInput(tt.text, "mallory"))
			if err != nil {
				t.Fatalf("AnalyzeText() error = %v", err)
			}
			if analysis.Safe {
				t.Error("Safe = true for hostile text")
			}
			if analysis.Confidence <= 0 || analysis.Confidence > 1 {
				t.Errorf("Confidence = %v, want in (0, 1]", analysis.Confidence)
			}
			if analysis.RiskScore <= 0 {
				t.Errorf("RiskScore = %v, want > 0", analysis.RiskScore)
			}

			active := e.Incidents().Active()
			if len(active) != 1 {
				t.Fatalf("active incidents = %d, want 1", len(active))
			}
			if active[0].Entity != "mallory" {
				t.Errorf("Entity = %q, want mallory", active[0].Entity)
			}
			if active[0].Vector != tt.vector {
				t.Errorf("Vector = %v, want %v", active[0].Vector, tt.vector)
			}
		})
	}
}

func TestAnalyzeText_AnonymousEntity(t *testing.T) {
	e := newTestEngine()

	_, err := e.AnalyzeText(context.Background(), textInput("'; drop table users --", ""))
	if err != nil {
		t.Fatalf("AnalyzeText() error = %v", err)
	}

	active := e.Incidents().Active()
	if len(active) != 1 {
		t.Fatalf("active incidents = %d, want 1", len(active))
	}
	if active[0].Entity != "anonymous" {
		t.Errorf("Entity = %q, want anonymous", active[0].Entity)
	}
}

func TestAnalyzeText_Invalid(t *testing.T) {
	e := newTestEngine()

	if _, err := e.AnalyzeText(context.Background(), &schema.TextInput{InputID: uuid.New(), Timestamp: time.Now().UTC()}); err == nil {
		t.Error("AnalyzeText() should reject empty text")
	}
}
