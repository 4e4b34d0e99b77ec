// Package patterns detects known attack signatures in request text
// using per-category regular expression sets.
package patterns

import (
	"log/slog"
	"regexp"

	"sentinel-engine/internal/threat"
)

// Hit records a signature category that matched an input.
type Hit struct {
	Category   string  `json:"category"`
	Pattern    string  `json:"pattern"`
	MatchCount int     `json:"match_count"`
	Confidence float64 `json:"confidence"`
}

// Matcher evaluates text against the compiled signature sets.
type Matcher struct {
	categories []category
}

type category struct {
	name     string
	patterns []*regexp.Regexp
}

// signatureSets maps category names to their raw patterns. Patterns
// are compiled case-insensitively; ones that fail to compile are
// logged and skipped.
var signatureSets = []struct {
	name     string
	patterns []string
}{
	{"sql_injection", []string{
		`(\%27)|(')|(--)|(\%23)|(#)`,
		`union.*select`,
		`insert.*into`,
		`delete.*from`,
		`drop.*table`,
		`update.*set`,
		`exec(\s|\+)+(s|x)p\w+`,
	}},
	{"xss", []string{
		`<script[^>]*>.*?</script>`,
		`javascript:`,
		`on\w+\s*=`,
		`<iframe[^>]*>`,
		`document\.cookie`,
		`window\.location`,
	}},
	{"command_injection", []string{
		`;\s*(ls|dir|cat|type|rm|del|wget|curl)\b`,
		"`[^`]*`",
		`\$\([^)]*\)`,
		`\b(nc|netcat|wget|curl)\s+`,
	}},
	{"ransomware", []string{
		`\.encrypt\(`,
		`ransom`,
		`bitcoin`,
		`\.locked\b`,
		`decrypt_instruction`,
	}},
	{"suspicious_activity", []string{
		`password\s*dump`,
		`privilege\s*escalation`,
		`lateral\s*movement`,
		`data\s*exfiltration`,
		`backdoor`,
		`keylogger`,
	}},
}

// vectorByCategory maps each signature category to the attack vector
// reported on incidents it raises.
var vectorByCategory = map[string]threat.Vector{
	"sql_injection":       threat.VectorSQLInjection,
	"xss":                 threat.VectorXSS,
	"command_injection":   threat.VectorPrivilegeEscalation,
	"ransomware":          threat.VectorRansomware,
	"suspicious_activity": threat.VectorInsiderThreat,
}

// NewMatcher compiles the built-in signature sets.
func NewMatcher() *Matcher {
	m := &Matcher{}
	for _, set := range signatureSets {
		cat := category{name: set.name}
		for _, raw := range set.patterns {
			re, err := regexp.Compile(`(?i)` + raw)
			if err != nil {
				slog.Warn("skipping invalid signature pattern", "category", set.name, "pattern", raw, "error", err)
				continue
			}
			cat.patterns = append(cat.patterns, re)
		}
		m.categories = append(m.categories, cat)
	}
	return m
}

// Match evaluates text against every category. At most one hit is
// reported per category: the first pattern that matches, with its
// total match count. Confidence grows with the match count, capped
// at 0.9.
func (m *Matcher) Match(text string) []Hit {
	if text == "" {
		return nil
	}

	var hits []Hit
	for _, cat := range m.categories {
		for _, re := range cat.patterns {
			matches := re.FindAllStringIndex(text, -1)
			if len(matches) == 0 {
				continue
			}
			hits = append(hits, Hit{
				Category:   cat.name,
				Pattern:    re.String(),
				MatchCount: len(matches),
				Confidence: Confidence(len(matches)),
			})
			break
		}
	}
	return hits
}

// Confidence converts a match count to a detection confidence in
// [0, 0.9].
func Confidence(matchCount int) float64 {
	if matchCount <= 0 {
		return 0
	}
	c := 0.3 + 0.2*float64(matchCount)
	if c > 0.9 {
		c = 0.9
	}
	return c
}

// VectorFor returns the attack vector for a signature category,
// defaulting to malware for unknown categories.
func VectorFor(category string) threat.Vector {
	if v, ok := vectorByCategory[category]; ok {
		return v
	}
	return threat.VectorMalware
}
