// Package intel maintains threat indicators: known-bad IPs, domains,
// file hashes and URLs, sourced from built-in seeds and remote feeds.
package intel

import (
	"net"
	"regexp"
	"strings"
	"time"
)

// Kind categorizes what an indicator value refers to.
type Kind string

const (
	KindIP     Kind = "ip"
	KindDomain Kind = "domain"
	KindHash   Kind = "hash"
	KindURL    Kind = "url"
)

// IsValid checks if the kind is a known value.
func (k Kind) IsValid() bool {
	switch k {
	case KindIP, KindDomain, KindHash, KindURL:
		return true
	}
	return false
}

// Reputation grades, from 0 to 1, how hostile the indicator's origin
// is considered. The named grades are the conventional reference
// points; feeds may supply any value in between.
const (
	ReputationUnknown    = 0.0
	ReputationSuspicious = 0.5
	ReputationMalicious  = 1.0
)

// Indicator is one threat intelligence entry.
type Indicator struct {
	Kind       Kind      `json:"kind"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"` // 0.0 - 1.0
	Source     string    `json:"source"`
	Reputation float64   `json:"reputation"` // 0.0 - 1.0
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

var (
	domainRegex = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`)
	hashRegex   = regexp.MustCompile(`^[a-f0-9]{32}$|^[a-f0-9]{40}$|^[a-f0-9]{64}$`)
)

// ClassifyValue infers the indicator kind from the shape of a feed
// line. It returns false for lines that match no known shape.
func ClassifyValue(value string) (Kind, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case v == "" || strings.HasPrefix(v, "#"):
		return "", false
	case strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://"):
		return KindURL, true
	case net.ParseIP(v) != nil && strings.Count(v, ".") == 3:
		return KindIP, true
	case hashRegex.MatchString(v):
		return KindHash, true
	case domainRegex.MatchString(v):
		return KindDomain, true
	}
	return "", false
}
