// Package scoring combines anomaly, indicator and baseline signals
// into a single risk score and maps scores to threat levels.
package scoring

import (
	"fmt"

	"sentinel-engine/internal/threat"
)

// Input carries the signals folded into one risk score.
type Input struct {
	AnomalyScore   float64   // 0.0 - 1.0
	HitConfidences []float64 // indicator and signature hit confidences
	Deviation      float64   // baseline deviation, unbounded
}

// Score computes the composite risk score in [0, 1]. Hit confidences
// saturate at ten units of total confidence; deviation saturates at 1.
func Score(in Input) float64 {
	var hitSum float64
	for _, c := range in.HitConfidences {
		hitSum += c
	}

	risk := 0.4*clamp01(in.AnomalyScore) +
		0.3*clamp01(hitSum/10) +
		0.3*clamp01(in.Deviation)
	return clamp01(risk)
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

// Thresholds maps risk scores to threat levels. Each field is the
// minimum score for its level; scores below Low are minimal.
type Thresholds struct {
	Low          float64 `yaml:"low" json:"low"`
	Medium       float64 `yaml:"medium" json:"medium"`
	High         float64 `yaml:"high" json:"high"`
	Critical     float64 `yaml:"critical" json:"critical"`
	Catastrophic float64 `yaml:"catastrophic" json:"catastrophic"`
}

// DefaultThresholds returns the default threshold table.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Low:          0.30,
		Medium:       0.50,
		High:         0.70,
		Critical:     0.85,
		Catastrophic: 0.95,
	}
}

// Validate checks that thresholds are in (0, 1] and strictly
// increasing.
func (t Thresholds) Validate() error {
	bounds := []struct {
		name  string
		value float64
	}{
		{"low", t.Low},
		{"medium", t.Medium},
		{"high", t.High},
		{"critical", t.Critical},
		{"catastrophic", t.Catastrophic},
	}

	prev := 0.0
	for _, b := range bounds {
		if b.value <= 0 || b.value > 1 {
			return fmt.Errorf("threshold %s = %v out of range (0, 1]", b.name, b.value)
		}
		if b.value <= prev {
			return fmt.Errorf("threshold %s = %v not above previous %v", b.name, b.value, prev)
		}
		prev = b.value
	}
	return nil
}

// LevelFor maps a risk score to its threat level.
func (t Thresholds) LevelFor(score float64) threat.Level {
	switch {
	case score >= t.Catastrophic:
		return threat.LevelCatastrophic
	case score >= t.Critical:
		return threat.LevelCritical
	case score >= t.High:
		return threat.LevelHigh
	case score >= t.Medium:
		return threat.LevelMedium
	case score >= t.Low:
		return threat.LevelLow
	}
	return threat.LevelMinimal
}
