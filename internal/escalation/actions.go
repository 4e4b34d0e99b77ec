// Package escalation turns incidents into response actions and
// delivers them to notification targets.
package escalation

import (
	"sentinel-engine/internal/threat"
)

// ActionsFor returns the recommended response actions for a threat
// level and attack vector. Levels compound: each tier adds containment
// steps on top of the tiers below it.
func ActionsFor(level threat.Level, vector threat.Vector) []threat.Action {
	actions := []threat.Action{threat.ActionMonitor, threat.ActionAlert}

	if level.Rank() >= threat.LevelHigh.Rank() {
		actions = append(actions, threat.ActionBlock, threat.ActionForensicCapture)
	}
	if level.Rank() >= threat.LevelCritical.Rank() {
		actions = append(actions, threat.ActionIsolate, threat.ActionUserNotification)
	}
	if level.Rank() >= threat.LevelCatastrophic.Rank() {
		actions = append(actions, threat.ActionEmergencyShutdown)
	}

	switch vector {
	case threat.VectorMalware:
		actions = append(actions, threat.ActionQuarantine)
	case threat.VectorDataExfiltration:
		actions = append(actions, threat.ActionBlock)
	case threat.VectorRansomware:
		actions = append(actions, threat.ActionIsolate, threat.ActionEmergencyShutdown)
	}

	return dedupe(actions)
}

func dedupe(actions []threat.Action) []threat.Action {
	seen := make(map[threat.Action]struct{}, len(actions))
	out := actions[:0]
	for _, a := range actions {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
