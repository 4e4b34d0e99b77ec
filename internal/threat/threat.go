// Package threat defines the shared threat taxonomy: threat levels,
// attack vectors, and response actions.
package threat

// Level grades the severity of a detected threat.
type Level string

const (
	LevelMinimal      Level = "minimal"
	LevelLow          Level = "low"
	LevelMedium       Level = "medium"
	LevelHigh         Level = "high"
	LevelCritical     Level = "critical"
	LevelCatastrophic Level = "catastrophic"
)

// Rank returns the position of the level in the severity ordering,
// minimal = 0 through catastrophic = 5. Unknown levels rank below minimal.
func (l Level) Rank() int {
	switch l {
	case LevelMinimal:
		return 0
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	case LevelCritical:
		return 4
	case LevelCatastrophic:
		return 5
	}
	return -1
}

// IsValid checks if the level is a known value.
func (l Level) IsValid() bool {
	return l.Rank() >= 0
}

// Levels lists all threat levels in ascending severity order.
func Levels() []Level {
	return []Level{
		LevelMinimal, LevelLow, LevelMedium,
		LevelHigh, LevelCritical, LevelCatastrophic,
	}
}

// Vector identifies the class of attack behind a detection.
type Vector string

const (
	VectorMalware             Vector = "malware"
	VectorPhishing            Vector = "phishing"
	VectorRansomware          Vector = "ransomware"
	VectorAPT                 Vector = "apt"
	VectorDDoS                Vector = "ddos"
	VectorSQLInjection        Vector = "sql_injection"
	VectorXSS                 Vector = "xss"
	VectorPrivilegeEscalation Vector = "privilege_escalation"
	VectorDataExfiltration    Vector = "data_exfiltration"
	VectorInsiderThreat       Vector = "insider_threat"
	VectorSocialEngineering   Vector = "social_engineering"
	VectorZeroDay             Vector = "zero_day"
)

// IsValid checks if the vector is a known value.
func (v Vector) IsValid() bool {
	switch v {
	case VectorMalware, VectorPhishing, VectorRansomware, VectorAPT,
		VectorDDoS, VectorSQLInjection, VectorXSS, VectorPrivilegeEscalation,
		VectorDataExfiltration, VectorInsiderThreat, VectorSocialEngineering,
		VectorZeroDay:
		return true
	}
	return false
}

// Action is a concrete response step recommended for an incident.
type Action string

const (
	ActionMonitor           Action = "monitor"
	ActionAlert             Action = "alert"
	ActionBlock             Action = "block"
	ActionIsolate           Action = "isolate"
	ActionQuarantine        Action = "quarantine"
	ActionEmergencyShutdown Action = "emergency_shutdown"
	ActionForensicCapture   Action = "forensic_capture"
	ActionUserNotification  Action = "user_notification"
)
