package escalation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"sentinel-engine/internal/incident"
	"sentinel-engine/internal/threat"
)

func containsAction(actions []threat.Action, want threat.Action) bool {
	for _, a := range actions {
		if a == want {
			return true
		}
	}
	return false
}

func TestActionsFor(t *testing.T) {
	tests := []struct {
		name    string
		level   threat.Level
		vector  threat.Vector
		want    []threat.Action
		notWant []threat.Action
	}{
		{
			"minimal ddos monitors and alerts only",
			threat.LevelMinimal, threat.VectorDDoS,
			[]threat.Action{threat.ActionMonitor, threat.ActionAlert},
			[]threat.Action{threat.ActionBlock, threat.ActionIsolate, threat.ActionEmergencyShutdown},
		},
		{
			"high sql injection blocks and captures",
			threat.LevelHigh, threat.VectorSQLInjection,
			[]threat.Action{threat.ActionMonitor, threat.ActionAlert, threat.ActionBlock, threat.ActionForensicCapture},
			[]threat.Action{threat.ActionIsolate, threat.ActionEmergencyShutdown},
		},
		{
			"critical apt isolates and notifies",
			threat.LevelCritical, threat.VectorAPT,
			[]threat.Action{threat.ActionBlock, threat.ActionIsolate, threat.ActionUserNotification},
			[]threat.Action{threat.ActionEmergencyShutdown},
		},
		{
			"malware quarantines at any level",
			threat.LevelLow, threat.VectorMalware,
			[]threat.Action{threat.ActionQuarantine},
			[]threat.Action{threat.ActionBlock},
		},
		{
			"ransomware isolates and shuts down at any level",
			threat.LevelLow, threat.VectorRansomware,
			[]threat.Action{threat.ActionIsolate, threat.ActionEmergencyShutdown},
			nil,
		},
		{
			"exfiltration blocks at any level",
			threat.LevelLow, threat.VectorDataExfiltration,
			[]threat.Action{threat.ActionBlock},
			[]threat.Action{threat.ActionForensicCapture},
		},
		{
			"catastrophic shuts down",
			threat.LevelCatastrophic, threat.VectorAPT,
			[]threat.Action{threat.ActionEmergencyShutdown, threat.ActionIsolate, threat.ActionBlock},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ActionsFor(tt.level, tt.vector)
			for _, a := range tt.want {
				if !containsAction(got, a) {
					t.Errorf("ActionsFor(%v, %v) = %v, missing %v", tt.level, tt.vector, got, a)
				}
			}
			for _, a := range tt.notWant {
				if containsAction(got, a) {
					t.Errorf("ActionsFor(%v, %v) = %v, should not include %v", tt.level, tt.vector, got, a)
				}
			}
		})
	}
}

func TestActionsFor_NoDuplicates(t *testing.T) {
	for _, level := range threat.Levels() {
		got := ActionsFor(level, threat.VectorRansomware)
		seen := make(map[threat.Action]int)
		for _, a := range got {
			seen[a]++
		}
		for a, n := range seen {
			if n > 1 {
				t.Errorf("ActionsFor(%v, ransomware) repeats %v %d times", level, a, n)
			}
		}
	}
}

type recordingNotifier struct {
	name  string
	calls atomic.Int32
	fail  bool
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Notify(context.Context, threat.Level, string, *incident.SecurityIncident) error {
	r.calls.Add(1)
	if r.fail {
		return errors.New("delivery refused")
	}
	return nil
}

func testIncident(level threat.Level) *incident.SecurityIncident {
	return &incident.SecurityIncident{
		ID:          "INC-20250101000000-0001",
		Entity:      "203.0.113.7",
		Vector:      threat.VectorSQLInjection,
		Level:       level,
		Status:      incident.StatusNew,
		Description: "sql injection attempts",
	}
}

func TestDispatcher_FansOut(t *testing.T) {
	d := NewDispatcher(DefaultDispatcherConfig())
	a := &recordingNotifier{name: "a"}
	b := &recordingNotifier{name: "b", fail: true}
	d.AddNotifier(a)
	d.AddNotifier(b)

	d.Dispatch(testIncident(threat.LevelHigh))
	d.Wait()

	if a.calls.Load() != 1 {
		t.Errorf("notifier a calls = %d, want 1", a.calls.Load())
	}
	if b.calls.Load() != 1 {
		t.Errorf("notifier b calls = %d, want 1", b.calls.Load())
	}

	dispatched, failures := d.Stats()
	// the built-in log notifier plus a succeed, b fails
	if dispatched != 2 {
		t.Errorf("dispatched = %d, want 2", dispatched)
	}
	if failures != 1 {
		t.Errorf("failures = %d, want 1", failures)
	}
}

func TestDispatcher_MinLevel(t *testing.T) {
	cfg := DefaultDispatcherConfig()
	cfg.MinLevel = threat.LevelHigh
	d := NewDispatcher(cfg)
	n := &recordingNotifier{name: "n"}
	d.AddNotifier(n)

	d.Dispatch(testIncident(threat.LevelMedium))
	d.Wait()

	if n.calls.Load() != 0 {
		t.Errorf("notifier called %d times for sub-threshold incident, want 0", n.calls.Load())
	}
}

func TestWebhookNotifier(t *testing.T) {
	var gotPath atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Token") != "secret" {
			t.Errorf("X-Token header = %q", r.Header.Get("X-Token"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier("soc", server.URL+"/hooks/soc", map[string]string{"X-Token": "secret"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.Notify(ctx, threat.LevelHigh, "escalation", testIncident(threat.LevelHigh)); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if gotPath.Load() != "/hooks/soc" {
		t.Errorf("request path = %v", gotPath.Load())
	}
}

func TestWebhookNotifier_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewWebhookNotifier("soc", server.URL, nil)
	if err := n.Notify(context.Background(), threat.LevelHigh, "escalation", testIncident(threat.LevelHigh)); err == nil {
		t.Error("Notify() should fail on 500 response")
	}
}
