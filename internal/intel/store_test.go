package intel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClassifyValue(t *testing.T) {
	tests := []struct {
		name  string
		value string
		kind  Kind
		ok    bool
	}{
		{"ipv4", "203.0.113.7", KindIP, true},
		{"ipv4 with spaces", "  203.0.113.7  ", KindIP, true},
		{"domain", "evil.example.com", KindDomain, true},
		{"md5", "44d88612fea8a8f36de82e1278abb02f", KindHash, true},
		{"sha1", "3395856ce81f2b7382dee72602f798b642f14140", KindHash, true},
		{"sha256", "275a021bbfb6489e54d471899f7db9d1663fc695ec2fe2a2c4538aabf651fd0f", KindHash, true},
		{"http url", "http://evil.example.com/payload", KindURL, true},
		{"https url", "https://evil.example.com/", KindURL, true},
		{"comment line", "# this is a comment", "", false},
		{"empty line", "", "", false},
		{"garbage", "not an indicator!!", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := ClassifyValue(tt.value)
			if ok != tt.ok {
				t.Fatalf("ClassifyValue(%q) ok = %v, want %v", tt.value, ok, tt.ok)
			}
			if ok && kind != tt.kind {
				t.Errorf("ClassifyValue(%q) = %v, want %v", tt.value, kind, tt.kind)
			}
		})
	}
}

func TestStore_BuiltInIndicators(t *testing.T) {
	store := NewStore()
	snap := store.Snapshot()

	if snap == nil {
		t.Fatal("Snapshot() = nil after NewStore")
	}

	ind, ok := snap.Lookup(KindIP, "185.220.100.240")
	if !ok {
		t.Fatal("built-in IP indicator not found")
	}
	if ind.Reputation != ReputationMalicious {
		t.Errorf("Reputation = %v, want malicious", ind.Reputation)
	}

	sizes := snap.SizesByKind()
	for _, kind := range []Kind{KindIP, KindDomain, KindHash, KindURL} {
		if sizes[kind] == 0 {
			t.Errorf("SizesByKind()[%v] = 0, want > 0", kind)
		}
	}
}

func TestStore_UpsertConfidenceMonotone(t *testing.T) {
	store := NewStore()

	store.Upsert(Indicator{Kind: KindIP, Value: "203.0.113.50", Confidence: 0.8, Source: "feed-a"})
	store.Upsert(Indicator{Kind: KindIP, Value: "203.0.113.50", Confidence: 0.4, Source: "feed-b"})

	ind, ok := store.Snapshot().Lookup(KindIP, "203.0.113.50")
	if !ok {
		t.Fatal("indicator not found after upsert")
	}
	if ind.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8 (lower sighting must not downgrade)", ind.Confidence)
	}

	store.Upsert(Indicator{Kind: KindIP, Value: "203.0.113.50", Confidence: 0.95, Source: "feed-c"})
	ind, _ = store.Snapshot().Lookup(KindIP, "203.0.113.50")
	if ind.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95 after higher sighting", ind.Confidence)
	}
}

func TestStore_LookupCaseInsensitive(t *testing.T) {
	store := NewStore()
	store.Upsert(Indicator{Kind: KindDomain, Value: "Evil.Example.COM", Confidence: 0.7})

	if _, ok := store.Snapshot().Lookup(KindDomain, "evil.example.com"); !ok {
		t.Error("lowercase lookup failed for mixed-case upsert")
	}
	if _, ok := store.Snapshot().Lookup(KindDomain, "EVIL.EXAMPLE.COM"); !ok {
		t.Error("uppercase lookup failed")
	}
}

func TestStore_SnapshotImmutable(t *testing.T) {
	store := NewStore()
	before := store.Snapshot()

	store.Upsert(Indicator{Kind: KindIP, Value: "203.0.113.99", Confidence: 0.5})

	if _, ok := before.Lookup(KindIP, "203.0.113.99"); ok {
		t.Error("old snapshot saw an indicator added after it was taken")
	}
	if _, ok := store.Snapshot().Lookup(KindIP, "203.0.113.99"); !ok {
		t.Error("new snapshot missing freshly added indicator")
	}
}

func TestStore_BulkLoadSkipsInvalid(t *testing.T) {
	store := NewStore()

	loaded := store.BulkLoad([]Indicator{
		{Kind: KindIP, Value: "203.0.113.1", Confidence: 0.6},
		{Kind: Kind("bogus"), Value: "203.0.113.2", Confidence: 0.6},
		{Kind: KindDomain, Value: "", Confidence: 0.6},
	})

	if loaded != 1 {
		t.Errorf("BulkLoad() = %d, want 1", loaded)
	}
}

func TestStore_LoadLines(t *testing.T) {
	store := NewStore()

	loaded := store.LoadLines("test-feed", []string{
		"# comment line",
		"",
		"203.0.113.50",
		"  evil-tracker.example.io  ",
		"9e107d9d372bb6826bd81d3542a419d6",
		"https://evil-tracker.example.io/drop",
		"not a real indicator!!",
	}, 0.6)

	if loaded != 4 {
		t.Errorf("LoadLines() = %d, want 4", loaded)
	}

	snap := store.Snapshot()
	ind, ok := snap.Lookup(KindDomain, "evil-tracker.example.io")
	if !ok {
		t.Fatal("domain from feed lines not loaded")
	}
	if ind.Confidence != 0.6 {
		t.Errorf("Confidence = %v, want 0.6", ind.Confidence)
	}
	if ind.Source != "test-feed" {
		t.Errorf("Source = %q, want test-feed", ind.Source)
	}
	if ind.Reputation != ReputationSuspicious {
		t.Errorf("Reputation = %v, want suspicious", ind.Reputation)
	}
}

func TestStore_CapacityEviction(t *testing.T) {
	// Built-in set seeds four addresses; capacity 5 leaves room for one.
	store := NewStoreWithCapacity(5)

	store.Upsert(Indicator{Kind: KindIP, Value: "203.0.113.10", Confidence: 0.5})
	store.Upsert(Indicator{Kind: KindIP, Value: "203.0.113.11", Confidence: 0.5})

	snap := store.Snapshot()
	if got := snap.SizesByKind()[KindIP]; got != 5 {
		t.Errorf("address count = %d, want 5 after eviction", got)
	}
	if _, ok := snap.Lookup(KindIP, "185.220.100.240"); ok {
		t.Error("least recently seen indicator survived eviction")
	}
	if _, ok := snap.Lookup(KindIP, "203.0.113.11"); !ok {
		t.Error("newest indicator missing after eviction")
	}
}

func TestFeedRefresher_RefreshAll(t *testing.T) {
	feedBody := `# sample feed
203.0.113.200
bad.example.org
44d88612fea8a8f36de82e1278abb02f
https://bad.example.org/dropper

not-an-indicator-line!!
`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedBody))
	}))
	defer server.Close()

	store := NewStore()
	cfg := DefaultFeedConfig()
	cfg.URLs = []string{server.URL, "http://127.0.0.1:1/unreachable"}

	refresher := NewFeedRefresher(cfg, store)
	refresher.RefreshAll(context.Background())

	snap := store.Snapshot()
	checks := []struct {
		kind  Kind
		value string
	}{
		{KindIP, "203.0.113.200"},
		{KindDomain, "bad.example.org"},
		{KindHash, "44d88612fea8a8f36de82e1278abb02f"},
		{KindURL, "https://bad.example.org/dropper"},
	}
	for _, c := range checks {
		if _, ok := snap.Lookup(c.kind, c.value); !ok {
			t.Errorf("feed indicator %v %q not loaded", c.kind, c.value)
		}
	}
}
