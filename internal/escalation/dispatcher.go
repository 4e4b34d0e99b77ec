package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sentinel-engine/internal/incident"
	"sentinel-engine/internal/threat"
)

// DispatcherConfig configures escalation delivery.
type DispatcherConfig struct {
	NotifyTimeout time.Duration // per-notifier delivery deadline
	MinLevel      threat.Level  // incidents below this level are not dispatched
}

// DefaultDispatcherConfig returns the default dispatcher configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		NotifyTimeout: 10 * time.Second,
		MinLevel:      threat.LevelLow,
	}
}

// Dispatcher fans incidents out to the configured notifiers.
// Delivery is fire-and-forget: a slow or failing notifier never blocks
// the analysis pipeline.
type Dispatcher struct {
	config    DispatcherConfig
	mu        sync.RWMutex
	notifiers []Notifier
	inflight  sync.WaitGroup

	dispatched atomic.Int64
	failures   atomic.Int64
}

// NewDispatcher creates a dispatcher with a log notifier installed.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	if config.NotifyTimeout <= 0 {
		config.NotifyTimeout = DefaultDispatcherConfig().NotifyTimeout
	}
	if !config.MinLevel.IsValid() {
		config.MinLevel = DefaultDispatcherConfig().MinLevel
	}
	return &Dispatcher{
		config:    config,
		notifiers: []Notifier{LogNotifier{}},
	}
}

// AddNotifier registers an additional delivery target.
func (d *Dispatcher) AddNotifier(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers = append(d.notifiers, n)
}

// Dispatch delivers an incident escalation to every notifier in the
// background and returns immediately. Incidents below the configured
// minimum level are skipped.
func (d *Dispatcher) Dispatch(inc *incident.SecurityIncident) {
	if inc.Level.Rank() < d.config.MinLevel.Rank() {
		return
	}

	message := fmt.Sprintf("%s threat (%s) on %s: %s", inc.Level, inc.Vector, inc.Entity, inc.Description)

	d.mu.RLock()
	notifiers := append([]Notifier(nil), d.notifiers...)
	d.mu.RUnlock()

	for _, n := range notifiers {
		d.inflight.Add(1)
		go func(n Notifier) {
			defer d.inflight.Done()

			ctx, cancel := context.WithTimeout(context.Background(), d.config.NotifyTimeout)
			defer cancel()

			if err := n.Notify(ctx, inc.Level, message, inc); err != nil {
				d.failures.Add(1)
				slog.Error("escalation delivery failed",
					"notifier", n.Name(),
					"incident_id", inc.ID,
					"error", err,
				)
				return
			}
			d.dispatched.Add(1)
		}(n)
	}
}

// Wait blocks until all in-flight deliveries finish. Used on shutdown
// and in tests.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Stats reports delivery counters.
func (d *Dispatcher) Stats() (dispatched, failures int64) {
	return d.dispatched.Load(), d.failures.Load()
}
