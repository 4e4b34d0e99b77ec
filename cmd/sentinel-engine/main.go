// Package main is the entry point for the sentinel correlation engine.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sentinel-engine/internal/config"
	"sentinel-engine/internal/engine"
	"sentinel-engine/internal/escalation"
	"sentinel-engine/internal/history"
	"sentinel-engine/internal/intel"
	"sentinel-engine/internal/schema"
	"sentinel-engine/internal/threat"
)

func main() {
	// Setup structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("SENTINEL_LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)

	slog.Info("configuration loaded",
		"workers", cfg.Engine.Workers,
		"queue_size", cfg.Queue.Size,
		"feed_urls", len(cfg.Intel.FeedURLs),
		"history_backend", cfg.History.Backend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Threat intelligence store and feed refresher
	intelStore := intel.NewStore()

	var feeds *intel.FeedRefresher
	if len(cfg.Intel.FeedURLs) > 0 {
		feedCfg := intel.DefaultFeedConfig()
		feedCfg.URLs = cfg.Intel.FeedURLs
		feedCfg.UpdateInterval = cfg.Intel.UpdateInterval
		feedCfg.Confidence = cfg.Intel.FeedConfidence
		feeds = intel.NewFeedRefresher(feedCfg, intelStore)
		if err := feeds.Start(ctx); err != nil {
			slog.Error("failed to start feed refresher", "error", err)
			os.Exit(1)
		}
	}

	// Incident archive backend
	var archive history.Store
	switch cfg.History.Backend {
	case "redis":
		redisCfg := history.DefaultRedisConfig()
		redisCfg.Addr = cfg.History.RedisAddr
		redisCfg.DB = cfg.History.RedisDB
		redisCfg.Retention = cfg.History.Retention
		archive, err = history.NewRedisStore(redisCfg)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
	default:
		archive = history.NewMemoryStore()
	}

	// Analysis engine
	eng := engine.New(engineConfig(cfg), intelStore, archive)

	var kafkaNotifier *escalation.KafkaNotifier
	if cfg.Escalation.WebhookURL != "" {
		eng.Dispatcher().AddNotifier(escalation.NewWebhookNotifier("webhook", cfg.Escalation.WebhookURL, cfg.Escalation.WebhookHeader))
	}
	if cfg.Escalation.Kafka.Enabled {
		kafkaNotifier = escalation.NewKafkaNotifier(cfg.Escalation.Kafka.Brokers, cfg.Escalation.Kafka.Topic)
		eng.Dispatcher().AddNotifier(kafkaNotifier)
	}

	if err := eng.Start(ctx); err != nil {
		slog.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	// Event intake: newline-delimited JSON events on stdin
	go readEvents(os.Stdin, eng)
	go reportStats(ctx, eng)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())

	if feeds != nil {
		feeds.Stop()
	}
	eng.Stop()
	cancel()

	if kafkaNotifier != nil {
		if err := kafkaNotifier.Close(); err != nil {
			slog.Error("kafka notifier close error", "error", err)
		}
	}
	if err := archive.Close(); err != nil {
		slog.Error("archive close error", "error", err)
	}

	stats := eng.Summary()
	slog.Info("shutdown complete",
		"events_analyzed", stats.EventsAnalyzed,
		"texts_analyzed", stats.TextsAnalyzed,
		"rejected", stats.Rejected,
		"events_dropped", stats.Queue.Dropped,
		"incidents_created", stats.Incidents.TotalCreated,
		"incidents_merged", stats.Incidents.TotalMerged,
	)
}

// setupLogging replaces the bootstrap logger with the configured one.
func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// engineConfig maps the file configuration onto the engine.
func engineConfig(cfg *config.Config) engine.Config {
	ec := engine.DefaultConfig()
	ec.Workers = cfg.Engine.Workers
	ec.QueueSize = cfg.Queue.Size
	ec.Thresholds = cfg.Thresholds
	ec.CleanupInterval = cfg.Engine.CleanupInterval
	ec.BaselineMaxAge = cfg.Engine.BaselineMaxAge

	ec.Validator.MaxAge = cfg.Validation.MaxEventAge
	ec.Validator.MaxFuture = cfg.Validation.MaxFuture

	ec.Correlation.Window = cfg.Correlate.Window
	ec.Correlation.MinEvents = cfg.Correlate.MinEvents
	ec.Correlation.DDoSDests = cfg.Correlate.DDoSDests
	ec.Correlation.ExfilBytes = cfg.Correlate.ExfilBytes
	ec.Correlation.BufferCap = cfg.Correlate.BufferCap

	ec.Incidents.DedupWindow = cfg.Incidents.DedupWindow
	ec.Incidents.RetentionAge = cfg.Incidents.RetentionAge

	ec.Dispatcher.NotifyTimeout = cfg.Escalation.NotifyTimeout
	if lvl := threat.Level(cfg.Escalation.MinLevel); lvl.IsValid() {
		ec.Dispatcher.MinLevel = lvl
	}
	return ec
}

// readEvents feeds newline-delimited JSON events from r into the engine
// until the stream closes.
func readEvents(r *os.File, eng *engine.Engine) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var malformed uint64
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event schema.NetworkEvent
		if err := json.Unmarshal(line, &event); err != nil {
			malformed++
			slog.Debug("malformed event line", "error", err)
			continue
		}

		if err := eng.Submit(&event); err != nil {
			slog.Warn("event dropped", "error", err, "event_id", event.EventID)
		}
	}

	if err := scanner.Err(); err != nil {
		slog.Error("event stream error", "error", err)
	}
	slog.Info("event stream closed", "malformed_lines", malformed)
}

// reportStats logs a periodic engine health snapshot.
func reportStats(ctx context.Context, eng *engine.Engine) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := eng.Summary()
			slog.Info("engine stats",
				"events_analyzed", stats.EventsAnalyzed,
				"rejected", stats.Rejected,
				"queue_depth", stats.Queue.Depth,
				"baselined_hosts", stats.BaselinedHosts,
				"active_incidents", stats.Incidents.ActiveTotal,
			)
		}
	}
}
