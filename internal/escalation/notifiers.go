package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"

	"sentinel-engine/internal/incident"
	"sentinel-engine/internal/threat"
)

// Notifier delivers an escalation to one target.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, level threat.Level, message string, inc *incident.SecurityIncident) error
}

// LogNotifier writes escalations to the structured log. It is always
// configured so every escalation leaves a trace.
type LogNotifier struct{}

func (LogNotifier) Name() string { return "log" }

func (LogNotifier) Notify(_ context.Context, level threat.Level, message string, inc *incident.SecurityIncident) error {
	slog.Warn("incident escalated",
		"incident_id", inc.ID,
		"entity", inc.Entity,
		"vector", inc.Vector,
		"level", level,
		"message", message,
	)
	return nil
}

// WebhookNotifier posts escalations as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(name, url string, headers map[string]string) *WebhookNotifier {
	return &WebhookNotifier{
		name:    name,
		url:     url,
		headers: headers,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *WebhookNotifier) Name() string { return w.name }

func (w *WebhookNotifier) Notify(ctx context.Context, level threat.Level, message string, inc *incident.SecurityIncident) error {
	payload, err := json.Marshal(map[string]any{
		"level":    level,
		"message":  message,
		"incident": inc,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal escalation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// KafkaNotifier publishes escalations to a Kafka topic, keyed by the
// incident's entity so activity for one source stays ordered.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier creates a Kafka notifier.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 10 * time.Second,
		},
	}
}

func (k *KafkaNotifier) Name() string { return "kafka" }

func (k *KafkaNotifier) Notify(ctx context.Context, level threat.Level, message string, inc *incident.SecurityIncident) error {
	value, err := json.Marshal(map[string]any{
		"level":    level,
		"message":  message,
		"incident": inc,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal escalation: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(inc.Entity),
		Value: value,
		Time:  time.Now(),
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish failed: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
