package intel

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// FeedConfig configures the periodic feed refresher.
type FeedConfig struct {
	URLs           []string
	UpdateInterval time.Duration
	RequestTimeout time.Duration
	Confidence     float64 // assigned to feed-sourced indicators
}

// DefaultFeedConfig returns the default feed configuration.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		UpdateInterval: 1 * time.Hour,
		RequestTimeout: 30 * time.Second,
		Confidence:     0.7,
	}
}

// FeedRefresher periodically fetches plaintext indicator feeds and
// loads them into the store. One indicator per line; lines starting
// with '#' are comments. A failed feed is logged and skipped so the
// store keeps serving its last good data.
type FeedRefresher struct {
	config FeedConfig
	store  *Store
	client *http.Client

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewFeedRefresher creates a refresher writing into the given store.
func NewFeedRefresher(config FeedConfig, store *Store) *FeedRefresher {
	if config.UpdateInterval <= 0 {
		config.UpdateInterval = DefaultFeedConfig().UpdateInterval
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultFeedConfig().RequestTimeout
	}
	if config.Confidence <= 0 {
		config.Confidence = DefaultFeedConfig().Confidence
	}
	return &FeedRefresher{
		config: config,
		store:  store,
		client: &http.Client{Timeout: config.RequestTimeout},
		stopCh: make(chan struct{}),
	}
}

// Start performs an initial refresh and launches the update worker.
func (f *FeedRefresher) Start(ctx context.Context) error {
	f.RefreshAll(ctx)

	f.wg.Add(1)
	go f.updateWorker(ctx)

	slog.Info("indicator feed refresher started", "feeds", len(f.config.URLs))
	return nil
}

// Stop stops the refresher and waits for the worker to exit.
func (f *FeedRefresher) Stop() {
	close(f.stopCh)
	f.wg.Wait()
	slog.Info("indicator feed refresher stopped")
}

func (f *FeedRefresher) updateWorker(ctx context.Context) {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.RefreshAll(ctx)
		}
	}
}

// RefreshAll fetches every configured feed. Per-feed failures are
// logged and skipped.
func (f *FeedRefresher) RefreshAll(ctx context.Context) {
	for _, url := range f.config.URLs {
		count, err := f.refreshFeed(ctx, url)
		if err != nil {
			slog.Warn("feed refresh failed", "url", url, "error", err)
			continue
		}
		slog.Info("feed refreshed", "url", url, "indicators", count)
	}
}

func (f *FeedRefresher) refreshFeed(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("feed returned %d", resp.StatusCode)
	}

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}

	return f.store.LoadLines(url, lines, f.config.Confidence), nil
}
