// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package notify delivers contact-form messages and moderation alerts
// to an external endpoint as signed JSON webhooks.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/olegiv/oblog-go/internal/util"
)

// Delivery configuration constants
const (
	MaxAttempts    = 3
	InitialBackoff = 30 * time.Second
	RequestTimeout = 30 * time.Second
	MaxResponseLen = 10 * 1024
	UserAgent      = "oBlog/1.0"
)

// Notification event types.
const (
	EventContactMessage = "contact.message"
	EventPostPending    = "post.pending"
)

// Notification is the payload delivered to the endpoint.
type Notification struct {
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

// Config holds dispatcher configuration.
type Config struct {
	// URL is the delivery endpoint. Empty disables the dispatcher.
	URL string

	// Secret signs payloads with HMAC-SHA256.
	Secret string

	// Workers is the number of concurrent delivery workers.
	Workers int
}

// Dispatcher queues notifications and delivers them asynchronously.
// Deliveries are best-effort: the queue lives in memory and retries
// stop after MaxAttempts.
type Dispatcher struct {
	url     string
	secret  string
	workers int
	queue   chan *Notification
	wg      sync.WaitGroup
	done    chan struct{}
	mu      sync.RWMutex
	running bool

	client *http.Client
}

// NewDispatcher creates a notification dispatcher. The endpoint URL is
// validated up front; private and loopback addresses are rejected so a
// misconfigured deployment cannot be used to probe its own network.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("notify URL is required")
	}
	if err := util.ValidateNotifyURL(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid notify URL: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}

	return &Dispatcher{
		url:     cfg.URL,
		secret:  cfg.Secret,
		workers: cfg.Workers,
		queue:   make(chan *Notification, 100),
		done:    make(chan struct{}),
		client: &http.Client{
			Timeout: RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Start starts the dispatcher workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	slog.Info("starting notification dispatcher", "workers", d.workers)

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Stop stops the dispatcher and waits for workers to finish. Queued
// notifications that have not started delivering are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()
	slog.Info("notification dispatcher stopped")
}

// Dispatch queues a notification for delivery. It never blocks: when
// the queue is full the notification is dropped and logged.
func (d *Dispatcher) Dispatch(event string, data map[string]any) {
	d.mu.RLock()
	running := d.running
	d.mu.RUnlock()

	if !running {
		slog.Warn("dispatcher not running, dropping notification", "event", event)
		return
	}

	n := &Notification{
		Event:     event,
		Data:      data,
		CreatedAt: time.Now(),
	}

	select {
	case d.queue <- n:
	default:
		slog.Warn("notification queue full, dropping", "event", event)
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-d.done:
			return
		case <-ctx.Done():
			return
		case n := <-d.queue:
			d.deliver(ctx, n)
		}
	}
}

// deliver attempts delivery with exponential backoff between attempts.
func (d *Dispatcher) deliver(ctx context.Context, n *Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		slog.Error("failed to marshal notification", "error", err, "event", n.Event)
		return
	}

	backoff := InitialBackoff
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		retry, err := d.attempt(ctx, n.Event, payload)
		if err == nil {
			slog.Info("notification delivered", "event", n.Event, "attempt", attempt)
			return
		}

		slog.Warn("notification delivery failed",
			"event", n.Event, "attempt", attempt, "error", err)

		if !retry || attempt == MaxAttempts {
			slog.Error("notification dropped", "event", n.Event, "attempts", attempt)
			return
		}

		select {
		case <-time.After(backoff):
		case <-d.done:
			return
		case <-ctx.Done():
			return
		}
		backoff *= 2
	}
}

// attempt performs a single HTTP POST. The second return reports
// whether the failure is worth retrying.
func (d *Dispatcher) attempt(ctx context.Context, event string, payload []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("X-Notify-Event", event)
	if d.secret != "" {
		req.Header.Set("X-Notify-Signature", GenerateSignature(payload, d.secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseLen))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return true, fmt.Errorf("HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return false, fmt.Errorf("HTTP %d", resp.StatusCode)
	default:
		return true, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
}

// GenerateSignature generates an HMAC-SHA256 signature for the payload.
func GenerateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature verifies an HMAC-SHA256 signature.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := GenerateSignature(payload, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}
