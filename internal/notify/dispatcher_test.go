// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewDispatcherValidation(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"bad scheme", "ftp://example.com/hook"},
		{"localhost", "https://localhost/hook"},
		{"loopback", "https://127.0.0.1/hook"},
		{"private address", "https://192.168.1.10/hook"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDispatcher(Config{URL: tt.url}); err == nil {
				t.Errorf("NewDispatcher(%q) accepted an invalid endpoint", tt.url)
			}
		})
	}

	if _, err := NewDispatcher(Config{URL: "https://hooks.example.com/notify"}); err != nil {
		t.Errorf("NewDispatcher with valid URL = %v", err)
	}
}

// testDispatcher builds a dispatcher pointed at a local test server,
// sidestepping the private-address validation in NewDispatcher.
func testDispatcher(url, secret string) *Dispatcher {
	return &Dispatcher{
		url:     url,
		secret:  secret,
		workers: 1,
		queue:   make(chan *Notification, 10),
		done:    make(chan struct{}),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func TestDispatchDelivers(t *testing.T) {
	var gotEvent atomic.Value
	var gotSignature atomic.Value
	var gotBody atomic.Value
	received := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotEvent.Store(r.Header.Get("X-Notify-Event"))
		gotSignature.Store(r.Header.Get("X-Notify-Signature"))
		gotBody.Store(body)
		w.WriteHeader(http.StatusOK)
		received <- struct{}{}
	}))
	defer srv.Close()

	d := testDispatcher(srv.URL, "topsecret")
	d.Start(context.Background())
	defer d.Stop()

	d.Dispatch(EventContactMessage, map[string]any{"name": "Alice", "subject": "Hi"})

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("notification never arrived")
	}

	if gotEvent.Load() != EventContactMessage {
		t.Errorf("event header = %v, want %s", gotEvent.Load(), EventContactMessage)
	}

	body := gotBody.Load().([]byte)
	sig := gotSignature.Load().(string)
	if !VerifySignature(body, sig, "topsecret") {
		t.Error("signature does not verify against the body")
	}
	if VerifySignature(body, sig, "wrong-secret") {
		t.Error("signature verified with the wrong secret")
	}
}

func TestDispatchWhenStopped(t *testing.T) {
	d := testDispatcher("https://hooks.example.com/notify", "")

	// Not started: dropped without blocking
	d.Dispatch(EventPostPending, nil)

	d.Start(context.Background())
	d.Stop()

	// Stopped again: also dropped
	d.Dispatch(EventPostPending, nil)
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := testDispatcher(srv.URL, "")
	d.deliver(context.Background(), &Notification{Event: EventContactMessage, CreatedAt: time.Now()})

	if calls.Load() != 1 {
		t.Errorf("delivery attempts = %d, want 1 for a 400 response", calls.Load())
	}
}

func TestGenerateSignature(t *testing.T) {
	payload := []byte(`{"event":"contact.message"}`)

	sig := GenerateSignature(payload, "secret")
	if sig == "" {
		t.Fatal("empty signature")
	}
	if sig != GenerateSignature(payload, "secret") {
		t.Error("signature is not deterministic")
	}
	if sig == GenerateSignature(payload, "other") {
		t.Error("different secrets produced the same signature")
	}
	if !VerifySignature(payload, sig, "secret") {
		t.Error("VerifySignature rejected a valid signature")
	}
}
