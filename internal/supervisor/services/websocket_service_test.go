// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// mockContextHub is a test double for the ContextHub interface.
type mockContextHub struct {
	runErr   error
	runCount atomic.Int32
}

func (m *mockContextHub) RunWithContext(ctx context.Context) error {
	m.runCount.Add(1)
	if m.runErr != nil {
		return m.runErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestWebSocketHubServiceInterface(t *testing.T) {
	var _ suture.Service = (*WebSocketHubService)(nil)
}

func TestNewWebSocketHubService(t *testing.T) {
	hub := &mockContextHub{}
	svc := NewWebSocketHubService(hub)

	if svc == nil {
		t.Fatal("NewWebSocketHubService returned nil")
	}
	if svc.String() != "websocket-hub" {
		t.Errorf("expected name 'websocket-hub', got %q", svc.String())
	}
}

func TestWebSocketHubServiceServe(t *testing.T) {
	t.Run("returns context error on cancellation", func(t *testing.T) {
		hub := &mockContextHub{}
		svc := NewWebSocketHubService(hub)

		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			errCh <- svc.Serve(ctx)
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Error("Serve did not return after context cancellation")
		}

		if n := hub.runCount.Load(); n != 1 {
			t.Errorf("expected 1 run, got %d", n)
		}
	})

	t.Run("propagates hub errors", func(t *testing.T) {
		hubErr := errors.New("hub startup error")
		hub := &mockContextHub{runErr: hubErr}
		svc := NewWebSocketHubService(hub)

		if err := svc.Serve(context.Background()); !errors.Is(err, hubErr) {
			t.Errorf("expected %v, got %v", hubErr, err)
		}
	})
}

func TestWebSocketHubServiceWithSupervisor(t *testing.T) {
	hub := &mockContextHub{}
	svc := NewWebSocketHubService(hub)

	sup := suture.New("test-sup", suture.Spec{
		FailureThreshold: 3,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          100 * time.Millisecond,
	})
	sup.Add(svc)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	errCh := sup.ServeBackground(ctx)

	// Poll for startup, more reliable than a fixed sleep under CI load
	var started bool
	for i := 0; i < 10; i++ {
		time.Sleep(20 * time.Millisecond)
		if hub.runCount.Load() >= 1 {
			started = true
			break
		}
	}

	if !started {
		t.Error("hub RunWithContext was not called")
	}

	cancel()
	<-errCh
}
