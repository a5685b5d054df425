// Waypost - GPS Telemetry Ingestion and Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupHubServer starts a hub and an HTTP server that upgrades incoming
// requests and attaches them to the hub, mirroring the production handler.
func setupHubServer(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.RunWithContext(ctx) }()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade connection: %v", err)
			return
		}
		client := NewClient(hub, conn)
		hub.Register <- client
		client.Start()
	}))

	return hub, srv, cancel
}

// dialTest connects to the test server and returns the raw connection.
func dialTest(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestNewClient(t *testing.T) {
	hub := NewHub()

	c1 := NewClient(hub, nil)
	c2 := NewClient(hub, nil)

	require.NotNil(t, c1)
	assert.Equal(t, hub, c1.hub)
	assert.NotNil(t, c1.send)
	assert.Equal(t, 256, cap(c1.send))
	assert.Greater(t, c2.ID(), c1.ID(), "client ids increase monotonically")
}

func TestClientReceivesWelcome(t *testing.T) {
	_, srv, cancel := setupHubServer(t)
	defer cancel()
	defer srv.Close()

	conn := dialTest(t, srv)
	defer conn.Close()

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeConnectionEstablished, msg.Type)
}

func TestClientReceivesBroadcast(t *testing.T) {
	hub, srv, cancel := setupHubServer(t)
	defer cancel()
	defer srv.Close()

	conn := dialTest(t, srv)
	defer conn.Close()

	readMessage(t, conn) // welcome

	hub.BroadcastFix(testFixResponse())

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeGPSUpdate, msg.Type)

	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "truck-7", data["device_id"])
}

func TestClientPingGetsPong(t *testing.T) {
	_, srv, cancel := setupHubServer(t)
	defer cancel()
	defer srv.Close()

	conn := dialTest(t, srv)
	defer conn.Close()

	readMessage(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypePong, msg.Type)
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, srv, cancel := setupHubServer(t)
	defer cancel()
	defer srv.Close()

	conn := dialTest(t, srv)
	readMessage(t, conn) // welcome
	require.Equal(t, 1, hub.GetClientCount())

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return hub.GetClientCount() == 0
	}, 2*time.Second, 20*time.Millisecond, "disconnect should unregister the client")
}

func TestClientServerShutdownSendsClose(t *testing.T) {
	_, srv, cancel := setupHubServer(t)
	defer srv.Close()

	conn := dialTest(t, srv)
	defer conn.Close()

	readMessage(t, conn) // welcome

	cancel()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	err := conn.ReadJSON(&msg)
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure),
		"expected close frame, got %v", err)
}
