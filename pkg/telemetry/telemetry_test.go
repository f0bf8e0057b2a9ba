package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastDeliversToConnectedClient(t *testing.T) {
	b := New(nil)
	srv := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server goroutine a moment to register the client.
	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, b.ClientCount())

	b.Broadcast("[ES]", "deviation=0.0100 iterations=3")

	var evt Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, "[ES]", evt.Prefix)
	assert.Contains(t, evt.Line, "deviation")
}

func TestBroadcastWithNoClientsDoesNotBlock(t *testing.T) {
	b := New(nil)
	b.Broadcast("[DR]", "delta_radius=141.0")
}
