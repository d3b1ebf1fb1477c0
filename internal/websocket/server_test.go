package websocket

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Panorama-Block/archive/internal/types"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "archive_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := NewServer("0", reg, nil)
	go s.clientManager.Run()
	t.Cleanup(s.clientManager.Stop)

	httpServer := httptest.NewServer(s.Handler())
	t.Cleanup(httpServer.Close)
	return s, httpServer
}

func dial(t *testing.T, s *Server, httpServer *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	before := s.clientManager.Count()
	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return s.clientManager.Count() == before+1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStreamFiltersByTypeAndChain(t *testing.T) {
	s, httpServer := newTestServer(t)
	conn := dial(t, s, httpServer, "?type=block.archived&chainId=43114")

	require.NoError(t, s.HandleEvent(types.Event{Type: types.EventLogArchived, ChainID: 43114, Key: "log"}))
	require.NoError(t, s.HandleEvent(types.Event{Type: types.EventBlockArchived, ChainID: 1, Key: "other-chain"}))
	require.NoError(t, s.HandleEvent(types.Event{Type: types.EventBlockArchived, ChainID: 43114, Key: "10", Data: map[string]int{"number": 10}}))

	msg := readMessage(t, conn)
	assert.Equal(t, types.EventBlockArchived, msg.Type)
	assert.Equal(t, "43114", msg.ChainID)
	assert.Equal(t, "10", msg.Key)
	assert.Equal(t, map[string]interface{}{"number": float64(10)}, msg.Data)
}

func TestSubscribeMessage(t *testing.T) {
	s, httpServer := newTestServer(t)
	conn := dial(t, s, httpServer, "?type=block.archived")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action":  "subscribe",
		"type":    types.EventContractEvent,
		"chainId": 43114,
	}))
	ack := readMessage(t, conn)
	assert.Equal(t, "subscription", ack.Type)
	assert.Equal(t, "success", ack.Status)
	assert.Equal(t, "43114", ack.ChainID)
	assert.Equal(t, types.EventContractEvent, ack.Key)

	require.NoError(t, s.HandleEvent(types.Event{Type: types.EventBlockArchived, ChainID: 43114, Key: "10"}))
	require.NoError(t, s.HandleEvent(types.Event{Type: types.EventContractEvent, ChainID: 43114, Key: "0xab:1"}))

	msg := readMessage(t, conn)
	assert.Equal(t, types.EventContractEvent, msg.Type)
	assert.Equal(t, "0xab:1", msg.Key)
}

func TestDisconnectUnregisters(t *testing.T) {
	s, httpServer := newTestServer(t)
	conn := dial(t, s, httpServer, "")
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return s.clientManager.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHealthAndMetrics(t *testing.T) {
	s, httpServer := newTestServer(t)
	s.SetStatusFunc(func() map[string]interface{} {
		return map[string]interface{}{"blocks": map[string]interface{}{"lastArchivedBlock": 10}}
	})
	require.NoError(t, s.HandleEvent(types.Event{Type: types.EventBlockArchived}))

	resp, err := http.Get(httpServer.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "UP", status["status"])
	assert.Equal(t, float64(1), status["messagesTotal"])
	assert.Contains(t, status, "services")

	resp, err = http.Get(httpServer.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "archive_test_total 1")
}

func TestChainIDString(t *testing.T) {
	assert.Equal(t, "43114", chainIDString("43114"))
	assert.Equal(t, "43114", chainIDString(float64(43114)))
	assert.Equal(t, "", chainIDString(nil))
}
