package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlumen/artnode/internal/database/models"
	"github.com/openlumen/artnode/internal/database/repositories"
	"github.com/openlumen/artnode/internal/services/dmx"
	"github.com/openlumen/artnode/internal/services/endpoint"
	"github.com/openlumen/artnode/internal/services/fade"
	"github.com/openlumen/artnode/internal/services/pubsub"
	"github.com/openlumen/artnode/internal/services/registry"
	"github.com/openlumen/artnode/internal/services/testutil"
)

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

type testStack struct {
	server *Server
	tx     *dmx.Transmitter
	fades  *fade.Engine
	nodes  *repositories.NodeRepository
	ps     *pubsub.PubSub
}

// newTestStack wires a server around an ephemeral loopback endpoint and an
// in-memory database.
func newTestStack(t *testing.T) *testStack {
	t.Helper()

	tdb := testutil.SetupTestDB(t)

	ep := endpoint.New(endpoint.Config{BindAddr: "127.0.0.1"}, testLog())
	require.NoError(t, ep.Bind())
	t.Cleanup(ep.Close)

	nodes := tdb.NodeRepo
	ps := pubsub.New()
	t.Cleanup(ps.Close)

	reg := registry.NewService(ep, nodes, ps, testLog())

	tx := dmx.NewTransmitter(ep, testLog(), dmx.DefaultTransmitterConfig())
	fades := fade.NewEngine(tx)

	server := NewServer(tx, fades, reg, nodes, ps, testLog(), Config{
		CORSOrigin:      "http://localhost:3000",
		DiscoveryWindow: 50 * time.Millisecond,
	})
	return &testStack{server: server, tx: tx, fades: fades, nodes: nodes, ps: ps}
}

func (ts *testStack) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ts := newTestStack(t)

	rec := ts.request(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["version"])
}

func TestNodes_EmptyAndPopulated(t *testing.T) {
	ts := newTestStack(t)

	rec := ts.request(t, http.MethodGet, "/api/nodes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	_, err := ts.nodes.Upsert(t.Context(), models.Node{
		Address:   "10.0.0.5",
		Port:      6454,
		ShortName: "node-a",
	})
	require.NoError(t, err)

	rec = ts.request(t, http.MethodGet, "/api/nodes", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var nodes []models.Node
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nodes))
	require.Len(t, nodes, 1)
	assert.Equal(t, "10.0.0.5", nodes[0].Address)
	assert.Equal(t, "node-a", nodes[0].ShortName)
}

func TestChannels_MergeAndValidate(t *testing.T) {
	ts := newTestStack(t)

	rec := ts.request(t, http.MethodPost, "/api/channels", map[string]interface{}{
		"channels": map[string]int{"1": 255, "3": 128},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	snapshot := ts.tx.Snapshot()
	assert.Equal(t, byte(255), snapshot[0])
	assert.Equal(t, byte(128), snapshot[2])

	// Out of range channel
	rec = ts.request(t, http.MethodPost, "/api/channels", map[string]interface{}{
		"channels": map[string]int{"513": 10},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Empty body
	rec = ts.request(t, http.MethodPost, "/api/channels", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChannels_PersistentToggle(t *testing.T) {
	ts := newTestStack(t)

	ts.tx.Merge(dmx.Sparse{1: 100, 2: 100})

	persistent := false
	payload := map[string]interface{}{
		"channels":   map[string]int{"5": 50},
		"persistent": persistent,
	}
	rec := ts.request(t, http.MethodPost, "/api/channels", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	// Non-persistent merges clear the rest of the universe.
	snapshot := ts.tx.Snapshot()
	assert.Equal(t, byte(0), snapshot[0])
	assert.Equal(t, byte(0), snapshot[1])
	assert.Equal(t, byte(50), snapshot[4])
}

func TestUniverse_ReflectsState(t *testing.T) {
	ts := newTestStack(t)

	ts.tx.SetChannel(10, 200)

	rec := ts.request(t, http.MethodGet, "/api/universe", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Size     int   `json:"size"`
		Channels []int `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 512, body.Size)
	require.Len(t, body.Channels, 512)
	assert.Equal(t, 200, body.Channels[9])
}

func TestBlackout(t *testing.T) {
	ts := newTestStack(t)

	ts.tx.Merge(dmx.Sparse{1: 255, 100: 255})
	rec := ts.request(t, http.MethodPost, "/api/blackout", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	for i, v := range ts.tx.Snapshot() {
		if v != 0 {
			t.Fatalf("channel %d = %d after blackout, want 0", i+1, v)
		}
	}
}

func TestFade_StartsAndValidates(t *testing.T) {
	ts := newTestStack(t)

	rec := ts.request(t, http.MethodPost, "/api/fade", map[string]interface{}{
		"targets":    []map[string]int{{"channel": 1, "value": 255}},
		"durationMs": 60000,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["fadeId"])
	assert.Equal(t, 1, ts.fades.ActiveFadeCount())

	rec = ts.request(t, http.MethodPost, "/api/fade", map[string]interface{}{
		"targets":    []map[string]int{{"channel": 600, "value": 255}},
		"durationMs": 100,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.request(t, http.MethodPost, "/api/fade", map[string]interface{}{
		"targets": []map[string]int{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiscover_NoBroadcastConfigured(t *testing.T) {
	ts := newTestStack(t)

	// The test endpoint has neither a broadcast address nor a subnet
	// prefix, so the poll cannot go anywhere.
	rec := ts.request(t, http.MethodPost, "/api/discover", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestWebSocket_StreamsPubsub(t *testing.T) {
	ts := newTestStack(t)

	srv := httptest.NewServer(ts.server)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	// Give the handler time to register its subscriptions.
	require.Eventually(t, func() bool {
		return ts.ps.SubscriberCount(pubsub.TopicNodeDiscovered) == 1
	}, time.Second, 10*time.Millisecond)

	ts.ps.Publish(pubsub.TopicNodeDiscovered, &models.Node{Address: "10.0.0.9"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var msg struct {
		Topic   string          `json:"topic"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, string(pubsub.TopicNodeDiscovered), msg.Topic)
	assert.Contains(t, string(msg.Payload), "10.0.0.9")
}
