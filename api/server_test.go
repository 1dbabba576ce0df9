package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"bingot/blockchain"
	"bingot/metrics"
	"bingot/mocks"
	"bingot/node"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	node   *node.FullNode
	hub    *Hub
	server *httptest.Server
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	reg := prometheus.NewRegistry()
	hub := NewHub(zerolog.Nop())

	nodeCfg := node.DefaultConfig()
	nodeCfg.Difficulty = 4
	nodeCfg.Mining.Workers = 1
	n, err := node.New(nodeCfg, node.Deps{
		Broadcaster: hub,
		Metrics:     metrics.New(reg),
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	hub.SetReceiver(n)

	s := NewServer(cfg, n, hub, reg, zerolog.Nop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return &testEnv{node: n, hub: hub, server: ts}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func TestServerRoutes(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp, body := env.get(t, "/api/chain/height")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["height"])

	resp, body = env.get(t, "/api/chain/head")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, blockchain.GenesisHash.String(), body["hash"])

	resp, body = env.get(t, "/api/node")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "node", body["node_id"])
	assert.Equal(t, "idle", body["state"])
	assert.Equal(t, string(env.node.Address()), body["address"])

	resp, body = env.get(t, "/api/chain/verify")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])

	resp, body = env.get(t, "/api/chain?from=0&limit=5")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])

	resp, body = env.get(t, "/api/blocks/height/0")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, blockchain.GenesisHash.String(), body["hash"])

	resp, _ = env.get(t, "/api/blocks/"+blockchain.GenesisHash.String())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.get(t, "/api/nothing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err := http.Post(env.server.URL+"/api/chain/height", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServerValidateAddress(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp, body := env.get(t, "/api/addresses/validate?address="+url.QueryEscape(string(env.node.Address())))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, float64(1), body["version"])

	_, body = env.get(t, "/api/addresses/validate?address=random_address")
	assert.Equal(t, false, body["valid"])

	resp, _ = env.get(t, "/api/addresses/validate")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerRateLimitsTransactions(t *testing.T) {
	env := newTestEnv(t, Config{TxRate: 0.001, TxBurst: 1})

	post := func() int {
		resp, err := http.Post(env.server.URL+"/api/transfers", "application/json",
			strings.NewReader(`{"to":"random_address","amount":1}`))
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusCreated, post())
	assert.Equal(t, http.StatusTooManyRequests, post())
	assert.Equal(t, 1, env.node.Mempool().Len())

	// reads are never limited
	resp, _ := env.get(t, "/api/mempool")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerMetrics(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, err := env.node.Transfer("random_address", 1)
	require.NoError(t, err)

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var sb strings.Builder
	_, err = io.Copy(&sb, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "bingot_chain_length 1")
	assert.Contains(t, sb.String(), "bingot_mempool_transactions 1")
}

func dialHub(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubBroadcastsNodeEvents(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := dialHub(t, env)

	tx, err := env.node.Transfer("random_address", 53)
	require.NoError(t, err)

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeNewTx, msg.Type)
	var got blockchain.Transaction
	require.NoError(t, json.Unmarshal(msg.Payload, &got))
	assert.Equal(t, tx.Key(), got.Key())
}

func TestHubReceivesFromClients(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := dialHub(t, env)

	block, err := mocks.GenerateValidMinedBlock(env.node.Chain().Tip(), mocks.GenerateWallet().Address(), nil, 4)
	require.NoError(t, err)
	out, err := NewMessage(MessageTypeNewBlock, block)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(out))

	// An accepted block is relayed to every client, the sender included.
	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeNewBlock, msg.Type)
	assert.Equal(t, block.Hash, env.node.Chain().LastHash())

	require.NoError(t, conn.WriteJSON(Message{Type: "gossip", Payload: json.RawMessage(`{}`)}))
	msg = readMessage(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.Contains(t, string(msg.Payload), "unknown message type")
}

func TestHubClose(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := dialHub(t, env)

	env.hub.Close()
	assert.Equal(t, 0, env.hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// broadcasting with no clients is a no-op
	env.hub.BroadcastBlock(blockchain.GenesisBlock)
}
