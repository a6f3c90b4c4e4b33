package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"swapledger/core"
	"swapledger/core/auth"
	"swapledger/core/types"
	"swapledger/crypto"
	"swapledger/native/swap"
	"swapledger/storage"
)

const testNetwork = "swap-test"

var testContract = crypto.MustAddress(crypto.ContractPrefix, bytes.Repeat([]byte{0xC0}, crypto.AddressLength))

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func newTestServer(t *testing.T, cfg ServerConfig) (*httptest.Server, *core.Node) {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB(), testNetwork, testContract, core.WithMetrics(nil))
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(node, cfg).Handler())
	t.Cleanup(srv.Close)
	return srv, node
}

func call(t *testing.T, url, method string, params ...interface{}) (int, rpcEnvelope) {
	t.Helper()
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		require.NoError(t, err)
		raw = append(raw, encoded)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: raw, ID: 1})
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var env rpcEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func signedSwap(t *testing.T, key *crypto.PrivateKey, amountIn, rateNum, rateDen int64, nonce uint64) *types.Authorization {
	t.Helper()
	args := swap.SwapArgs{
		Identity: key.PubKey().Address(),
		AmountIn: big.NewInt(amountIn),
		RateNum:  big.NewInt(rateNum),
		RateDen:  big.NewInt(rateDen),
	}
	authz := &types.Authorization{Invocation: types.Invocation{
		Network:  testNetwork,
		Contract: testContract.String(),
		Function: swap.FunctionSwap,
		Args:     args.Encode(),
		Nonce:    nonce,
	}}
	require.NoError(t, authz.Sign(key))
	return authz
}

func TestSwapExecuteRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{})
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	identity := key.PubKey().Address().String()

	status, env := call(t, srv.URL, "swap_execute", signedSwap(t, key, 1000, 12, 100, 1))
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, env.Error)
	var receipt ReceiptResult
	require.NoError(t, json.Unmarshal(env.Result, &receipt))
	require.Equal(t, "120", receipt.AmountOut)
	require.Equal(t, uint32(1), receipt.Count)
	require.Equal(t, identity, receipt.Identity)
	require.Len(t, receipt.Events, 1)

	status, env = call(t, srv.URL, "swap_getCount", identity)
	require.Equal(t, http.StatusOK, status)
	var count CountResult
	require.NoError(t, json.Unmarshal(env.Result, &count))
	require.Equal(t, uint32(1), count.Count)

	status, env = call(t, srv.URL, "swap_getReceipt", receipt.Hash)
	require.Equal(t, http.StatusOK, status)
	var stored ReceiptResult
	require.NoError(t, json.Unmarshal(env.Result, &stored))
	require.Equal(t, receipt, stored)

	status, env = call(t, srv.URL, "swap_listEvents", ListEventsParams{From: 1})
	require.Equal(t, http.StatusOK, status)
	var logged []types.LoggedEvent
	require.NoError(t, json.Unmarshal(env.Result, &logged))
	require.Len(t, logged, 1)
	require.Equal(t, "120", logged[0].Attributes["amountOut"])

	status, env = call(t, srv.URL, "swap_info")
	require.Equal(t, http.StatusOK, status)
	var info InfoResult
	require.NoError(t, json.Unmarshal(env.Result, &info))
	require.Equal(t, InfoResult{Network: testNetwork, Contract: testContract.String(), LatestSeq: 1}, info)
}

func TestSwapExecuteErrors(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{})
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	other, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	unsigned := signedSwap(t, key, 10, 1, 1, 1)
	unsigned.Signature = nil
	status, env := call(t, srv.URL, "swap_execute", unsigned)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, env.Error.Code)

	forged := signedSwap(t, key, 10, 1, 1, 1)
	forged.Invocation.Args[0] = other.PubKey().Address().String()
	status, env = call(t, srv.URL, "swap_execute", forged)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, env.Error.Code)

	status, env = call(t, srv.URL, "swap_execute", signedSwap(t, key, 10, 1, 0, 1))
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, env.Error.Code)
	require.Equal(t, map[string]interface{}{"reason": core.ReasonDivisionByZero}, env.Error.Data)

	status, env = call(t, srv.URL, "swap_getReceipt", "0x00")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeNotFound, env.Error.Code)

	status, env = call(t, srv.URL, "swap_getCount", "not-an-address")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, env.Error.Code)

	status, env = call(t, srv.URL, "swap_nope")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, env.Error.Code)
}

func TestSwapSimulateWithPair(t *testing.T) {
	srv, node := newTestServer(t, ServerConfig{})
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	identity := key.PubKey().Address()

	status, env := call(t, srv.URL, "swap_simulate", SimulateParams{Identity: identity.String(), AmountIn: "1000", Pair: "xlm-usdc"})
	require.Equal(t, http.StatusOK, status)
	var result SimulateResult
	require.NoError(t, json.Unmarshal(env.Result, &result))
	require.Equal(t, "120", result.AmountOut)
	require.Equal(t, uint32(1), result.CountAfter)

	count, err := node.GetCount(identity)
	require.NoError(t, err)
	require.Zero(t, count)

	status, env = call(t, srv.URL, "swap_simulate", SimulateParams{Identity: identity.String(), AmountIn: "1", Pair: "DOGE-XLM"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, env.Error.Code)

	status, env = call(t, srv.URL, "swap_pairs")
	require.Equal(t, http.StatusOK, status)
	var pairs []swap.Pair
	require.NoError(t, json.Unmarshal(env.Result, &pairs))
	require.Len(t, pairs, len(swap.DefaultPairs()))
}

func TestMalformedRequests(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{})

	resp, err := http.Post(srv.URL, "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(requestIDHeader))
	var env rpcEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.Equal(t, codeParseError, env.Error.Code)

	empty, err := http.Post(srv.URL, "application/json", strings.NewReader("  "))
	require.NoError(t, err)
	defer empty.Body.Close()
	require.Equal(t, http.StatusBadRequest, empty.StatusCode)
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{RateLimit: RateLimit{RequestsPerMinute: 1, Burst: 1}})

	status, _ := call(t, srv.URL, "swap_pairs")
	require.Equal(t, http.StatusOK, status)
	status, env := call(t, srv.URL, "swap_pairs")
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, codeRateLimited, env.Error.Code)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	require.Equal(t, http.StatusOK, health.StatusCode)
}

func TestRateLimiterPerClient(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 2})
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }

	require.True(t, limiter.Allow("a"))
	require.True(t, limiter.Allow("a"))
	require.False(t, limiter.Allow("a"))
	require.True(t, limiter.Allow("b"))

	now = now.Add(time.Second)
	require.True(t, limiter.Allow("a"))
}

func postPairs(t *testing.T, url, forwardedFor string) int {
	t.Helper()
	body := `{"jsonrpc":"2.0","method":"swap_pairs","id":1}`
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestRateLimitIgnoresForwardedForByDefault(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{RateLimit: RateLimit{RequestsPerMinute: 1, Burst: 1}})

	require.Equal(t, http.StatusOK, postPairs(t, srv.URL, "10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, postPairs(t, srv.URL, "10.0.0.2"))
	require.Equal(t, http.StatusTooManyRequests, postPairs(t, srv.URL, "10.0.0.3"))
}

func TestRateLimitTrustedProxyKeysOnForwardedFor(t *testing.T) {
	srv, _ := newTestServer(t, ServerConfig{RateLimit: RateLimit{RequestsPerMinute: 1, Burst: 1, TrustProxy: true}})

	require.Equal(t, http.StatusOK, postPairs(t, srv.URL, "10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, postPairs(t, srv.URL, "10.0.0.1, 192.168.1.1"))
	require.Equal(t, http.StatusOK, postPairs(t, srv.URL, "10.0.0.2"))
	// Unparseable values fall back to the peer address.
	require.Equal(t, http.StatusOK, postPairs(t, srv.URL, "not-an-ip"))
	require.Equal(t, http.StatusTooManyRequests, postPairs(t, srv.URL, "also-not-an-ip"))
}

func TestEventsWebsocketBackfillAndLive(t *testing.T) {
	srv, node := newTestServer(t, ServerConfig{})
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	_, err = node.Swap(context.Background(), signedSwap(t, key, 100, 1, 1, 1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?from=1"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	readEvent := func() types.LoggedEvent {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var evt types.LoggedEvent
		require.NoError(t, json.Unmarshal(data, &evt))
		return evt
	}
	first := readEvent()
	require.Equal(t, uint64(1), first.Seq)
	require.Equal(t, "100", first.Attributes["amountOut"])

	_, err = node.Swap(context.Background(), signedSwap(t, key, 200, 1, 1, 2))
	require.NoError(t, err)
	second := readEvent()
	require.Equal(t, uint64(2), second.Seq)
	require.Equal(t, "200", second.Attributes["amountOut"])
}

func TestEventsWebsocketSurvivesLaggingReader(t *testing.T) {
	node, err := core.NewNode(storage.NewMemDB(), testNetwork, testContract,
		core.WithMetrics(nil), core.WithAuthorizer(&auth.MockAuthorizer{}))
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(node, ServerConfig{StreamBuffer: 1}).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?from=1"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	const total = 2000
	for i := 1; i <= total; i++ {
		args := swap.SwapArgs{
			Identity: key.PubKey().Address(),
			AmountIn: big.NewInt(int64(i)),
			RateNum:  big.NewInt(1),
			RateDen:  big.NewInt(1),
		}
		authz := &types.Authorization{Invocation: types.Invocation{
			Function: swap.FunctionSwap,
			Args:     args.Encode(),
			Nonce:    uint64(i),
		}}
		_, err := node.Swap(context.Background(), authz)
		require.NoError(t, err)
	}

	// Nothing was read while the swaps committed, so the one-slot live
	// buffer overflowed; the stream must still be complete and ordered.
	for want := uint64(1); want <= total; want++ {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var evt types.LoggedEvent
		require.NoError(t, json.Unmarshal(data, &evt))
		require.Equal(t, want, evt.Seq)
	}

	_, err = node.Swap(context.Background(), &types.Authorization{Invocation: types.Invocation{
		Function: swap.FunctionSwap,
		Args:     swap.SwapArgs{Identity: key.PubKey().Address(), AmountIn: big.NewInt(7), RateNum: big.NewInt(1), RateDen: big.NewInt(1)}.Encode(),
		Nonce:    total + 1,
	}})
	require.NoError(t, err)
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var live types.LoggedEvent
	require.NoError(t, json.Unmarshal(data, &live))
	require.Equal(t, uint64(total+1), live.Seq)
	require.Equal(t, "7", live.Attributes["amountOut"])
}
