package metaapi

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(Options{Token: "test-token"}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Options{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRPCFailsFastWithoutConnect(t *testing.T) {
	c := newTestClient(t)
	_, err := c.RPC(context.Background(), "acct1", "getAccountInformation", nil, time.Second, "")
	assert.ErrorIs(t, err, ErrNotCallable)
}

func TestRPCFailsWhenNoSocketIsEstablished(t *testing.T) {
	c := newTestClient(t)
	fut := newConnectFuture()
	fut.resolve(nil)
	c.mu.Lock()
	c.connectFuture = fut
	c.mu.Unlock()

	_, err := c.RPC(context.Background(), "acct1", "getAccountInformation", nil, time.Second, "")
	assert.ErrorIs(t, err, NotConnected)
}

func TestHandleResponseResolvesMatchingPendingRequest(t *testing.T) {
	c := newTestClient(t)
	resultCh := make(chan rpcResult, 1)
	c.mu.Lock()
	c.requests["req-1"] = &pendingRequest{accountID: "acct1", reqType: "getAccountInformation", resolve: resultCh}
	c.mu.Unlock()

	raw, err := json.Marshal(map[string]interface{}{
		"requestId":          "req-1",
		"accountInformation": map[string]interface{}{"balance": 1000.0},
	})
	require.NoError(t, err)

	c.handleResponse(raw)

	select {
	case res := <-resultCh:
		require.NoError(t, res.err)
		info, ok := res.payload["accountInformation"].(map[string]interface{})
		require.True(t, ok, spew.Sdump(res.payload))
		assert.Equal(t, 1000.0, info["balance"])
	case <-time.After(time.Second):
		t.Fatal("handleResponse did not resolve the pending request")
	}
}

func TestHandleResponseDiscardsUnknownRequestID(t *testing.T) {
	c := newTestClient(t)
	raw, _ := json.Marshal(map[string]interface{}{"requestId": "unknown"})
	assert.NotPanics(t, func() { c.handleResponse(raw) })
}

func TestHandleProcessingErrorResolvesWithTradingError(t *testing.T) {
	c := newTestClient(t)
	resultCh := make(chan rpcResult, 1)
	c.mu.Lock()
	c.requests["req-2"] = &pendingRequest{accountID: "acct1", reqType: "getOrders", resolve: resultCh}
	c.mu.Unlock()

	raw, _ := json.Marshal(map[string]interface{}{
		"requestId": "req-2",
		"error":     "NotFoundError",
		"message":   "order not found",
	})
	c.handleProcessingError(raw)

	select {
	case res := <-resultCh:
		require.Error(t, res.err)
		var te *TradingError
		require.ErrorAs(t, res.err, &te)
		assert.Equal(t, KindNotFound, te.Kind)
	case <-time.After(time.Second):
		t.Fatal("handleProcessingError did not resolve the pending request")
	}
}

func TestHandleProcessingErrorClosesTransportOnUnauthorized(t *testing.T) {
	c := newTestClient(t)
	c.mu.Lock()
	c.desiredConnected = true
	c.mu.Unlock()
	raw, _ := json.Marshal(map[string]interface{}{
		"requestId": "req-3",
		"error":     "UnauthorizedError",
		"message":   "token is no longer valid",
	})

	c.handleProcessingError(raw)

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return !c.desiredConnected
	}, time.Second, 5*time.Millisecond, "an Unauthorized error must close the transport")
}

func TestCloseRejectsInFlightRequests(t *testing.T) {
	c := newTestClient(t)
	resultCh := make(chan rpcResult, 1)
	c.mu.Lock()
	c.requests["req-4"] = &pendingRequest{accountID: "acct1", reqType: "trade", resolve: resultCh}
	c.mu.Unlock()

	c.Close()

	select {
	case res := <-resultCh:
		require.Error(t, res.err)
	case <-time.After(time.Second):
		t.Fatal("Close did not reject the pending request")
	}
}

func TestErrorKindLabelFallsBackToTransport(t *testing.T) {
	assert.Equal(t, "transport", errorKindLabel(assert.AnError))
	assert.Equal(t, "Timeout", errorKindLabel(&TradingError{Kind: KindTimeout}))
}
