package metaapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/marceluphd/metaapi-go-sdk/internal/metrics"
)

const postDisconnectReconnectDelay = time.Second

// SubscribeFailedFunc is called when Subscribe fails with anything other
// than a Timeout, so a caller that needs to detect a persistently failing
// subscription isn't limited to parsing log lines.
type SubscribeFailedFunc func(accountID string, err error)

// Client is the RPC and transport core: it owns connection lifecycle,
// automatic reconnection, request correlation/timeout, and dispatch of
// inbound synchronization packets.
type Client struct {
	opts   Options
	logger zerolog.Logger
	m      *metrics.Metrics

	listeners  *ListenerSet
	dispatcher *SyncDispatcher
	orderer    *PacketOrderer

	onSubscribeFailed SubscribeFailedFunc

	mu               sync.Mutex
	desiredConnected bool
	connectFuture    *connectFuture
	socket           *transportConn
	requests         requestTable
	reconnectFns     []func()

	healthMu sync.Mutex
	health   map[string]*HealthMonitor
}

// New builds a Client. Connect must be called before issuing RPCs.
func New(opts Options, logger zerolog.Logger) (*Client, error) {
	if opts.Token == "" {
		return nil, errors.New("metaapi: Options.Token is required")
	}
	opts = opts.withDefaults()

	warnOnExpiringToken(opts.Token, logger)

	c := &Client{
		opts:     opts,
		logger:   logger,
		m:        metrics.New(),
		requests: newRequestTable(),
		health:   make(map[string]*HealthMonitor),
	}
	c.listeners = NewListenerSet()
	c.dispatcher = NewSyncDispatcher(c.listeners, logger)
	c.orderer = NewPacketOrderer(c.handleGapRecovery, logger)
	return c, nil
}

// OnSubscribeFailed registers the optional subscribe-failure notification.
func (c *Client) OnSubscribeFailed(fn SubscribeFailedFunc) {
	c.mu.Lock()
	c.onSubscribeFailed = fn
	c.mu.Unlock()
}

// AddReconnectListener registers fn to be called, in registration order,
// every time the transport reconnects after the initial connect.
// Exceptions (panics) are caught and logged; one listener must not
// block another.
func (c *Client) AddReconnectListener(fn func()) {
	c.mu.Lock()
	c.reconnectFns = append(c.reconnectFns, fn)
	c.mu.Unlock()
}

// AddSyncListener registers l to receive synchronization events for
// accountID.
func (c *Client) AddSyncListener(accountID string, l *Listener) {
	c.listeners.Add(accountID, l)
}

// RemoveSyncListener unregisters l.
func (c *Client) RemoveSyncListener(accountID string, l *Listener) {
	c.listeners.Remove(accountID, l)
}

// Metrics returns the Client's Prometheus collectors, so a host process
// can expose them (e.g. via promhttp.HandlerFor(client.Metrics().Registry(), ...)).
func (c *Client) Metrics() *metrics.Metrics {
	return c.m
}

// HealthMonitor returns (creating if necessary) the HealthMonitor for
// accountID, registering it as a synchronization listener and starting
// its ticks. terminal is the caller's TerminalState collaborator
// typically the same object the caller uses to mirror
// positions/orders/prices.
func (c *Client) HealthMonitor(accountID string, terminal TerminalState) *HealthMonitor {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	if hm, ok := c.health[accountID]; ok {
		return hm
	}
	hm := NewHealthMonitor(accountID, terminal, c.logger).WithMetrics(c.m)
	c.health[accountID] = hm
	c.listeners.Add(accountID, hm.Listener())
	hm.Start()
	return hm
}

// Connect opens the socket, retrying forever with exponential-ish
// backoff (floor 1s, ceiling 5s). It returns once the very first dial
// attempt settles: nil on success, or that attempt's
// connect_error/connect_timeout-equivalent failure, while dialing goes on
// in the background. Redundant concurrent calls await the same attempt.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connectFuture != nil {
		fut := c.connectFuture
		c.mu.Unlock()
		return fut.wait(ctx)
	}
	fut := newConnectFuture()
	c.connectFuture = fut
	c.desiredConnected = true
	c.mu.Unlock()

	c.orderer.Start()
	go c.dialLoop(fut)

	connectCtx := ctx
	if c.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, c.opts.ConnectTimeout)
		defer cancel()
	}
	return fut.wait(connectCtx)
}

// dialLoop dials forever, with backoff, for as long as desiredConnected
// stays true. The first attempt's outcome settles fut so the initial
// Connect caller gets an answer, but a failed first attempt does not
// stop the loop: it keeps retrying in the background exactly like any
// later reconnect, it just has nobody left awaiting it directly.
func (c *Client) dialLoop(fut *connectFuture) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0 // infinite reconnection attempts

	first := true
	for {
		c.mu.Lock()
		desired := c.desiredConnected
		c.mu.Unlock()
		if !desired {
			return
		}

		dialCtx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
		sock, err := dialTransport(dialCtx, c.opts)
		cancel()

		if err != nil {
			c.m.IncReconnectFailure()
			if first {
				fut.resolve(fmt.Errorf("metaapi: initial connect failed: %w", err))
				first = false
			}
			delay := bo.NextBackOff()
			c.logger.Warn().Err(err).Dur("retryIn", delay).Msg("reconnect attempt failed")
			time.Sleep(delay)
			continue
		}
		bo.Reset()

		c.mu.Lock()
		c.socket = sock
		wasFirst := first
		c.mu.Unlock()

		if wasFirst {
			first = false
			fut.resolve(nil)
		} else {
			c.m.IncReconnect()
			c.fireReconnectListeners()
		}

		c.readLoop(sock)

		c.mu.Lock()
		if c.socket == sock {
			c.socket = nil
		}
		stillDesired := c.desiredConnected
		c.mu.Unlock()
		if !stillDesired {
			return
		}
		time.Sleep(postDisconnectReconnectDelay)
	}
}

func (c *Client) fireReconnectListeners() {
	c.mu.Lock()
	fns := make([]func(), len(c.reconnectFns))
	copy(fns, c.reconnectFns)
	c.mu.Unlock()

	for _, fn := range fns {
		c.invokeReconnectListener(fn)
	}
}

func (c *Client) invokeReconnectListener(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("reconnect listener panicked")
		}
	}()
	fn()
}

func (c *Client) readLoop(sock *transportConn) {
	for {
		evt, err := sock.ReadEvent()
		if err != nil {
			c.logger.Warn().Err(err).Msg("transport read failed, will reconnect")
			return
		}
		c.handleEvent(evt)
	}
}

func (c *Client) handleEvent(evt socketEvent) {
	switch evt.Event {
	case "response":
		c.handleResponse(evt.Data)
	case "processingError":
		c.handleProcessingError(evt.Data)
	case "synchronization":
		c.handleSynchronization(evt.Data)
	default:
		c.logger.Debug().Str("event", evt.Event).Msg("unhandled socket event")
	}
}

func (c *Client) handleResponse(raw json.RawMessage) {
	payload, err := decodeEvent(raw)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to decode response event")
		return
	}
	payload = normalizeTimes(payload).(map[string]interface{})
	requestID, _ := payload["requestId"].(string)
	delete(payload, "requestId")

	req := c.takeRequest(requestID)
	if req == nil {
		return // late response for a timed-out/closed request: discarded
	}
	c.m.ObserveRPCLatency(req.reqType, time.Since(req.issuedAt))
	req.resolve <- rpcResult{payload: payload}
}

func (c *Client) handleProcessingError(raw json.RawMessage) {
	var envelope processingErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.logger.Warn().Err(err).Msg("failed to decode processingError event")
		return
	}
	req := c.takeRequest(envelope.RequestID)
	tradingErr := errorFromWire(envelope.wireError)

	if req != nil {
		req.resolve <- rpcResult{err: tradingErr}
	}

	if tradingErr.Kind.Fatal() {
		c.logger.Error().Str("requestId", envelope.RequestID).Msg("unauthorized response received, closing transport")
		go c.Close()
	}
}

func (c *Client) handleSynchronization(raw json.RawMessage) {
	decoded, err := decodeEvent(raw)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to decode synchronization event")
		return
	}
	decoded = normalizeTimes(decoded).(map[string]interface{})
	packet := Packet(decoded)
	for _, ordered := range c.orderer.RestoreOrder(packet) {
		c.dispatcher.Dispatch(ordered)
	}
}

func (c *Client) handleGapRecovery(accountID string) {
	c.m.IncGapRecovery(accountID)
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
	defer cancel()
	c.Subscribe(ctx, accountID)
}

// takeRequest atomically removes and returns requestID's pending request,
// or nil if it isn't (or is no longer) in flight.
func (c *Client) takeRequest(requestID string) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.requests[requestID]
	if !ok {
		return nil
	}
	delete(c.requests, requestID)
	return req
}

// RPC issues a request for accountID and awaits its response. requestID
// may be empty, in which case one is generated; callers
// that need server-side correlation to survive a client restart (e.g.
// synchronize) supply their own. A zero timeout uses the client's default
// request timeout.
func (c *Client) RPC(ctx context.Context, accountID, reqType string, extra interface{}, timeout time.Duration, requestID string) (map[string]interface{}, error) {
	if err := c.awaitConnect(ctx); err != nil {
		return nil, err
	}
	if requestID == "" {
		requestID = generateRequestID()
	}
	if timeout <= 0 {
		timeout = c.opts.RequestTimeout
	}

	resultCh := make(chan rpcResult, 1)
	c.mu.Lock()
	sock := c.socket
	if sock == nil {
		c.mu.Unlock()
		return nil, NotConnected
	}
	c.requests[requestID] = &pendingRequest{accountID: accountID, reqType: reqType, issuedAt: time.Now(), resolve: resultCh}
	c.mu.Unlock()

	env := requestEnvelope{
		RequestID:   requestID,
		AccountID:   accountID,
		Application: c.opts.Application,
		Type:        reqType,
		Extra:       extra,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		c.takeRequest(requestID)
		return nil, err
	}
	if err := sock.Send("request", json.RawMessage(raw)); err != nil {
		c.takeRequest(requestID)
		return nil, fmt.Errorf("metaapi: failed to send request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-resultCh:
		return res.payload, res.err
	case <-timer.C:
		c.takeRequest(requestID)
		return nil, newTimeoutError(requestID, reqType)
	case <-ctx.Done():
		c.takeRequest(requestID)
		return nil, ctx.Err()
	}
}

// awaitConnect blocks until the current (or first) connect attempt
// settles, or fails fast if none was ever started.
func (c *Client) awaitConnect(ctx context.Context) error {
	c.mu.Lock()
	fut := c.connectFuture
	c.mu.Unlock()
	if fut == nil {
		return ErrNotCallable
	}
	return fut.wait(ctx)
}

// Subscribe issues a fire-and-forget subscribe RPC: a
// Timeout is expected and swallowed (the gateway pushes synchronization
// packets independently of this RPC's reply); any other error is logged,
// counted, and optionally surfaced via OnSubscribeFailed.
func (c *Client) Subscribe(ctx context.Context, accountID string) {
	_, err := c.RPC(ctx, accountID, "subscribe", nil, 0, "")
	if err == nil {
		return
	}
	var te *TradingError
	if errors.As(err, &te) && te.Kind == KindTimeout {
		return
	}
	c.m.IncSubscribeFailure(errorKindLabel(err))
	c.logger.Warn().Err(err).Str("accountId", accountID).Msg("subscribe failed")

	c.mu.Lock()
	fn := c.onSubscribeFailed
	c.mu.Unlock()
	if fn != nil {
		fn(accountID, err)
	}
}

// WaitSynchronized issues waitSynchronized with a client-side timeout one
// second longer than the server-side wait, so the client never times out
// before the server can reply.
func (c *Client) WaitSynchronized(ctx context.Context, accountID, requestID string, serverTimeoutSeconds int) (map[string]interface{}, error) {
	extra := map[string]interface{}{"timeoutInSeconds": serverTimeoutSeconds}
	timeout := time.Duration(serverTimeoutSeconds)*time.Second + time.Second
	return c.RPC(ctx, accountID, "waitSynchronized", extra, timeout, requestID)
}

// Close is cooperative: it flips the desired-connected flag, closes the
// socket, rejects every in-flight request with a connection-closed error,
// clears the request table and listener sets, and stops the
// PacketOrderer and all HealthMonitors.
func (c *Client) Close() {
	c.mu.Lock()
	c.desiredConnected = false
	sock := c.socket
	c.socket = nil
	pending := c.requests
	c.requests = newRequestTable()
	if c.connectFuture != nil {
		c.connectFuture.resolve(ErrConnClosed)
	}
	c.mu.Unlock()

	if sock != nil {
		_ = sock.Close()
	}
	for _, req := range pending {
		req.resolve <- rpcResult{err: newClosedError()}
	}

	c.listeners.RemoveAll()
	c.orderer.Stop()

	c.healthMu.Lock()
	monitors := make([]*HealthMonitor, 0, len(c.health))
	for _, hm := range c.health {
		monitors = append(monitors, hm)
	}
	c.health = make(map[string]*HealthMonitor)
	c.healthMu.Unlock()
	for _, hm := range monitors {
		hm.Stop()
	}
}

func errorKindLabel(err error) string {
	var te *TradingError
	if errors.As(err, &te) {
		return te.Kind.String()
	}
	return "transport"
}

// warnOnExpiringToken parses (without verifying — the client has no key
// to verify the gateway's signature with) the bearer token's claims and
// logs a warning if it's already expired or expires within a minute, so
// a caller gets a clear diagnostic instead of an opaque Unauthorized
// after dialing.
func warnOnExpiringToken(token string, logger zerolog.Logger) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		// Not every MetaApi token is a JWT (some are opaque API keys);
		// this is informational only, so a parse failure is silent.
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	if remaining := time.Until(exp.Time); remaining < time.Minute {
		logger.Warn().Time("expiresAt", exp.Time).Msg("metaapi auth token is expired or expiring imminently")
	}
}
