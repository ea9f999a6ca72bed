package metaapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// socketEvent is this client's named-event framing over the raw websocket
// byte stream, implemented directly on gorilla/websocket with its own
// {event, data} envelope rather than a socket.io-compatible client.
type socketEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// transportConn wraps one live websocket connection. Writes are
// serialized through a mutex (the socket handle is single-owner; only the
// owning Client emits); reads happen on the caller's goroutine via
// ReadEvent, matching gorilla/websocket's single-reader requirement.
type transportConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

var dialer = websocket.Dialer{
	HandshakeTimeout: 45 * time.Second,
}

// dialTransport opens the websocket connection at
// wss://mt-client-api-v1.<domain>/ws?auth-token=<token> (the https base
// URL with its scheme switched to wss) with a random Client-id header.
func dialTransport(ctx context.Context, opts Options) (*transportConn, error) {
	u, err := url.Parse(opts.baseURL())
	if err != nil {
		return nil, fmt.Errorf("metaapi: invalid domain %q: %w", opts.Domain, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("auth-token", opts.Token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Client-id", randomClientID())

	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, err
	}
	return &transportConn{conn: conn}, nil
}

func randomClientID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Send writes a named event frame. Safe for concurrent use, though in
// practice only the Client's single request-emitting path calls it.
func (t *transportConn) Send(event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame := socketEvent{Event: event, Data: raw}
	encoded, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, encoded)
}

// ReadEvent blocks for the next inbound frame. It is only ever called
// from the Client's single read loop goroutine.
func (t *transportConn) ReadEvent() (socketEvent, error) {
	_, raw, err := t.conn.ReadMessage()
	if err != nil {
		return socketEvent{}, err
	}
	var evt socketEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return socketEvent{}, fmt.Errorf("metaapi: malformed socket frame: %w", err)
	}
	return evt, nil
}

// Close closes the underlying connection. Safe to call more than once.
func (t *transportConn) Close() error {
	return t.conn.Close()
}
