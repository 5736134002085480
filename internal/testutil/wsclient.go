package testutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
)

// WSClient is a WebSocket test client speaking JSON frames.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// NewWSClient dials url and returns a test client.
//
// Precondition: url must be a ws:// URL of a listening server.
// Postcondition: Returns a connected WSClient or fails the test. The
// connection is closed on test cleanup.
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()
	start := time.Now()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", url, err, time.Since(start))
	}

	c := &WSClient{conn: conn, t: t}
	t.Cleanup(c.Close)
	return c
}

// Send writes v as one JSON text frame.
func (c *WSClient) Send(v any) {
	c.t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		c.t.Fatalf("encoding frame: %v", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Fatalf("sending frame: %v", err)
	}
}

// Receive reads the next frame and decodes it into a generic map.
func (c *WSClient) Receive(timeout time.Duration) map[string]any {
	c.t.Helper()
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		c.t.Fatalf("setting read deadline: %v", err)
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		c.t.Fatalf("decoding frame %q: %v", data, err)
	}
	return out
}

// ReceiveType reads frames until one with the given type arrives.
func (c *WSClient) ReceiveType(typ string, timeout time.Duration) map[string]any {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timed out waiting for %q", typ)
		}
		msg := c.Receive(remaining)
		if msg["type"] == typ {
			return msg
		}
	}
}

// Close sends a normal close frame and closes the connection.
func (c *WSClient) Close() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.conn.Close()
}
