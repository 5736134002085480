package ws

import (
	"io"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// Conn adapts an upgraded websocket connection to the coordinator's
// frame-oriented connection.
//
// Read is called by one goroutine and Write by another; control frames
// (ping, close) may be written from any goroutine.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	pongWait     time.Duration

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewConn wraps ws, applying the read limit and the pong-driven read deadline.
//
// Precondition: ws must be an open, upgraded connection.
// Postcondition: A read that sees no frame or pong within pongWait fails.
func NewConn(ws *websocket.Conn, maxMessageBytes int64, pongWait, writeTimeout time.Duration) *Conn {
	c := &Conn{
		ws:           ws,
		writeTimeout: writeTimeout,
		pongWait:     pongWait,
		done:         make(chan struct{}),
	}
	if maxMessageBytes > 0 {
		ws.SetReadLimit(maxMessageBytes)
	}
	if pongWait > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			select {
			case <-c.done:
				return nil
			default:
			}
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	}
	return c
}

// Read returns the payload of the next data frame. A close frame from the
// peer is reported as io.EOF.
func (c *Conn) Read() ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				return nil, io.EOF
			}
			return nil, err
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		if c.pongWait > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
		}
		return data, nil
	}
}

// Write sends data as one text frame.
func (c *Conn) Write(data []byte) error {
	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a ping control frame.
func (c *Conn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.controlTimeout()))
}

// KeepAlive pings every interval until the connection is closed.
func (c *Conn) KeepAlive(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.Ping(); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// Close sends a normal close frame, fails any pending Read and closes the
// socket. Later calls return the first result.
//
// Postcondition: A Read blocked on a peer that sends nothing returns an
// error promptly.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		// The peer may already be gone; the socket is closed regardless.
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.controlTimeout()))
		// A hijacked fasthttp connection is not torn down by ws.Close until
		// the handler returns, so the blocked reader is released through its
		// deadline instead.
		_ = c.ws.SetReadDeadline(time.Now())
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *Conn) controlTimeout() time.Duration {
	if c.writeTimeout > 0 {
		return c.writeTimeout
	}
	return time.Second
}
