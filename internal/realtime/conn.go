package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Transport is the duplex message channel under a Conn. *websocket.Conn
// satisfies it.
type Transport interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

var errConnClosed = errors.New("realtime: connection not open")

// Conn is one live connection owned by exactly one user.
type Conn struct {
	UserID uint

	t            Transport
	writeTimeout time.Duration

	mu    sync.Mutex // guards state and serializes writes
	state State
}

func newConn(userID uint, t Transport, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Conn{UserID: userID, t: t, writeTimeout: writeTimeout, state: StateConnecting}
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) apply(ev event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, ok := transition(c.state, ev)
	if ok {
		c.state = next
	}
	return ok
}

// open marks a verified connection as open.
func (c *Conn) open() bool { return c.apply(evVerified) }

// write sends one text frame if the connection is open. A transport failure
// or write timeout closes the connection, so later writes fail fast instead
// of queueing behind a dead socket. A caller whose own ctx ended leaves the
// connection open.
func (c *Conn) write(ctx context.Context, b []byte) error {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return errConnClosed
	}
	wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	err := c.t.Write(wctx, websocket.MessageText, b)
	cancel()
	c.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		c.close(websocket.StatusInternalError, "write failed")
	}
	return err
}

// close moves the connection to closed and closes the transport once.
func (c *Conn) close(code websocket.StatusCode, reason string) {
	if !c.apply(evClosed) {
		return
	}
	_ = c.t.Close(code, reason)
}
