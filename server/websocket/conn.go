package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultWriteDeadline      = 5 * time.Second
	defaultCloseWriteDeadline = 2 * time.Second
)

// Conn wraps one client websocket. Writes are serialized with a mutex since
// broadcasts from concurrent publishes race freely; ping and close use
// control frames, which gorilla allows concurrently with data writes.
type Conn struct {
	id    string
	ws    *websocket.Conn
	mx    sync.Mutex
	alive atomic.Bool
	once  sync.Once
}

func newConn(ws *websocket.Conn) *Conn {
	c := &Conn{
		id: uuid.NewString(),
		ws: ws,
	}
	c.alive.Store(true)
	return c
}

func (c *Conn) ID() string {
	return c.id
}

// Send writes frame as a text message. Any error means the connection is
// unusable and the caller should drop it.
func (c *Conn) Send(frame []byte) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(defaultWriteDeadline)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *Conn) Alive() bool {
	return c.alive.Load()
}

func (c *Conn) ClearAlive() {
	c.alive.Store(false)
}

func (c *Conn) markAlive() {
	c.alive.Store(true)
}

func (c *Conn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(defaultWriteDeadline))
}

// Close sends a close frame best-effort and tears the socket down. Safe to
// call from both the monitor and the read loop.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		deadline := time.Now().Add(defaultCloseWriteDeadline)
		_ = c.ws.WriteControl(websocket.CloseMessage, []byte{}, deadline)
		err = c.ws.Close()
	})
	return err
}
