package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Identity is the user a connection has authenticated as.
type Identity struct {
	Username string
	IsAdmin  bool
}

type Conn struct {
	conn    *websocket.Conn
	context context.Context
	id      int
	// sessionUser is the user of the HTTP session that opened the
	// connection. It is empty when the upgrade was not authenticated.
	sessionUser string

	mu       sync.RWMutex
	identity *Identity

	writeStream      chan *Event
	readStream       chan<- *Event
	notifyDisconnect func()
	ticker           *time.Ticker
	logger           *slog.Logger
	readLimit        int64
}

func (c *Conn) ID() int {
	return c.id
}

func (c *Conn) bind(identity Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = &identity
}

func (c *Conn) Identity() (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return Identity{}, false
	}
	return *c.identity, true
}

func (c *Conn) close() {
	close(c.writeStream)
}

func (c *Conn) readLoop() {
	c.logger.Debug("read loop started")
	defer func() {
		c.notifyDisconnect()
		c.conn.Close()
		c.logger.Debug("read loop stopped")
	}()

	c.conn.SetReadLimit(c.readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		format, r, err := c.conn.NextReader()
		if err != nil {
			c.logReadError(err)
			return
		}
		if format != websocket.TextMessage {
			c.logger.Warn("dropping non-text frame", slog.Int("format", format))
			continue
		}

		event := &Event{}
		if err := DecodeEvent(r, event); err != nil {
			// malformed frames are dropped, the connection stays open
			c.logger.Warn("dropping malformed frame", slog.String("err", err.Error()))
			continue
		}
		event.ConnID = c.id
		c.logger.Debug("frame received", slog.String("type", event.Type))

		select {
		case c.readStream <- event:
		case <-c.context.Done():
			return
		}
	}
}

func (c *Conn) logReadError(err error) {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.logger.Debug("closed by peer", slog.String("reason", err.Error()))
	case websocket.IsUnexpectedCloseError(err):
		c.logger.Warn("unexpected close", slog.String("err", err.Error()))
	default:
		c.logger.Debug("read failed", slog.String("err", err.Error()))
	}
}

// writeControl writes a close or ping frame.
func (c *Conn) writeControl(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

func (c *Conn) writeEvent(e *Event) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if err := EncodeEvent(w, e); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (c *Conn) writeLoop() {
	c.logger.Debug("write loop started")
	defer func() {
		c.ticker.Stop()
		c.conn.Close()
		c.logger.Debug("write loop stopped")
	}()

	for {
		select {
		case e, ok := <-c.writeStream:
			if !ok {
				c.writeControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.writeEvent(e); err != nil {
				c.logger.Warn("writing frame", slog.String("type", e.Type), slog.String("err", err.Error()))
				return
			}
		case <-c.context.Done():
			c.writeControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
			return
		case <-c.ticker.C:
			if err := c.writeControl(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("writing ping", slog.String("err", err.Error()))
				return
			}
		}
	}
}
