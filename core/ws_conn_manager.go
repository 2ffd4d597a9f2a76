package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Default maximum message size allowed from peer.
	defaultReadLimit = 64 << 10
)

type ConnIDGenerator interface {
	Generate(r *http.Request, conn *websocket.Conn) (int, error)
}

type AutoIncrementConnIDGenerator struct {
	counter int64
	mu      sync.Mutex
}

func (g *AutoIncrementConnIDGenerator) Generate(_ *http.Request, _ *websocket.Conn) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return int(g.counter), nil
}

// ConnManager owns every open realtime connection. Connections are keyed by
// a process-wide ID because a connection has no user until it sends an
// auth event.
type ConnManager struct {
	conns   map[int]*Conn
	mu      sync.RWMutex
	connWg  *sync.WaitGroup
	context context.Context
	logger  *slog.Logger

	onConnectionOpened func(int)
	onConnectionClosed func(int)

	receivedEvent chan *Event

	idGenerator     ConnIDGenerator
	upgrader        websocket.Upgrader
	ReadStreamSize  int
	WriteStreamSize int
	ReadLimit       int64
}

var defaultUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type ManagerOption func(*ConnManager)

func WithCheckOrigin(f func(r *http.Request) bool) ManagerOption {
	return func(m *ConnManager) {
		m.upgrader.CheckOrigin = f
	}
}

func WithReadLimit(n int64) ManagerOption {
	return func(m *ConnManager) {
		if n > 0 {
			m.ReadLimit = n
		}
	}
}

func WithStreamSizes(read, write int) ManagerOption {
	return func(m *ConnManager) {
		m.ReadStreamSize = read
		m.WriteStreamSize = write
	}
}

func NewConnManager(context context.Context, wg *sync.WaitGroup, logger *slog.Logger, opts ...ManagerOption) *ConnManager {

	m := &ConnManager{
		connWg:             wg,
		conns:              make(map[int]*Conn),
		logger:             logger,
		context:            context,
		idGenerator:        &AutoIncrementConnIDGenerator{},
		upgrader:           defaultUpgrader,
		ReadStreamSize:     100,
		WriteStreamSize:    100,
		ReadLimit:          defaultReadLimit,
		onConnectionOpened: func(int) {},
		onConnectionClosed: func(int) {},
	}

	for _, opt := range opts {
		opt(m)
	}

	m.receivedEvent = make(chan *Event, m.ReadStreamSize)

	return m
}

func (m *ConnManager) Receive() <-chan *Event {
	return m.receivedEvent
}

func (m *ConnManager) OnConnectionOpened(f func(int)) {
	m.onConnectionOpened = f
}

func (m *ConnManager) OnConnectionClosed(f func(int)) {
	m.onConnectionClosed = f
}

// Len returns the number of open connections.
func (m *ConnManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Connect upgrades the request and starts serving the connection.
// sessionUser is the user of the HTTP session, or empty if there is none.
func (m *ConnManager) Connect(sessionUser string, w http.ResponseWriter, r *http.Request) (int, error) {

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied to the client
		return 0, err
	}

	id, err := m.idGenerator.Generate(r, conn)
	if err != nil {
		conn.Close()
		return 0, fmt.Errorf("generate connection id: %w", err)
	}

	wsConn := &Conn{
		id:          id,
		sessionUser: sessionUser,
		conn:        conn,
		context:     m.context,
		writeStream: make(chan *Event, m.WriteStreamSize),
		readStream:  m.receivedEvent,
		ticker:      time.NewTicker(pingPeriod),
		readLimit:   m.ReadLimit,
		logger:      m.logger.With(slog.Int("connection", id)),
		notifyDisconnect: func() {
			m.disconnect(id)
		},
	}

	m.mu.Lock()
	m.conns[id] = wsConn
	m.mu.Unlock()

	m.connWg.Add(1)
	go func() {
		defer m.connWg.Done()
		wsConn.readLoop()
	}()
	m.connWg.Add(1)
	go func() {
		defer m.connWg.Done()
		wsConn.writeLoop()
	}()

	m.onConnectionOpened(id)

	return id, nil
}

// Bind sets the identity of a connection. It reports false when the
// connection is no longer open.
func (m *ConnManager) Bind(id int, identity Identity) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	if !ok {
		return false
	}
	c.bind(identity)
	return true
}

// Identity returns the identity bound to a connection.
func (m *ConnManager) Identity(id int) (Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	if !ok {
		return Identity{}, false
	}
	return c.Identity()
}

// SessionUser returns the user of the HTTP session that opened a connection.
func (m *ConnManager) SessionUser(id int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	if !ok {
		return ""
	}
	return c.sessionUser
}

func (m *ConnManager) disconnect(ids ...int) {
	m.mu.Lock()
	closed := make([]int, 0, len(ids))
	for _, id := range ids {
		c, ok := m.conns[id]
		if !ok {
			continue
		}
		c.close()
		delete(m.conns, id)
		closed = append(closed, id)
	}
	m.mu.Unlock()

	for _, id := range closed {
		m.onConnectionClosed(id)
	}
}

// Close disconnects every connection.
func (m *ConnManager) Close() {
	m.mu.RLock()
	ids := make([]int, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	m.disconnect(ids...)
}

// sendWhere queues e on every connection accepted by match. A connection
// whose write queue is full is disconnected.
func (m *ConnManager) sendWhere(e *Event, match func(*Conn) bool) {
	var slow []int
	m.mu.RLock()
	for id, conn := range m.conns {
		if !match(conn) {
			continue
		}
		select {
		case conn.writeStream <- e:
		default:
			slow = append(slow, id)
		}
	}
	m.mu.RUnlock()

	if len(slow) > 0 {
		m.logger.Info("disconnecting slow connections", slog.Any("ids", slow))
		m.disconnect(slow...)
	}
}

func (m *ConnManager) Send(e *Event) {
	m.sendWhere(e, func(*Conn) bool { return true })
}

func (m *ConnManager) SendToUsers(e *Event, usernames ...string) {
	m.sendWhere(e, func(c *Conn) bool {
		identity, ok := c.Identity()
		return ok && slices.Contains(usernames, identity.Username)
	})
}

func (m *ConnManager) SendToConn(e *Event, id int) {
	m.sendWhere(e, func(c *Conn) bool {
		return c.id == id
	})
}

func (m *ConnManager) SendWhere(e *Event, match func(Identity) bool) {
	m.sendWhere(e, func(c *Conn) bool {
		identity, _ := c.Identity()
		return match(identity)
	})
}
