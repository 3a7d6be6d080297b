package ws

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vovakirdan/runstake/internal/money"
	"github.com/vovakirdan/runstake/internal/session"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

// connection bridges one WebSocket to a session handle.
type connection struct {
	conn    *websocket.Conn
	handle  *session.ChannelSession
	replies chan ServerMessage
	manager *session.Manager
	logger  *log.Logger

	mu   sync.RWMutex
	run  *session.Run
	user string

	closeOnce sync.Once
}

func newConnection(conn *websocket.Conn, manager *session.Manager, logger *log.Logger) *connection {
	id := uuid.New().String()
	return &connection{
		conn:    conn,
		handle:  session.NewChannelSession(id, 256),
		replies: make(chan ServerMessage, 16),
		manager: manager,
		logger:  logger.WithPrefix("conn").With("session", id),
	}
}

func (c *connection) start() {
	go c.writePump()
	go c.readPump()
}

// close ends the handle, which detaches any run and starts its grace timer.
func (c *connection) close() {
	c.closeOnce.Do(func() {
		c.handle.Close()
		_ = c.conn.Close()
	})
}

func (c *connection) attach(run *session.Run, user string) {
	c.mu.Lock()
	c.run = run
	c.user = user
	c.mu.Unlock()
	run.Attach(c.handle)
}

func (c *connection) currentRun() *session.Run {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.run
}

// observe drops the current run once it has ended so the connection can
// start or resume another.
func (c *connection) observe(evt session.Event) {
	var runID string
	switch e := evt.(type) {
	case session.EndedEvent:
		runID = e.RunID
	case session.SettledEvent:
		runID = e.RunID
	default:
		return
	}

	c.mu.Lock()
	if c.run != nil && c.run.ID() == runID {
		c.run = nil
	}
	c.mu.Unlock()
}

func (c *connection) reply(msg ServerMessage) {
	select {
	case c.replies <- msg:
	default:
		c.logger.Warn("reply buffer full, dropping message", "type", msg.Type)
	}
}

func (c *connection) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		c.handleMessage(msg)
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		var msg ServerMessage
		// Replies go first so "started" precedes the run's first state.
		select {
		case msg = <-c.replies:
			if err := c.write(msg); err != nil {
				return
			}
			continue
		default:
		}

		select {
		case evt := <-c.handle.Events():
			c.observe(evt)
			var ok bool
			if msg, ok = fromEvent(evt); !ok {
				continue
			}
		case msg = <-c.replies:
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case <-c.handle.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.write(msg); err != nil {
			return
		}
	}
}

func (c *connection) write(msg ServerMessage) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Error("Failed to write message", "error", err)
		return err
	}
	return nil
}

func (c *connection) handleMessage(msg ClientMessage) {
	c.logger.Debug("Received message", "type", msg.Type)

	switch msg.Type {
	case TypeStart:
		c.handleStart(msg)
	case TypeResume:
		c.handleResume(msg)
	case TypeInput:
		run := c.currentRun()
		if run == nil {
			c.reply(ServerMessage{Type: TypeError, Message: "no active run"})
			return
		}
		if !msg.Kind.Valid() {
			c.reply(ServerMessage{Type: TypeError, Message: "unknown input kind"})
			return
		}
		run.SendInput(msg.Kind)
	default:
		c.reply(ServerMessage{Type: TypeError, Message: "unknown message type " + msg.Type})
	}
}

func (c *connection) handleStart(msg ClientMessage) {
	if c.currentRun() != nil {
		c.reply(ServerMessage{Type: TypeError, Message: "run already attached"})
		return
	}
	if msg.Params == nil || msg.User == "" {
		c.reply(ServerMessage{Type: TypeError, Message: "start needs user and params"})
		return
	}
	stake, err := money.ParseAmount(msg.Stake)
	if err != nil {
		c.reply(ServerMessage{Type: TypeError, Message: err.Error()})
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	started, err := c.manager.Start(session.StartRequest{
		User:       msg.User,
		PlayerSeed: msg.PlayerSeed,
		Params:     *msg.Params,
		Stake:      stake,
	}, c.handle)
	if err != nil {
		c.reply(ServerMessage{Type: TypeError, Message: err.Error()})
		return
	}
	c.run = started.Run
	c.user = msg.User
	c.reply(ServerMessage{
		Type:       TypeStarted,
		RunID:      started.RunID,
		Commitment: started.Commitment,
		RunCount:   started.RunCount,
	})
}

func (c *connection) handleResume(msg ClientMessage) {
	if c.currentRun() != nil {
		c.reply(ServerMessage{Type: TypeError, Message: "run already attached"})
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	run, err := c.manager.Resume(msg.RunID, msg.User, c.handle)
	if err != nil {
		c.reply(ServerMessage{Type: TypeError, Message: err.Error()})
		return
	}
	c.run = run
	c.user = msg.User
	c.reply(ServerMessage{Type: TypeStarted, RunID: msg.RunID})
}
