package terminal

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vburojevic/opctl/internal/protocol"
	"github.com/vburojevic/opctl/internal/session"
)

// conn is one terminal channel. It implements session.Sender.
type conn struct {
	id      string
	ep      *Endpoint
	ws      *websocket.Conn
	logger  *zap.Logger
	limiter *rate.Limiter

	// mu serializes enqueueing so INIT precedes any broadcast.
	mu   sync.Mutex
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}

	// authed is only touched by the read pump.
	authed bool
}

func newConn(e *Endpoint, ws *websocket.Conn) *conn {
	limit := rate.Inf
	if e.cfg.MessagesPerSecond > 0 {
		limit = rate.Limit(e.cfg.MessagesPerSecond)
	}
	id := uuid.NewString()
	return &conn{
		id:      id,
		ep:      e,
		ws:      ws,
		logger:  e.logger.With(zap.String("session", id)),
		limiter: rate.NewLimiter(limit, e.cfg.Burst),
		send:    make(chan []byte, e.cfg.SendBuffer),
		closed:  make(chan struct{}),
	}
}

func (c *conn) ID() string { return c.id }

// Send queues msg for the write pump. It never blocks on the transport.
func (c *conn) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueue(data)
}

func (c *conn) enqueue(data []byte) error {
	select {
	case <-c.closed:
		return session.ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return session.ErrClosed
	default:
		return session.ErrBufferFull
	}
}

// Close sends a close frame with code and reason, then drops the connection.
// Only the first call has any effect.
func (c *conn) Close(code int, reason string) error {
	return c.terminate(websocket.FormatCloseMessage(code, reason))
}

func (c *conn) terminate(frame []byte) error {
	var err error
	c.closeOnce.Do(func() {
		if frame != nil {
			_ = c.ws.WriteControl(websocket.CloseMessage, frame, c.ep.deadline(c.ep.cfg.WriteWait))
		}
		close(c.closed)
		err = c.ws.Close()
	})
	return err
}

func (c *conn) readPump() {
	defer func() {
		c.ep.registry.Unregister(c)
		_ = c.terminate(nil)
	}()

	pongWait := 2 * c.ep.cfg.PingInterval
	c.ws.SetReadLimit(c.ep.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(c.ep.deadline(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(c.ep.deadline(pongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				select {
				case <-c.closed:
				default:
					c.logger.Debug("terminal read failed", zap.Error(err))
				}
			}
			return
		}
		if !c.handle(frame) {
			return
		}
	}
}

func (c *conn) writePump() {
	ticker := c.ep.clock.Ticker(c.ep.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(c.ep.deadline(c.ep.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("terminal write failed", zap.Error(err))
				_ = c.terminate(nil)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, c.ep.deadline(c.ep.cfg.WriteWait)); err != nil {
				_ = c.terminate(nil)
				return
			}
		case <-c.ep.group.stopping():
			_ = c.Close(websocket.CloseNormalClosure, ShutdownReason)
			return
		case <-c.closed:
			return
		}
	}
}
