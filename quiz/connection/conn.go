package connection

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"mioserver/models"
	"mioserver/quiz/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrClosed       = errors.New("connection closed")
	ErrBackpressure = errors.New("send buffer full")
)

// Conn is one client's WebSocket. Writes go through a buffered channel drained by
// writePump so Send never blocks the room queue.
type Conn struct {
	id        string
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	cfg       models.WebSocketConfig
	logger    *zap.Logger
}

func newConn(ws *websocket.Conn, cfg models.WebSocketConfig, logger *zap.Logger) *Conn {
	size := cfg.SendBuffer
	if size <= 0 {
		size = 64
	}
	id := uuid.NewString()
	return &Conn{
		id:     id,
		ws:     ws,
		send:   make(chan []byte, size),
		done:   make(chan struct{}),
		cfg:    cfg,
		logger: logger.With(zap.String("socketID", id)),
	}
}

func (c *Conn) ID() string { return c.id }

// Send queues msg for writing. A client that cannot keep up is disconnected.
func (c *Conn) Send(msg protocol.Outbound) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		c.logger.Warn("Send buffer full, closing connection", zap.String("type", msg.Type))
		c.Close()
		return ErrBackpressure
	}
}

// Close は何度呼んでもよい。実際の切断は writePump が行う
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump はキューのメッセージと Ping を書き出す。終了時に接続を閉じる
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Info("Error writing message", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Info("Error sending ping", zap.Error(err))
				c.Close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteWait))
			return
		}
	}
}
