package connection

import (
	"context"
	"net/http"
	"time"

	"mioserver/models"
	"mioserver/quiz"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Dispatcher receives the lifecycle and frames of every connection.
type Dispatcher interface {
	Connect(sock quiz.Socket)
	Handle(ctx context.Context, sock quiz.Socket, raw []byte)
	Disconnect(ctx context.Context, sock quiz.Socket)
}

// NewUpgrader は allowOrigins に含まれるオリジンだけを受け付ける。"*" なら全て許可
func NewUpgrader(allowOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowOrigins))
	for _, o := range allowOrigins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		},
	}
}

// HandleConnections upgrades the request and pumps frames into d until the client goes away.
func HandleConnections(ctx context.Context, w http.ResponseWriter, r *http.Request, d Dispatcher, upgrader websocket.Upgrader, cfg models.WebSocketConfig, logger *zap.Logger) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade がエラーレスポンスを書き込み済み
		logger.Error("Error upgrading WebSocket", zap.Error(err))
		return
	}

	conn := newConn(ws, cfg, logger)
	go conn.writePump()

	d.Connect(conn)
	conn.logger.Info("New client connected", zap.String("remote", r.RemoteAddr))
	defer func() {
		// 切断処理はリクエストのキャンセルに関係なく最後まで行う
		d.Disconnect(context.Background(), conn)
		conn.Close()
		conn.logger.Info("Client removed")
	}()

	ws.SetReadLimit(cfg.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.Burst)
	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				conn.logger.Error("WebSocket error", zap.Error(err))
			}
			return
		}
		if !limiter.Allow() {
			conn.logger.Warn("Dropped frame over rate limit")
			continue
		}
		d.Handle(ctx, conn, message)
	}
}
