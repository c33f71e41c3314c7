package screens

import (
	"context"
	"net/http"
	"time"

	"wikirace/models"
	"wikirace/race"
	"wikirace/session"
	"wikirace/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingPeriod = 10 * time.Second // 10秒ごとにPingを送信
	pongWait   = 60 * time.Second // Pongが届かなければ切断
	writeWait  = 10 * time.Second
)

// NewUpgrader はWebSocketのアップグレーダーです
func NewUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// WatchRoomHandler は部屋の変更をWebSocketで届けます。
// 変更のたびに部屋の全体値を {"type":"room"} で送り、部屋が無くなったら {"type":"closed"} を送って閉じます。
func WatchRoomHandler(c *gin.Context, st store.Store, upgrader websocket.Upgrader, logger *zap.Logger) {
	code := c.Param("code")
	if !race.ValidCode(code) {
		c.JSON(http.StatusNotFound, gin.H{"status": "room_not_found", "error": "room not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade が既にエラーレスポンスを書いている
		logger.Error("Error upgrading WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, err := session.WatchRoom(ctx, st, code, logger)
	if err != nil {
		logger.Error("Failed to watch room", zap.String("code", code), zap.Error(err))
		writeMessage(conn, models.WatchMessage{Type: models.WatchTypeError})
		return
	}

	go readPump(conn, cancel)
	logger.Info("Watcher connected", zap.String("code", code))

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == session.Closed {
				writeMessage(conn, models.WatchMessage{Type: models.WatchTypeClosed})
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed"),
					time.Now().Add(writeWait))
				logger.Info("Room closed, watcher disconnected", zap.String("code", code))
				return
			}
			if err := writeMessage(conn, models.WatchMessage{Type: models.WatchTypeRoom, Room: ev.Room}); err != nil {
				logger.Info("Watcher write failed", zap.String("code", code), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Info("Error sending ping, connection is closed", zap.String("code", code), zap.Error(err))
				return
			}
		}
	}
}

func writeMessage(conn *websocket.Conn, msg models.WatchMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

// readPump はPongを受けて読み取りデッドラインを延ばし、切断されたら cancel します。
// クライアントからのメッセージは使いません。
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait)) // 60秒の読み取りデッドラインを更新
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
