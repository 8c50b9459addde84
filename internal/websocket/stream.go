package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tempinbox/backend/internal/domain"
	"tempinbox/backend/internal/hub"
)

const (
	// writeWait 单次写入超时
	writeWait = 10 * time.Second
	// maxReadSize 客户端消息上限，连接只用于下行推送
	maxReadSize = 512
)

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeConnected MessageType = "connected"
	MessageTypeNewMail   MessageType = "new_mail"
	MessageTypeClosed    MessageType = "closed"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	InboxID   string          `json:"inboxId"`
	Data      *domain.Message `json:"data,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Streamer 将收件箱事件推送到 WebSocket 连接
type Streamer struct {
	hub        *hub.Hub
	upgrader   websocket.Upgrader
	pingPeriod time.Duration
	log        *zap.Logger
}

// NewStreamer 创建 WebSocket 推送器
//
// 参数:
//   - allowedOrigins: 允许的 Origin 列表，为空或包含 "*" 时不限制
//   - pingPeriod: 心跳间隔，对端需在两个间隔内响应
func NewStreamer(events *hub.Hub, allowedOrigins []string, pingPeriod time.Duration, log *zap.Logger) *Streamer {
	if log == nil {
		log = zap.NewNop()
	}
	if pingPeriod <= 0 {
		pingPeriod = 30 * time.Second
	}
	return &Streamer{
		hub:        events,
		upgrader:   upgraderFactory(allowedOrigins),
		pingPeriod: pingPeriod,
		log:        log,
	}
}

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// 非浏览器客户端
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// Serve 升级连接并持续推送收件箱事件，直到任一方断开
//
// 调用方负责在升级前确认收件箱存在。
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, inboxID string) error {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	sub := s.hub.Subscribe(inboxID)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.readPump(conn, cancel)
	err = s.writePump(ctx, conn, sub)

	s.hub.Unsubscribe(sub)
	conn.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Debug("websocket stream closed", zap.String("inbox_id", inboxID), zap.Error(err))
	}
	return nil
}

// readPump 丢弃客户端消息，只负责处理 pong 与断开
func (s *Streamer) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxReadSize)
	pongWait := 2 * s.pingPeriod
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump 发送事件与心跳
func (s *Streamer) writePump(ctx context.Context, conn *websocket.Conn, sub *hub.Subscription) error {
	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()

	if err := s.writeJSON(conn, Message{Type: MessageTypeConnected, InboxID: sub.InboxID()}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case message, ok := <-sub.C():
			if !ok {
				// 订阅被替换、收件箱被删除或推送过慢
				reason := ""
				if err := sub.Err(); err != nil {
					reason = err.Error()
				}
				_ = s.writeJSON(conn, Message{Type: MessageTypeClosed, InboxID: sub.InboxID(), Reason: reason})
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
				return sub.Err()
			}
			if err := s.writeJSON(conn, Message{Type: MessageTypeNewMail, InboxID: sub.InboxID(), Data: message}); err != nil {
				return err
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (s *Streamer) writeJSON(conn *websocket.Conn, msg Message) error {
	msg.Timestamp = time.Now().UTC()
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
