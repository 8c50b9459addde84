package httptransport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempinbox/backend/internal/hub"
	"tempinbox/backend/internal/service"
	"tempinbox/backend/internal/websocket"
)

// StreamHandler 实时推送接口（SSE 与 WebSocket）
type StreamHandler struct {
	inboxes   *service.InboxService
	hub       *hub.Hub
	streamer  *websocket.Streamer
	keepAlive time.Duration
	logger    *zap.Logger
}

// NewStreamHandler 创建推送处理器
func NewStreamHandler(inboxes *service.InboxService, events *hub.Hub, streamer *websocket.Streamer, keepAlive time.Duration, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keepAlive <= 0 {
		keepAlive = 20 * time.Second
	}
	return &StreamHandler{
		inboxes:   inboxes,
		hub:       events,
		streamer:  streamer,
		keepAlive: keepAlive,
		logger:    logger,
	}
}

// SSE 以 text/event-stream 推送新邮件
//
// 首个事件为 {"connected":true}，之后每封新邮件一个 data 事件；
// 订阅被替换或收件箱被删除时结束响应。
func (h *StreamHandler) SSE(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.inboxes.Get(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	// 长连接不受服务器写超时限制
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sub := h.hub.Subscribe(id)
	defer h.hub.Unsubscribe(sub)

	if _, err := fmt.Fprint(c.Writer, "data: {\"connected\":true}\n\n"); err != nil {
		return
	}
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case message, ok := <-sub.C():
			if !ok {
				h.logger.Debug("sse subscription closed", zap.String("inbox_id", id), zap.Error(sub.Err()))
				return
			}
			payload, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("failed to encode event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
				return
			}
			c.Writer.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprint(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

// WebSocket 升级为 WebSocket 连接并推送新邮件
func (h *StreamHandler) WebSocket(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.inboxes.Get(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})
	if err := h.streamer.Serve(c.Writer, c.Request, id); err != nil {
		// Upgrade 失败时 gorilla 已写入错误响应
		h.logger.Debug("websocket upgrade failed", zap.String("inbox_id", id), zap.Error(err))
	}
}
