package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"tempinbox/backend/internal/service"
)

// MessageHandler 单封邮件相关接口
type MessageHandler struct {
	messages *service.MessageService
}

// NewMessageHandler 创建邮件处理器
func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

func messageID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		BadRequest(c, MsgInvalidMessageID)
		return 0, false
	}
	return id, true
}

// Get 获取邮件详情
func (h *MessageHandler) Get(c *gin.Context) {
	id, ok := messageID(c)
	if !ok {
		return
	}
	message, err := h.messages.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, message)
}

// Delete 软删除邮件
func (h *MessageHandler) Delete(c *gin.Context) {
	id, ok := messageID(c)
	if !ok {
		return
	}
	if err := h.messages.SoftDelete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	Deleted(c, nil)
}

// OTPStatus 查询验证码状态
func (h *MessageHandler) OTPStatus(c *gin.Context) {
	id, ok := messageID(c)
	if !ok {
		return
	}
	status, err := h.messages.OTPStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, status)
}
