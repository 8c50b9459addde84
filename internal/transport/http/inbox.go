package httptransport

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tempinbox/backend/internal/service"
)

// maxTTLMinutes 客户端可请求的最长生存时间
const maxTTLMinutes = 24 * 60

// InboxHandler 收件箱相关接口
type InboxHandler struct {
	inboxes  *service.InboxService
	messages *service.MessageService
}

// NewInboxHandler 创建收件箱处理器
func NewInboxHandler(inboxes *service.InboxService, messages *service.MessageService) *InboxHandler {
	return &InboxHandler{inboxes: inboxes, messages: messages}
}

// Create 创建收件箱，可选 ?ttl= 指定分钟数
func (h *InboxHandler) Create(c *gin.Context) {
	var ttl time.Duration
	if raw := c.Query("ttl"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes < 1 || minutes > maxTTLMinutes {
			BadRequest(c, MsgInvalidTTL)
			return
		}
		ttl = time.Duration(minutes) * time.Minute
	}

	inbox, err := h.inboxes.Create(c.Request.Context(), ttl)
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, inbox)
}

// Get 获取收件箱
func (h *InboxHandler) Get(c *gin.Context) {
	inbox, err := h.inboxes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, inbox)
}

// Rotate 更换地址
func (h *InboxHandler) Rotate(c *gin.Context) {
	inbox, err := h.inboxes.Rotate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessWithMsg(c, "邮箱地址已更换", inbox)
}

// Refresh 只确认收件箱仍然存在，邮件通过推送或列表接口获取
func (h *InboxHandler) Refresh(c *gin.Context) {
	if _, err := h.inboxes.Get(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	SuccessWithMsg(c, "刷新成功", nil)
}

// Delete 删除收件箱及其邮件
func (h *InboxHandler) Delete(c *gin.Context) {
	if err := h.inboxes.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	Deleted(c, nil)
}

// ListMessages 列出收件箱中的邮件
func (h *InboxHandler) ListMessages(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.inboxes.Get(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	messages, err := h.messages.ListByInbox(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, messages)
}

// DeleteMessages 软删除收件箱中的全部邮件
func (h *InboxHandler) DeleteMessages(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.inboxes.Get(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	n, err := h.messages.SoftDeleteAllForInbox(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	Deleted(c, gin.H{"deleted": n})
}
