package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tempinbox/backend/internal/domain"
)

// 错误消息映射表（业务错误 -> 状态码与中文消息）
var errorMappings = []struct {
	err    error
	status int
	msg    string
}{
	{domain.ErrInboxNotFound, http.StatusNotFound, MsgInboxNotFound},
	{domain.ErrMessageNotFound, http.StatusNotFound, MsgMessageNotFound},
	{domain.ErrAddressConflict, http.StatusConflict, "邮箱地址冲突，请重试"},
	{domain.ErrResourceExhausted, http.StatusServiceUnavailable, "暂时无法分配邮箱地址，请稍后重试"},
	{domain.ErrMalformedMessage, http.StatusBadRequest, "邮件格式无效"},
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return MsgInternalError
}

// respondError 按业务错误类型返回响应，未知错误记为 500
func respondError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			Error(c, m.status, m.msg)
			return
		}
	}
	_ = c.Error(err)
	InternalError(c, MsgInternalError)
}

// 通用错误消息
const (
	MsgInvalidTTL       = "ttl 必须是 1 到 1440 之间的分钟数"
	MsgInvalidMessageID = "邮件 ID 无效"

	MsgInboxNotFound   = "邮箱不存在或已过期"
	MsgMessageNotFound = "邮件不存在"

	MsgServiceUnhealthy = "服务依赖异常"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
