package domain

import "errors"

// 业务错误分类，各存储实现需将驱动错误转换为以下哨兵错误。
var (
	// ErrInboxNotFound 收件箱不存在或已过期
	ErrInboxNotFound = errors.New("inbox not found")
	// ErrMessageNotFound 邮件不存在
	ErrMessageNotFound = errors.New("message not found")
	// ErrAddressConflict 地址冲突，调用方应重新生成地址
	ErrAddressConflict = errors.New("address already exists")
	// ErrResourceExhausted 地址重试次数耗尽
	ErrResourceExhausted = errors.New("address allocation exhausted")
	// ErrMalformedMessage 邮件无法解析
	ErrMalformedMessage = errors.New("malformed message")
	// ErrTransportFailure 订阅者连接已断开
	ErrTransportFailure = errors.New("subscriber transport failure")
)
