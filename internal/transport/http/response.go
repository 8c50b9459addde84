package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构，code 与 HTTP 状态码保持一致
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

const (
	CodeSuccess            = http.StatusOK
	CodeCreated            = http.StatusCreated
	CodeBadRequest         = http.StatusBadRequest
	CodeNotFound           = http.StatusNotFound
	CodeConflict           = http.StatusConflict
	CodeInternalError      = http.StatusInternalServerError
	CodeServiceUnavailable = http.StatusServiceUnavailable
)

func respond(c *gin.Context, status int, msg string, data interface{}) {
	c.JSON(status, Response{Code: status, Msg: msg, Data: data})
}

// Success 200，附带收件箱或邮件数据
func Success(c *gin.Context, data interface{}) {
	respond(c, CodeSuccess, "成功", data)
}

func SuccessWithMsg(c *gin.Context, msg string, data interface{}) {
	respond(c, CodeSuccess, msg, data)
}

// Created 201，新建收件箱
func Created(c *gin.Context, data interface{}) {
	respond(c, CodeCreated, "创建成功", data)
}

// Deleted 删除同样返回 200，便于客户端读取删除数量
func Deleted(c *gin.Context, data interface{}) {
	respond(c, CodeSuccess, "删除成功", data)
}

func BadRequest(c *gin.Context, msg string) {
	respond(c, CodeBadRequest, msg, nil)
}

func NotFound(c *gin.Context, msg string) {
	respond(c, CodeNotFound, msg, nil)
}

func Conflict(c *gin.Context, msg string) {
	respond(c, CodeConflict, msg, nil)
}

func InternalError(c *gin.Context, msg string) {
	respond(c, CodeInternalError, msg, nil)
}

// ServiceUnavailable 503，健康检查失败时 data 携带各依赖状态
func ServiceUnavailable(c *gin.Context, msg string, data interface{}) {
	respond(c, CodeServiceUnavailable, msg, data)
}

// Error 按指定 HTTP 状态码返回错误
func Error(c *gin.Context, status int, msg string) {
	respond(c, status, msg, nil)
}
