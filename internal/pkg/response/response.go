package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/lk2023060901/chunkjson/internal/pkg/errors"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`              // 业务错误码（0表示成功）
	Message string      `json:"message,omitempty"` // 提示信息
	Data    interface{} `json:"data"`              // 实际数据（可能为空对象 {}）
}

func emptyIfNil(data interface{}) interface{} {
	if data == nil {
		return struct{}{}
	}
	return data
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: apperrors.Success,
		Data: emptyIfNil(data),
	})
}

// Created 创建资源成功（201）
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code: apperrors.Success,
		Data: emptyIfNil(data),
	})
}

// Document 原样输出已是 JSON 的文档，不做二次编码
func Document(c *gin.Context, body string) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(body))
}

// Text 输出纯文本（用于无法解析为 JSON 的导出结果）
func Text(c *gin.Context, httpStatus int, body string) {
	c.Data(httpStatus, "text/plain; charset=utf-8", []byte(body))
}

// HandleError 统一错误处理（使用AppError）
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	// 提取错误码和详情
	code := apperrors.ExtractCode(err)
	ErrorWithCode(c, code, apperrors.GetDetails(err))
}

// ErrorWithCode 使用错误码的错误响应
func ErrorWithCode(c *gin.Context, code int, details ...string) {
	c.JSON(apperrors.GetHTTPStatus(code), Response{
		Code:    code,
		Message: apperrors.FormatError(code, details...),
		Data:    struct{}{},
	})
}
