// Package resp 提供统一的HTTP响应封装。
package resp

import (
	"encoding/json"
	"net/http"
)

// Code 业务错误码
type Code int

const (
	CodeOK            Code = 0     // 成功
	CodeInvalidParam  Code = 40001 // 参数错误
	CodeUnauthorized  Code = 40101 // 未认证或令牌无效
	CodeForbidden     Code = 40301 // 权限不足
	CodeNotFound      Code = 40401 // 资源不存在
	CodeConflict      Code = 40901 // 状态冲突（库存不足、并发占用失败等）
	CodeRateLimited   Code = 42901 // 触发限流
	CodeTimeout       Code = 50401 // 请求超时
	CodeInternalError Code = 50001 // 服务内部错误
)

// Body 统一响应体
type Body struct {
	Code      Code   `json:"code"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// HTTPStatusFromCode 把业务错误码映射到HTTP状态码
func HTTPStatusFromCode(code Code) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// OK 写出成功响应
func OK(w http.ResponseWriter, data any, requestID, traceID string) {
	write(w, http.StatusOK, &Body{
		Code:      CodeOK,
		Data:      data,
		RequestID: requestID,
		TraceID:   traceID,
	})
}

// Error 写出错误响应
func Error(w http.ResponseWriter, status int, code Code, message, requestID, traceID string) {
	write(w, status, &Body{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		TraceID:   traceID,
	})
}

func write(w http.ResponseWriter, status int, body *Body) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// 编码失败时响应头已写出，只能放弃
	_ = json.NewEncoder(w).Encode(body)
}
