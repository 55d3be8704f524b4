package xsegment

import "net/http"

// 状态码派生错误的 Cause 类型
const (
	// TypeHTTPRequestError 4xx：调用方请求有误
	TypeHTTPRequestError = "http_request_error"
	// TypeHTTPResponseError 5xx：被调用方处理失败
	TypeHTTPResponseError = "http_response_error"
)

// ErrorInfo segment 的错误状态
//
//   - Error: 客户端错误（4xx）
//   - Throttle: 被限流（429）
//   - Fault: 服务端错误（5xx）或被追踪代码返回 error / panic
//
// 作为匿名字段嵌入文档结构，设置后三个标志总是一起输出。
type ErrorInfo struct {
	Error    bool   `json:"error"`
	Throttle bool   `json:"throttle"`
	Fault    bool   `json:"fault"`
	Cause    *Cause `json:"cause,omitempty"`
}

// ErrorFromStatus 按 HTTP 状态码派生错误状态，2xx/3xx 等返回 nil。
//
//	429      -> error + throttle, "Got 429"
//	400-499  -> error, "Got 4xx"
//	500-599  -> fault, "Got 5xx"
//
// skip 为 Cause 调用栈需要额外跳过的帧数（0 表示从调用方开始）。
func ErrorFromStatus(status int, remote bool, skip int) *ErrorInfo {
	switch {
	case status == http.StatusTooManyRequests:
		return &ErrorInfo{
			Error:    true,
			Throttle: true,
			Cause:    NewSyntheticCause("Got 429", TypeHTTPRequestError, remote, skip+1),
		}
	case status >= 400 && status < 500:
		return &ErrorInfo{
			Error: true,
			Cause: NewSyntheticCause("Got 4xx", TypeHTTPRequestError, remote, skip+1),
		}
	case status >= 500 && status < 600:
		return &ErrorInfo{
			Fault: true,
			Cause: NewSyntheticCause("Got 5xx", TypeHTTPResponseError, remote, skip+1),
		}
	}
	return nil
}

// FaultFromError 将被追踪代码返回的 error 转换为 fault 状态
func FaultFromError(err error, remote bool, skip int) *ErrorInfo {
	return &ErrorInfo{Fault: true, Cause: NewCause(err, remote, skip+1)}
}

// FaultFromPanic 将 recover() 得到的值转换为 fault 状态，需在 defer 中调用
func FaultFromPanic(v any, remote bool, skip int) *ErrorInfo {
	return &ErrorInfo{Fault: true, Cause: NewPanicCause(v, remote, skip+1)}
}
