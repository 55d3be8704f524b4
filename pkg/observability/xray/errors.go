package xray

import (
	"errors"
	"fmt"
)

// =============================================================================
// 配置错误：在创建 Context / Tracer 时立即返回
// =============================================================================

var (
	// ErrMissingName 未配置服务名
	ErrMissingName = errors.New("xray: name is required")

	// ErrInvalidConfig 配置校验失败
	ErrInvalidConfig = errors.New("xray: invalid config")

	// ErrNilSender Context 缺少 Sender
	ErrNilSender = errors.New("xray: sender is nil")

	// ErrNilTransport 传输层为 nil
	ErrNilTransport = errors.New("xray: transport is nil")
)

// =============================================================================
// 协议错误：调用方使用方式有误
// =============================================================================

var (
	// ErrContextNotSet context.Context 中没有安装追踪 Context
	ErrContextNotSet = errors.New("xray: context is not set")

	// ErrSegmentNotStarted 在 StartSegment 之前调用了 StartSubsegment
	ErrSegmentNotStarted = errors.New("xray: segment did not start yet")
)

// =============================================================================
// 投递错误：只路由到 ErrorHandler，不影响被追踪代码
// =============================================================================

var (
	// ErrQueueFull 发送队列已满，payload 被拒绝
	ErrQueueFull = errors.New("xray: segment queue is full")

	// ErrClientClosed Client 已关闭
	ErrClientClosed = errors.New("xray: client is closed")

	// ErrTransportClosed 传输层已关闭
	ErrTransportClosed = errors.New("xray: transport is closed")

	// ErrCircuitOpen 熔断器打开，payload 未发送
	ErrCircuitOpen = errors.New("xray: circuit breaker is open")
)

// ShortWriteError 一次 datagram 写入的字节数少于 payload 长度。不会重试。
type ShortWriteError struct {
	Written int
	Size    int
}

func (e *ShortWriteError) Error() string {
	return fmt.Sprintf("xray: short write: sent %d of %d bytes", e.Written, e.Size)
}
