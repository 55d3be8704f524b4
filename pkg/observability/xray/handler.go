package xray

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/omeyang/xraykit/pkg/observability/xlog"
)

// ErrorHandler 处理投递失败（队列满、传输错误、熔断）。
//
// 可能在 worker goroutine 中被并发调用。实现中的 panic 会被 Client 捕获
// 并写入兜底输出（默认 stderr），不会扩散。
type ErrorHandler interface {
	HandleError(err error, payload []byte, dest string)
}

// ErrorHandlerFunc 函数适配器
type ErrorHandlerFunc func(err error, payload []byte, dest string)

func (f ErrorHandlerFunc) HandleError(err error, payload []byte, dest string) {
	f(err, payload, dest)
}

// defaultErrorHandler 把失败信息以可读形式写入 io.Writer
type defaultErrorHandler struct {
	mu sync.Mutex
	w  io.Writer
}

// NewDefaultErrorHandler 创建写入 w 的错误处理器，输出格式：
//
//	Failed to send a segment to 127.0.0.1:2000:
//	Segment:
//	<payload>
//	Error: <err>
func NewDefaultErrorHandler(w io.Writer) ErrorHandler {
	return &defaultErrorHandler{w: w}
}

func (h *defaultErrorHandler) HandleError(err error, payload []byte, dest string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.w, "Failed to send a segment to %s:\nSegment:\n%s\nError: %v\n", dest, payload, err)
}

// logErrorHandler 通过 xlog 记录投递失败
type logErrorHandler struct {
	logger xlog.Logger
}

// NewLogErrorHandler 创建记录 Warn 日志的错误处理器。默认不输出 payload 内容，只记录长度。
func NewLogErrorHandler(logger xlog.Logger) ErrorHandler {
	if logger == nil {
		logger = xlog.Default()
	}
	return &logErrorHandler{logger: logger}
}

func (h *logErrorHandler) HandleError(err error, payload []byte, dest string) {
	h.logger.Warn(context.Background(), "xray: failed to send segment",
		xlog.Err(err),
		slog.String("destination", dest),
		slog.Int("payload_size", len(payload)),
	)
}
