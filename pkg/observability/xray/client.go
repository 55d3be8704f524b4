package xray

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"

	"github.com/omeyang/xraykit/pkg/observability/xlog"
	"github.com/omeyang/xraykit/pkg/util/xpool"
)

// payloadHeader daemon 协议的第一行
const payloadHeader = `{"format":"json","version":1}` + "\n"

// Encode 生成 daemon payload：固定头一行 + 文档一行，各以 '\n' 结尾
func Encode(doc []byte) []byte {
	buf := make([]byte, 0, len(payloadHeader)+len(doc)+1)
	buf = append(buf, payloadHeader...)
	buf = append(buf, doc...)
	return append(buf, '\n')
}

// EncodeDocument 序列化 segment / subsegment 并生成 payload
func EncodeDocument(doc json.Marshaler) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return Encode(b), nil
}

// Sender 接收已完成的 segment / subsegment 文档
type Sender interface {
	Send(ctx context.Context, doc json.Marshaler) error
}

var _ Sender = (*Client)(nil)

// Client 持有投递目的地，负责编码与发送文档。
//
// 默认经由有界 worker pool 异步发送：Send 只做编码与非阻塞入队，
// 队列满时立即返回 ErrQueueFull 并通知 ErrorHandler 一次。
// WithSync 模式下在调用方 goroutine 中直接写入 Transport。
//
// Client 并发安全，多个 Context（包括 Copy 出的副本）共享同一个 Client。
type Client struct {
	transport Transport
	pool      *xpool.Pool[[]byte]
	handler   ErrorHandler
	fallback  io.Writer
	logger    xlog.Logger
	metrics   *deliveryMetrics
}

// NewClient 创建 Client
func NewClient(opts ...Option) (*Client, error) {
	o := defaultOptions()
	applyOptions(&o, opts)
	return newClient(o)
}

func newClient(o options) (*Client, error) {
	m, err := newDeliveryMetrics(o.meterProvider)
	if err != nil {
		return nil, err
	}
	transport := o.transport
	if transport == nil {
		if transport, err = NewUDPTransport(DefaultDaemonAddress); err != nil {
			return nil, err
		}
	}
	c := &Client{
		transport: transport,
		handler:   o.handler,
		fallback:  o.fallback,
		logger:    o.logger,
		metrics:   m,
	}
	if !o.sync {
		c.pool, err = xpool.New(o.workers, o.queueSize, c.deliver,
			xpool.WithName("xray"),
			xpool.WithLogger(xlog.Slog(o.logger)),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return c, nil
}

// Send 编码 doc 并投递。
//
// 传输失败只路由到 ErrorHandler，返回 nil；编码失败、队列满、Client 已关闭
// 除通知 ErrorHandler 外也返回错误，便于调用方统计。Send 从不阻塞在网络 I/O 上（同步模式除外）。
func (c *Client) Send(ctx context.Context, doc json.Marshaler) error {
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := EncodeDocument(doc)
	if err != nil {
		err = fmt.Errorf("xray: encode segment: %w", err)
		c.metrics.recordRejected(ctx, reasonEncode)
		c.handleError(err, nil)
		return err
	}

	if c.pool == nil {
		c.deliver(payload)
		return nil
	}

	if err := c.pool.Submit(payload); err != nil {
		reason := reasonClosed
		if errors.Is(err, xpool.ErrQueueFull) {
			reason = reasonQueueFull
			err = fmt.Errorf("%w: %w", ErrQueueFull, err)
		} else {
			err = fmt.Errorf("%w: %w", ErrClientClosed, err)
		}
		c.metrics.recordRejected(ctx, reason)
		c.handleError(err, payload)
		return err
	}
	c.logger.Debug(ctx, "xray: segment queued", slog.Int("payload_size", len(payload)))
	return nil
}

// deliver 在 worker（或同步模式下的调用方）中发送 payload，错误不向外抛出
func (c *Client) deliver(payload []byte) {
	ctx := context.Background()
	if err := c.transport.Send(payload); err != nil {
		c.metrics.recordFailed(ctx, err)
		c.handleError(err, payload)
		return
	}
	c.metrics.recordSent(ctx)
}

// handleError 调用 ErrorHandler，其 panic 被捕获并写入兜底输出
func (c *Client) handleError(err error, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(c.fallback, "xray: error handler %T panicked: %v\n%s\n", c.handler, r, debug.Stack())
		}
	}()
	c.handler.HandleError(err, payload, c.transport.Destination())
}

// Reconfigure 原子替换 worker 集合与队列，已排队的 payload 不会丢失。同步模式下为 no-op。
func (c *Client) Reconfigure(workers, queueSize int) error {
	if c.pool == nil {
		return nil
	}
	if err := c.pool.Reconfigure(workers, queueSize); err != nil {
		if errors.Is(err, xpool.ErrPoolStopped) {
			return fmt.Errorf("%w: %w", ErrClientClosed, err)
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Close 停止接收新文档，等待队列排空后关闭 Transport。
//
// ctx 到期时返回 ctx.Err()，Transport 保持打开，剩余 worker 继续在后台排空队列。
func (c *Client) Close(ctx context.Context) error {
	if c.pool != nil {
		if err := c.pool.Shutdown(ctx); err != nil {
			return err
		}
	}
	return c.transport.Close()
}

// Destination 返回 Transport 的投递目的地
func (c *Client) Destination() string {
	return c.transport.Destination()
}

// Pending 返回队列中等待发送的 payload 数，同步模式恒为 0
func (c *Client) Pending() int {
	if c.pool == nil {
		return 0
	}
	return c.pool.Len()
}
