package xray

//go:generate mockgen -source=transport.go -destination=mock_transport_test.go -package=xray

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker/v2"
)

// DefaultDaemonAddress X-Ray daemon 默认监听地址
const DefaultDaemonAddress = "127.0.0.1:2000"

// Transport 一次尽力而为的 payload 发送
//
// Send 可能被多个 worker 并发调用。实现不重试：失败由 Client 路由到 ErrorHandler。
type Transport interface {
	Send(payload []byte) error
	Close() error
	// Destination 用于错误报告，如 "127.0.0.1:2000"
	Destination() string
}

// =============================================================================
// UDP
// =============================================================================

// DialFunc 建立连接的函数，签名同 net.Dial
type DialFunc func(network, address string) (net.Conn, error)

// UDPTransport 向 daemon 发送单个 UDP datagram。
//
// 首次 Send 时才建立连接（connected UDP socket），连接建立失败按 retry-go 策略重试；
// 写入本身不重试，短写返回 *ShortWriteError。
type UDPTransport struct {
	addr         string
	dial         DialFunc
	dialAttempts uint
	dialDelay    time.Duration

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// UDPOption UDPTransport 配置选项
type UDPOption func(*UDPTransport)

// WithDialAttempts 设置建立连接的最大尝试次数，默认 3，0 被忽略
func WithDialAttempts(n uint) UDPOption {
	return func(t *UDPTransport) {
		if n > 0 {
			t.dialAttempts = n
		}
	}
}

// WithDialDelay 设置建立连接重试的初始间隔，默认 10ms
func WithDialDelay(d time.Duration) UDPOption {
	return func(t *UDPTransport) {
		if d >= 0 {
			t.dialDelay = d
		}
	}
}

// WithDialer 替换连接建立函数，默认 net.Dial
func WithDialer(dial DialFunc) UDPOption {
	return func(t *UDPTransport) {
		if dial != nil {
			t.dial = dial
		}
	}
}

// NewUDPTransport 创建 UDP 传输层，addr 为 host:port
func NewUDPTransport(addr string, opts ...UDPOption) (*UDPTransport, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("%w: daemon address %q: %w", ErrInvalidConfig, addr, err)
	}
	t := &UDPTransport{
		addr:         addr,
		dial:         net.Dial,
		dialAttempts: 3,
		dialDelay:    10 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// Send 写入一个 datagram
func (t *UDPTransport) Send(payload []byte) error {
	conn, err := t.connection()
	if err != nil {
		return err
	}
	n, err := conn.Write(payload)
	if err != nil {
		return fmt.Errorf("xray: udp write to %s: %w", t.addr, err)
	}
	if n != len(payload) {
		return &ShortWriteError{Written: n, Size: len(payload)}
	}
	return nil
}

func (t *UDPTransport) connection() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransportClosed
	}
	if t.conn != nil {
		return t.conn, nil
	}
	conn, err := retry.NewWithData[net.Conn](
		retry.Attempts(t.dialAttempts),
		retry.Delay(t.dialDelay),
		retry.LastErrorOnly(true),
	).Do(func() (net.Conn, error) {
		return t.dial("udp", t.addr)
	})
	if err != nil {
		return nil, fmt.Errorf("xray: dial %s: %w", t.addr, err)
	}
	t.conn = conn
	return conn, nil
}

// Close 关闭连接，之后的 Send 返回 ErrTransportClosed。可重复调用。
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *UDPTransport) Destination() string { return t.addr }

// =============================================================================
// Writer / Null
// =============================================================================

// WriterTransport 把 payload 写入 io.Writer，用于测试与本地调试（stdout / 文件）。
//
// 写入串行化，Close 不关闭底层 writer。
type WriterTransport struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterTransport 创建 WriterTransport
func NewWriterTransport(w io.Writer) (*WriterTransport, error) {
	if w == nil {
		return nil, ErrNilTransport
	}
	return &WriterTransport{w: w}, nil
}

func (t *WriterTransport) Send(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.w.Write(payload)
	if err != nil {
		return err
	}
	if n != len(payload) {
		return &ShortWriteError{Written: n, Size: len(payload)}
	}
	return nil
}

func (t *WriterTransport) Close() error { return nil }
func (t *WriterTransport) Destination() string { return "writer" }

// NullTransport 丢弃所有 payload，用于关闭投递但保留插桩
type NullTransport struct{}

// NewNullTransport 创建 NullTransport
func NewNullTransport() NullTransport { return NullTransport{} }

func (NullTransport) Send([]byte) error { return nil }
func (NullTransport) Close() error { return nil }
func (NullTransport) Destination() string { return "null" }

// =============================================================================
// 熔断
// =============================================================================

// BreakerTransport 用 gobreaker 保护下游 Transport：连续失败达到阈值后熔断，
// 熔断期间直接返回 ErrCircuitOpen，不再尝试发送。
type BreakerTransport struct {
	next Transport
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// BreakerOption BreakerTransport 配置选项
type BreakerOption func(*gobreaker.Settings)

// WithBreakerFailures 连续失败多少次后熔断，默认 5
func WithBreakerFailures(n uint32) BreakerOption {
	return func(s *gobreaker.Settings) {
		if n > 0 {
			s.ReadyToTrip = func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= n }
		}
	}
}

// WithBreakerTimeout 熔断后多久进入半开状态，默认 30s
func WithBreakerTimeout(d time.Duration) BreakerOption {
	return func(s *gobreaker.Settings) {
		if d > 0 {
			s.Timeout = d
		}
	}
}

// WithBreakerStateChange 状态变化回调
func WithBreakerStateChange(fn func(from, to string)) BreakerOption {
	return func(s *gobreaker.Settings) {
		if fn != nil {
			s.OnStateChange = func(_ string, from, to gobreaker.State) { fn(from.String(), to.String()) }
		}
	}
}

// NewBreakerTransport 用熔断器包装 next
func NewBreakerTransport(next Transport, opts ...BreakerOption) (*BreakerTransport, error) {
	if next == nil {
		return nil, ErrNilTransport
	}
	st := gobreaker.Settings{
		Name:    "xray:" + next.Destination(),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&st)
		}
	}
	return &BreakerTransport{next: next, cb: gobreaker.NewCircuitBreaker[struct{}](st)}, nil
}

func (t *BreakerTransport) Send(payload []byte) error {
	_, err := t.cb.Execute(func() (struct{}, error) {
		return struct{}{}, t.next.Send(payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return err
}

func (t *BreakerTransport) Close() error { return t.next.Close() }
func (t *BreakerTransport) Destination() string { return t.next.Destination() }

// State 返回熔断器状态：closed / half-open / open
func (t *BreakerTransport) State() string { return t.cb.State().String() }
