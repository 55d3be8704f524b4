package xray

import (
	"io"
	"os"

	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/xraykit/pkg/observability/xlog"
	"github.com/omeyang/xraykit/pkg/observability/xsampling"
)

const (
	// DefaultWorkers 默认发送 worker 数
	DefaultWorkers = 10
	// DefaultMaxQueueSize 默认发送队列容量
	DefaultMaxQueueSize = 1000
)

// Option Client / Tracer 配置选项
type Option func(*options)

type options struct {
	transport     Transport
	sync          bool
	workers       int
	queueSize     int
	handler       ErrorHandler
	fallback      io.Writer
	logger        xlog.Logger
	meterProvider metric.MeterProvider
	sampler       xsampling.Sampler
}

func defaultOptions() options {
	return options{
		workers:   DefaultWorkers,
		queueSize: DefaultMaxQueueSize,
		fallback:  os.Stderr,
	}
}

func applyOptions(o *options, opts []Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = xlog.Default()
	}
	if o.handler == nil {
		o.handler = NewDefaultErrorHandler(o.fallback)
	}
}

// WithTransport 替换传输层，默认发往 DefaultDaemonAddress 的 UDPTransport
func WithTransport(t Transport) Option {
	return func(o *options) {
		if t != nil {
			o.transport = t
		}
	}
}

// WithSync 在调用方 goroutine 中同步发送，不使用 worker pool。
// 用于测试或需要确定性输出的工具。
func WithSync() Option {
	return func(o *options) { o.sync = true }
}

// WithWorkers 设置 worker 数量与队列容量（取值范围同 xpool.New）
func WithWorkers(workers, queueSize int) Option {
	return func(o *options) {
		o.workers = workers
		o.queueSize = queueSize
	}
}

// WithErrorHandler 设置投递失败处理器，默认写入 stderr
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) {
		if h != nil {
			o.handler = h
		}
	}
}

// WithFallbackWriter ErrorHandler 自身 panic 时的兜底输出，默认 stderr
func WithFallbackWriter(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.fallback = w
		}
	}
}

// WithLogger 设置日志，默认 xlog.Default()
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMeterProvider 设置 MeterProvider，默认 otel.GetMeterProvider()
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// WithSampler 覆盖由 sampling_rate 派生的采样器（仅 Tracer 使用）
func WithSampler(s xsampling.Sampler) Option {
	return func(o *options) {
		if s != nil {
			o.sampler = s
		}
	}
}
