package xray

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/omeyang/xraykit/pkg/observability/xlog"
	"github.com/omeyang/xraykit/pkg/observability/xsampling"
	"github.com/omeyang/xraykit/pkg/observability/xsegment"
	"github.com/omeyang/xraykit/pkg/observability/xtrace"
)

// Tracer 进程级入口：持有配置、采样器与共享的 Client。
//
//	tracer, err := xray.NewTracer(cfg)
//	defer tracer.Close(ctx)
//	err = tracer.Trace(ctx, func(ctx context.Context, seg *xsegment.Segment) error { ... })
type Tracer struct {
	client       *Client
	logger       xlog.Logger
	logCleanup   func() error
	fixedSampler bool

	mu      sync.RWMutex
	cfg     Config
	version string
	sampler xsampling.Sampler
}

// NewTracer 校验配置并创建 Transport、worker pool、Client 与采样器。
//
// 未通过 WithTransport 指定传输层时发往 cfg.Daemon.Address；cfg.Breaker.Enabled 时外包熔断器。
// 未通过 WithLogger 指定日志时按 cfg.Log 构建，Close 时关闭其轮转文件。
func NewTracer(cfg Config, opts ...Option) (_ *Tracer, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	version, err := cfg.ResolveVersion()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	o := defaultOptions()
	o.workers, o.queueSize = cfg.Worker.Num, cfg.Worker.MaxQueueSize
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	var logCleanup func() error
	if o.logger == nil {
		logger, cleanup, lerr := cfg.BuildLogger()
		if lerr != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, lerr)
		}
		o.logger, logCleanup = logger, cleanup
		defer func() {
			if err != nil {
				_ = cleanup()
			}
		}()
	}
	applyOptions(&o, nil)

	if o.transport == nil {
		if o.transport, err = newConfiguredTransport(cfg, o.logger); err != nil {
			return nil, err
		}
	}

	sampler := o.sampler
	if sampler == nil {
		if sampler, err = cfg.NewSampler(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	client, err := newClient(o)
	if err != nil {
		return nil, err
	}
	return &Tracer{
		client:       client,
		logger:       o.logger,
		logCleanup:   logCleanup,
		fixedSampler: o.sampler != nil,
		cfg:          cfg,
		version:      version,
		sampler:      sampler,
	}, nil
}

func newConfiguredTransport(cfg Config, logger xlog.Logger) (Transport, error) {
	udp, err := NewUDPTransport(cfg.Daemon.Address)
	if err != nil {
		return nil, err
	}
	if !cfg.Breaker.Enabled {
		return udp, nil
	}
	return NewBreakerTransport(udp,
		WithBreakerFailures(cfg.Breaker.Failures),
		WithBreakerTimeout(cfg.Breaker.Timeout),
		WithBreakerStateChange(func(from, to string) {
			logger.Warn(context.Background(), "xray: transport breaker state changed",
				slog.String("from", from), slog.String("to", to))
		}),
	)
}

// Name 返回服务名
func (t *Tracer) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg.Name
}

// Config 返回当前配置的副本
func (t *Tracer) Config() Config {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg
}

// Client 返回共享的 Client
func (t *Tracer) Client() *Client { return t.client }

// Logger 返回 SDK 日志
func (t *Tracer) Logger() xlog.Logger { return t.logger }

// Sampler 返回当前采样器
func (t *Tracer) Sampler() xsampling.Sampler {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sampler
}

// BuildTrace 从入站 header 构造 Trace（header 为空时生成新 Trace），采样规则见 xtrace.Build
func (t *Tracer) BuildTrace(ctx context.Context, header string) xtrace.Trace {
	return xtrace.Build(ctx, header, time.Now(), t.Sampler())
}

// NewContext 以 Tracer 的服务名、版本与 Client 创建 Context
func (t *Tracer) NewContext(tr xtrace.Trace) (*Context, error) {
	t.mu.RLock()
	name, version := t.cfg.Name, t.version
	t.mu.RUnlock()
	return NewContext(name, t.client, tr, WithServiceVersion(version))
}

// Trace 开启一条新 Trace：创建并安装 Context，在 base segment 中执行 fn
func (t *Tracer) Trace(ctx context.Context, fn func(context.Context, *xsegment.Segment) error) error {
	return t.TraceHeader(ctx, "", fn)
}

// TraceHeader 同 Trace，Trace 由入站 header 构造
func (t *Tracer) TraceHeader(ctx context.Context, header string, fn func(context.Context, *xsegment.Segment) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := t.NewContext(t.BuildTrace(ctx, header))
	if err != nil {
		return err
	}
	return c.StartSegment(Install(ctx, c), fn)
}

// Reconfigure 应用新配置：服务名、版本、采样率与 worker pool 规模。
//
// daemon 地址、熔断与日志配置在运行期不可变更，变化时记录警告并忽略。
func (t *Tracer) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	version, err := cfg.ResolveVersion()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	var sampler xsampling.Sampler
	if !t.fixedSampler {
		if sampler, err = cfg.NewSampler(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if err := t.client.Reconfigure(cfg.Worker.Num, cfg.Worker.MaxQueueSize); err != nil {
		return err
	}

	t.mu.Lock()
	old := t.cfg
	t.cfg, t.version = cfg, version
	if sampler != nil {
		t.sampler = sampler
	}
	t.mu.Unlock()

	if old.Daemon != cfg.Daemon || old.Breaker != cfg.Breaker || old.Log != cfg.Log {
		t.logger.Warn(context.Background(), "xray: daemon, breaker and log settings require restart",
			slog.String("daemon", old.Daemon.Address))
	}
	return nil
}

// Close 关闭 Client，等待已排队的文档发送完成（受 ctx 约束）。
// 排空完成后关闭由 cfg.Log 构建的日志文件。
func (t *Tracer) Close(ctx context.Context) error {
	if err := t.client.Close(ctx); err != nil {
		return err
	}
	if t.logCleanup != nil {
		return t.logCleanup()
	}
	return nil
}
