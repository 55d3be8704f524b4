package xray

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/omeyang/xraykit/pkg/context/xctx"
	"github.com/omeyang/xraykit/pkg/observability/xsegment"
	"github.com/omeyang/xraykit/pkg/observability/xtrace"
)

// Context 一次请求处理期间的追踪状态：服务名、Trace、base segment ID。
//
// 状态机：
//
//	Idle ──StartSegment──▶ BaseStarted ──StartSubsegment──▶ (嵌套的 subsegment 作用域)
//
// 所有 subsegment 的 parent 都是同一个 base segment（扁平扇出），Context 不维护调用栈。
//
// Context 通过 context.Context 传递，不会被新的 goroutine 隐式继承：
// 跨 goroutine 使用时先 Copy，再用 Install 安装到新 goroutine 的 ctx 中。
// 禁用标记与名称覆盖只属于当前 goroutine 的副本，不会被 Copy。
type Context struct {
	name    string
	sender  Sender
	trace   xtrace.Trace
	version string

	mu            sync.Mutex
	baseSegmentID string
	disabled      map[string]int
	override      string
	hasOverride   bool
}

// ContextOption Context 配置选项
type ContextOption func(*Context)

// WithServiceVersion 设置 base segment 的 service.version
func WithServiceVersion(v string) ContextOption {
	return func(c *Context) { c.version = v }
}

// NewContext 创建追踪 Context。name 为空返回 ErrMissingName，sender 为 nil 返回 ErrNilSender。
func NewContext(name string, sender Sender, t xtrace.Trace, opts ...ContextOption) (*Context, error) {
	if name == "" {
		return nil, ErrMissingName
	}
	if sender == nil {
		return nil, ErrNilSender
	}
	c := &Context{name: name, sender: sender, trace: t}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Name 返回服务名
func (c *Context) Name() string { return c.name }

// Trace 返回本次请求的 Trace
func (c *Context) Trace() xtrace.Trace { return c.trace }

// ServiceVersion 返回 base segment 使用的服务版本
func (c *Context) ServiceVersion() string { return c.version }

// BaseSegmentID 返回 base segment ID，StartSegment 之前为空
func (c *Context) BaseSegmentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseSegmentID
}

// Copy 返回供其他 goroutine 使用的副本：服务名、Sender、Trace、版本与 base segment ID 相同，
// 禁用标记与名称覆盖不复制。
func (c *Context) Copy() *Context {
	return &Context{
		name:          c.name,
		sender:        c.sender,
		trace:         c.trace.Copy(),
		version:       c.version,
		baseSegmentID: c.BaseSegmentID(),
	}
}

// =============================================================================
// context.Context 集成
// =============================================================================

type contextKey struct{}

// Install 把 c 安装到 ctx，同时写入 xctx 追踪字段（trace_id、service、sampled），
// 之后的 xlog 日志会自动带上这些字段。
func Install(ctx context.Context, c *Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, contextKey{}, c)
	if c == nil {
		return ctx
	}
	sampled := c.trace.Sampled()
	// ctx 非 nil，WithTrace 不会返回错误
	ctx, _ = xctx.WithTrace(ctx, xctx.Trace{
		TraceID: c.trace.Root(),
		Service: c.name,
		Sampled: &sampled,
	})
	return ctx
}

// FromContext 返回 ctx 中安装的 Context
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(contextKey{}).(*Context)
	return c, ok && c != nil
}

// Current 返回 ctx 中安装的 Context，未安装返回 ErrContextNotSet
func Current(ctx context.Context) (*Context, error) {
	c, ok := FromContext(ctx)
	if !ok {
		return nil, ErrContextNotSet
	}
	return c, nil
}

// Started 报告 ctx 中是否安装了 Context
func Started(ctx context.Context) bool {
	_, ok := FromContext(ctx)
	return ok
}

// WithNewContext 创建 Context 并只在 fn 执行期间安装。
//
// 安装只作用于传给 fn 的 ctx，fn 返回（包括 panic）后外层 ctx 不受影响。
func WithNewContext(ctx context.Context, name string, sender Sender, t xtrace.Trace, fn func(context.Context) error, opts ...ContextOption) error {
	c, err := NewContext(name, sender, t, opts...)
	if err != nil {
		return err
	}
	return fn(Install(ctx, c))
}

// =============================================================================
// Segment / Subsegment
// =============================================================================

// finisher 已完成即可发送的文档
type finisher interface {
	json.Marshaler
	Finish(now time.Time)
}

// StartSegment 创建 base segment 并记录其 ID，然后执行 fn。
//
// fn 返回的 error 记录为 fault（附 Cause）后原样返回；fn 中的 panic 记录后重新 panic。
// 无论哪种退出路径，segment 都会被 Finish，并在 Trace 被采样时交给 Sender。
// 传给 fn 的 ctx 带有 segment_id 日志字段。
func (c *Context) StartSegment(ctx context.Context, fn func(context.Context, *xsegment.Segment) error) (err error) {
	seg := xsegment.NewSegment(c.name, c.trace)
	if c.version != "" {
		seg.SetServiceVersion(c.version)
	}
	c.mu.Lock()
	c.baseSegmentID = seg.ID()
	c.mu.Unlock()

	ctx = withSegmentID(ctx, seg.ID())
	defer func() {
		if r := recover(); r != nil {
			seg.SetError(xsegment.FaultFromPanic(r, false, 1))
			c.finalize(ctx, seg)
			panic(r)
		}
		if err != nil {
			seg.SetFault(err, false)
		}
		c.finalize(ctx, seg)
	}()
	return fn(ctx, seg)
}

// StartSubsegment 在 base segment 下创建 subsegment 并执行 fn。
//
// 尚未 StartSegment 时返回 ErrSegmentNotStarted，fn 不执行、不发送任何文档。
// 存在待消费的名称覆盖（OverwriteName）时用它代替 name。
// 错误捕获与完成/发送保证同 StartSegment；remote 的 subsegment 记录的 Cause 标记为 remote。
func (c *Context) StartSubsegment(ctx context.Context, name string, remote bool, fn func(context.Context, *xsegment.Subsegment) error) (err error) {
	c.mu.Lock()
	base := c.baseSegmentID
	if base == "" {
		c.mu.Unlock()
		return ErrSegmentNotStarted
	}
	if c.hasOverride {
		name = c.override
		c.override, c.hasOverride = "", false
	}
	c.mu.Unlock()

	sub := xsegment.NewSubsegment(name, c.trace, base, remote)
	ctx = withSegmentID(ctx, sub.ID())
	defer func() {
		if r := recover(); r != nil {
			sub.SetError(xsegment.FaultFromPanic(r, remote, 1))
			c.finalize(ctx, sub)
			panic(r)
		}
		if err != nil {
			sub.SetFault(err, remote)
		}
		c.finalize(ctx, sub)
	}()
	return fn(ctx, sub)
}

// finalize Finish 幂等；只有被采样的 Trace 才发送。Sender 的错误已由其自身路由到 ErrorHandler。
func (c *Context) finalize(ctx context.Context, doc finisher) {
	doc.Finish(time.Now())
	if c.trace.Sampled() {
		_ = c.sender.Send(ctx, doc)
	}
}

func withSegmentID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, _ = xctx.WithSegmentID(ctx, id)
	return ctx
}

// =============================================================================
// 禁用与名称覆盖
// =============================================================================

// DisableTrace 在 fn 执行期间禁用 id 对应的插桩（如 "net_http"），fn 返回后恢复。
//
// 用于防止外层 hook 对自己触发的重入调用再次插桩。同一 id 可嵌套禁用。
func (c *Context) DisableTrace(id string, fn func() error) error {
	c.mu.Lock()
	if c.disabled == nil {
		c.disabled = make(map[string]int)
	}
	c.disabled[id]++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.disabled[id]--; c.disabled[id] <= 0 {
			delete(c.disabled, id)
		}
		c.mu.Unlock()
	}()
	return fn()
}

// Disabled 报告 id 当前是否被禁用
func (c *Context) Disabled(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled[id] > 0
}

// OverwriteName 设置一次性名称覆盖，被 fn 执行期间的下一个 subsegment 消费。
//
// fn 返回时恢复调用前的覆盖状态：嵌套调用中未被消费的内层覆盖被丢弃，
// 外层尚未消费的覆盖继续生效。
func (c *Context) OverwriteName(name string, fn func() error) error {
	c.mu.Lock()
	prev, hadPrev := c.override, c.hasOverride
	c.override, c.hasOverride = name, true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.override, c.hasOverride = prev, hadPrev
		c.mu.Unlock()
	}()
	return fn()
}
