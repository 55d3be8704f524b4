package xctx

import "context"

// =============================================================================
// Trace 日志属性 Key 常量
// =============================================================================

const (
	KeyTraceID   = "trace_id"
	KeySegmentID = "segment_id"
	KeySampled   = "sampled"
	KeyService   = "service"

	// traceFieldCount 追踪字段数量（用于 slog 属性预分配）
	traceFieldCount = 4
)

const (
	keyTraceID   = contextKey("xctx:trace_id")
	keySegmentID = contextKey("xctx:segment_id")
	keySampled   = contextKey("xctx:sampled")
	keyService   = contextKey("xctx:service")
)

// =============================================================================
// TraceID 操作
// =============================================================================

// WithTraceID 将 trace ID（X-Ray Root，如 "1-5759e988-bd862e3fe1be46a994272793"）注入 context。
//
// 如果 ctx 为 nil，返回 ErrNilContext。
func WithTraceID(ctx context.Context, traceID string) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, keyTraceID, traceID), nil
}

// TraceID 从 context 提取 trace ID，不存在返回空字符串
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(keyTraceID).(string); ok {
		return v
	}
	return ""
}

// RequireTraceID 从 context 获取 trace ID，不存在则返回 ErrMissingTraceID。
func RequireTraceID(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	v := TraceID(ctx)
	if v == "" {
		return "", ErrMissingTraceID
	}
	return v, nil
}

// =============================================================================
// SegmentID 操作
// =============================================================================

// WithSegmentID 将当前 segment/subsegment ID 注入 context
func WithSegmentID(ctx context.Context, segmentID string) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, keySegmentID, segmentID), nil
}

// SegmentID 从 context 提取 segment ID，不存在返回空字符串
func SegmentID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(keySegmentID).(string); ok {
		return v
	}
	return ""
}

// RequireSegmentID 从 context 获取 segment ID，不存在则返回 ErrMissingSegmentID。
func RequireSegmentID(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	v := SegmentID(ctx)
	if v == "" {
		return "", ErrMissingSegmentID
	}
	return v, nil
}

// =============================================================================
// Sampled 操作（bool 字段，需要 ok 区分"未设置"）
// =============================================================================

// WithSampled 将采样决策注入 context
func WithSampled(ctx context.Context, sampled bool) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, keySampled, sampled), nil
}

// Sampled 从 context 提取采样决策，ok 为 false 表示未设置
func Sampled(ctx context.Context) (sampled, ok bool) {
	if ctx == nil {
		return false, false
	}
	sampled, ok = ctx.Value(keySampled).(bool)
	return sampled, ok
}

// RequireSampled 从 context 获取采样决策，未设置则返回 ErrMissingSampled。
func RequireSampled(ctx context.Context) (bool, error) {
	if ctx == nil {
		return false, ErrNilContext
	}
	v, ok := Sampled(ctx)
	if !ok {
		return false, ErrMissingSampled
	}
	return v, nil
}

// =============================================================================
// Service 操作
// =============================================================================

// WithService 将逻辑服务名注入 context
func WithService(ctx context.Context, service string) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, keyService, service), nil
}

// Service 从 context 提取服务名，不存在返回空字符串
func Service(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(keyService).(string); ok {
		return v
	}
	return ""
}

// =============================================================================
// Trace 结构体（批量操作模式）
// =============================================================================

// Trace 追踪字段集合，用于一次注入/读取多个字段。
type Trace struct {
	TraceID   string
	SegmentID string
	Service   string
	// Sampled 为 nil 表示未设置
	Sampled *bool
}

// WithTrace 批量注入追踪字段，空字段跳过，不覆盖 context 中已有的值。
func WithTrace(ctx context.Context, t Trace) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if t.TraceID != "" {
		ctx = context.WithValue(ctx, keyTraceID, t.TraceID)
	}
	if t.SegmentID != "" {
		ctx = context.WithValue(ctx, keySegmentID, t.SegmentID)
	}
	if t.Service != "" {
		ctx = context.WithValue(ctx, keyService, t.Service)
	}
	if t.Sampled != nil {
		ctx = context.WithValue(ctx, keySampled, *t.Sampled)
	}
	return ctx, nil
}

// GetTrace 批量读取追踪字段
func GetTrace(ctx context.Context) Trace {
	var t Trace
	if ctx == nil {
		return t
	}
	t.TraceID = TraceID(ctx)
	t.SegmentID = SegmentID(ctx)
	t.Service = Service(ctx)
	if v, ok := Sampled(ctx); ok {
		t.Sampled = &v
	}
	return t
}

// Validate 校验必填字段（trace_id、segment_id），返回第一个缺失字段的错误。
func (t Trace) Validate() error {
	if t.TraceID == "" {
		return ErrMissingTraceID
	}
	if t.SegmentID == "" {
		return ErrMissingSegmentID
	}
	return nil
}
