package xsampling

import "context"

// Sampler 采样策略接口
//
// 返回 true 表示新建的 trace 应被完整记录并发送。
type Sampler interface {
	// ShouldSample 判断是否应该采样
	//
	// ctx 可携带决策所需的上下文信息（如 xctx 中的 trace_id），
	// 供 KeyBasedSampler 使用。
	ShouldSample(ctx context.Context) bool
}

// 追踪头中 Sampled 字段的显式取值
const (
	HeaderSampled    = "1"
	HeaderNotSampled = "0"
)

// Decide 计算一条 trace 的采样决策。
//
// 上游追踪头显式携带 Sampled=0 或 Sampled=1 时原样沿用，保证同一条链路上
// 所有服务的决策一致；其他取值（缺失、"?"、非法值）交给 s 决定。
// s 为 nil 时视为 Always()。
//
// 决策只在构造 Trace 时计算一次，之后随 Trace 复制传递，不再改变。
func Decide(ctx context.Context, headerValue string, s Sampler) bool {
	switch headerValue {
	case HeaderSampled:
		return true
	case HeaderNotSampled:
		return false
	}
	if s == nil {
		return true
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return s.ShouldSample(ctx)
}

// FormatSampled 将采样决策格式化为追踪头取值
func FormatSampled(sampled bool) string {
	if sampled {
		return HeaderSampled
	}
	return HeaderNotSampled
}
