// Package xctx 提供追踪字段在 context 中的存取能力，并为日志系统提供属性提取。
//
// # 字段
//
//   - trace_id   : X-Ray 追踪根标识（Root）
//   - segment_id : 当前 segment/subsegment 标识
//   - sampled    : 采样决策（bool，可区分未设置）
//   - service    : 逻辑服务名
//
// 这些字段由 xray 在 segment 开始时写入，xlog 的 EnrichHandler 通过
// AppendTraceAttrs 读取，使同一请求内的日志自动带上追踪标识。
//
// # 命名约定
//
//	WithXxx(ctx, value)    - 注入：将 value 写入 context
//	Xxx(ctx)               - 读取：缺失时返回零值
//	RequireXxx(ctx)        - 强制读取：缺失时返回错误
//	GetTrace(ctx)          - 批量读取：返回结构体
//
// # 哨兵错误
//
//	ErrNilContext       - context 为 nil
//	ErrMissingTraceID   - trace_id 缺失
//	ErrMissingSegmentID - segment_id 缺失
//	ErrMissingSampled   - sampled 未设置
package xctx
