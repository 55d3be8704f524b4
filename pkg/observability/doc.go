// Package observability 提供分布式追踪 SDK 及其配套的可观测性子包。
//
// 子包列表：
//   - xtrace: 追踪头解析/生成与 Trace 值类型，HTTP/gRPC 载体
//   - xsampling: 采样策略与头部采样决策
//   - xsegment: segment / subsegment 数据模型与 Cause 捕获
//   - xray: Context 状态机、Client 投递、Tracer 入口
//   - xlog: 结构化日志，基于 log/slog 扩展
//
// 设计原则：
//   - 采样决策只在 Trace 构造时计算一次，随 Trace 传递
//   - 投递失败不影响被追踪代码
//   - 自动从 context 中提取追踪信息注入日志
package observability
