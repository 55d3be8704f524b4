// Package xtrace 实现 X-Ray 追踪头协议与 Trace 值类型。
//
// # 追踪头格式
//
//	X-Amzn-Trace-Id: Root=1-5759e988-bd862e3fe1be46a994272793;Parent=53995c3f42cd8ad8;Sampled=1
//
//   - Root: "1-" + 8 位十六进制纪元秒 + "-" + 24 位十六进制随机数
//   - Sampled: 0 或 1，整条链路共享同一决策
//   - Parent: 下游新建 segment 的父节点 ID（16 位十六进制）
//   - 其他字段原样透传
//
// # 核心功能
//
//   - Parse / ParseFields: 宽松解析，畸形片段静默丢弃，永不失败
//   - Build: 从入站头构造 Trace（缺失 Root 时生成，采样由 xsampling 决定）
//   - Trace.Header: 序列化
//   - Trace.WithParent: 复制并替换父节点，用于向下游传播
//
// # 传播载体
//
//   - HTTP: ExtractFromHTTPHeader / InjectToHTTPHeader
//   - gRPC: ExtractFromIncomingContext / InjectToOutgoingContext
//   - OpenTelemetry: FromSpanContext / Trace.SpanContext
//
// 宽松解析是有意保留的行为：上游可能附带非标准字段，严格校验会破坏互操作。
// 需要诊断时使用 IsValidRoot / IsValidSegmentID。
package xtrace
