// Package xsampling 提供追踪采样策略。
//
// # 决策规则
//
// 采样决策在 Trace 构造时计算一次：
//
//   - 上游追踪头携带 Sampled=1 / Sampled=0 时直接沿用
//   - 否则由配置的 Sampler 决定（通常是 sampling_rate 对应的 RateSampler）
//
// 之后该决策随 Trace 复制传递给所有 subsegment 以及下游请求，不再改变。
//
// # 策略
//
//   - Always(): 全采样
//   - Never(): 不采样
//   - NewRateSampler(rate): 固定比率随机采样（crypto/rand）
//   - NewKeyBasedSampler(rate, keyFunc): 基于 key 的一致性采样（xxhash）
//   - NewTraceIDSampler(rate): 按 X-Ray Root 做一致性采样
package xsampling
