package xtrace

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrInvalidRoot 根标识不符合 "1-<8 hex>-<24 hex>"
	ErrInvalidRoot = errors.New("xtrace: invalid root")

	// ErrInvalidParent 父节点 ID 不是 16 位十六进制
	ErrInvalidParent = errors.New("xtrace: invalid parent")
)

// FromSpanContext 将 OpenTelemetry SpanContext 转换为 Trace。
//
// 128 位 W3C trace-id 的前 8 个十六进制字符作为纪元段，其余 24 个作为随机段；
// span-id 作为 Parent；sampled 标志对应 Sampled。sc 无效时 ok 为 false。
func FromSpanContext(sc trace.SpanContext) (t Trace, ok bool) {
	if !sc.IsValid() {
		return Trace{}, false
	}
	tid := sc.TraceID().String()
	return Trace{
		root:    rootVersion + "-" + tid[:rootEpochLen] + "-" + tid[rootEpochLen:],
		sampled: sc.IsSampled(),
		parent:  sc.SpanID().String(),
	}, true
}

// SpanContext 将 Trace 转换为远端 OpenTelemetry SpanContext。
//
// 没有 Parent 时 SpanID 为零值，返回的 SpanContext 不满足 IsValid，
// 但 TraceID 与采样标志仍可用于关联。
func (t Trace) SpanContext() (trace.SpanContext, error) {
	if !IsValidRoot(t.root) {
		return trace.SpanContext{}, fmt.Errorf("%w: %q", ErrInvalidRoot, t.root)
	}
	tid, err := trace.TraceIDFromHex(t.root[2:2+rootEpochLen] + t.root[3+rootEpochLen:])
	if err != nil {
		return trace.SpanContext{}, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}

	cfg := trace.SpanContextConfig{TraceID: tid, Remote: true}
	if t.parent != "" {
		sid, err := trace.SpanIDFromHex(t.parent)
		if err != nil {
			return trace.SpanContext{}, fmt.Errorf("%w: %w", ErrInvalidParent, err)
		}
		cfg.SpanID = sid
	}
	if t.sampled {
		cfg.TraceFlags = trace.FlagsSampled
	}
	return trace.NewSpanContext(cfg), nil
}

// ContextWithRemoteSpanContext 将 Trace 作为远端 SpanContext 写入 ctx，
// 供同进程内的 OpenTelemetry instrumentation 关联同一条链路。
func ContextWithRemoteSpanContext(ctx context.Context, t Trace) (context.Context, error) {
	sc, err := t.SpanContext()
	if err != nil {
		return ctx, err
	}
	return trace.ContextWithRemoteSpanContext(ctx, sc), nil
}
