package xctx

import (
	"context"
	"log/slog"
)

// AppendTraceAttrs 将 context 中的追踪信息追加到现有切片。
// 零分配热路径：传入预分配的切片，只追加已设置的字段。
func AppendTraceAttrs(attrs []slog.Attr, ctx context.Context) []slog.Attr {
	if ctx == nil {
		return attrs
	}

	if v := Service(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyService, v))
	}
	if v := TraceID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyTraceID, v))
	}
	if v := SegmentID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeySegmentID, v))
	}
	if v, ok := Sampled(ctx); ok {
		attrs = append(attrs, slog.Bool(KeySampled, v))
	}

	return attrs
}

// TraceAttrs 从 context 提取追踪信息，转换为 slog.Attr 切片
//
// 都未设置时返回 nil。每次调用会分配新切片，热路径建议使用 AppendTraceAttrs。
func TraceAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	attrs := AppendTraceAttrs(make([]slog.Attr, 0, traceFieldCount), ctx)
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
