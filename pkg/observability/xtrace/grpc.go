package xtrace

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc/metadata"

	"github.com/omeyang/xraykit/pkg/observability/xsampling"
)

// =============================================================================
// gRPC Metadata 提取
// =============================================================================

// ExtractFromMetadata 从 gRPC metadata 构造 Trace，规则见 Build。
func ExtractFromMetadata(ctx context.Context, md metadata.MD, now time.Time, s xsampling.Sampler) Trace {
	return Build(ctx, getMetadataValue(md, MetadataKey), now, s)
}

// ExtractFromIncomingContext 从 incoming context 的 metadata 构造 Trace
func ExtractFromIncomingContext(ctx context.Context, now time.Time, s xsampling.Sampler) Trace {
	md, _ := metadata.FromIncomingContext(ctx)
	return ExtractFromMetadata(ctx, md, now, s)
}

// =============================================================================
// gRPC Metadata 注入（跨服务传播）
// =============================================================================

// InjectToOutgoingContext 将 Trace 写入 outgoing metadata。
// 复制已有 metadata 后使用 Set 覆盖，多次调用不会产生重复值。
func InjectToOutgoingContext(ctx context.Context, t Trace) context.Context {
	if t.IsZero() {
		return ctx
	}
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.New(nil)
	}
	md.Set(MetadataKey, t.Header())
	return metadata.NewOutgoingContext(ctx, md)
}

// getMetadataValue 获取 metadata 中的值（取第一个，去除空白）
func getMetadataValue(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
