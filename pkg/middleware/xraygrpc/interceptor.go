package xraygrpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/omeyang/xraykit/pkg/observability/xlog"
	"github.com/omeyang/xraykit/pkg/observability/xray"
	"github.com/omeyang/xraykit/pkg/observability/xsegment"
	"github.com/omeyang/xraykit/pkg/observability/xtrace"
)

const (
	// DisableID 出站 gRPC 插桩的禁用标识
	DisableID = "grpc"

	// AnnotationMethod 完整方法名注解
	AnnotationMethod = "grpc_method"
	// AnnotationCode 非 OK 状态码注解
	AnnotationCode = "grpc_code"
)

// =============================================================================
// 服务端
// =============================================================================

// UnaryServerInterceptor 为每次一元调用创建 base segment。
//
// Trace 取自 incoming metadata 的 x-amzn-trace-id，缺失时按 Tracer 的采样器新建。
// handler 返回的 error 记录为 fault 后原样返回。
func UnaryServerInterceptor(t *xray.Tracer) grpc.UnaryServerInterceptor {
	if t == nil {
		panic("xraygrpc: UnaryServerInterceptor requires a non-nil Tracer")
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		c, err := t.NewContext(xtrace.ExtractFromIncomingContext(ctx, time.Now(), t.Sampler()))
		if err != nil {
			t.Logger().Warn(ctx, "xraygrpc: create context failed", xlog.Err(err))
			return handler(ctx, req)
		}

		var resp any
		err = c.StartSegment(xray.Install(ctx, c), func(ctx context.Context, seg *xsegment.Segment) error {
			seg.AddAnnotation(map[string]any{AnnotationMethod: info.FullMethod})
			var herr error
			resp, herr = handler(ctx, req)
			annotateCode(seg.AddAnnotation, herr)
			return herr
		})
		return resp, err
	}
}

// =============================================================================
// 客户端
// =============================================================================

// ClientOption 客户端拦截器选项
type ClientOption func(*clientOptions)

type clientOptions struct {
	name func(method string, cc *grpc.ClientConn) string
}

// WithSubsegmentName 自定义 subsegment 名称，默认取连接目标（cc 为 nil 时取方法名）
func WithSubsegmentName(fn func(method string, cc *grpc.ClientConn) string) ClientOption {
	return func(o *clientOptions) {
		if fn != nil {
			o.name = fn
		}
	}
}

func defaultName(method string, cc *grpc.ClientConn) string {
	if cc != nil {
		return cc.Target()
	}
	return method
}

// UnaryClientInterceptor 为出站一元调用创建 remote subsegment，并把以该 subsegment
// 为 Parent 的追踪头写入 outgoing metadata。
//
// ctx 中没有 Context、尚未 StartSegment 或 DisableID 被禁用时直接调用 invoker。
func UnaryClientInterceptor(opts ...ClientOption) grpc.UnaryClientInterceptor {
	o := clientOptions{name: defaultName}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		c, ok := xray.FromContext(ctx)
		if !ok || c.Disabled(DisableID) || c.BaseSegmentID() == "" {
			return invoker(ctx, method, req, reply, cc, callOpts...)
		}
		return c.StartSubsegment(ctx, o.name(method, cc), true, func(ctx context.Context, sub *xsegment.Subsegment) error {
			sub.AddAnnotation(map[string]any{AnnotationMethod: method})
			ctx = xtrace.InjectToOutgoingContext(ctx, sub.GenerateTrace())
			err := invoker(ctx, method, req, reply, cc, callOpts...)
			annotateCode(sub.AddAnnotation, err)
			return err
		})
	}
}

func annotateCode(add func(map[string]any), err error) {
	if err == nil {
		return
	}
	add(map[string]any{AnnotationCode: status.Code(err).String()})
}
