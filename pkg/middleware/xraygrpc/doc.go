// Package xraygrpc 为 gRPC 一元调用提供追踪拦截器。
//
//	server := grpc.NewServer(grpc.UnaryInterceptor(xraygrpc.UnaryServerInterceptor(tracer)))
//	conn, err := grpc.NewClient(target, grpc.WithUnaryInterceptor(xraygrpc.UnaryClientInterceptor()))
//
// 追踪头通过 metadata 键 x-amzn-trace-id 传播，格式与 HTTP 头相同。
package xraygrpc
