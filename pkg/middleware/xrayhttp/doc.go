// Package xrayhttp 为 net/http 提供追踪适配：服务端中间件与客户端 RoundTripper。
//
// 服务端：
//
//	handler := xrayhttp.Middleware(tracer, xrayhttp.WithExcludedPaths("/healthz"))(mux)
//
// 客户端：
//
//	client := &http.Client{
//		Transport: xrayhttp.NewTransport(http.DefaultTransport,
//			xrayhttp.TransportOptionsFromConfig(tracer.Config())...),
//	}
//
// 客户端请求的 ctx 必须来自中间件（或 Tracer.Trace）安装的 Context，否则只做透传。
package xrayhttp
