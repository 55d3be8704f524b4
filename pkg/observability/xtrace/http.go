package xtrace

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/omeyang/xraykit/pkg/observability/xsampling"
)

// HeaderValue 读取 HTTP Header 中的追踪头（去除首尾空白），h 为 nil 时返回空字符串。
func HeaderValue(h http.Header) string {
	if h == nil {
		return ""
	}
	return strings.TrimSpace(h.Get(HeaderName))
}

// ExtractFromHTTPHeader 从 HTTP Header 构造 Trace，规则见 Build。
// 追踪头缺失时生成新的 Trace，采样由 s 决定。
func ExtractFromHTTPHeader(ctx context.Context, h http.Header, now time.Time, s xsampling.Sampler) Trace {
	return Build(ctx, HeaderValue(h), now, s)
}

// ExtractFromHTTPRequest 从 HTTP Request 构造 Trace
func ExtractFromHTTPRequest(r *http.Request, now time.Time, s xsampling.Sampler) Trace {
	if r == nil {
		return Build(context.Background(), "", now, s)
	}
	return ExtractFromHTTPHeader(r.Context(), r.Header, now, s)
}

// InjectToHTTPHeader 将 Trace 写入 HTTP Header（覆盖已有值）。
// h 为 nil 或 t 为零值时不做任何事。
func InjectToHTTPHeader(h http.Header, t Trace) {
	if h == nil || t.IsZero() {
		return
	}
	h.Set(HeaderName, t.Header())
}
