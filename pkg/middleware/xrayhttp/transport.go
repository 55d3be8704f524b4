package xrayhttp

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/omeyang/xraykit/pkg/observability/xray"
	"github.com/omeyang/xraykit/pkg/observability/xsegment"
	"github.com/omeyang/xraykit/pkg/observability/xtrace"
)

const (
	// DisableID 出站 HTTP 插桩的禁用标识，见 xray.Context.DisableTrace
	DisableID = "net_http"

	// NameHeader 指定出站 subsegment 名称的请求头，发送前移除
	NameHeader = "X-Aws-Xray-Name"
)

type roundTripper struct {
	base http.RoundTripper
	opts transportOptions
}

// NewTransport 包装 base，为每个出站请求创建 remote subsegment。
//
// 以下情况直接透传给 base：ctx 中没有 Context、尚未 StartSegment、DisableID 已被禁用。
// subsegment 名称取 NameHeader，未设置时取 req.Host（或 URL 主机名），不含端口。
// 追踪头（Parent 为该 subsegment）只发往白名单 host；内层调用期间禁用 DisableID，防止重复插桩。
//
//	client := &http.Client{Transport: xrayhttp.NewTransport(http.DefaultTransport)}
func NewTransport(base http.RoundTripper, opts ...TransportOption) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	rt := &roundTripper{base: base}
	for _, opt := range opts {
		if opt != nil {
			opt(&rt.opts)
		}
	}
	return rt
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	c, ok := xray.FromContext(req.Context())
	if !ok || c.Disabled(DisableID) {
		return rt.base.RoundTrip(req)
	}

	name := req.Header.Get(NameHeader)
	if name == "" {
		name = hostName(req)
	}

	var (
		resp    *http.Response
		started bool
	)
	err := c.StartSubsegment(req.Context(), name, true, func(ctx context.Context, sub *xsegment.Subsegment) error {
		started = true
		out := req.Clone(ctx)
		out.Header.Del(NameHeader)

		traced := rt.opts.propagates(hostName(req))
		if traced {
			xtrace.InjectToHTTPHeader(out.Header, sub.GenerateTrace())
		}
		record := xsegment.OutgoingRequestFromHTTP(out)
		record.Traced = traced
		sub.SetHTTPRequest(record)
		if rt.opts.recordCaller {
			sub.AddMetadata(xsegment.CallerMetadata(0))
		}

		return c.DisableTrace(DisableID, func() error {
			var err error
			if resp, err = rt.base.RoundTrip(out); err != nil {
				return err
			}
			sub.SetHTTPResponseWithError(resp.StatusCode, resp.ContentLength, true)
			return nil
		})
	})
	if !started && errors.Is(err, xray.ErrSegmentNotStarted) {
		return rt.base.RoundTrip(req)
	}
	return resp, err
}

// hostName 取 req.Host（为空时取 URL.Host）并去掉端口
func hostName(req *http.Request) string {
	h := req.Host
	if h == "" {
		h = req.URL.Host
	}
	if host, _, err := net.SplitHostPort(h); err == nil {
		return host
	}
	return h
}
