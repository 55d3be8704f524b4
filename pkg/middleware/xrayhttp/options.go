package xrayhttp

import (
	"net/http"
	"strings"

	"github.com/omeyang/xraykit/pkg/observability/xray"
)

// =============================================================================
// 服务端中间件选项
// =============================================================================

// MiddlewareOption 中间件选项函数
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	excluded map[string]struct{}
	skip     func(r *http.Request) bool
}

// WithExcludedPaths 追加不追踪的路径（精确匹配），与配置中的 excluded_paths 合并
func WithExcludedPaths(paths ...string) MiddlewareOption {
	return func(o *middlewareOptions) {
		for _, p := range paths {
			o.excluded[p] = struct{}{}
		}
	}
}

// WithSkipFunc 返回 true 时跳过追踪
func WithSkipFunc(fn func(r *http.Request) bool) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.skip = fn
	}
}

func (o *middlewareOptions) skipped(r *http.Request, cfg xray.Config) bool {
	if o.skip != nil && o.skip(r) {
		return true
	}
	path := r.URL.Path
	if _, ok := o.excluded[path]; ok {
		return true
	}
	for _, p := range cfg.ExcludedPaths {
		if p == path {
			return true
		}
	}
	return false
}

// =============================================================================
// 客户端 RoundTripper 选项
// =============================================================================

// TransportOption RoundTripper 选项函数
type TransportOption func(*transportOptions)

type transportOptions struct {
	whitelist    []string
	recordCaller bool
}

// WithWhitelistHosts 只向这些 host 传播追踪头。支持 "*.example.com" 形式的后缀通配，
// 为空表示向所有 host 传播。
func WithWhitelistHosts(hosts ...string) TransportOption {
	return func(o *transportOptions) {
		o.whitelist = append(o.whitelist, hosts...)
	}
}

// WithCallerMetadata 在 subsegment metadata 中记录发起请求的调用栈
func WithCallerMetadata(enable bool) TransportOption {
	return func(o *transportOptions) {
		o.recordCaller = enable
	}
}

// TransportOptionsFromConfig 按 trace_header_whitelist_hosts 与
// record_caller_of_http_requests 生成 RoundTripper 选项
func TransportOptionsFromConfig(cfg xray.Config) []TransportOption {
	return []TransportOption{
		WithWhitelistHosts(cfg.TraceHeaderWhitelistHosts...),
		WithCallerMetadata(cfg.RecordCallerOfHTTPRequests),
	}
}

func (o *transportOptions) propagates(host string) bool {
	if len(o.whitelist) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, w := range o.whitelist {
		w = strings.ToLower(w)
		if suffix, ok := strings.CutPrefix(w, "*"); ok {
			if strings.HasSuffix(host, suffix) {
				return true
			}
			continue
		}
		if host == w {
			return true
		}
	}
	return false
}
