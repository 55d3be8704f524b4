package xrayhttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/omeyang/xraykit/pkg/observability/xlog"
	"github.com/omeyang/xraykit/pkg/observability/xray"
	"github.com/omeyang/xraykit/pkg/observability/xsegment"
	"github.com/omeyang/xraykit/pkg/observability/xtrace"
)

// Middleware 返回为每个入站请求创建 base segment 的 HTTP 中间件。
//
// 示例:
//
//	mux := http.NewServeMux()
//	handler := xrayhttp.Middleware(tracer)(mux)
//
// Trace 由 X-Amzn-Trace-Id 构造，响应头回写同一追踪头。
// 请求记录取自 *http.Request，响应状态码与长度在 handler 返回后写入 segment：
// 429 记为 error+throttle，4xx 记为 error，5xx 记为 fault。
// handler 中的 panic 记录为 fault 后继续向上传播。
func Middleware(t *xray.Tracer, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if t == nil {
		panic("xrayhttp: Middleware requires a non-nil Tracer")
	}
	mopts := &middlewareOptions{excluded: make(map[string]struct{})}
	for _, opt := range opts {
		if opt != nil {
			opt(mopts)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mopts.skipped(r, t.Config()) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			c, err := t.NewContext(t.BuildTrace(ctx, xtrace.HeaderValue(r.Header)))
			if err != nil {
				// 追踪失败不影响请求处理
				t.Logger().Warn(ctx, "xrayhttp: create context failed", xlog.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			xtrace.InjectToHTTPHeader(w.Header(), c.Trace())

			// 错误由被包装的 handler 自行写出，这里只有 panic 会向上传播
			_ = c.StartSegment(xray.Install(ctx, c), func(ctx context.Context, seg *xsegment.Segment) error {
				seg.SetHTTPRequest(xsegment.RequestFromHTTP(r))
				rec := &responseRecorder{ResponseWriter: w}
				defer func() {
					seg.SetHTTPResponseWithError(rec.Status(), rec.written, false)
				}()
				next.ServeHTTP(rec, r.WithContext(ctx))
				t.Logger().Debug(ctx, "xrayhttp: request traced",
					slog.String("path", r.URL.Path), slog.Int("status", rec.Status()))
				return nil
			})
		})
	}
}

// responseRecorder 记录状态码与响应体长度
type responseRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.written += int64(n)
	return n, err
}

// Status 返回已写出的状态码，未写出时为 200
func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// Unwrap 供 http.ResponseController 访问底层 ResponseWriter（Flush、Hijack 等）
func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
