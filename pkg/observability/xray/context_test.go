package xray

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xraykit/pkg/context/xctx"
	"github.com/omeyang/xraykit/pkg/observability/xsegment"
	"github.com/omeyang/xraykit/pkg/observability/xtrace"
)

// captureTransport 记录每个 payload 中的文档
type captureTransport struct {
	mu   sync.Mutex
	docs []map[string]any
}

func (c *captureTransport) Send(payload []byte) error {
	header, body, ok := bytes.Cut(payload, []byte("\n"))
	if !ok || string(header)+"\n" != payloadHeader {
		return fmt.Errorf("unexpected payload %q", payload)
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, doc)
	return nil
}

func (c *captureTransport) Close() error { return nil }
func (c *captureTransport) Destination() string { return "capture" }

func (c *captureTransport) Docs() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.docs...)
}

// newCaptureClient 同步模式 Client，传输错误直接让测试失败
func newCaptureClient(t *testing.T) (*Client, *captureTransport) {
	t.Helper()
	tr := &captureTransport{}
	c, err := NewClient(WithTransport(tr), WithSync(), WithErrorHandler(ErrorHandlerFunc(
		func(err error, _ []byte, _ string) { t.Errorf("delivery failed: %v", err) },
	)))
	require.NoError(t, err)
	return c, tr
}

func sampledTrace(sampled bool) xtrace.Trace {
	return xtrace.New(xtrace.GenerateRoot(time.Now()), sampled, "")
}

func newTestContext(t *testing.T, sampled bool) (*Context, *captureTransport) {
	t.Helper()
	client, tr := newCaptureClient(t)
	c, err := NewContext("svc", client, sampledTrace(sampled), WithServiceVersion("1.2.3"))
	require.NoError(t, err)
	return c, tr
}

// RuntimeError 带自定义类型名的错误
type RuntimeError struct{ msg string }

func (e *RuntimeError) Error() string { return e.msg }

func firstException(t *testing.T, doc map[string]any) map[string]any {
	t.Helper()
	cause, ok := doc["cause"].(map[string]any)
	require.True(t, ok, "document has no cause: %v", doc)
	exceptions, ok := cause["exceptions"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, exceptions)
	return exceptions[0].(map[string]any)
}

func TestNewContext_Validation(t *testing.T) {
	client, _ := newCaptureClient(t)
	_, err := NewContext("", client, sampledTrace(true))
	assert.ErrorIs(t, err, ErrMissingName)
	_, err = NewContext("svc", nil, sampledTrace(true))
	assert.ErrorIs(t, err, ErrNilSender)
}

func TestContext_StartSegmentSendsBase(t *testing.T) {
	c, tr := newTestContext(t, true)
	var segID string
	err := c.StartSegment(context.Background(), func(ctx context.Context, seg *xsegment.Segment) error {
		segID = seg.ID()
		assert.Equal(t, seg.ID(), xctx.SegmentID(ctx))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, segID, c.BaseSegmentID())

	docs := tr.Docs()
	require.Len(t, docs, 1)
	doc := docs[0]
	assert.Equal(t, "svc", doc["name"])
	assert.Equal(t, segID, doc["id"])
	assert.Equal(t, c.Trace().Root(), doc["trace_id"])
	assert.NotContains(t, doc, "parent_id")
	assert.NotContains(t, doc, "in_progress")
	assert.Contains(t, doc, "end_time")
	assert.Equal(t, map[string]any{"version": "1.2.3"}, doc["service"])
	assert.NotContains(t, doc, "fault")
}

func TestContext_SubsegmentBeforeSegment(t *testing.T) {
	c, tr := newTestContext(t, true)
	called := false
	err := c.StartSubsegment(context.Background(), "db", true, func(context.Context, *xsegment.Subsegment) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrSegmentNotStarted)
	assert.False(t, called)
	assert.Empty(t, tr.Docs())
}

func TestContext_SubsegmentsShareBaseParent(t *testing.T) {
	c, tr := newTestContext(t, true)
	ctx := context.Background()
	err := c.StartSegment(ctx, func(ctx context.Context, _ *xsegment.Segment) error {
		return c.StartSubsegment(ctx, "outer", false, func(ctx context.Context, _ *xsegment.Subsegment) error {
			return c.StartSubsegment(ctx, "inner", true, func(context.Context, *xsegment.Subsegment) error {
				return nil
			})
		})
	})
	require.NoError(t, err)

	docs := tr.Docs()
	require.Len(t, docs, 3)
	base := c.BaseSegmentID()
	assert.Equal(t, "inner", docs[0]["name"])
	assert.Equal(t, "outer", docs[1]["name"])
	assert.Equal(t, "svc", docs[2]["name"])
	for _, d := range docs[:2] {
		assert.Equal(t, base, d["parent_id"])
		assert.Equal(t, xsegment.TypeSubsegment, d["type"])
	}
	assert.Equal(t, xsegment.NamespaceRemote, docs[0]["namespace"])
	assert.NotContains(t, docs[1], "namespace")
}

func TestContext_ErrorRecordedAndReturned(t *testing.T) {
	c, tr := newTestContext(t, true)
	err := c.StartSegment(context.Background(), func(context.Context, *xsegment.Segment) error {
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	docs := tr.Docs()
	require.Len(t, docs, 1)
	assert.Equal(t, true, docs[0]["fault"])
	assert.Equal(t, false, docs[0]["error"])
	exc := firstException(t, docs[0])
	assert.Equal(t, "boom", exc["message"])
	assert.Equal(t, false, exc["remote"])
}

func TestContext_PanicRecordedAndRepanicked(t *testing.T) {
	c, tr := newTestContext(t, true)
	ctx := context.Background()
	assert.PanicsWithValue(t, "kaboom", func() {
		_ = c.StartSegment(ctx, func(ctx context.Context, _ *xsegment.Segment) error {
			return c.StartSubsegment(ctx, "remote-call", true, func(context.Context, *xsegment.Subsegment) error {
				panic("kaboom")
			})
		})
	})

	docs := tr.Docs()
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, true, d["fault"])
		exc := firstException(t, d)
		assert.Equal(t, "kaboom", exc["message"])
		assert.Equal(t, xsegment.TypePanic, exc["type"])
	}
	assert.Equal(t, true, firstException(t, docs[0])["remote"])
}

func TestContext_FaultPropagatesToBase(t *testing.T) {
	c, tr := newTestContext(t, true)
	boom := &RuntimeError{msg: "boom"}
	err := c.StartSegment(context.Background(), func(ctx context.Context, _ *xsegment.Segment) error {
		return c.StartSubsegment(ctx, "work", false, func(context.Context, *xsegment.Subsegment) error {
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	docs := tr.Docs()
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, true, d["fault"])
		exc := firstException(t, d)
		assert.Equal(t, "boom", exc["message"])
		assert.Equal(t, "RuntimeError", exc["type"])
	}
}

func TestContext_UnsampledSendsNothing(t *testing.T) {
	c, tr := newTestContext(t, false)
	ran := 0
	err := c.StartSegment(context.Background(), func(ctx context.Context, _ *xsegment.Segment) error {
		ran++
		return c.StartSubsegment(ctx, "db", true, func(context.Context, *xsegment.Subsegment) error {
			ran++
			return errBoom
		})
	})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, ran)
	assert.Empty(t, tr.Docs())
}

func TestContext_UpstreamParent(t *testing.T) {
	client, tr := newCaptureClient(t)
	parent := xsegment.NewID()
	c, err := NewContext("svc", client, xtrace.New(xtrace.GenerateRoot(time.Now()), true, parent))
	require.NoError(t, err)
	require.NoError(t, c.StartSegment(context.Background(), func(context.Context, *xsegment.Segment) error { return nil }))

	docs := tr.Docs()
	require.Len(t, docs, 1)
	assert.Equal(t, parent, docs[0]["parent_id"])
	assert.NotContains(t, docs[0], "service")
}

func TestContext_DisableTrace(t *testing.T) {
	c, _ := newTestContext(t, true)
	assert.False(t, c.Disabled("net_http"))

	err := c.DisableTrace("net_http", func() error {
		assert.True(t, c.Disabled("net_http"))
		assert.False(t, c.Disabled("grpc"))
		require.NoError(t, c.DisableTrace("net_http", func() error { return nil }))
		assert.True(t, c.Disabled("net_http"), "outer scope still disables")
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, c.Disabled("net_http"))
}

func TestContext_OverwriteName(t *testing.T) {
	c, tr := newTestContext(t, true)
	ctx := context.Background()
	noop := func(context.Context, *xsegment.Subsegment) error { return nil }

	err := c.StartSegment(ctx, func(ctx context.Context, _ *xsegment.Segment) error {
		require.NoError(t, c.OverwriteName("renamed", func() error {
			require.NoError(t, c.StartSubsegment(ctx, "first", false, noop))
			return c.StartSubsegment(ctx, "second", false, noop)
		}))
		// 未消费的覆盖在 fn 返回后清除
		require.NoError(t, c.OverwriteName("unused", func() error { return nil }))
		return c.StartSubsegment(ctx, "third", false, noop)
	})
	require.NoError(t, err)

	docs := tr.Docs()
	require.Len(t, docs, 4)
	assert.Equal(t, "renamed", docs[0]["name"])
	assert.Equal(t, "second", docs[1]["name"])
	assert.Equal(t, "third", docs[2]["name"])
}

func TestContext_OverwriteNameNested(t *testing.T) {
	c, tr := newTestContext(t, true)
	ctx := context.Background()
	noop := func(context.Context, *xsegment.Subsegment) error { return nil }

	err := c.StartSegment(ctx, func(ctx context.Context, _ *xsegment.Segment) error {
		// 内层覆盖未被消费，外层覆盖仍然生效
		require.NoError(t, c.OverwriteName("outer", func() error {
			require.NoError(t, c.OverwriteName("inner", func() error { return nil }))
			return c.StartSubsegment(ctx, "plain", false, noop)
		}))
		// 内层覆盖被消费后，外层覆盖留给下一个 subsegment
		return c.OverwriteName("outer2", func() error {
			require.NoError(t, c.OverwriteName("inner2", func() error {
				return c.StartSubsegment(ctx, "a", false, noop)
			}))
			require.NoError(t, c.StartSubsegment(ctx, "b", false, noop))
			return c.StartSubsegment(ctx, "c", false, noop)
		})
	})
	require.NoError(t, err)

	docs := tr.Docs()
	require.Len(t, docs, 5)
	assert.Equal(t, "outer", docs[0]["name"])
	assert.Equal(t, "inner2", docs[1]["name"])
	assert.Equal(t, "outer2", docs[2]["name"])
	assert.Equal(t, "c", docs[3]["name"])
	assert.Equal(t, "svc", docs[4]["name"])
}

func TestContext_NonFiniteAnnotationDelivered(t *testing.T) {
	c, tr := newTestContext(t, true)
	err := c.StartSegment(context.Background(), func(_ context.Context, seg *xsegment.Segment) error {
		seg.AddAnnotation(map[string]any{"ratio": math.NaN(), "limit": math.Inf(1)})
		return nil
	})
	require.NoError(t, err)

	docs := tr.Docs()
	require.Len(t, docs, 1)
	assert.Equal(t, map[string]any{"ratio": "NaN", "limit": "+Inf"}, docs[0]["annotations"])
}

func TestInstallAndCurrent(t *testing.T) {
	ctx := context.Background()
	_, err := Current(ctx)
	assert.ErrorIs(t, err, ErrContextNotSet)
	assert.False(t, Started(ctx))

	c, _ := newTestContext(t, true)
	ctx = Install(ctx, c)
	got, err := Current(ctx)
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.True(t, Started(ctx))

	assert.Equal(t, c.Trace().Root(), xctx.TraceID(ctx))
	assert.Equal(t, "svc", xctx.Service(ctx))
	sampled, ok := xctx.Sampled(ctx)
	assert.True(t, ok)
	assert.True(t, sampled)

	assert.False(t, Started(Install(context.Background(), nil)))
}

func TestWithNewContext(t *testing.T) {
	client, tr := newCaptureClient(t)
	outer := context.Background()
	err := WithNewContext(outer, "svc", client, sampledTrace(true), func(ctx context.Context) error {
		c, err := Current(ctx)
		require.NoError(t, err)
		return c.StartSegment(ctx, func(context.Context, *xsegment.Segment) error { return nil })
	})
	require.NoError(t, err)
	assert.False(t, Started(outer))
	assert.Len(t, tr.Docs(), 1)

	err = WithNewContext(outer, "", client, sampledTrace(true), func(context.Context) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrMissingName)
}

func TestContext_CopyAcrossGoroutines(t *testing.T) {
	c, tr := newTestContext(t, true)
	const workers = 100

	err := c.StartSegment(context.Background(), func(ctx context.Context, _ *xsegment.Segment) error {
		require.NoError(t, c.DisableTrace("net_http", func() error {
			var wg sync.WaitGroup
			for i := range workers {
				cp := c.Copy()
				assert.False(t, cp.Disabled("net_http"), "disable markers are not copied")
				wg.Add(1)
				go func() {
					defer wg.Done()
					gctx := Install(context.Background(), cp)
					cur, err := Current(gctx)
					if !assert.NoError(t, err) {
						return
					}
					assert.NoError(t, cur.StartSubsegment(gctx, fmt.Sprintf("task-%d", i), false,
						func(context.Context, *xsegment.Subsegment) error { return nil }))
				}()
			}
			wg.Wait()
			return nil
		}))
		return nil
	})
	require.NoError(t, err)

	docs := tr.Docs()
	require.Len(t, docs, workers+1)
	base := c.BaseSegmentID()
	ids := make(map[any]struct{}, len(docs))
	for _, d := range docs[:workers] {
		assert.Equal(t, base, d["parent_id"])
		assert.Equal(t, c.Trace().Root(), d["trace_id"])
		ids[d["id"]] = struct{}{}
	}
	ids[docs[workers]["id"]] = struct{}{}
	assert.Len(t, ids, workers+1)
}
