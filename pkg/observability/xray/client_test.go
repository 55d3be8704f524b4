package xray

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/mock/gomock"
)

var errBoom = errors.New("boom")

// rawDoc 直接输出自身内容的文档
type rawDoc string

func (d rawDoc) MarshalJSON() ([]byte, error) { return []byte(d), nil }

type badDoc struct{}

func (badDoc) MarshalJSON() ([]byte, error) { return nil, errBoom }

// handlerCall 一次 ErrorHandler 调用
type handlerCall struct {
	err     error
	payload []byte
	dest    string
}

type recordingHandler struct {
	mu    sync.Mutex
	calls []handlerCall
}

func (h *recordingHandler) HandleError(err error, payload []byte, dest string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, handlerCall{err: err, payload: payload, dest: dest})
}

func (h *recordingHandler) snapshot() []handlerCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]handlerCall(nil), h.calls...)
}

// counterValue 读取计数器在 reason 属性下的累计值；reason 为空时匹配无属性的数据点
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name, reason string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				v, has := dp.Attributes.Value(attribute.Key(AttrReason))
				if (reason == "" && !has) || (has && v.AsString() == reason) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestEncode(t *testing.T) {
	assert.Equal(t, "{\"format\":\"json\",\"version\":1}\n{\"a\":1}\n", string(Encode([]byte(`{"a":1}`))))

	payload, err := EncodeDocument(rawDoc(`{"name":"svc"}`))
	require.NoError(t, err)
	assert.Equal(t, "{\"format\":\"json\",\"version\":1}\n{\"name\":\"svc\"}\n", string(payload))

	_, err = EncodeDocument(badDoc{})
	assert.ErrorIs(t, err, errBoom)
}

func TestClient_SyncDelivers(t *testing.T) {
	var buf bytes.Buffer
	tr, err := NewWriterTransport(&buf)
	require.NoError(t, err)
	c, err := NewClient(WithTransport(tr), WithSync())
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), rawDoc(`{"a":1}`)))
	assert.Equal(t, string(Encode([]byte(`{"a":1}`))), buf.String())
	assert.Equal(t, "writer", c.Destination())
	assert.Equal(t, 0, c.Pending())
	require.NoError(t, c.Reconfigure(0, 0), "sync mode ignores pool settings")
	require.NoError(t, c.Close(context.Background()))
}

func TestClient_AsyncDeliversAndDrainsOnClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	tr.EXPECT().Destination().Return("mock").AnyTimes()

	var delivered atomic.Int32
	tr.EXPECT().Send(gomock.Any()).DoAndReturn(func([]byte) error {
		delivered.Add(1)
		return nil
	}).Times(20)
	tr.EXPECT().Close().Return(nil)

	c, err := NewClient(WithTransport(tr), WithWorkers(4, 100))
	require.NoError(t, err)
	for range 20 {
		require.NoError(t, c.Send(context.Background(), rawDoc(`{}`)))
	}
	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, int32(20), delivered.Load())

	err = c.Send(context.Background(), rawDoc(`{}`))
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestClient_TransportErrorGoesToHandlerOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	tr.EXPECT().Destination().Return("mock").AnyTimes()
	tr.EXPECT().Send(gomock.Any()).Return(errBoom)

	h := &recordingHandler{}
	c, err := NewClient(WithTransport(tr), WithSync(), WithErrorHandler(h))
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), rawDoc(`{"a":1}`)))
	calls := h.snapshot()
	require.Len(t, calls, 1)
	assert.ErrorIs(t, calls[0].err, errBoom)
	assert.Equal(t, "mock", calls[0].dest)
	assert.Equal(t, Encode([]byte(`{"a":1}`)), calls[0].payload)
}

func TestClient_QueueFullNotifiesOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	tr.EXPECT().Destination().Return("mock").AnyTimes()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	tr.EXPECT().Send(gomock.Any()).DoAndReturn(func([]byte) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}).Times(2)
	tr.EXPECT().Close().Return(nil)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	h := &recordingHandler{}
	c, err := NewClient(WithTransport(tr), WithWorkers(1, 1), WithErrorHandler(h), WithMeterProvider(mp))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Send(ctx, rawDoc(`{"n":1}`)))
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not pick up the first payload")
	}
	require.NoError(t, c.Send(ctx, rawDoc(`{"n":2}`)))
	assert.Equal(t, 1, c.Pending())

	err = c.Send(ctx, rawDoc(`{"n":3}`))
	require.ErrorIs(t, err, ErrQueueFull)

	calls := h.snapshot()
	require.Len(t, calls, 1)
	assert.ErrorIs(t, calls[0].err, ErrQueueFull)
	assert.Contains(t, string(calls[0].payload), `{"n":3}`)
	assert.Equal(t, int64(1), counterValue(t, reader, MetricRejected, reasonQueueFull))

	close(release)
	require.NoError(t, c.Close(ctx))
	assert.Len(t, h.snapshot(), 1)
	assert.Equal(t, int64(2), counterValue(t, reader, MetricSent, ""))
}

func TestClient_EncodeError(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	h := &recordingHandler{}
	c, err := NewClient(WithTransport(NewNullTransport()), WithSync(), WithErrorHandler(h), WithMeterProvider(mp))
	require.NoError(t, err)

	err = c.Send(context.Background(), badDoc{})
	require.ErrorIs(t, err, errBoom)
	calls := h.snapshot()
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0].payload)
	assert.Equal(t, "null", calls[0].dest)
	assert.Equal(t, int64(1), counterValue(t, reader, MetricRejected, reasonEncode))
}

func TestClient_HandlerPanicWritesFallback(t *testing.T) {
	var fallback bytes.Buffer
	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	tr.EXPECT().Destination().Return("mock").AnyTimes()
	tr.EXPECT().Send(gomock.Any()).Return(errBoom)

	panicky := ErrorHandlerFunc(func(error, []byte, string) { panic("handler exploded") })
	c, err := NewClient(WithTransport(tr), WithSync(), WithErrorHandler(panicky), WithFallbackWriter(&fallback))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		assert.NoError(t, c.Send(context.Background(), rawDoc(`{}`)))
	})
	assert.Contains(t, fallback.String(), "handler exploded")
}

func TestClient_FailureMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	ctrl := gomock.NewController(t)
	tr := NewMockTransport(ctrl)
	tr.EXPECT().Destination().Return("mock").AnyTimes()
	gomock.InOrder(
		tr.EXPECT().Send(gomock.Any()).Return(nil),
		tr.EXPECT().Send(gomock.Any()).Return(&ShortWriteError{Written: 1, Size: 10}),
		tr.EXPECT().Send(gomock.Any()).Return(errBoom),
	)

	c, err := NewClient(WithTransport(tr), WithSync(), WithMeterProvider(mp),
		WithErrorHandler(ErrorHandlerFunc(func(error, []byte, string) {})))
	require.NoError(t, err)
	for range 3 {
		require.NoError(t, c.Send(context.Background(), rawDoc(`{}`)))
	}

	assert.Equal(t, int64(1), counterValue(t, reader, MetricSent, ""))
	assert.Equal(t, int64(1), counterValue(t, reader, MetricFailed, reasonShortWrite))
	assert.Equal(t, int64(1), counterValue(t, reader, MetricFailed, reasonTransport))
}

func TestClient_Reconfigure(t *testing.T) {
	c, err := NewClient(WithTransport(NewNullTransport()), WithWorkers(1, 1))
	require.NoError(t, err)

	require.NoError(t, c.Reconfigure(2, 8))
	assert.ErrorIs(t, c.Reconfigure(0, 8), ErrInvalidConfig)

	require.NoError(t, c.Close(context.Background()))
	assert.ErrorIs(t, c.Reconfigure(2, 8), ErrClientClosed)
}

func TestNewClient_InvalidWorkers(t *testing.T) {
	_, err := NewClient(WithTransport(NewNullTransport()), WithWorkers(0, 10))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDefaultErrorHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	NewDefaultErrorHandler(&buf).HandleError(errBoom, []byte("payload"), "127.0.0.1:2000")
	assert.Equal(t, "Failed to send a segment to 127.0.0.1:2000:\nSegment:\npayload\nError: boom\n", buf.String())
}
