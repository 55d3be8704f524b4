package xctx_test

import (
	"context"
	"testing"

	"github.com/omeyang/xraykit/pkg/context/xctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringFields(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		setter func(context.Context, string) (context.Context, error)
		getter func(context.Context) string
	}{
		{"TraceID", "1-5759e988-bd862e3fe1be46a994272793", xctx.WithTraceID, xctx.TraceID},
		{"SegmentID", "53995c3f42cd8ad8", xctx.WithSegmentID, xctx.SegmentID},
		{"Service", "checkout", xctx.WithService, xctx.Service},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, tt.getter(context.Background()))

			ctx, err := tt.setter(context.Background(), tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.value, tt.getter(ctx))

			var nilCtx context.Context
			assert.Empty(t, tt.getter(nilCtx))
			_, err = tt.setter(nilCtx, tt.value)
			assert.ErrorIs(t, err, xctx.ErrNilContext)
		})
	}
}

func TestSampled(t *testing.T) {
	_, ok := xctx.Sampled(context.Background())
	assert.False(t, ok)

	_, err := xctx.RequireSampled(context.Background())
	assert.ErrorIs(t, err, xctx.ErrMissingSampled)

	ctx, err := xctx.WithSampled(context.Background(), false)
	require.NoError(t, err)
	v, ok := xctx.Sampled(ctx)
	assert.True(t, ok)
	assert.False(t, v)

	ctx, err = xctx.WithSampled(ctx, true)
	require.NoError(t, err)
	v, err = xctx.RequireSampled(ctx)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestRequire(t *testing.T) {
	_, err := xctx.RequireTraceID(context.Background())
	assert.ErrorIs(t, err, xctx.ErrMissingTraceID)
	_, err = xctx.RequireSegmentID(context.Background())
	assert.ErrorIs(t, err, xctx.ErrMissingSegmentID)

	var nilCtx context.Context
	_, err = xctx.RequireTraceID(nilCtx)
	assert.ErrorIs(t, err, xctx.ErrNilContext)
}

func TestWithTrace(t *testing.T) {
	sampled := true
	ctx, err := xctx.WithSegmentID(context.Background(), "existing")
	require.NoError(t, err)

	ctx, err = xctx.WithTrace(ctx, xctx.Trace{TraceID: "1-a-b", Sampled: &sampled})
	require.NoError(t, err)

	got := xctx.GetTrace(ctx)
	assert.Equal(t, "1-a-b", got.TraceID)
	assert.Equal(t, "existing", got.SegmentID, "空字段不覆盖已有值")
	require.NotNil(t, got.Sampled)
	assert.True(t, *got.Sampled)
	assert.NoError(t, got.Validate())

	assert.ErrorIs(t, xctx.Trace{}.Validate(), xctx.ErrMissingTraceID)
	assert.ErrorIs(t, xctx.Trace{TraceID: "x"}.Validate(), xctx.ErrMissingSegmentID)
}
