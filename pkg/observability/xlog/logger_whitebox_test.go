package xlog

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestHandleError_CountsAndRecovers(t *testing.T) {
	var calls int
	logger, _, err := New().
		SetOutput(failingWriter{}).
		SetOnError(func(error) {
			calls++
			panic("callback boom")
		}).
		Build()
	require.NoError(t, err)

	xl := logger.(*xlogger)
	assert.NotPanics(t, func() { logger.Info(context.Background(), "x") })
	assert.Equal(t, 1, calls)
	// 写入失败 1 次 + 回调 panic 1 次
	assert.Equal(t, uint64(2), xl.ErrorCount())

	child := logger.With(slog.String("k", "v"))
	child.Error(context.Background(), "y")
	assert.Equal(t, uint64(4), xl.ErrorCount(), "派生 logger 共享计数器")
}

func TestHandleError_NoRecursion(t *testing.T) {
	var logger LoggerWithLevel
	var calls int
	logger, _, err := New().
		SetOutput(failingWriter{}).
		SetOnError(func(error) {
			calls++
			logger.Error(context.Background(), "inside callback")
		}).
		Build()
	require.NoError(t, err)

	logger.Info(context.Background(), "x")
	assert.Equal(t, 1, calls)
}

func TestLog_NilContext(t *testing.T) {
	logger, _, err := New().SetOutput(failingWriter{}).Build()
	require.NoError(t, err)
	//nolint:staticcheck // 验证 nil context 防御
	assert.NotPanics(t, func() { logger.Info(nil, "x") })
	//nolint:staticcheck // 验证 nil context 防御
	assert.True(t, logger.Enabled(nil, LevelInfo))
}
