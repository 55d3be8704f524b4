package xsegment_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xraykit/pkg/observability/xsegment"
)

type RuntimeError struct{ msg string }

func (e *RuntimeError) Error() string { return e.msg }

type typedError struct{}

func (typedError) Error() string     { return "typed" }
func (typedError) ErrorType() string { return "CustomType" }

func TestErrorType(t *testing.T) {
	assert.Equal(t, "RuntimeError", xsegment.ErrorType(&RuntimeError{msg: "boom"}))
	assert.Equal(t, "CustomType", xsegment.ErrorType(typedError{}))
	assert.Equal(t, "errorString", xsegment.ErrorType(errors.New("x")))
	assert.Empty(t, xsegment.ErrorType(nil))
}

func TestNewCause(t *testing.T) {
	c := xsegment.NewCause(&RuntimeError{msg: "boom"}, false, 0)
	require.NotNil(t, c)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, c.WorkingDirectory)
	assert.Empty(t, c.Paths)
	require.Len(t, c.Exceptions, 1)

	exc := c.Exceptions[0]
	assert.Equal(t, c.ID, exc.ID)
	assert.Len(t, exc.ID, 16)
	assert.Equal(t, "boom", exc.Message)
	assert.Equal(t, "RuntimeError", exc.Type)
	assert.False(t, exc.Remote)
	require.NotEmpty(t, exc.Stack)
	assert.LessOrEqual(t, len(exc.Stack), xsegment.MaxStackFrames)

	top := exc.Stack[0]
	assert.Equal(t, "cause_test.go", top.Path, "路径相对于工作目录")
	assert.True(t, strings.HasSuffix(top.Label, "TestNewCause"), top.Label)
	assert.Positive(t, top.Line)

	assert.Nil(t, xsegment.NewCause(nil, false, 0))
}

func recurse(n int, fn func()) {
	if n == 0 {
		fn()
		return
	}
	recurse(n-1, fn)
}

func TestNewCause_Truncated(t *testing.T) {
	var c *xsegment.Cause
	recurse(20, func() {
		c = xsegment.NewSyntheticCause("deep", "deep_error", true, 0)
	})

	exc := c.Exceptions[0]
	assert.Len(t, exc.Stack, xsegment.MaxStackFrames)
	assert.GreaterOrEqual(t, exc.Truncated, 11)
	assert.True(t, exc.Remote)
	assert.Equal(t, "deep_error", exc.Type)
}

func TestNewPanicCause(t *testing.T) {
	capture := func(fn func()) (c *xsegment.Cause) {
		defer func() {
			c = xsegment.NewPanicCause(recover(), false, 0)
		}()
		fn()
		return nil
	}

	c := capture(func() { panic("kaboom") })
	assert.Equal(t, "kaboom", c.Exceptions[0].Message)
	assert.Equal(t, xsegment.TypePanic, c.Exceptions[0].Type)
	for _, f := range c.Exceptions[0].Stack {
		assert.False(t, strings.HasPrefix(f.Label, "runtime."), f.Label)
	}

	c = capture(func() { panic(&RuntimeError{msg: "bad"}) })
	assert.Equal(t, "bad", c.Exceptions[0].Message)
	assert.Equal(t, "RuntimeError", c.Exceptions[0].Type)
}

type stackError struct{ pcs []uintptr }

func (e stackError) Error() string      { return "with stack" }
func (e stackError) Callers() []uintptr { return e.pcs }

func TestNewCause_StackTracer(t *testing.T) {
	c := xsegment.NewCause(stackError{}, false, 0)
	assert.Empty(t, c.Exceptions[0].Stack)
	assert.Zero(t, c.Exceptions[0].Truncated)
}

func TestCallerMetadata(t *testing.T) {
	md := xsegment.CallerMetadata(0)
	caller := md["caller"].(map[string]any)
	stack := caller["stack"].([]xsegment.StackFrame)
	require.NotEmpty(t, stack)
	assert.True(t, strings.HasSuffix(stack[0].Label, "TestCallerMetadata"))
	assert.Equal(t, 0, caller["truncated"])
}

func TestFaultFromError(t *testing.T) {
	info := xsegment.FaultFromError(fmt.Errorf("wrap: %w", &RuntimeError{msg: "x"}), true, 0)
	assert.True(t, info.Fault)
	assert.False(t, info.Error)
	assert.Equal(t, "wrapError", info.Cause.Exceptions[0].Type)
	assert.True(t, info.Cause.Exceptions[0].Remote)
}

func TestDetectVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "REVISION")

	v, err := xsegment.DetectVersion(path)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, os.WriteFile(path, []byte("deadbeef\n"), 0o600))
	v, err = xsegment.DetectVersion(path)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", v)
}
