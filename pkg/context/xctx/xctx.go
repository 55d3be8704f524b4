package xctx

import "errors"

// =============================================================================
// Context Key 类型定义
// =============================================================================

// 设计决策: contextKey 使用 string 而非 int+iota，作为包私有类型不会与其他包冲突，
// 字符串值在调试时可读。
type contextKey string

// =============================================================================
// 通用错误
// =============================================================================

var (
	// ErrNilContext 表示传入的 context 为 nil。
	ErrNilContext = errors.New("xctx: nil context")
)

// =============================================================================
// Trace 相关错误
// =============================================================================

var (
	// ErrMissingTraceID trace_id 缺失
	ErrMissingTraceID = errors.New("xctx: missing trace_id")

	// ErrMissingSegmentID segment_id 缺失
	ErrMissingSegmentID = errors.New("xctx: missing segment_id")

	// ErrMissingSampled sampled 未设置
	ErrMissingSampled = errors.New("xctx: missing sampled")
)
