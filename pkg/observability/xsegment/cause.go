package xsegment

import (
	"fmt"
	"os"
	"reflect"
	"runtime"
	"strings"
)

const (
	// MaxStackFrames Cause 中保留的最大调用栈帧数，超出部分计入 truncated
	MaxStackFrames = 10

	// MaxCallerFrames CallerMetadata 中保留的最大调用栈帧数
	MaxCallerFrames = 100

	// TypePanic 非 error 类型 panic 值的异常类型
	TypePanic = "panic"

	maxCapturedPCs = 256
)

// Cause 附加在出错 segment 上的结构化异常信息
type Cause struct {
	// ID 与第一个异常记录的 ID 相同，不写入文档
	ID               string      `json:"-"`
	WorkingDirectory string      `json:"working_directory"`
	Paths            []string    `json:"paths"`
	Exceptions       []Exception `json:"exceptions"`
}

// Exception 单个异常记录
type Exception struct {
	ID        string       `json:"id"`
	Message   string       `json:"message"`
	Type      string       `json:"type"`
	Remote    bool         `json:"remote"`
	Truncated int          `json:"truncated"`
	Stack     []StackFrame `json:"stack"`
}

// StackFrame 调用栈帧，Path 相对于进程工作目录
type StackFrame struct {
	Path  string `json:"path"`
	Line  int    `json:"line"`
	Label string `json:"label"`
}

// Typer 可由 error 实现，自定义 Cause 中的异常类型名。
type Typer interface {
	ErrorType() string
}

// StackTracer 可由 error 实现，提供错误产生位置的调用栈；
// 未实现时使用捕获位置的调用栈。
type StackTracer interface {
	Callers() []uintptr
}

// NewCause 从 error 构造 Cause。
//
// 异常类型优先取 Typer.ErrorType()，否则取 error 的 Go 类型名（去掉包路径与指针）。
// skip 为调用栈需要额外跳过的帧数，0 表示从 NewCause 的调用方开始。
func NewCause(err error, remote bool, skip int) *Cause {
	if err == nil {
		return nil
	}
	var pcs []uintptr
	if st, ok := err.(StackTracer); ok {
		pcs = st.Callers()
	} else {
		pcs = captureStack(skip + 1)
	}
	return buildCause(err.Error(), ErrorType(err), remote, pcs)
}

// NewPanicCause 从 recover() 得到的值构造 Cause，需在 defer 中调用，
// 此时调用栈仍包含 panic 发生的位置。runtime 内部帧会被过滤。
func NewPanicCause(v any, remote bool, skip int) *Cause {
	msg, typ := fmt.Sprint(v), TypePanic
	if err, ok := v.(error); ok {
		msg, typ = err.Error(), ErrorType(err)
	}
	return buildCause(msg, typ, remote, captureStack(skip+1))
}

// NewSyntheticCause 构造没有真实 error 的 Cause（如状态码派生的错误），
// 调用栈取当前位置。
func NewSyntheticCause(message, typ string, remote bool, skip int) *Cause {
	return buildCause(message, typ, remote, captureStack(skip+1))
}

// ErrorType 返回 error 的类型名
func ErrorType(err error) string {
	if err == nil {
		return ""
	}
	if t, ok := err.(Typer); ok {
		return t.ErrorType()
	}
	rt := reflect.TypeOf(err)
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if name := rt.Name(); name != "" {
		return name
	}
	return rt.String()
}

// CallerMetadata 以 metadata 形式返回调用方调用栈（最多 MaxCallerFrames 帧），
// 用于记录是哪段代码发起了出站请求。
//
//	{"caller": {"stack": [...], "truncated": n}}
func CallerMetadata(skip int) map[string]any {
	stack, truncated := buildStack(captureStack(skip+1), workingDirectory(), MaxCallerFrames)
	return map[string]any{
		"caller": map[string]any{
			"stack":     stack,
			"truncated": truncated,
		},
	}
}

func buildCause(message, typ string, remote bool, pcs []uintptr) *Cause {
	wd := workingDirectory()
	stack, truncated := buildStack(pcs, wd, MaxStackFrames)
	id := NewID()
	return &Cause{
		ID:               id,
		WorkingDirectory: wd,
		Paths:            []string{},
		Exceptions: []Exception{{
			ID:        id,
			Message:   message,
			Type:      typ,
			Remote:    remote,
			Truncated: truncated,
			Stack:     stack,
		}},
	}
}

// captureStack 返回调用方往上 skip 帧开始的程序计数器
func captureStack(skip int) []uintptr {
	pcs := make([]uintptr, maxCapturedPCs)
	// +2: runtime.Callers 与 captureStack 自身
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

// buildStack 展开调用栈，保留前 limit 帧，返回被截断的帧数
func buildStack(pcs []uintptr, wd string, limit int) ([]StackFrame, int) {
	stack := make([]StackFrame, 0, min(len(pcs), limit))
	truncated := 0
	if len(pcs) == 0 {
		return stack, 0
	}
	prefix := wd + string(os.PathSeparator)
	frames := runtime.CallersFrames(pcs)
	for {
		f, more := frames.Next()
		if f.Function != "" && !strings.HasPrefix(f.Function, "runtime.") {
			if len(stack) < limit {
				stack = append(stack, StackFrame{
					Path:  strings.TrimPrefix(f.File, prefix),
					Line:  f.Line,
					Label: shortFuncName(f.Function),
				})
			} else {
				truncated++
			}
		}
		if !more {
			break
		}
	}
	return stack, truncated
}

// shortFuncName 去掉包路径目录部分: "github.com/a/b.(*T).M" -> "b.(*T).M"
func shortFuncName(fn string) string {
	if i := strings.LastIndexByte(fn, '/'); i >= 0 {
		return fn[i+1:]
	}
	return fn
}

func workingDirectory() string {
	wd, err := os.Getwd()
	if err != nil {
		return string(os.PathSeparator)
	}
	return wd
}
