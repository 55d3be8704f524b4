package xtrace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/omeyang/xraykit/pkg/context/xctx"
	"github.com/omeyang/xraykit/pkg/observability/xsampling"
)

const (
	rootVersion      = "1"
	rootEpochLen     = 8
	rootRandomBytes  = 12
	rootRandomLen    = rootRandomBytes * 2
	rootLen          = len(rootVersion) + 1 + rootEpochLen + 1 + rootRandomLen
	segmentIDLen     = 16
	rootSeparatorPos = 1
)

// Trace 一次端到端请求的追踪身份：根标识、采样决策、父节点指针以及透传字段。
//
// Trace 是不可变值类型，可以安全地在 goroutine 之间按值传递。
// 采样决策在构造时确定，WithParent/Copy 不会改变它。
type Trace struct {
	root    string
	sampled bool
	parent  string
	extra   []Field
}

// New 使用给定字段构造 Trace。extra 会被复制。
func New(root string, sampled bool, parent string, extra ...Field) Trace {
	return Trace{
		root:    root,
		sampled: sampled,
		parent:  parent,
		extra:   slices.Clone(extra),
	}
}

// GenerateRoot 生成新的根标识: "1-" + 8 位十六进制纪元秒 + "-" + 24 位十六进制随机数。
//
// 熵源不可用属于系统级故障，直接 panic。
func GenerateRoot(now time.Time) string {
	var buf [rootRandomBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("xtrace: crypto/rand.Read failed: " + err.Error())
	}
	return fmt.Sprintf("%s-%08x-%s", rootVersion, uint32(now.Unix()), hex.EncodeToString(buf[:]))
}

// Generate 生成全新的 Trace（新根标识、已采样、无父节点）。
func Generate(now time.Time) Trace {
	return Trace{root: GenerateRoot(now), sampled: true}
}

// Build 从入站追踪头构造 Trace，是适配器（HTTP/gRPC 中间件）的统一入口。
//
//   - Root: 取追踪头中的值，缺失时以 now 生成新根标识
//   - Sampled: 由 xsampling.Decide 决定，追踪头的显式 0/1 优先于 s
//   - Parent: 取追踪头中的值
//   - 其他字段按原顺序保存在 Extra 中，序列化时原样透传
//
// 调用 s 之前会把 Root 写入 ctx 的 xctx trace_id，供一致性采样器使用。
func Build(ctx context.Context, header string, now time.Time, s xsampling.Sampler) Trace {
	var (
		t            Trace
		sampledValue string
	)
	for _, f := range ParseFields(header) {
		switch f.Key {
		case KeyRoot:
			t.root = f.Value
		case KeySampled:
			sampledValue = f.Value
		case KeyParent:
			t.parent = f.Value
		default:
			t.extra = append(t.extra, f)
		}
	}
	if t.root == "" {
		t.root = GenerateRoot(now)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if sctx, err := xctx.WithTraceID(ctx, t.root); err == nil {
		ctx = sctx
	}
	t.sampled = xsampling.Decide(ctx, sampledValue, s)
	return t
}

// Root 返回根标识
func (t Trace) Root() string { return t.root }

// Sampled 返回采样决策
func (t Trace) Sampled() bool { return t.sampled }

// Parent 返回父节点 ID，无父节点时为空
func (t Trace) Parent() string { return t.parent }

// Extra 返回透传字段的副本
func (t Trace) Extra() []Field { return slices.Clone(t.extra) }

// IsZero 报告 t 是否为零值
func (t Trace) IsZero() bool { return t.root == "" }

// WithParent 返回父节点替换为 parent 的副本，根标识、采样决策与透传字段不变。
func (t Trace) WithParent(parent string) Trace {
	c := t.Copy()
	c.parent = parent
	return c
}

// Copy 返回独立的副本
func (t Trace) Copy() Trace {
	return Trace{root: t.root, sampled: t.sampled, parent: t.parent, extra: slices.Clone(t.extra)}
}

// Header 序列化为追踪头文本。
//
// 总是输出 "Root=<root>;Sampled=<0|1>"，有父节点时追加 ";Parent=<id>"，
// 最后按顺序追加透传字段。
func (t Trace) Header() string {
	var b strings.Builder
	b.Grow(64 + 16*len(t.extra))
	b.WriteString(KeyRoot)
	b.WriteString(kvSeparator)
	b.WriteString(t.root)
	b.WriteString(fieldSeparator)
	b.WriteString(KeySampled)
	b.WriteString(kvSeparator)
	b.WriteString(xsampling.FormatSampled(t.sampled))
	if t.parent != "" {
		formatFields(&b, []Field{{Key: KeyParent, Value: t.parent}})
	}
	formatFields(&b, t.extra)
	return b.String()
}

// String 实现 fmt.Stringer，等同于 Header
func (t Trace) String() string { return t.Header() }

// =============================================================================
// 格式校验（诊断用途，解析本身保持宽松）
// =============================================================================

// IsValidRoot 校验根标识格式 "1-<8 hex>-<24 hex>"
func IsValidRoot(root string) bool {
	if len(root) != rootLen {
		return false
	}
	if root[:rootSeparatorPos] != rootVersion || root[rootSeparatorPos] != '-' || root[rootSeparatorPos+1+rootEpochLen] != '-' {
		return false
	}
	return isValidHex(root[2:2+rootEpochLen]) && isValidHex(root[3+rootEpochLen:])
}

// IsValidSegmentID 校验 segment ID 格式（16 位小写十六进制）
func IsValidSegmentID(id string) bool {
	return len(id) == segmentIDLen && isValidHex(id)
}

func isValidHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return s != ""
}
