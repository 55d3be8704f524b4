package xtrace

import (
	"strings"
	"unicode"
)

// =============================================================================
// 追踪头格式常量
// =============================================================================

const (
	// HeaderName HTTP 追踪头名称
	HeaderName = "X-Amzn-Trace-Id"

	// MetadataKey gRPC metadata 追踪头名称（gRPC 要求小写）
	MetadataKey = "x-amzn-trace-id"

	KeyRoot    = "Root"
	KeySampled = "Sampled"
	KeyParent  = "Parent"

	fieldSeparator = ";"
	kvSeparator    = "="
)

// Field 追踪头中的一个 Key=Value 字段
type Field struct {
	Key   string
	Value string
}

// Parse 解析追踪头文本，返回字段映射。
//
// 格式: "Root=1-5759e988-bd862e3fe1be46a994272793;Parent=53995c3f42cd8ad8;Sampled=1"
//
// 解析是宽松的，永远不会失败：
//   - 按 ";" 切分，每段在第一个 "=" 处分为 key 和 value
//   - 所有空白字符被忽略
//   - key 或 value 为空的片段被静默丢弃
//   - 未知 key 原样保留
func Parse(text string) map[string]string {
	fields := ParseFields(text)
	m := make(map[string]string, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return m
}

// ParseFields 与 Parse 规则相同，但保留字段出现顺序。
// 重复 key 以最后一次出现的值为准，位置取第一次出现的位置。
func ParseFields(text string) []Field {
	if text == "" {
		return nil
	}
	var fields []Field
	index := make(map[string]int)
	for token := range strings.SplitSeq(text, fieldSeparator) {
		token = stripSpace(token)
		key, value, ok := strings.Cut(token, kvSeparator)
		if !ok || key == "" || value == "" {
			continue
		}
		if i, dup := index[key]; dup {
			fields[i].Value = value
			continue
		}
		index[key] = len(fields)
		fields = append(fields, Field{Key: key, Value: value})
	}
	return fields
}

// stripSpace 删除所有空白字符（包括片段内部的空白）
func stripSpace(s string) string {
	if strings.IndexFunc(s, unicode.IsSpace) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// formatFields 序列化为 "K=V;K=V"
func formatFields(b *strings.Builder, fields []Field) {
	for _, f := range fields {
		b.WriteString(fieldSeparator)
		b.WriteString(f.Key)
		b.WriteString(kvSeparator)
		b.WriteString(f.Value)
	}
}
