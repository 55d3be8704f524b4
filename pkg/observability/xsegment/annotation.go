package xsegment

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"strings"
)

// ErrInvalidAnnotation 注解不满足 X-Ray 约束
var ErrInvalidAnnotation = errors.New("xsegment: invalid annotation")

// NormalizeAnnotations 规范化注解，使其满足 X-Ray 对可索引字段的约束。
//
//   - key: "-" 替换为 "_"，再删除 [A-Za-z0-9_] 以外的字符；规范化后为空的 key 被丢弃
//   - value: nil、字符串、布尔、有限数值原样保留，NaN/Inf 与其他值转为 fmt.Sprint 的字符串形式
//
// 多个 key 规范化后相同时按原 key 字典序处理，排在后面的生效。
//
// 函数是幂等的：NormalizeAnnotations(NormalizeAnnotations(m)) 与 NormalizeAnnotations(m) 相同。
func NormalizeAnnotations(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		key := NormalizeAnnotationKey(k)
		if key == "" {
			continue
		}
		out[key] = NormalizeAnnotationValue(m[k])
	}
	return out
}

// NormalizeAnnotationKey 规范化单个注解 key
func NormalizeAnnotationKey(k string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '-':
			return '_'
		case isAnnotationKeyRune(r):
			return r
		}
		return -1
	}, k)
}

// NormalizeAnnotationValue 规范化单个注解值
func NormalizeAnnotationValue(v any) any {
	switch v.(type) {
	case nil, string, bool:
		return v
	}
	if isNumber(v) {
		return v
	}
	return fmt.Sprint(v)
}

// ValidateAnnotations 校验注解：key 必须非空且只含字母、数字、下划线，
// value 必须是字符串、布尔或有限数值。
func ValidateAnnotations(m map[string]any) error {
	for k, v := range m {
		if k == "" || strings.IndexFunc(k, func(r rune) bool { return !isAnnotationKeyRune(r) }) >= 0 {
			return fmt.Errorf("%w: key %q must be alphanumeric or underscore", ErrInvalidAnnotation, k)
		}
		switch v.(type) {
		case string, bool:
			continue
		}
		if !isNumber(v) {
			return fmt.Errorf("%w: value of %q must be string, number or bool, got %T", ErrInvalidAnnotation, k, v)
		}
	}
	return nil
}

func isAnnotationKeyRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// isNumber 报告 v 是否为 JSON 可表示的数值；NaN 与 ±Inf 不可表示
func isNumber(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return false
}
