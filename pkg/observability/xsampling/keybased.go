package xsampling

import (
	"context"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/omeyang/xraykit/pkg/context/xctx"
)

// KeyFunc 从上下文中提取采样 key
//
// 返回空字符串时 KeyBasedSampler 回退到随机采样。
type KeyFunc func(ctx context.Context) string

// KeyBasedOption 配置 KeyBasedSampler 的可选参数
type KeyBasedOption func(*KeyBasedSampler)

// WithOnEmptyKey 设置空 key 回调，回退随机采样前调用，可用于计数。
// nil 回调会被忽略。
func WithOnEmptyKey(fn func()) KeyBasedOption {
	return func(s *KeyBasedSampler) {
		if fn != nil {
			s.onEmptyKey = fn
		}
	}
}

// KeyBasedSampler 基于 key 的一致性采样
//
// 对于相同的 key 与 rate 总是产生相同的决策。按 trace 根标识采样时，
// 即使上游没有传递 Sampled 字段，同一 trace 在不同进程中也会得到一致结果。
type KeyBasedSampler struct {
	rate       float64
	keyFunc    KeyFunc
	onEmptyKey func()
}

// NewKeyBasedSampler 创建基于 key 的一致性采样器
//
// rate 超出 [0.0, 1.0] 返回 ErrInvalidRate；keyFunc 为 nil 返回 ErrNilKeyFunc；
// nil option 返回 ErrNilOption。
func NewKeyBasedSampler(rate float64, keyFunc KeyFunc, opts ...KeyBasedOption) (*KeyBasedSampler, error) {
	if err := validateRate(rate); err != nil {
		return nil, err
	}
	if keyFunc == nil {
		return nil, ErrNilKeyFunc
	}
	s := &KeyBasedSampler{rate: rate, keyFunc: keyFunc}
	for _, opt := range opts {
		if opt == nil {
			return nil, ErrNilOption
		}
		opt(s)
	}
	return s, nil
}

// NewTraceIDSampler 创建按 xctx trace_id（X-Ray Root）做一致性采样的采样器。
//
// xtrace.Build 在调用采样器前会把新 Root 写入 ctx。
func NewTraceIDSampler(rate float64, opts ...KeyBasedOption) (*KeyBasedSampler, error) {
	return NewKeyBasedSampler(rate, xctx.TraceID, opts...)
}

func (s *KeyBasedSampler) ShouldSample(ctx context.Context) bool {
	if s.rate <= 0 {
		return false
	}
	if s.rate >= 1 {
		return true
	}

	var key string
	if ctx != nil {
		key = s.keyFunc(ctx)
	}
	if key == "" {
		if s.onEmptyKey != nil {
			s.onEmptyKey()
		}
		return randomFloat64() < s.rate
	}

	// xxhash 跨进程确定，同一 key 在所有服务中得到同一结果。
	// rate=1 已提前返回，normalized 等于 1.0 时不会通过比较。
	normalized := float64(xxhash.Sum64String(key)) / float64(math.MaxUint64)
	return normalized < s.rate
}

// Rate 返回采样比率
func (s *KeyBasedSampler) Rate() float64 {
	return s.rate
}

var _ Sampler = (*KeyBasedSampler)(nil)
