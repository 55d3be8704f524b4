package xsampling

import (
	"context"
	"math"
)

type alwaysSampler struct{}

var alwaysSamplerInstance = &alwaysSampler{}

// Always 返回全采样策略，即配置的 sampling_rate 为 1 时的行为。
func Always() Sampler {
	return alwaysSamplerInstance
}

func (s *alwaysSampler) ShouldSample(_ context.Context) bool {
	return true
}

type neverSampler struct{}

var neverSamplerInstance = &neverSampler{}

// Never 返回不采样策略
func Never() Sampler {
	return neverSamplerInstance
}

func (s *neverSampler) ShouldSample(_ context.Context) bool {
	return false
}

// RateSampler 固定比率随机采样
//
// 每次抽取 [0, 1) 均匀随机数，小于 rate 时采样。
//
// 设计决策: 工厂函数返回具体类型而非 Sampler 接口，Rate() 便于日志与配置回显。
type RateSampler struct {
	rate float64
}

// NewRateSampler 创建固定比率采样器
//
// rate 超出 [0.0, 1.0] 范围或为 NaN 时返回 ErrInvalidRate。
func NewRateSampler(rate float64) (*RateSampler, error) {
	if err := validateRate(rate); err != nil {
		return nil, err
	}
	return &RateSampler{rate: rate}, nil
}

func (s *RateSampler) ShouldSample(_ context.Context) bool {
	if s.rate <= 0 {
		return false
	}
	if s.rate >= 1 {
		return true
	}
	return randomFloat64() < s.rate
}

// Rate 返回采样比率
func (s *RateSampler) Rate() float64 {
	return s.rate
}

// FromRate 按比率返回最简采样器：0 返回 Never()，1 返回 Always()，其余返回 RateSampler。
func FromRate(rate float64) (Sampler, error) {
	if err := validateRate(rate); err != nil {
		return nil, err
	}
	switch rate {
	case 0:
		return Never(), nil
	case 1:
		return Always(), nil
	}
	return &RateSampler{rate: rate}, nil
}

func validateRate(rate float64) error {
	if math.IsNaN(rate) || rate < 0 || rate > 1 {
		return ErrInvalidRate
	}
	return nil
}

var (
	_ Sampler = (*alwaysSampler)(nil)
	_ Sampler = (*neverSampler)(nil)
	_ Sampler = (*RateSampler)(nil)
)
