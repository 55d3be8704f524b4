package xray

import (
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/omeyang/xraykit/pkg/config/xconf"
	"github.com/omeyang/xraykit/pkg/observability/xlog"
	"github.com/omeyang/xraykit/pkg/observability/xsampling"
	"github.com/omeyang/xraykit/pkg/observability/xsegment"
	"github.com/omeyang/xraykit/pkg/util/xpool"
)

// Config SDK 配置，字段使用 koanf 标签，可从 YAML / JSON 加载：
//
//	name: orders
//	sampling_rate: 0.1
//	daemon:
//	  address: 127.0.0.1:2000
//	worker:
//	  num: 10
//	  max_queue_size: 1000
//	log:
//	  level: info
//	  file: /var/log/orders/xray.log
type Config struct {
	// Name 服务名，写入每个 base segment，必填
	Name string `koanf:"name"`
	// Version 服务版本；为空时从 RevisionPath 文件检测
	Version      string `koanf:"version"`
	RevisionPath string `koanf:"revision_path"`

	// SamplingRate 新 Trace 的采样概率 [0, 1]。入站 header 显式携带 Sampled 时以 header 为准。
	SamplingRate float64 `koanf:"sampling_rate"`
	// SamplingStrategy random（默认）或 trace_id：按 Root 哈希采样，同一 Trace 在各服务中决策一致
	SamplingStrategy string `koanf:"sampling_strategy"`

	Daemon  DaemonConfig  `koanf:"daemon"`
	Worker  WorkerConfig  `koanf:"worker"`
	Breaker BreakerConfig `koanf:"breaker"`

	// ExcludedPaths 不追踪的入站 HTTP 路径（精确匹配）
	ExcludedPaths []string `koanf:"excluded_paths"`
	// TraceHeaderWhitelistHosts 出站请求只向这些 host 传播 trace header，为空表示全部传播
	TraceHeaderWhitelistHosts []string `koanf:"trace_header_whitelist_hosts"`
	// RecordCallerOfHTTPRequests 在出站 subsegment 的 metadata 中记录调用栈
	RecordCallerOfHTTPRequests bool `koanf:"record_caller_of_http_requests"`

	Log LogConfig `koanf:"log"`
}

// DaemonConfig daemon 地址
type DaemonConfig struct {
	Address string `koanf:"address"`
}

// WorkerConfig 发送 worker pool
type WorkerConfig struct {
	Num          int `koanf:"num"`
	MaxQueueSize int `koanf:"max_queue_size"`
}

// BreakerConfig 传输层熔断
type BreakerConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Failures uint32        `koanf:"failures"`
	Timeout  time.Duration `koanf:"timeout"`
}

// LogConfig SDK 自身日志。File 为空时写 stderr，否则写入文件并按大小轮转。
type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// DefaultConfig 返回默认配置（Name 需调用方填写）
func DefaultConfig() Config {
	return Config{
		RevisionPath: xsegment.DefaultRevisionPath,
		SamplingRate: 1,
		Daemon:       DaemonConfig{Address: DefaultDaemonAddress},
		Worker:       WorkerConfig{Num: DefaultWorkers, MaxQueueSize: DefaultMaxQueueSize},
		Breaker:      BreakerConfig{Failures: 5, Timeout: 30 * time.Second},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// Validate 校验配置，所有错误都包装 ErrInvalidConfig；缺少 Name 时同时匹配 ErrMissingName。
func (c Config) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, ErrMissingName)
	}
	if math.IsNaN(c.SamplingRate) || c.SamplingRate < 0 || c.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("sampling_rate %v out of [0, 1]", c.SamplingRate))
	}
	switch c.SamplingStrategy {
	case "", SamplingRandom, SamplingTraceID:
	default:
		errs = append(errs, fmt.Errorf("sampling_strategy %q must be %s or %s", c.SamplingStrategy, SamplingRandom, SamplingTraceID))
	}
	if _, _, err := net.SplitHostPort(c.Daemon.Address); err != nil {
		errs = append(errs, fmt.Errorf("daemon.address %q: %w", c.Daemon.Address, err))
	}
	if c.Worker.Num < 1 || c.Worker.Num > xpool.MaxWorkers {
		errs = append(errs, fmt.Errorf("worker.num %d out of [1, %d]", c.Worker.Num, xpool.MaxWorkers))
	}
	if c.Worker.MaxQueueSize < 1 || c.Worker.MaxQueueSize > xpool.MaxQueueSize {
		errs = append(errs, fmt.Errorf("worker.max_queue_size %d out of [1, %d]", c.Worker.MaxQueueSize, xpool.MaxQueueSize))
	}
	if c.Breaker.Enabled && c.Breaker.Failures == 0 {
		errs = append(errs, errors.New("breaker.failures must be positive"))
	}
	if c.Log.Level != "" {
		if _, err := xlog.ParseLevel(c.Log.Level); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		errs = append(errs, errors.New("log rotation limits must not be negative"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// 采样策略
const (
	SamplingRandom  = "random"
	SamplingTraceID = "trace_id"
)

// NewSampler 按 SamplingStrategy 与 SamplingRate 创建采样器
func (c Config) NewSampler() (xsampling.Sampler, error) {
	if c.SamplingStrategy == SamplingTraceID {
		return xsampling.NewTraceIDSampler(c.SamplingRate)
	}
	return xsampling.FromRate(c.SamplingRate)
}

// ResolveVersion 返回 Version，为空时读取 RevisionPath 文件（不存在时返回空字符串）
func (c Config) ResolveVersion() (string, error) {
	if c.Version != "" {
		return c.Version, nil
	}
	path := c.RevisionPath
	if path == "" {
		path = xsegment.DefaultRevisionPath
	}
	return xsegment.DetectVersion(path)
}

// BuildLogger 按 Log 配置构建 xlog Logger；cleanup 关闭轮转文件
func (c Config) BuildLogger() (xlog.LoggerWithLevel, func() error, error) {
	b := xlog.New().SetFormat(c.Log.Format)
	if c.Log.Level != "" {
		b = b.SetLevelString(c.Log.Level)
	}
	if c.Log.File != "" {
		b = b.SetRotation(c.Log.File,
			xlog.WithMaxSize(c.Log.MaxSizeMB),
			xlog.WithMaxBackups(c.Log.MaxBackups),
			xlog.WithMaxAge(c.Log.MaxAgeDays),
			xlog.WithCompress(c.Log.Compress),
		)
	}
	return b.Build()
}

// LoadConfig 以 DefaultConfig 为基础加载配置文件（.yaml/.yml/.json）并校验
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := xconf.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigBytes 同 LoadConfig，数据来自内存（如 K8s ConfigMap）
func LoadConfigBytes(data []byte, format xconf.Format) (Config, error) {
	cfg := DefaultConfig()
	if err := xconf.Decode(data, format, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
