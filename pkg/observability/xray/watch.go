package xray

import (
	"context"
	"log/slog"

	"github.com/omeyang/xraykit/pkg/config/xconf"
	"github.com/omeyang/xraykit/pkg/observability/xlog"
)

// WatchConfig 监视配置文件，变更后重新加载并调用 tracer.Reconfigure。
//
// 加载或校验失败时保留旧配置并记录警告。返回的 Watcher 需调用 StartAsync 启动、Stop 停止。
func WatchConfig(path string, tracer *Tracer, opts ...xconf.WatchOption) (*xconf.Watcher, error) {
	if tracer == nil {
		return nil, ErrInvalidConfig
	}
	logger := tracer.Logger()
	return xconf.Watch(path, LoadConfig, func(cfg Config, err error) {
		ctx := context.Background()
		if err == nil {
			err = tracer.Reconfigure(cfg)
		}
		if err != nil {
			logger.Warn(ctx, "xray: config reload rejected", slog.String("path", path), xlog.Err(err))
			return
		}
		logger.Info(ctx, "xray: config reloaded",
			slog.String("path", path),
			slog.Float64("sampling_rate", cfg.SamplingRate),
			slog.Int("workers", cfg.Worker.Num),
			slog.Int("max_queue_size", cfg.Worker.MaxQueueSize),
		)
	}, opts...)
}
