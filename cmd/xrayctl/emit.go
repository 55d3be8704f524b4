package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xraykit/pkg/observability/xlog"
	"github.com/omeyang/xraykit/pkg/observability/xray"
	"github.com/omeyang/xraykit/pkg/observability/xsegment"
)

// errSampleFailure 示例 subsegment 记录的故障
var errSampleFailure = errors.New("sample downstream failure")

func createEmitCommand() *cli.Command {
	return &cli.Command{
		Name:  "emit",
		Usage: "通过完整投递链路发送示例 segment",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "配置文件（yaml/json），未指定时使用默认配置"},
			&cli.StringFlag{Name: "addr", Usage: "覆盖 daemon.address"},
			&cli.StringFlag{Name: "name", Usage: "覆盖服务名", Value: "xrayctl"},
			&cli.IntFlag{Name: "count", Usage: "发送的 trace 数", Value: 1},
			&cli.DurationFlag{Name: "timeout", Usage: "等待队列排空的超时", Value: 5 * time.Second},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Int("count") < 1 {
				return newUsageError("--count 必须为正数")
			}
			cfg, err := emitConfig(cmd)
			if err != nil {
				return err
			}
			logger, cleanup, err := emitLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()
			xlog.SetDefault(logger)

			tracer, err := xray.NewTracer(cfg, xray.WithLogger(logger),
				xray.WithErrorHandler(xray.NewLogErrorHandler(logger)))
			if err != nil {
				return err
			}
			roots, err := emit(ctx, tracer, cmd.Int("count"))
			closeCtx, cancel := context.WithTimeout(context.Background(), cmd.Duration("timeout"))
			defer cancel()
			if cerr := tracer.Close(closeCtx); cerr != nil {
				err = errors.Join(err, cerr)
			}
			for _, root := range roots {
				fmt.Fprintln(cmd.Root().Writer, root)
			}
			return err
		},
	}
}

func emitConfig(cmd *cli.Command) (xray.Config, error) {
	cfg := xray.DefaultConfig()
	if path := cmd.String("config"); path != "" {
		loaded, err := xray.LoadConfig(path)
		if err != nil {
			return xray.Config{}, err
		}
		cfg = loaded
	}
	if addr := cmd.String("addr"); addr != "" {
		cfg.Daemon.Address = addr
	}
	if cmd.IsSet("name") || cfg.Name == "" {
		cfg.Name = cmd.String("name")
	}
	if err := cfg.Validate(); err != nil {
		return xray.Config{}, newUsageError("%v", err)
	}
	return cfg, nil
}

// emit 发送 count 条 trace，每条包含一个正常和一个失败的 remote subsegment，返回各 trace 的根标识
func emit(ctx context.Context, tracer *xray.Tracer, count int) ([]string, error) {
	roots := make([]string, 0, count)
	for i := range count {
		err := tracer.Trace(ctx, func(ctx context.Context, seg *xsegment.Segment) error {
			c, err := xray.Current(ctx)
			if err != nil {
				return err
			}
			roots = append(roots, c.Trace().Root())
			seg.AddAnnotation(map[string]any{"sequence": i})

			if err := c.StartSubsegment(ctx, "sample-db", true, func(_ context.Context, sub *xsegment.Subsegment) error {
				sub.SetSQL(xsegment.SQL{URL: "postgres://db.local/orders", DatabaseVersion: "16"})
				return nil
			}); err != nil {
				return err
			}
			// 失败的调用只记录在 subsegment 上
			_ = c.StartSubsegment(ctx, "sample-api", true, func(context.Context, *xsegment.Subsegment) error {
				return errSampleFailure
			})
			return nil
		})
		if err != nil {
			return roots, err
		}
		xlog.Debug(ctx, "trace emitted", slog.Int("sequence", i))
	}
	return roots, nil
}

// emitLogger 指定 --config 时按配置文件的 log 段构建（显式的 --log-level 优先），
// 否则沿用全局 Logger
func emitLogger(cmd *cli.Command, cfg xray.Config) (xlog.LoggerWithLevel, func() error, error) {
	if !cmd.IsSet("config") {
		return xlog.Default(), func() error { return nil }, nil
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	logger, cleanup, err := cfg.BuildLogger()
	if err != nil {
		return nil, nil, newUsageError("%v", err)
	}
	return logger, cleanup, nil
}
