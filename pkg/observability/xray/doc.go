// Package xray 实现追踪 SDK 的核心运行时：Context 状态机、文档投递与进程级 Tracer。
//
// # 快速开始
//
//	cfg := xray.DefaultConfig()
//	cfg.Name = "orders"
//	tracer, err := xray.NewTracer(cfg)
//	if err != nil {
//		return err
//	}
//	defer tracer.Close(context.Background())
//
//	err = tracer.TraceHeader(ctx, r.Header.Get(xtrace.HeaderName), func(ctx context.Context, seg *xsegment.Segment) error {
//		c, _ := xray.Current(ctx)
//		return c.StartSubsegment(ctx, "db", true, func(ctx context.Context, sub *xsegment.Subsegment) error {
//			return query(ctx)
//		})
//	})
//
// # Context
//
// Context 安装在 context.Context 中，先 StartSegment 再 StartSubsegment；
// 顺序错误返回 ErrSegmentNotStarted 且不发送任何文档。
// 被追踪代码返回的 error 记录为 fault 后原样返回，panic 记录后重新 panic。
// 跨 goroutine 使用 Copy + Install。
//
// # 投递
//
// Client 编码文档为两行 payload：
//
//	{"format":"json","version":1}
//	<segment JSON>
//
// 默认经 worker pool 异步写入 Transport（UDPTransport，可选 BreakerTransport 熔断）。
// 队列满时 Send 返回 ErrQueueFull 并通知 ErrorHandler 一次；传输错误只通知 ErrorHandler。
//
// 设计决策: 投递计数通过 OpenTelemetry metric 导出（xray.delivery.sent / rejected / failed），
// 不提供独立的指标接口，未配置 MeterProvider 时为 no-op。
//
// # 配置
//
// Config 通过 koanf 从 YAML / JSON 加载，WatchConfig 在文件变更时热更新采样率与 worker pool 规模。
package xray
