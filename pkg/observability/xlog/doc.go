// Package xlog 基于 log/slog 的结构化日志库。
//
// # 核心功能
//
//   - Builder 模式配置（输出目标、级别、格式、lumberjack 轮转）
//   - EnrichHandler 从 context 注入 service、trace_id、segment_id、sampled（默认启用）
//   - 动态级别调整（运行时热更新，派生 logger 同步生效）
//   - 全局 Logger 便利函数
//
// # 创建 Logger
//
//	logger, cleanup, err := xlog.New().
//		SetFormat("json").
//		SetLevelString("debug").
//		SetRotation("/var/log/xray.log", xlog.WithMaxSize(50)).
//		Build()
//	defer cleanup()
//
// Builder 为一次性使用，first-error-wins：第一个配置错误在 Build 时返回。
//
// # 与标准库互通
//
// xpool 等组件只接受 *slog.Logger，使用 [Slog] 转换，转换后的 logger 保留 trace 注入。
//
// # 日志级别
//
// LevelDebug(-4)、LevelInfo(0)、LevelWarn(4)、LevelError(8)。
// Level 实现 encoding.TextMarshaler/TextUnmarshaler，可直接出现在 koanf 配置中。
package xlog
