// xrayctl 是追踪 SDK 的命令行工具：追踪头调试、本地 daemon、示例数据发送。
//
// 用法:
//
//	xrayctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	--log-level    日志级别 (默认: info)
//
// 命令:
//
//	header parse <value>   解析追踪头
//	header new             生成新的追踪头
//	daemon                 本地 UDP daemon，校验并打印收到的文档
//	emit                   通过完整投递链路发送示例 segment
//
// 退出码:
//
//	0: 成功
//	1: 执行失败
//	2: 参数错误
//
// 示例:
//
//	xrayctl header parse "Root=1-5759e988-bd862e3fe1be46a994272793;Sampled=1"
//	xrayctl header new --sampling-rate 0.1
//	xrayctl daemon --addr 127.0.0.1:2000
//	xrayctl emit --addr 127.0.0.1:2000 --count 5
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xraykit/pkg/observability/xlog"
)

// 版本信息（可通过 -ldflags 注入）
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

// usageError 参数错误，退出码 2
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func newUsageError(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func main() {
	os.Exit(run(os.Args))
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xrayctl",
		Usage:   "追踪 SDK 命令行工具",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别 (debug/info/warn/error)",
				Value: "info",
			},
		},
		// 全局 Logger 供各子命令使用；emit --config 时由配置文件的 log 段替换
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logger, err := buildLogger(cmd)
			if err != nil {
				return ctx, err
			}
			xlog.SetDefault(logger)
			return ctx, nil
		},
		Commands: []*cli.Command{
			createHeaderCommand(),
			createDaemonCommand(),
			createEmitCommand(),
		},
		// 设计决策: 退出码统一由 run() 映射，禁止 urfave/cli 直接 os.Exit
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

// buildLogger 按 --log-level 构建写入 ErrWriter 的 Logger（无文件输出，无需清理）
func buildLogger(cmd *cli.Command) (xlog.LoggerWithLevel, error) {
	logger, _, err := xlog.New().
		SetOutput(cmd.Root().ErrWriter).
		SetLevelString(cmd.String("log-level")).
		Build()
	if err != nil {
		return nil, newUsageError("%v", err)
	}
	return logger, nil
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := createApp().Run(ctx, args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}
