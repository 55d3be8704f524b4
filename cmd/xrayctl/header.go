package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xraykit/pkg/observability/xsampling"
	"github.com/omeyang/xraykit/pkg/observability/xtrace"
)

func createHeaderCommand() *cli.Command {
	return &cli.Command{
		Name:  "header",
		Usage: "追踪头工具",
		Commands: []*cli.Command{
			{
				Name:      "parse",
				Usage:     "解析追踪头并打印各字段",
				ArgsUsage: "<value>",
				Action: func(_ context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return newUsageError("header parse 需要且只需要一个参数")
					}
					return printHeader(cmd.Root().Writer, cmd.Args().First())
				},
			},
			{
				Name:  "new",
				Usage: "生成新的追踪头",
				Flags: []cli.Flag{
					&cli.FloatFlag{
						Name:  "sampling-rate",
						Usage: "采样率 [0, 1]",
						Value: 1,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					sampler, err := xsampling.FromRate(cmd.Float("sampling-rate"))
					if err != nil {
						return newUsageError("%v", err)
					}
					_, err = fmt.Fprintln(cmd.Root().Writer, xtrace.Build(ctx, "", time.Now(), sampler).Header())
					return err
				},
			},
		},
	}
}

// printHeader 按原顺序打印追踪头的每个字段，并标注根标识/父节点是否合法
func printHeader(w io.Writer, value string) error {
	fields := xtrace.ParseFields(value)
	if len(fields) == 0 {
		return newUsageError("追踪头为空或无法解析: %q", value)
	}
	for _, f := range fields {
		note := ""
		switch f.Key {
		case xtrace.KeyRoot:
			if !xtrace.IsValidRoot(f.Value) {
				note = " (invalid)"
			}
		case xtrace.KeyParent:
			if !xtrace.IsValidSegmentID(f.Value) {
				note = " (invalid)"
			}
		}
		if _, err := fmt.Fprintf(w, "%s: %s%s\n", f.Key, f.Value, note); err != nil {
			return err
		}
	}
	return nil
}
