package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xraykit/pkg/observability/xlog"
	"github.com/omeyang/xraykit/pkg/observability/xray"
)

// maxDatagram UDP datagram 上限
const maxDatagram = 64 * 1024

var (
	errMissingHeader = errors.New("payload: missing protocol header line")
	errBadDocument   = errors.New("payload: document is not a JSON object")
)

// payloadHeader daemon 协议头
var payloadHeader = []byte(`{"format":"json","version":1}`)

func createDaemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "本地 UDP daemon：校验并打印收到的文档",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "监听地址",
				Value: xray.DefaultDaemonAddress,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			conn, err := net.ListenPacket("udp", cmd.String("addr"))
			if err != nil {
				return fmt.Errorf("listen %s: %w", cmd.String("addr"), err)
			}
			xlog.Info(ctx, "daemon listening", slog.String("addr", conn.LocalAddr().String()))
			return serveDaemon(ctx, conn, cmd.Root().Writer, xlog.Default())
		},
	}
}

// serveDaemon 读取 datagram 直到 ctx 取消，合法文档逐行写入 out。conn 在返回前关闭。
func serveDaemon(ctx context.Context, conn net.PacketConn, out io.Writer, logger xlog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return conn.Close()
	})
	g.Go(func() error {
		buf := make([]byte, maxDatagram)
		for {
			n, from, err := conn.ReadFrom(buf)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("read: %w", err)
			}
			doc, err := decodePayload(buf[:n])
			if err != nil {
				logger.Warn(ctx, "daemon: invalid payload", slog.String("from", from.String()), xlog.Err(err))
				continue
			}
			if _, err := fmt.Fprintf(out, "%s\n", doc); err != nil {
				return err
			}
		}
	})
	return g.Wait()
}

// decodePayload 校验两行 payload（协议头 + 文档），返回紧凑格式的文档
func decodePayload(payload []byte) ([]byte, error) {
	header, body, ok := bytes.Cut(payload, []byte("\n"))
	if !ok || !bytes.Equal(bytes.TrimSpace(header), payloadHeader) {
		return nil, errMissingHeader
	}
	body = bytes.TrimSpace(body)
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadDocument, err)
	}
	for _, key := range []string{"name", "id", "trace_id"} {
		if _, ok := doc[key]; !ok {
			return nil, fmt.Errorf("%w: missing %q", errBadDocument, key)
		}
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return nil, err
	}
	return compact.Bytes(), nil
}
