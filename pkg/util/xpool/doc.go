// Package xpool 提供泛型 worker pool：固定数量的 worker 消费一个有界 FIFO 队列。
//
// 特性：
//   - Submit 非阻塞，队列满时返回 ErrQueueFull，由调用方决定如何处理
//   - Reconfigure 原子替换队列与 worker 集合，旧 worker 排空旧队列后退出
//   - 优雅关闭：Close / Shutdown(ctx) 等待队列中的任务处理完成
//   - panic 恢复：单个任务失败不影响 pool，日志默认只记录任务类型
//
// # 注意事项
//
//   - New 创建后自动启动 worker，无需手动 Start
//   - Close/Shutdown 不可在 handler 内调用，否则会死锁
//   - panic 的任务不会被重试
//   - workers 取值 [1, 65536]，queueSize 取值 [1, 16777216]
//
// # 并发模型
//
// Submit 持有读锁，Reconfigure/Shutdown 持有写锁。关闭队列只发生在写锁内，
// 因此 Submit 永远不会向已关闭的 channel 发送。
//
// 设计决策: 没有 fork 检测。Go 运行时不支持 fork 后继续运行 goroutine，
// 配置变更统一走显式的 Reconfigure。
package xpool
