// Package xsegment 定义 segment / subsegment 数据模型及其 JSON 文档格式。
//
// # 文档字段
//
//	name, id, trace_id, start_time, end_time | in_progress, parent_id?,
//	service.version?, annotations, metadata, http.request?, http.response?,
//	error/throttle/fault + cause?
//
// subsegment 额外输出 type="subsegment"、远端调用时 namespace="remote"、可选的 sql；
// 其请求记录去掉 x_forwarded_for，增加 traced。
//
// # 生命周期
//
// segment 由所属执行单元在 Finish 前修改，Finish 幂等，之后所有修改方法均为 no-op。
// 发送时通过 MarshalJSON 生成快照。
//
// # 错误状态
//
//   - SetHTTPResponseWithError: 429 -> error+throttle，4xx -> error，5xx -> fault
//   - SetFault / FaultFromPanic: 被追踪代码返回 error 或 panic
//
// Cause 最多保留 MaxStackFrames 帧调用栈，路径相对于进程工作目录。
//
// # 注解
//
// AddAnnotation 会先 NormalizeAnnotations：key 中 "-" 变为 "_"，其余非法字符删除；
// 非基本类型的值转为字符串。AddMetadata 不做规范化。
package xsegment
