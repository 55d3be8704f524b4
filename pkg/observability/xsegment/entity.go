package xsegment

import (
	"maps"
	"sync"
	"time"
)

// entity segment 与 subsegment 共享的状态与修改方法。
//
// 由所属的执行单元在 Finish 前修改；Finish 之后所有修改方法都是 no-op，
// 文档内容随之固定。内部互斥锁只保证并发读取（如发送时序列化）的安全。
type entity struct {
	mu sync.Mutex

	name     string
	id       string
	traceID  string
	parentID string

	start    time.Time
	end      time.Time
	finished bool

	annotations map[string]any
	metadata    map[string]any
	request     *Request
	response    *Response
	errInfo     *ErrorInfo
	version     string
}

func (e *entity) init(name, traceID, parentID string, now time.Time) {
	e.name = name
	e.id = NewID()
	e.traceID = traceID
	e.parentID = parentID
	e.start = now
	e.annotations = make(map[string]any)
	e.metadata = make(map[string]any)
}

// =============================================================================
// 只读访问
// =============================================================================

// Name 返回名称
func (e *entity) Name() string { return e.name }

// ID 返回 16 位十六进制 ID
func (e *entity) ID() string { return e.id }

// TraceID 返回所属 trace 的根标识
func (e *entity) TraceID() string { return e.traceID }

// ParentID 返回父节点 ID，base segment 没有上游父节点时为空
func (e *entity) ParentID() string { return e.parentID }

// StartTime 返回开始时间
func (e *entity) StartTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.start
}

// EndTime 返回结束时间，未结束时 ok 为 false
func (e *entity) EndTime() (end time.Time, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.end, e.finished
}

// Finished 报告是否已结束
func (e *entity) Finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finished
}

// ErrorInfo 返回错误状态，未设置时为 nil
func (e *entity) ErrorInfo() *ErrorInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errInfo
}

// Annotations 返回注解副本
func (e *entity) Annotations() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.annotations)
}

// Metadata 返回元数据副本
func (e *entity) Metadata() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.metadata)
}

// ServiceVersion 返回服务版本
func (e *entity) ServiceVersion() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// =============================================================================
// 修改方法（Finish 之后均为 no-op）
// =============================================================================

// update 在锁内执行 fn，已结束时跳过
func (e *entity) update(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	fn()
}

// SetStartTime 覆盖开始时间（用于事后上报已知起止时间的调用）
func (e *entity) SetStartTime(t time.Time) {
	e.update(func() { e.start = t })
}

// SetHTTPRequest 设置 HTTP 请求记录
func (e *entity) SetHTTPRequest(r Request) {
	e.update(func() { e.request = &r })
}

// SetHTTPResponse 设置 HTTP 响应记录，不改变错误状态。
// length 小于 0 表示未知。
func (e *entity) SetHTTPResponse(status int, length int64) {
	e.update(func() { e.response = &Response{Status: status, ContentLength: length} })
}

// SetHTTPResponseWithError 设置 HTTP 响应记录，并按状态码派生错误状态（见 ErrorFromStatus）。
// 状态码不表示错误时保留已有错误状态。
func (e *entity) SetHTTPResponseWithError(status int, length int64, remote bool) {
	info := ErrorFromStatus(status, remote, 1)
	e.update(func() {
		e.response = &Response{Status: status, ContentLength: length}
		if info != nil {
			e.errInfo = info
		}
	})
}

// SetError 设置错误状态，nil 清除
func (e *entity) SetError(info *ErrorInfo) {
	e.update(func() { e.errInfo = info })
}

// SetFault 将 err 记录为 fault，err 为 nil 时不做任何事
func (e *entity) SetFault(err error, remote bool) {
	if err == nil {
		return
	}
	info := FaultFromError(err, remote, 1)
	e.update(func() { e.errInfo = info })
}

// AddAnnotation 规范化后合并注解（见 NormalizeAnnotations）
func (e *entity) AddAnnotation(m map[string]any) {
	normalized := NormalizeAnnotations(m)
	e.update(func() { maps.Copy(e.annotations, normalized) })
}

// AddMetadata 原样合并元数据
func (e *entity) AddMetadata(m map[string]any) {
	e.update(func() { maps.Copy(e.metadata, m) })
}

// SetServiceVersion 设置 service.version
func (e *entity) SetServiceVersion(v string) {
	e.update(func() { e.version = v })
}

// Finish 记录结束时间。幂等：重复调用不会改变第一次记录的时间。
func (e *entity) Finish(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	e.end = now
	e.finished = true
}

// =============================================================================
// 文档
// =============================================================================

// document segment 文档结构，字段顺序即输出顺序
type document struct {
	Name        string         `json:"name"`
	ID          string         `json:"id"`
	TraceID     string         `json:"trace_id"`
	StartTime   float64        `json:"start_time"`
	EndTime     *float64       `json:"end_time,omitempty"`
	InProgress  bool           `json:"in_progress,omitempty"`
	ParentID    string         `json:"parent_id,omitempty"`
	Service     *serviceDoc    `json:"service,omitempty"`
	Annotations map[string]any `json:"annotations"`
	Metadata    map[string]any `json:"metadata"`
	HTTP        *httpDoc       `json:"http,omitempty"`
	*ErrorInfo
	Type      string `json:"type,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	SQL       *SQL   `json:"sql,omitempty"`
}

type serviceDoc struct {
	Version string `json:"version"`
}

// buildDocument 在锁内生成文档快照，requestDoc 决定请求记录的输出形态
func (e *entity) buildDocument(requestDoc func(Request) *requestDoc) document {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := document{
		Name:        e.name,
		ID:          e.id,
		TraceID:     e.traceID,
		StartTime:   epochSeconds(e.start),
		ParentID:    e.parentID,
		Annotations: maps.Clone(e.annotations),
		Metadata:    maps.Clone(e.metadata),
		ErrorInfo:   e.errInfo,
	}
	if e.finished {
		end := epochSeconds(e.end)
		d.EndTime = &end
	} else {
		d.InProgress = true
	}
	if e.version != "" {
		d.Service = &serviceDoc{Version: e.version}
	}
	if e.request != nil || e.response != nil {
		d.HTTP = &httpDoc{}
		if e.request != nil {
			d.HTTP.Request = requestDoc(*e.request)
		}
		if e.response != nil {
			d.HTTP.Response = newResponseDoc(*e.response)
		}
	}
	return d
}
