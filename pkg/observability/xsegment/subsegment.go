package xsegment

import (
	"encoding/json"
	"time"

	"github.com/omeyang/xraykit/pkg/observability/xtrace"
)

const (
	// TypeSubsegment subsegment 文档的 type 字段
	TypeSubsegment = "subsegment"
	// NamespaceRemote 表示对外部/下游系统的调用
	NamespaceRemote = "remote"
)

// Subsegment segment 内部的一段工作（如一次出站调用）
//
// 相比 Segment 增加 remote 标志与 sql 描述；请求记录输出 traced 而不是 x_forwarded_for。
type Subsegment struct {
	entity

	trace  xtrace.Trace
	remote bool
	sql    *SQL
}

// NewSubsegment 以当前时间为开始时间构造 subsegment，parentID 为所属 base segment 的 ID。
func NewSubsegment(name string, t xtrace.Trace, parentID string, remote bool) *Subsegment {
	return NewSubsegmentAt(name, t, parentID, remote, time.Now())
}

// NewSubsegmentAt 以 now 为开始时间构造 subsegment
func NewSubsegmentAt(name string, t xtrace.Trace, parentID string, remote bool, now time.Time) *Subsegment {
	s := &Subsegment{trace: t, remote: remote}
	s.init(name, t.Root(), parentID, now)
	return s
}

// Remote 报告是否为远端调用
func (s *Subsegment) Remote() bool { return s.remote }

// Trace 返回所属 Trace
func (s *Subsegment) Trace() xtrace.Trace { return s.trace }

// SetSQL 设置数据库调用描述
func (s *Subsegment) SetSQL(q SQL) {
	s.update(func() { s.sql = &q })
}

// SQL 返回数据库调用描述，未设置时 ok 为 false
func (s *Subsegment) SQL() (q SQL, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sql == nil {
		return SQL{}, false
	}
	return *s.sql, true
}

// GenerateTrace 返回向下游传播用的 Trace：Parent 为本 subsegment 的 ID，
// 根标识与采样决策不变。
func (s *Subsegment) GenerateTrace() xtrace.Trace {
	return s.trace.WithParent(s.id)
}

// MarshalJSON 输出 subsegment 文档
func (s *Subsegment) MarshalJSON() ([]byte, error) {
	d := s.buildDocument(subsegmentRequestDoc)
	d.Type = TypeSubsegment
	if s.remote {
		d.Namespace = NamespaceRemote
	}
	s.mu.Lock()
	if s.sql != nil && !s.sql.IsZero() {
		q := *s.sql
		d.SQL = &q
	}
	s.mu.Unlock()
	return json.Marshal(d)
}
