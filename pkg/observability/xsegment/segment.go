package xsegment

import (
	"encoding/json"
	"time"

	"github.com/omeyang/xraykit/pkg/observability/xtrace"
)

// Segment 一个服务处理一次请求的根记录
type Segment struct {
	entity
}

// NewSegment 以当前时间为开始时间构造 segment。
// trace_id 取 t.Root()，parent_id 取 t.Parent()（上游调用方的 subsegment）。
func NewSegment(name string, t xtrace.Trace) *Segment {
	return NewSegmentAt(name, t, time.Now())
}

// NewSegmentAt 以 now 为开始时间构造 segment
func NewSegmentAt(name string, t xtrace.Trace, now time.Time) *Segment {
	s := &Segment{}
	s.init(name, t.Root(), t.Parent(), now)
	return s
}

// MarshalJSON 输出 segment 文档
func (s *Segment) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.buildDocument(segmentRequestDoc))
}
