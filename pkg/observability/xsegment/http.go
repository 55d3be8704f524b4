package xsegment

import (
	"net"
	"net/http"
	"strings"
)

// Request HTTP 请求记录
//
// 字符串字段中的非法 UTF-8 字节在写入文档时替换为 U+FFFD。
type Request struct {
	Method    string
	URL       string
	UserAgent string
	ClientIP  string
	// XForwardedFor 为 true 表示 ClientIP 取自 X-Forwarded-For 头（仅 segment 输出）
	XForwardedFor bool
	// Traced 为 true 表示下游服务自身也接入了追踪（仅 subsegment 输出）
	Traced bool
}

// RequestFromHTTP 从入站 *http.Request 构造请求记录。
//
// 客户端 IP 优先取 X-Forwarded-For 的第一个地址，否则取 RemoteAddr 的主机部分。
func RequestFromHTTP(r *http.Request) Request {
	if r == nil {
		return Request{}
	}
	req := Request{
		Method:    r.Method,
		URL:       r.URL.String(),
		UserAgent: r.UserAgent(),
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		req.ClientIP = strings.TrimSpace(first)
		req.XForwardedFor = true
	} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		req.ClientIP = host
	} else {
		req.ClientIP = r.RemoteAddr
	}
	return req
}

// OutgoingRequestFromHTTP 从出站 *http.Request 构造请求记录，不包含客户端 IP。
func OutgoingRequestFromHTTP(r *http.Request) Request {
	if r == nil {
		return Request{}
	}
	return Request{
		Method:    strings.ToUpper(r.Method),
		URL:       r.URL.String(),
		UserAgent: r.UserAgent(),
	}
}

// Response HTTP 响应记录
type Response struct {
	Status int
	// ContentLength 小于 0 表示未知，不输出
	ContentLength int64
}

// =============================================================================
// JSON 文档结构
// =============================================================================

type httpDoc struct {
	Request  *requestDoc  `json:"request,omitempty"`
	Response *responseDoc `json:"response,omitempty"`
}

type requestDoc struct {
	Method        string `json:"method,omitempty"`
	URL           string `json:"url,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
	ClientIP      string `json:"client_ip,omitempty"`
	XForwardedFor *bool  `json:"x_forwarded_for,omitempty"`
	Traced        *bool  `json:"traced,omitempty"`
}

type responseDoc struct {
	Status        int    `json:"status"`
	ContentLength *int64 `json:"content_length,omitempty"`
}

// segmentRequestDoc segment 输出 x_forwarded_for，不输出 traced
func segmentRequestDoc(r Request) *requestDoc {
	d := newRequestDoc(r)
	d.XForwardedFor = &r.XForwardedFor
	return d
}

// subsegmentRequestDoc subsegment 去掉 x_forwarded_for，输出 traced
func subsegmentRequestDoc(r Request) *requestDoc {
	d := newRequestDoc(r)
	d.Traced = &r.Traced
	return d
}

func newRequestDoc(r Request) *requestDoc {
	return &requestDoc{
		Method:    strings.ToValidUTF8(r.Method, "�"),
		URL:       strings.ToValidUTF8(r.URL, "�"),
		UserAgent: strings.ToValidUTF8(r.UserAgent, "�"),
		ClientIP:  strings.ToValidUTF8(r.ClientIP, "�"),
	}
}

func newResponseDoc(r Response) *responseDoc {
	d := &responseDoc{Status: r.Status}
	if r.ContentLength >= 0 {
		n := r.ContentLength
		d.ContentLength = &n
	}
	return d
}
