package xsegment

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// IDSize segment/subsegment/exception ID 字节数，十六进制后为 16 个字符
const IDSize = 8

// NewID 生成 16 位小写十六进制随机 ID。
//
// 熵源不可用属于系统级故障，直接 panic。
func NewID() string {
	var buf [IDSize]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("xsegment: crypto/rand.Read failed: " + err.Error())
	}
	return hex.EncodeToString(buf[:])
}

// epochSeconds 将时间转换为带小数的纪元秒（segment 文档的时间格式）
func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
