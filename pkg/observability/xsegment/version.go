package xsegment

import (
	"errors"
	"io/fs"
	"os"
	"strings"
)

// DefaultRevisionPath 部署工具写入的版本文件
const DefaultRevisionPath = "REVISION"

// DetectVersion 读取版本文件作为 service.version，文件不存在时返回空字符串。
// path 为空时使用 DefaultRevisionPath。
func DetectVersion(path string) (string, error) {
	if path == "" {
		path = DefaultRevisionPath
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
