package xsegment

// SQL 数据库调用描述，附加在 subsegment 上
type SQL struct {
	URL             string `json:"url,omitempty"`
	DatabaseVersion string `json:"database_version,omitempty"`
}

// IsZero 报告是否没有任何字段
func (s SQL) IsZero() bool {
	return s.URL == "" && s.DatabaseVersion == ""
}
