// Package xconf 基于 koanf 的配置解码与文件监视。
//
// # 解码
//
// [Decode] / [DecodeFile] 支持 YAML 与 JSON，结构体字段使用 koanf 标签映射。
// 调用前写入 target 的值作为默认值，配置中未出现的键保持不变：
//
//	cfg := DefaultConfig()
//	err := xconf.DecodeFile("/etc/xray/xray.yaml", &cfg)
//
// # 监视
//
// [Watch] 监视配置文件所在目录（兼容 K8s ConfigMap 的符号链接替换与编辑器的原子写入），
// 防抖后调用 load 重新加载并把结果交给回调。回调在定时器 goroutine 中执行。
package xconf
