package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// 键使用 snake_case；未知字段在解析期失败（JSON/YAML/TOML 一致）。
type Config struct {
	Inputs []string `json:"inputs"`
	// MaxLines: diff 输出行数上限；<0 表示不截断，0 表示未设置。
	MaxLines int `json:"max_lines"`
	// RetainStaleOrigins: 保留被覆盖字段下的旧来源索引。
	RetainStaleOrigins bool `json:"retain_stale_origins"`
	// EpochMS: 时间戳基准（毫秒）。
	EpochMS int64   `json:"epoch_ms"`
	Logging Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`

	Server Server `json:"server"`
}

// Logging: 日志等级、目录与诊断文件轮转。
type Logging struct {
	Level string `json:"level"`
	// Dir 为空表示 logs/；"-" 表示仅写 stderr。
	Dir string `json:"dir,omitempty"`
	// FilePrefix: 诊断文件名前缀（<prefix>-current.jsonl），空为 snaptrace。
	FilePrefix string `json:"file_prefix,omitempty"`
	// MaxSizeMB: 单个诊断文件上限；0 为 10。
	MaxSizeMB int `json:"max_size_mb,omitempty"`
	// MaxFiles: 保留的历史诊断文件数；0 不清理。
	MaxFiles int `json:"max_files,omitempty"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader    string `json:"reader"`
	Splitter  string `json:"splitter"`
	Decoder   string `json:"decoder"`
	Assembler string `json:"assembler"`
	Writer    string `json:"writer"`
	Renderer  string `json:"renderer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader    json.RawMessage `json:"reader,omitempty"`
	Splitter  json.RawMessage `json:"splitter,omitempty"`
	Decoder   json.RawMessage `json:"decoder,omitempty"`
	Assembler json.RawMessage `json:"assembler,omitempty"`
	Writer    json.RawMessage `json:"writer,omitempty"`
	Renderer  json.RawMessage `json:"renderer,omitempty"`
}

// Server: HTTP 查询服务。
type Server struct {
	Addr string `json:"addr"`
}
