package config

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 默认输入为 STDIN（"-"），Writer 输出到 ./out 目录；
// - 组件名采用仓库内置实现；
// - 选项给出所有键与安全中性默认值。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	cfg.Inputs = []string{"-"}
	cfg.Logging = Logging{Level: "info", Dir: "logs", FilePrefix: "snaptrace", MaxSizeMB: 10, MaxFiles: 5}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules", "vendor"],
  "include_exts": [".log", ".jsonl", ".ndjson"],
  "skip_hidden": true
}`)
	cfg.Options.Splitter = json.RawMessage(`{
  "max_line_bytes": 0,
  "allow_exts": []
}`)
	cfg.Options.Decoder = json.RawMessage(`{
  "strict_keys": false
}`)
	cfg.Options.Assembler = json.RawMessage(`{
  "pretty": false,
  "omit_origins": false
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "atomic": true,
  "flat": true,
  "buf_size": 65536
}`)
	cfg.Options.Renderer = json.RawMessage(`{
  "color": "auto",
  "line_numbers": false
}`)
	return cfg
}

// Encode 以指定格式序列化配置；options 子树展开为原生映射。
func Encode(cfg Config, f Format) ([]byte, error) {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	if f == FormatJSON {
		return append(b, '\n'), nil
	}
	var tree map[string]any
	if err := json.Unmarshal(b, &tree); err != nil {
		return nil, err
	}
	switch f {
	case FormatYAML:
		return yaml.Marshal(tree)
	case FormatTOML:
		return toml.Marshal(tree)
	default:
		return nil, fmt.Errorf("config: unknown format %q", f)
	}
}
