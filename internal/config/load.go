package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultMaxLines 为 diff 的默认截断行数。
const DefaultMaxLines = 20

// Defaults 返回带有安全默认值的 Config 雏形。
// 输入根不设默认（必须由文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		MaxLines: DefaultMaxLines,
		Logging:  Logging{Level: "info"},
		Components: Components{
			Reader:    "fs",
			Splitter:  "lines",
			Decoder:   "changelog",
			Assembler: "jsonl",
			Writer:    "fs",
			Renderer:  "terminal",
		},
		// fs writer 要求 output_dir；查询类命令也需可装配
		Options: Options{Writer: json.RawMessage(`{"output_dir":"out"}`)},
		Server:  Server{Addr: ":8080"},
	}
}

// Format: 配置文件格式。
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf 按扩展名判定格式；未知扩展名按 JSON 处理。
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// ParseFormat 解析格式名（json|yaml|yml|toml）。
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("config: unknown format %q", s)
	}
}

// LoadFile 按扩展名选择解析器读取配置文件。
func LoadFile(path string) (Config, error) {
	switch FormatOf(path) {
	case FormatYAML:
		return LoadYAML(path, nil)
	case FormatTOML:
		return LoadTOML(path, nil)
	default:
		return LoadJSON(path, nil)
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	r, closeFn, err := source(path, raw)
	if err != nil {
		return cfg, err
	}
	defer closeFn()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config json: %w", err)
	}
	return cfg, nil
}

// LoadYAML 解析 YAML 配置。
// 文档先解码为通用树再转为 JSON，经同一严格解码器落到 Config；
// options 子树因此可以写成原生 YAML 映射。
func LoadYAML(path string, raw []byte) (Config, error) {
	r, closeFn, err := source(path, raw)
	if err != nil {
		return Config{}, err
	}
	defer closeFn()
	var tree map[string]any
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&tree); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config yaml: %w", err)
	}
	return fromTree(tree)
}

// LoadTOML 解析 TOML 配置，规则同 LoadYAML。
func LoadTOML(path string, raw []byte) (Config, error) {
	r, closeFn, err := source(path, raw)
	if err != nil {
		return Config{}, err
	}
	defer closeFn()
	var tree map[string]any
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tree); err != nil {
		return Config{}, fmt.Errorf("config toml: %w", err)
	}
	return fromTree(tree)
}

// fromTree: 通用树 → JSON → 严格解码。
func fromTree(tree map[string]any) (Config, error) {
	if tree == nil {
		return Config{}, nil
	}
	b, err := json.Marshal(tree)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return LoadJSON("", b)
}

func source(path string, raw []byte) (io.Reader, func(), error) {
	switch {
	case len(raw) > 0:
		return bytes.NewReader(raw), func() {}, nil
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close() }, nil
	default:
		return nil, nil, errors.New("no config source provided")
	}
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.MaxLines != 0 {
		out.MaxLines = over.MaxLines
	}
	// 布尔项只能打开，不能由上层关闭
	if over.RetainStaleOrigins {
		out.RetainStaleOrigins = true
	}
	if over.EpochMS != 0 {
		out.EpochMS = over.EpochMS
	}
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}
	if strings.TrimSpace(over.Logging.Dir) != "" {
		out.Logging.Dir = strings.TrimSpace(over.Logging.Dir)
	}
	if strings.TrimSpace(over.Logging.FilePrefix) != "" {
		out.Logging.FilePrefix = strings.TrimSpace(over.Logging.FilePrefix)
	}
	if over.Logging.MaxSizeMB != 0 {
		out.Logging.MaxSizeMB = over.Logging.MaxSizeMB
	}
	if over.Logging.MaxFiles != 0 {
		out.Logging.MaxFiles = over.Logging.MaxFiles
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Splitter != "" {
		out.Components.Splitter = over.Components.Splitter
	}
	if over.Components.Decoder != "" {
		out.Components.Decoder = over.Components.Decoder
	}
	if over.Components.Assembler != "" {
		out.Components.Assembler = over.Components.Assembler
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}
	if over.Components.Renderer != "" {
		out.Components.Renderer = over.Components.Renderer
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Splitter) > 0 {
		out.Options.Splitter = cloneRaw(over.Options.Splitter)
	}
	if len(over.Options.Decoder) > 0 {
		out.Options.Decoder = cloneRaw(over.Options.Decoder)
	}
	if len(over.Options.Assembler) > 0 {
		out.Options.Assembler = cloneRaw(over.Options.Assembler)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	if len(over.Options.Renderer) > 0 {
		out.Options.Renderer = cloneRaw(over.Options.Renderer)
	}

	if strings.TrimSpace(over.Server.Addr) != "" {
		out.Server.Addr = strings.TrimSpace(over.Server.Addr)
	}
	return out
}

// EnvPrefix 为环境变量覆盖前缀。
const EnvPrefix = "SNAPTRACE_"

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 支持：INPUTS, MAX_LINES, RETAIN_STALE_ORIGINS, EPOCH_MS, LOG_LEVEL, LOG_DIR,
// LOG_FILE_PREFIX, LOG_MAX_SIZE_MB, LOG_MAX_FILES, SERVER_ADDR,
// COMPONENTS_<NAME>, OPTIONS_<NAME>_JSON。未知键忽略；数值/布尔格式错误返回错误。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := kv[len(EnvPrefix):eq]
		val := strings.TrimSpace(kv[eq+1:])
		if val == "" {
			continue
		}
		switch key {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "MAX_LINES":
			v, err := atoi(val)
			if err != nil {
				return Config{}, fmt.Errorf("env %sMAX_LINES: %w", EnvPrefix, err)
			}
			over.MaxLines = v
		case "RETAIN_STALE_ORIGINS":
			v, err := strconv.ParseBool(val)
			if err != nil {
				return Config{}, fmt.Errorf("env %sRETAIN_STALE_ORIGINS: %w", EnvPrefix, err)
			}
			over.RetainStaleOrigins = v
		case "EPOCH_MS":
			v, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return Config{}, fmt.Errorf("env %sEPOCH_MS: %w", EnvPrefix, err)
			}
			over.EpochMS = v
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LOG_DIR":
			over.Logging.Dir = val
		case "LOG_FILE_PREFIX":
			over.Logging.FilePrefix = val
		case "LOG_MAX_SIZE_MB":
			v, err := atoi(val)
			if err != nil {
				return Config{}, fmt.Errorf("env %sLOG_MAX_SIZE_MB: %w", EnvPrefix, err)
			}
			over.Logging.MaxSizeMB = v
		case "LOG_MAX_FILES":
			v, err := atoi(val)
			if err != nil {
				return Config{}, fmt.Errorf("env %sLOG_MAX_FILES: %w", EnvPrefix, err)
			}
			over.Logging.MaxFiles = v
		case "SERVER_ADDR":
			over.Server.Addr = val
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_SPLITTER":
			over.Components.Splitter = val
		case "COMPONENTS_DECODER":
			over.Components.Decoder = val
		case "COMPONENTS_ASSEMBLER":
			over.Components.Assembler = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		case "COMPONENTS_RENDERER":
			over.Components.Renderer = val
		default:
			if !strings.HasPrefix(key, "OPTIONS_") || !strings.HasSuffix(key, "_JSON") {
				continue
			}
			name := strings.TrimSuffix(strings.TrimPrefix(key, "OPTIONS_"), "_JSON")
			raw := json.RawMessage(val)
			if !json.Valid(raw) {
				return Config{}, fmt.Errorf("env %s%s: invalid json", EnvPrefix, key)
			}
			switch name {
			case "READER":
				over.Options.Reader = raw
			case "SPLITTER":
				over.Options.Splitter = raw
			case "DECODER":
				over.Options.Decoder = raw
			case "ASSEMBLER":
				over.Options.Assembler = raw
			case "WRITER":
				over.Options.Writer = raw
			case "RENDERER":
				over.Options.Renderer = raw
			}
		}
	}
	return over, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
