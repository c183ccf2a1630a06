package config

import (
	"errors"
	"fmt"
	"strings"

	"snaptrace/internal/pipeline"
	"snaptrace/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
// 输入根由调用方按子命令在校验前填入。
func Validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown logging.level %q", cfg.Logging.Level)
	}
	if p := cfg.Logging.FilePrefix; p != "" && (strings.ContainsAny(p, `/\`) || p == "." || p == "..") {
		return fmt.Errorf("config: logging.file_prefix %q must be a plain file name", p)
	}
	if cfg.Logging.MaxSizeMB < 0 || cfg.Logging.MaxFiles < 0 {
		return errors.New("config: logging.max_size_mb and logging.max_files must be >= 0")
	}
	if cfg.EpochMS < 0 {
		return errors.New("config: epoch_ms must be >= 0")
	}
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Splitter, d.Splitter); registry.Splitter[name] == nil {
		return fmt.Errorf("config: splitter %q not registered", name)
	}
	if name := effName(cfg.Components.Decoder, d.Decoder); registry.Decoder[name] == nil {
		return fmt.Errorf("config: decoder %q not registered", name)
	}
	if name := effName(cfg.Components.Assembler, d.Assembler); registry.Assembler[name] == nil {
		return fmt.Errorf("config: assembler %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	if name := effName(cfg.Components.Renderer, d.Renderer); registry.Renderer[name] == nil {
		return fmt.Errorf("config: renderer %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	d := Defaults().Components
	var (
		comp pipeline.Components
		err  error
	)
	if comp.Reader, err = registry.Reader[effName(cfg.Components.Reader, d.Reader)](cfg.Options.Reader); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("reader: %w", err)
	}
	if comp.Splitter, err = registry.Splitter[effName(cfg.Components.Splitter, d.Splitter)](cfg.Options.Splitter); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("splitter: %w", err)
	}
	dn := effName(cfg.Components.Decoder, d.Decoder)
	if comp.Decoder, err = registry.Decoder[dn](cfg.Options.Decoder); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("decoder: %w", err)
	}
	if comp.Assembler, err = registry.Assembler[effName(cfg.Components.Assembler, d.Assembler)](cfg.Options.Assembler); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("assembler: %w", err)
	}
	if comp.Writer, err = registry.Writer[effName(cfg.Components.Writer, d.Writer)](cfg.Options.Writer); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("writer: %w", err)
	}
	if comp.Renderer, err = registry.Renderer[effName(cfg.Components.Renderer, d.Renderer)](cfg.Options.Renderer); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("renderer: %w", err)
	}

	set := pipeline.Settings{
		Inputs:             cloneStrings(cfg.Inputs),
		RetainStaleOrigins: cfg.RetainStaleOrigins,
		Epoch:              cfg.EpochMS,
		DecoderName:        dn,
	}
	return comp, set, nil
}

// EffectiveMaxLines 返回 diff 截断行数：<0 不截断（0），0 取默认。
func EffectiveMaxLines(cfg Config) int {
	switch {
	case cfg.MaxLines < 0:
		return 0
	case cfg.MaxLines == 0:
		return DefaultMaxLines
	default:
		return cfg.MaxLines
	}
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
