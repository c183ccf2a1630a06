package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	cfgpkg "snaptrace/internal/config"
	"snaptrace/internal/diag"
)

// defaultConfigNames: 工作目录下按序探测的配置文件名。
var defaultConfigNames = []string{"config.json", "config.yaml", "config.yml", "config.toml"}

// loadConfig 按优先级合并：Defaults → 文件/ENV JSON → ENV 覆盖 → CLI 覆盖。
func (a *app) loadConfig(over cfgpkg.Config) (cfgpkg.Config, error) {
	var raw []byte
	if s := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_JSON"); s != "" {
		raw = []byte(s)
	}
	path := a.configPath
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" && len(raw) == 0 {
		for _, name := range defaultConfigNames {
			if st, err := os.Stat(name); err == nil && !st.IsDir() {
				path = name
				break
			}
		}
	}

	cfg := cfgpkg.Defaults()
	if len(raw) > 0 || path != "" {
		var (
			base cfgpkg.Config
			err  error
		)
		if len(raw) > 0 {
			base, err = cfgpkg.LoadJSON("", raw)
		} else {
			base, err = cfgpkg.LoadFile(path)
		}
		if err != nil {
			return cfg, configErr("配置解析失败", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	envOver, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, configErr("环境变量解析失败", err)
	}
	cfg = cfgpkg.Merge(cfg, envOver)

	if a.logLevel != "" {
		over.Logging.Level = a.logLevel
	}
	return cfgpkg.Merge(cfg, over), nil
}

// prepare 加载并校验配置，随后以最终级别与目录重建 logger。
func (a *app) prepare(over cfgpkg.Config) (cfgpkg.Config, error) {
	cfg, err := a.loadConfig(over)
	if err != nil {
		return cfg, err
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		dumpConfig(a.stderr, cfg)
		return cfg, configErr("配置校验失败", err)
	}
	a.logger = diag.NewLoggerRotate(a.corrID, cfg.Logging.Level, logDir(cfg.Logging.Dir), logRotate(cfg.Logging))
	return cfg, nil
}

// logRotate 将 logging 段映射为诊断文件轮转策略。
func logRotate(l cfgpkg.Logging) diag.RotateOptions {
	return diag.RotateOptions{
		Prefix:   strings.TrimSpace(l.FilePrefix),
		MaxBytes: int64(l.MaxSizeMB) << 20,
		MaxFiles: l.MaxFiles,
	}
}

// logDir: 空为 logs/；"-" 表示仅写 stderr。
func logDir(d string) string {
	switch strings.TrimSpace(d) {
	case "":
		return "logs"
	case "-":
		return ""
	default:
		return d
	}
}

func dumpConfig(w io.Writer, c cfgpkg.Config) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return
	}
	fprintf(w, "有效配置:\n%s\n", b)
}

// writeConfig 写出配置模板；文件已存在时报错不覆盖。
func writeConfig(path string, c cfgpkg.Config, f cfgpkg.Format) error {
	b, err := cfgpkg.Encode(c, f)
	if err != nil {
		return err
	}
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = out.Write(b)
	return err
}

// preflightCheckOutputDir: fs writer 启动前检查输出目录可写性。
// 目录存在时创建并删除临时文件；不存在时检查父目录可写。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	if strings.TrimSpace(cfg.Components.Writer) != "fs" {
		return nil
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" || dir == "-" {
		return nil
	}
	st, err := os.Stat(dir)
	switch {
	case err == nil && st.IsDir():
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	case err == nil:
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	case !os.IsNotExist(err):
		return err
	}
	parent := filepath.Dir(dir)
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
