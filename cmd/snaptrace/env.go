package main

import (
	"bufio"
	"os"
	"strings"

	cfgpkg "snaptrace/internal/config"
)

// loadDotEnv 读取简单的 .env 文件并注入进程环境。
// 规则：
// - 文件不存在时忽略；
// - 跳过空行与 # 注释行，支持可选前缀 "export "；
// - 仅按首个 '=' 分割，成对的单/双引号被去除，双引号内处理 \n/\t/\r/\"/\\；
// - 不覆盖已存在的环境变量。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := unquote(strings.TrimSpace(line[eq+1:]))
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

func unquote(val string) string {
	if len(val) < 2 {
		return val
	}
	q := val[0]
	if (q != '\'' && q != '"') || val[len(val)-1] != q {
		return val
	}
	val = val[1 : len(val)-1]
	if q == '"' {
		val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\\`, `\`).Replace(val)
	}
	return val
}

// envTemplateKeys: .env 模板中列出的覆盖项（不含前缀），按分组输出。
var envTemplateKeys = [][]string{
	{"CONFIG_FILE", "CONFIG_JSON"},
	{"INPUTS", "MAX_LINES", "RETAIN_STALE_ORIGINS", "EPOCH_MS", "LOG_LEVEL", "LOG_DIR", "LOG_FILE_PREFIX", "LOG_MAX_SIZE_MB", "LOG_MAX_FILES", "SERVER_ADDR"},
	{"COMPONENTS_READER", "COMPONENTS_SPLITTER", "COMPONENTS_DECODER", "COMPONENTS_ASSEMBLER", "COMPONENTS_WRITER", "COMPONENTS_RENDERER"},
	{"OPTIONS_READER_JSON", "OPTIONS_SPLITTER_JSON", "OPTIONS_DECODER_JSON", "OPTIONS_ASSEMBLER_JSON", "OPTIONS_WRITER_JSON", "OPTIONS_RENDERER_JSON"},
}

var envTemplateGroups = []string{"配置来源（可二选一）", "运行参数覆盖", "组件选择", "组件 Options（原样 JSON）"}

// writeDotEnv 生成 .env 模板；文件已存在时跳过，不覆盖不合并。
func writeDotEnv(path string) error {
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		return nil
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	var b strings.Builder
	b.WriteString("# snaptrace .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n")
	for i, keys := range envTemplateKeys {
		b.WriteString("\n# " + envTemplateGroups[i] + "\n")
		for _, k := range keys {
			b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}
