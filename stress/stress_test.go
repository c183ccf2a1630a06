package stress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	cfgpkg "snaptrace/internal/config"
	"snaptrace/internal/pipeline"
	"snaptrace/pkg/contract"
	"snaptrace/pkg/timeline"
)

// baseConfig 构造可运行的最小配置。
func baseConfig(input, outDir string) cfgpkg.Config {
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = []string{input}
	cfg.Logging.Level = "error"
	cfg.Options.Writer = json.RawMessage(fmt.Sprintf(`{"output_dir":%q,"atomic":false,"flat":true,"buf_size":65536}`, outDir))
	return cfg
}

func load(t *testing.T, path string) pipeline.FileResult {
	t.Helper()
	comp, set, err := cfgpkg.Assemble(baseConfig(path, t.TempDir()))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	res, err := pipeline.Load(context.Background(), comp, set, nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return res
}

// writeLog 生成 n 条记录：字段在 fields 个之间轮转，每 7 条整体替换一次嵌套列表。
func writeLog(t *testing.T, n, fields int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "big.log")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	for i := 0; i < n; i++ {
		field := fmt.Sprintf("f%d", i%fields)
		after := fmt.Sprintf(`{"n":%d,"tags":["t%d","u%d"]}`, i, i%3, i%5)
		if i%7 == 0 {
			after = fmt.Sprintf(`[%d,{"deep":{"x":%d}}]`, i, i)
		}
		if _, err := fmt.Fprintf(f, `{"subject":"S","action":"a%d","fieldChanges":{%q:{"before":null,"after":%s}}}`+"\n", i, field, after); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return p
}

// TestStressLargeLog 大日志回放：条目数、最终状态与来源指向。
func TestStressLargeLog(t *testing.T) {
	if testing.Short() {
		t.Skip("stress")
	}
	const n, fields = 5000, 20
	res := load(t, writeLog(t, n, fields))
	tl := res.Timeline
	if tl.Len() != n || len(res.Diagnostics) != 0 {
		t.Fatalf("entries=%d diagnostics=%d", tl.Len(), len(res.Diagnostics))
	}
	last := n - 1
	if got := timeline.StateAt(tl, last).Len(); got != fields {
		t.Fatalf("root fields=%d want %d", got, fields)
	}
	// 每个字段的来源是最后一次写它的记录
	for k := 0; k < fields; k++ {
		field := fmt.Sprintf("f%d", k)
		want := last - ((last - k) % fields)
		o, ok := timeline.OriginOf(tl, last, field)
		if !ok || o.EntryPosition != want {
			t.Fatalf("origin %s: %+v %v want %d", field, o, ok, want)
		}
	}
}

// TestStressDeepNesting 深层嵌套：解码、累积、路径回解与编码均不溢出。
func TestStressDeepNesting(t *testing.T) {
	if testing.Short() {
		t.Skip("stress")
	}
	const depth = 3000
	deep := strings.Repeat(`{"k":`, depth) + `1` + strings.Repeat(`}`, depth)
	line := `{"subject":"S","action":"nest","fieldChanges":{"root":{"before":null,"after":` + deep + `}}}` + "\n"
	p := filepath.Join(t.TempDir(), "deep.log")
	if err := os.WriteFile(p, []byte(line+line), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	res := load(t, p)
	tl := res.Timeline
	if tl.Len() != 2 {
		t.Fatalf("entries=%d", tl.Len())
	}
	leaf := "root" + strings.Repeat(".k", depth)
	o, ok := timeline.OriginOf(tl, 1, leaf)
	if !ok || o.EntryPosition != 1 {
		t.Fatalf("leaf origin: %+v %v", o, ok)
	}
	v, ok := contract.Lookup(timeline.StateAt(tl, 1), leaf)
	if !ok || v.Float() != 1 {
		t.Fatalf("leaf lookup: %v %v", v, ok)
	}
	if got := contract.Compact(timeline.StateAt(tl, 0)); got != `{"root":`+deep+`}` {
		t.Fatalf("compact mismatch (len %d)", len(got))
	}
}

// TestStressExportLatency 多次完整导出并记录延迟分位（仅日志输出）。
func TestStressExportLatency(t *testing.T) {
	if testing.Short() {
		t.Skip("stress")
	}
	input := writeLog(t, 5000, 20)
	const runs = 5
	lat := make([]time.Duration, 0, runs)
	for i := 0; i < runs; i++ {
		out := t.TempDir()
		comp, set, err := cfgpkg.Assemble(baseConfig(input, out))
		if err != nil {
			t.Fatalf("assemble: %v", err)
		}
		t0 := time.Now()
		if err := pipeline.Run(context.Background(), comp, set, nil); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		lat = append(lat, time.Since(t0))

		f, err := os.Open(filepath.Join(out, "big.log"+pipeline.ArtifactSuffix))
		if err != nil {
			t.Fatalf("artifact: %v", err)
		}
		b, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if lines := strings.Count(string(b), "\n"); lines != 5000 {
			t.Fatalf("artifact lines=%d", lines)
		}
	}
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
	t.Logf("export 5000 entries: min=%v p50=%v max=%v", lat[0], lat[len(lat)/2], lat[len(lat)-1])
}
