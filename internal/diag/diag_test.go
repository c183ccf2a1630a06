package diag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"snaptrace/pkg/contract"
)

// 日志轮转写入
func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, RotateOptions{MaxBytes: 30})
	if err := w.WriteLine([]byte("first line that is very long")); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if err := w.WriteLine([]byte("second")); err != nil {
		t.Fatalf("第二次写入失败: %v", err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("应存在轮转文件, got %d", len(files))
	}
	_ = w.Close()
}

// 当前文件名与时间戳文件存在
func TestRotatingFileRotateFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, RotateOptions{MaxBytes: 10})
	defer w.Close()
	for i := 0; i < 5; i++ {
		if err := w.WriteLine([]byte("xxxxxxxxxxxxxxxxxx")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	hasCurrent := false
	hasRotated := false
	for _, e := range ents {
		if e.Name() == "snaptrace-current.jsonl" {
			hasCurrent = true
		}
		if strings.HasPrefix(e.Name(), "snaptrace-") && strings.HasSuffix(e.Name(), ".jsonl") && !strings.Contains(e.Name(), "current") {
			hasRotated = true
		}
	}
	if !hasCurrent || !hasRotated {
		t.Fatalf("expect both current and rotated files, got current=%v rotated=%v", hasCurrent, hasRotated)
	}
}

func TestRotatingFileEnsureAndRotate(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, RotateOptions{MaxBytes: 1024})
	defer w.Close()
	if err := w.ensureOpen(); err != nil {
		t.Fatalf("ensureOpen: %v", err)
	}
	if w.f == nil {
		t.Fatalf("file should be opened")
	}
	// 强制轮转
	if err := w.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(ents) < 2 {
		t.Fatalf("expect >=2 files, got %d", len(ents))
	}
}

// 触发默认 maxBytes 分支与 rotate 在 f==nil 分支
func TestRotatingFileDefaultsAndRotateNoOpen(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, RotateOptions{})
	if err := w.WriteLine([]byte("a")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = w.Close()
	if err := w.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	_ = w.Close()
}

// 自定义前缀与历史文件上限
func TestRotatingFilePrefixAndRetention(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "keep-20000101-000000.000000000.jsonl")
	if err := os.WriteFile(other, []byte("x\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	w := NewRotatingFile(dir, RotateOptions{Prefix: "trace", MaxBytes: 8, MaxFiles: 2})
	for i := 0; i < 6; i++ {
		if err := w.WriteLine([]byte(fmt.Sprintf("line-%d", i))); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	_ = w.Close()
	if w.CurrentPath() != filepath.Join(dir, "trace-current.jsonl") {
		t.Fatalf("current path: %s", w.CurrentPath())
	}
	old, err := w.rotated()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(old) != 2 {
		t.Fatalf("want 2 rotated files kept, got %v", old)
	}
	b, err := os.ReadFile(filepath.Join(dir, old[1]))
	if err != nil || string(b) != "line-4\n" {
		t.Fatalf("newest rotated: %q %v", b, err)
	}
	if b, err := os.ReadFile(w.CurrentPath()); err != nil || string(b) != "line-5\n" {
		t.Fatalf("current: %q %v", b, err)
	}
	if _, err := os.Stat(other); err != nil {
		t.Fatalf("other prefix removed: %v", err)
	}
}

// Logger 按 RotateOptions 命名文件
func TestLoggerRotateOptions(t *testing.T) {
	dir := t.TempDir()
	l := NewLoggerRotate("corr", "info", dir, RotateOptions{Prefix: "diag"})
	l.Warn("comp", "protocol", "msg")
	_ = l.Close()
	if _, err := os.Stat(filepath.Join(dir, "diag-current.jsonl")); err != nil {
		t.Fatalf("prefixed log missing: %v", err)
	}
}

func TestMetricsCounters(t *testing.T) {
	before := testutil.ToFloat64(opTotal.WithLabelValues("test", "stage", "success"))
	IncOp("test", "stage", "success")
	if got := testutil.ToFloat64(opTotal.WithLabelValues("test", "stage", "success")); got != before+1 {
		t.Fatalf("op_total: want %v got %v", before+1, got)
	}

	beforeErr := testutil.ToFloat64(errorTotal.WithLabelValues("test", string(CodeIO)))
	IncError("test", string(CodeIO))
	if got := testutil.ToFloat64(errorTotal.WithLabelValues("test", string(CodeIO))); got != beforeErr+1 {
		t.Fatalf("error_total: want %v got %v", beforeErr+1, got)
	}

	beforeSkip := testutil.ToFloat64(skippedTotal)
	AddSkipped(3)
	AddSkipped(0)
	AddSkipped(-1)
	if got := testutil.ToFloat64(skippedTotal); got != beforeSkip+3 {
		t.Fatalf("records_skipped_total: want %v got %v", beforeSkip+3, got)
	}

	ObserveDuration("test", "stage", 12)
	if n := testutil.CollectAndCount(opDuration); n == 0 {
		t.Fatalf("histogram should have series")
	}
}

func TestMetricsHandler(t *testing.T) {
	IncOp("handler", "scrape", "success")
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status: %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `snaptrace_op_total{comp="handler",result="success",stage="scrape"}`) {
		t.Fatalf("missing op_total series: %s", body)
	}
	if Registry() == nil {
		t.Fatalf("nil registry")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{fmt.Errorf("line 3: %w", contract.ErrRecordInvalid), CodeProtocol},
		{context.Canceled, CodeCancel},
		{fmt.Errorf("wrap: %w", context.DeadlineExceeded), CodeCancel},
		{contract.ErrOutOfRange, CodeRange},
		{contract.ErrPathInvalid, CodeInvariant},
		{contract.ErrInvalidInput, CodeInvariant},
		{contract.ErrInvariantViolation, CodeInvariant},
		{&fs.PathError{Op: "open", Path: "/", Err: errors.New("x")}, CodeIO},
		{&net.DNSError{Err: "x"}, CodeNetwork},
		{errors.New("other"), CodeUnknown},
		{nil, CodeUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Fatalf("Classify(%v): want %s got %s", c.err, c.want, got)
		}
	}
}

// Logger 基本流程（stderr 回落）
func TestLogger(t *testing.T) {
	l := NewLoggerDir("corr", "debug", "")
	timer := l.Start("comp", "msg")
	timer.Finish("ok", 1)
	timer = l.StartWith("comp", "msg", "fid", "3")
	timer.Finish("ok", 1)
	timer = l.StartWithKV("comp", "msg", "fid", "3", map[string]string{"k": "v"})
	timer.Finish("ok", 1)
	l.Warn("comp", "protocol", "msg")
	l.Error("comp", "code", "msg", nil)
	l.ErrorWith("comp", "code", "msg", nil, "fid", "3")
	l.ErrorWithKV("comp", "code", "msg", nil, "fid", "3", map[string]string{"route": "/api/logs"})
	l.InfoFinish("comp", "msg", time.Now(), 1)
	l.DebugStart("comp", "msg", "fid", "3", nil)
	if l.CorrID() != "corr" {
		t.Fatalf("corr id")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func readEvents(t *testing.T, dir string) []Event {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, "snaptrace-current.jsonl"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var out []Event
	for _, ln := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		if ln == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(ln), &ev); err != nil {
			t.Fatalf("bad event %q: %v", ln, err)
		}
		out = append(out, ev)
	}
	return out
}

// sink 写入成功路径与事件字段
func TestLoggerWithSink(t *testing.T) {
	dir := t.TempDir()
	l := NewLoggerDir("corr", "info", dir)
	timer := l.StartWith("pipeline", "replay", "a.log", "")
	timer.Finish("ok", 4)
	l.WarnWith("decode", string(CodeProtocol), "skip line", "a.log", "2", map[string]string{"reason": "bad json"})
	l.Error("comp", "code", "msg", nil)
	_ = l.Close()

	evs := readEvents(t, dir)
	if len(evs) != 4 {
		t.Fatalf("want 4 events, got %d", len(evs))
	}
	if evs[1].Stage != "finish" || evs[1].Count != 4 || evs[1].FileID != "a.log" {
		t.Fatalf("finish event: %+v", evs[1])
	}
	w := evs[2]
	if w.Level != "warn" || w.Stage != "warn" || w.Code != "protocol" || w.Pos != "2" || w.KV["reason"] != "bad json" {
		t.Fatalf("warn event: %+v", w)
	}
	for _, ev := range evs {
		if ev.CorrID != "corr" || ev.TS == "" {
			t.Fatalf("missing corr/ts: %+v", ev)
		}
	}
}

// 级别过滤
func TestLoggerLevelsAndFilter(t *testing.T) {
	if Warn.String() != "warn" {
		t.Fatalf("warn string")
	}
	var unknown Level = 12345
	if unknown.String() != "info" {
		t.Fatalf("default string")
	}
	dir := t.TempDir()
	l := NewLoggerDir("c", "warn", dir)
	l.DebugStart("comp", "msg", "f", "1", nil)
	l.Start("comp", "filtered").Finish("filtered", 0)
	l.Warn("comp", "protocol", "kept")
	start := time.Now().Add(-10 * time.Millisecond)
	l.ErrorWith("comp", "code", "kept", &start, "f", "1")
	_ = l.Close()
	evs := readEvents(t, dir)
	if len(evs) != 2 {
		t.Fatalf("want 2 events after filter, got %d", len(evs))
	}
	if evs[1].DurMS <= 0 {
		t.Fatalf("dur_ms should be positive: %+v", evs[1])
	}
	// Timer nil/l=nil 早返回
	var tnil *Timer
	tnil.Finish("x", 0)
	(&Timer{}).Finish("x", 0)
	// nil Logger 为 no-op
	var lnil *Logger
	lnil.Warn("comp", "x", "y")
	if lnil.CorrID() != "" || lnil.Close() != nil {
		t.Fatalf("nil logger")
	}
}

func TestNowUTC(t *testing.T) {
	if _, err := time.Parse(time.RFC3339, NowUTC()); err != nil {
		t.Fatalf("NowUTC: %v", err)
	}
}

// 终端（非 TTY）关键节点输出
func TestTerminalNonTTYFlow(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	if term.isTTY {
		t.Fatalf("expect non-tty")
	}
	term.RunStart(2, "changelog")
	term.FileStart("logs/trace.log", 12)
	term.FileProgress(6, 12, 0) // 非 TTY：不输出进度
	term.FileFinish(true, 11, 1, 5100*time.Millisecond)
	term.RunFinish(true, 41300*time.Millisecond)

	out := sb.String()
	if strings.Contains(out, "\r") {
		t.Fatalf("non-tty should not contain carriage returns: %q", out)
	}
	for _, want := range []string{
		"[run] 输入=2 | decoder=changelog",
		"[file] trace.log | 行数=12",
		"[done] trace.log | 条目 11 | 跳过 1 | 总用时 5.1s",
		"[ok] 全部完成 | 文件 1 | 总用时 41.3s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

// 终端（TTY）进度节流与清尾
func TestTerminalTTYProgressThrottleAndClear(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	term.isTTY = true
	term.RunStart(1, "changelog")
	term.FileStart("/a/b/c/longfilename.log", 3)

	term.FileProgress(1, 3, 0)
	first := sb.String()
	if !strings.Contains(first, "\r[") {
		t.Fatalf("first progress should be inline with CR: %q", first)
	}
	// 立即第二次：应被节流（<100ms）
	term.FileProgress(2, 3, 1)
	second := sb.String()
	if second != first {
		t.Fatalf("second progress should be throttled; got changed output")
	}
	time.Sleep(120 * time.Millisecond)
	term.FileProgress(2, 3, 1)
	third := sb.String()
	if len(third) <= len(second) {
		t.Fatalf("third progress should append output")
	}
	term.FileFinish(false, 2, 1, 2200*time.Millisecond)
	final := sb.String()
	idx := strings.LastIndex(final, "[fail]")
	if idx < 0 {
		t.Fatalf("finish should include fail line: %q", final)
	}
	seg := final[:idx]
	cr := strings.LastIndex(seg, "\r")
	if cr < 0 {
		t.Fatalf("should contain carriage return before fail line")
	}
	if !strings.Contains(seg[cr+1:], " ") {
		t.Fatalf("clear tail should write spaces after CR: %q", seg[cr+1:])
	}
}

type flakyWriter struct{ fail bool }

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.fail {
		w.fail = false
		return 0, fmt.Errorf("boom")
	}
	return len(p), nil
}

var _ io.Writer = (*flakyWriter)(nil)

// 写失败降级为禁用态
func TestTerminalDisableOnWriteError(t *testing.T) {
	fw := &flakyWriter{fail: true}
	term := NewTerminal(fw, true)
	term.isTTY = false
	term.RunStart(1, "x")
	if term.enabled {
		t.Fatalf("terminal should be disabled after write error")
	}
	term.FileStart("a", 0)
	term.FileProgress(0, 0, 0)
	term.FileFinish(true, 0, 0, 0)
	term.RunFinish(true, 0)
}

func TestTerminalInlineWriteError(t *testing.T) {
	fw := &flakyWriter{fail: true}
	term := NewTerminal(fw, true)
	term.isTTY = true
	term.FileStart("f.log", 2)
	term.FileProgress(1, 2, 0)
	if term.enabled {
		t.Fatalf("terminal should be disabled after inline error")
	}
}

func TestNewTerminalCIEnv(t *testing.T) {
	t.Setenv("CI", "true")
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	if term.isTTY {
		t.Fatalf("CI env should force non-tty")
	}
}

func TestTerminalNilReceiverNoop(t *testing.T) {
	var tn *Terminal
	tn.RunStart(1, "x")
	tn.FileStart("a", 1)
	tn.FileProgress(0, 0, 0)
	tn.FileFinish(true, 0, 0, 0)
	tn.RunFinish(true, 0)
}

func TestHelpers(t *testing.T) {
	if shortenBase("/x/y/这是一个很长的文件名用于截断测试abcdefghijk.log", 10) == "" {
		t.Fatalf("shortenBase should produce non-empty")
	}
	if shortenBase("x", 0) != "" {
		t.Fatalf("shortenBase max<=0 should be empty")
	}
	if safe("a\nb\rc") != "a b c" {
		t.Fatalf("safe replace failed")
	}
	if formatDur(0) != "0ms" {
		t.Fatalf("formatDur 0ms failed")
	}
	if formatDur(1500*time.Millisecond) != "1.5s" {
		t.Fatalf("formatDur 1.5s failed: %s", formatDur(1500*time.Millisecond))
	}
	SetTerminal(nil)
	if GetTerminal() != nil {
		t.Fatalf("expected nil terminal")
	}
	SetTerminal(NewTerminal(os.Stderr, false))
	if GetTerminal() == nil {
		t.Fatalf("expected non-nil terminal")
	}
	SetTerminal(nil)
}
