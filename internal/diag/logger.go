package diag

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// 级别定义
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Logger 为最小结构化日志器：单行 JSON 写入轮转文件，失败回落 stderr；支持级别过滤。
type Logger struct {
	corrID string
	level  Level
	sink   *RotatingFile
	mu     sync.Mutex
}

// NewLogger 通过配置的 level 初始化，并将日志写入默认目录 logs/，10m 轮转。
func NewLogger(corrID, level string) *Logger {
	return NewLoggerDir(corrID, level, "logs")
}

// NewLoggerDir 同 NewLogger，可指定日志目录；dir 为空时直接写 stderr。
func NewLoggerDir(corrID, level, dir string) *Logger {
	return NewLoggerRotate(corrID, level, dir, RotateOptions{})
}

// NewLoggerRotate 同 NewLoggerDir，并指定文件前缀与轮转策略。
func NewLoggerRotate(corrID, level, dir string, rot RotateOptions) *Logger {
	lvl := parseLevel(strings.TrimSpace(level))
	l := &Logger{corrID: corrID, level: lvl}
	if strings.TrimSpace(dir) != "" {
		l.sink = NewRotatingFile(dir, rot)
	}
	return l
}

// CorrID 返回关联ID。
func (l *Logger) CorrID() string {
	if l == nil {
		return ""
	}
	return l.corrID
}

// Close 关闭文件 sink（若有）。
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return Debug
	case "warn":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// Event 为标准事件结构。
type Event struct {
	Level  string            `json:"level"`
	TS     string            `json:"ts"`
	CorrID string            `json:"corr_id"`
	Comp   string            `json:"comp"`
	Stage  string            `json:"stage"` // start|finish|warn|error
	Code   string            `json:"code,omitempty"`
	DurMS  int64             `json:"dur_ms,omitempty"`
	Count  int64             `json:"count,omitempty"`
	FileID string            `json:"file_id,omitempty"`
	Pos    string            `json:"pos,omitempty"`
	Msg    string            `json:"msg"`
	KV     map[string]string `json:"kv,omitempty"`
}

// log 以最小开销写出事件，遵循级别过滤；nil Logger 为 no-op。
func (l *Logger) log(lv Level, ev Event) {
	if l == nil || lv < l.level {
		return
	}
	ev.Level = lv.String()
	ev.TS = NowUTC()
	ev.CorrID = l.corrID
	b, _ := json.Marshal(ev)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink == nil {
		// 后备：写 stderr
		_, _ = os.Stderr.Write(append(b, '\n'))
		return
	}
	if err := l.sink.WriteLine(b); err != nil {
		fmt.Fprintf(os.Stderr, "logger sink error: %v\n", err)
		_, _ = os.Stderr.Write(append(b, '\n'))
	}
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Msg: msg})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 file_id/pos 的 start。
func (l *Logger) StartWith(comp, msg, fileID, pos string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", FileID: fileID, Pos: pos, Msg: msg})
	return &Timer{l: l, comp: comp, fileID: fileID, pos: pos, t0: time.Now()}
}

// StartWithKV 记录带 file_id/pos 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, fileID, pos string, kv map[string]string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", FileID: fileID, Pos: pos, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, fileID: fileID, pos: pos, t0: time.Now()}
}

// Warn 记录可恢复问题（例如被跳过的坏行）。
func (l *Logger) Warn(comp, code, msg string) {
	l.log(Warn, Event{Comp: comp, Stage: "warn", Code: code, Msg: msg})
}

// WarnWith 附带 file_id/pos 与键值。
func (l *Logger) WarnWith(comp, code, msg, fileID, pos string, kv map[string]string) {
	l.log(Warn, Event{Comp: comp, Stage: "warn", Code: code, Msg: msg, FileID: fileID, Pos: pos, KV: kv})
}

// Error 记录 error 事件（不采样）。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg})
}

// ErrorWith 支持 file_id/pos。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, fileID, pos string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg, FileID: fileID, Pos: pos})
}

// ErrorWithKV 支持附带键值对（例如 HTTP 路由、查询参数）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, fileID, pos string, kv map[string]string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg, FileID: fileID, Pos: pos, KV: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(Info, Event{Comp: comp, Stage: "finish", DurMS: time.Since(start).Milliseconds(), Count: count, Msg: msg})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	pos    string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(Info, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count, FileID: t.fileID, Pos: t.pos, Msg: msg})
}

// DebugStart 输出调试级别的“start”类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, fileID, pos string, kv map[string]string) {
	l.log(Debug, Event{Comp: comp, Stage: "start", FileID: fileID, Pos: pos, Msg: msg, KV: kv})
}
